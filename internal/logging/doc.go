// Package logging wraps log/slog construction and attribute helpers.
// Loggers are passed explicitly into constructors; the package never
// installs a process-wide default.
package logging
