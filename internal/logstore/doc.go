// Package logstore archives per-record processing artifacts: input and
// result records, merge and match logs. Items are keyed by correlation id,
// type and blob sequence, can be protected against expiry, and are removed
// in bulk by sequence range once an import has been reviewed.
package logstore
