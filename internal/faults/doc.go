// Package faults defines the error taxonomy shared by the broker operator,
// the stores and the CLI: sentinel markers, a wrapping helper that attaches
// component/operation context exactly once, and the numeric status mapping
// recorded on failed work items.
package faults
