// Package fixup normalizes MARC records before they are committed: a fixed
// order of independently-toggleable, idempotent passes. The pipeline clones
// the caller's record once at entry and each pass is a pure function of the
// previous pass's output.
package fixup
