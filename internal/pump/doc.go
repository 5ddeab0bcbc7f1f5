// Package pump runs the consumer loop between the broker and the work-item
// store: drain a chunk, normalize each record, record the outcome and
// acknowledge. One pump per store, enforced with a file lock.
package pump
