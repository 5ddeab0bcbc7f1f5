// Package itemstore persists work items for the import pipeline.
//
// Each item is keyed by a caller-supplied correlation id and walks a fixed
// lifecycle from UPLOADING through the queuing and processing states to one
// of the terminal states DONE, ERROR or ABORT. Streamed record content lives
// in a filesystem blob bucket next to the SQLite database; appended ids and
// log messages are atomic against concurrent writers. A staleness guard
// aborts items that stop moving.
package itemstore
