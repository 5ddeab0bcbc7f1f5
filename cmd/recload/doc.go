// Command recload is the operator CLI for the record import pipeline: queue
// inspection and publishing, work-item management, archived log handling and
// the consumer loop.
package main
