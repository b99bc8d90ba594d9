// Package archive is the Connector's durable, append-only event log.
//
// Events live in one table keyed by (connectionId, sequence):
//
//	events(connectionId, sequence, timestamp, type, data)
//
// Two drivers back the Store interface: SQLite in WAL mode (the default,
// readable by the Processor while the Connector writes) and Postgres via
// pgx. Schemas are versioned with golang-migrate and embedded in the
// binary.
//
// The Archiver sits in front of a Store. Append is asynchronous; a single
// worker goroutine groups queued events into transactions, committing as
// soon as the queue drains or a gather window elapses. Flush returns a
// channel that yields once everything enqueued before it is committed.
// A failed commit is fatal to the Archiver.
package archive
