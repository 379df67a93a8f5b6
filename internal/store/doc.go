// Package store persists call trace logs in SQLite. Every envelope
// that crosses the transport can be recorded as one row, giving a
// durable, queryable record of what was synchronized, when, and how
// many bytes moved. Recording is best-effort: a failed write never
// fails the call it describes.
package store
