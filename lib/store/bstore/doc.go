// Package bstore implements store.IStore on top of a db.Backend shared
// through a session.Manager.
//
// # Overview
//
// A benchmark process runs one store per worker. All stores share the one
// backend client of the session manager, while each store owns its insert
// buffer. Per-operation failures never escape as Go errors: every method
// returns a store.Status and logs the cause.
//
// # Reads
//
// Point reads use the backend's read API (ReadDirect) or an equality query
// on the primary key (ReadQuery). The query path treats zero or several
// result rows as an error. Both paths select the same columns: the requested
// field set, or every column the catalog knows for the table. All reads run
// at the configured timestamp bound, strong by default.
//
// Scan reads a primary key range from a start key. The filtered scans select
// records by creation time or by namespace key, ordered by primary key. Each
// bound is optional but at least one must be given, otherwise the request is
// rejected with BadRequest and the backend is not contacted. Creation time
// bounds that parse as integers are compared as integers.
//
// # Inserts and the buffer
//
// Insert appends an upsert to the worker's buffer and answers BatchedOK until
// the buffer reaches the batch size, at which point the whole buffer is
// written in one Apply call. A failed write keeps the buffer, so the next
// flush sends the same mutations again (at-least-once). While the buffer is
// full, further inserts are dropped with a warning and trigger another flush.
// Cleanup flushes whatever is left.
//
// Update and Delete are written immediately.
//
// # Versioned updates
//
// FindAndUpdate maintains an integer version field. A record without a
// version gets 1, otherwise the stored version must match the expected one
// (if given) and is incremented. In the atomic mode the backend does this in
// one transaction. The optimistic mode reads, checks and writes separately
// and cannot detect a writer that slips in between.
package bstore
