// Package spanner implements the db.Backend interface on Cloud Spanner.
//
// One client with a session pool is shared by all workers of a process. The
// pool is opened with at least as many sessions as there are workers, and the
// number of gRPC channels can be raised for high thread counts.
//
// Reads run as single-use read-only transactions at the requested timestamp
// bound (strong or max-staleness). Point reads use the read API by primary
// key, range reads use a key range from the start key to the end of the
// table, and filtered reads are sent as SQL with bound parameters. Result
// columns are decoded by their declared type: BYTES, INT64 and STRING map to
// the codec kinds of the same name, anything else is kept in its string form,
// and NULL columns are left out of the result.
//
// Apply commits a whole batch with at-least-once semantics. Upserts use
// InsertOrUpdate with the supplied columns only. UpdateVersioned runs the
// version check and the write in one read-write transaction.
package spanner
