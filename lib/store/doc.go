// Package store defines the data-access contract a benchmark worker runs
// against, independent of the database behind it.
//
// The package focuses on:
//   - A unified interface (IStore) for point reads, range and filtered scans,
//     upserts, deletes and versioned updates across different backends
//   - A closed set of outcomes (Status) instead of Go errors per operation
//
// Key Components:
//
//   - IStore Interface: The operations the workload driver issues. Every call
//     names its table explicitly, carries typed field values (codec.Fields) and
//     reports its outcome as a Status. An IStore belongs to exactly one worker
//     and must not be shared between goroutines.
//
//   - Status: OK, BatchedOK (insert accepted into the worker's buffer but not
//     yet written), Error (backend failure, missing record or version
//     conflict) and BadRequest (invalid arguments, nothing sent to the
//     backend). The cause of a non-OK status is logged by the implementation.
//
//   - Factory: A function creating one IStore per worker. Stores created by
//     the same factory share one backend client.
//
// Implementations:
//
//	- Backend Store (bstore): Maps the contract onto a db.Backend obtained from
//	  a session.Manager. It owns the per-worker insert buffer, dispatches
//	  reads to the direct or query path and implements the version protocol
//	  of FindAndUpdate. Any engine under lib/db/engines can serve it.
//	  Available in the "github.com/ValentinKolb/dBench/lib/store/bstore" package.
package store
