package store

import (
	"context"

	"github.com/ValentinKolb/dBench/lib/codec"
	mapset "github.com/deckarep/golang-set/v2"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Factory creates one store per benchmark worker
type Factory func() IStore

// IStore is the data-access contract the workload driver runs against. One
// instance belongs to exactly one worker: the mutation buffer it owns is not
// shared, so an IStore must not be used from more than one goroutine.
//
// No method returns a Go error for per-operation failures. The outcome is
// reported as a Status and the cause is logged.
type IStore interface {
	// Init obtains the shared backend and validates the options. An error
	// here is fatal for the worker.
	Init(ctx context.Context) error
	// Cleanup flushes buffered inserts. Failures are logged only.
	Cleanup(ctx context.Context)

	// Read returns the requested fields of one record (all known fields of
	// the table when fields is nil).
	Read(ctx context.Context, table, key string, fields mapset.Set[string]) (codec.Fields, Status)
	// Scan returns up to limit records with primary key >= startKey in
	// ascending key order. An empty startKey scans from the beginning.
	Scan(ctx context.Context, table, startKey string, limit int, fields mapset.Set[string]) ([]codec.Fields, Status)
	// ScanWithCreatedTimeFilter returns up to limit records whose creation
	// time lies in [startRange, endRange], ordered by primary key. Either
	// bound may be empty, both empty is a BadRequest.
	ScanWithCreatedTimeFilter(ctx context.Context, table, startRange, endRange string, limit int, fields mapset.Set[string]) ([]codec.Fields, Status)
	// ScanWithNamespaceKeyFilter returns up to limit records whose namespace
	// key lies in [startRange, endRange], with the same bound rules.
	ScanWithNamespaceKeyFilter(ctx context.Context, table, startRange, endRange string, limit int, fields mapset.Set[string]) ([]codec.Fields, Status)

	// Insert buffers one upsert. It returns BatchedOK while the buffer has
	// room and the flush result once the buffer is full.
	Insert(ctx context.Context, table, key string, values codec.Fields) Status
	// Update writes one upsert immediately.
	Update(ctx context.Context, table, key string, values codec.Fields) Status
	// Delete removes one record immediately.
	Delete(ctx context.Context, table, key string) Status
	// FindAndUpdate checks the record's version against expected (skipped
	// when nil), writes values together with the next version and returns
	// it. The version is 0 whenever the status is not OK.
	FindAndUpdate(ctx context.Context, table, key string, expected *int64, values codec.Fields) (Status, int64)

	// Flush writes all buffered inserts in one batch.
	Flush(ctx context.Context) Status
}

// --------------------------------------------------------------------------
// Status
// --------------------------------------------------------------------------

// Status is the outcome of one store operation
type Status uint8

const (
	OK         Status = iota // Operation applied
	BatchedOK                // Insert accepted into the buffer, not yet written
	Error                    // Backend error, missing record or version conflict
	BadRequest               // Invalid arguments, nothing was sent to the backend
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case BatchedOK:
		return "BATCHED_OK"
	case Error:
		return "ERROR"
	case BadRequest:
		return "BAD_REQUEST"
	default:
		return "UNKNOWN"
	}
}

// IsOK reports whether the operation succeeded or was accepted for batching
func (s Status) IsOK() bool {
	return s == OK || s == BatchedOK
}
