package bstore

import (
	"context"
	"time"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/store"
	"github.com/VictoriaMetrics/metrics"
)

var droppedInserts = metrics.NewCounter("dbench_inserts_dropped_total")

// Insert appends an upsert to the buffer. The buffer never grows past the
// batch size: an insert arriving while it is full is dropped and the flush
// is retried.
func (s *storeImpl) Insert(ctx context.Context, table, key string, values codec.Fields) store.Status {
	start := time.Now()

	if len(s.buffer) >= s.opts.BatchSize {
		droppedInserts.Inc()
		log.Warningf("insert buffer full (%d), dropping %s/%s", len(s.buffer), table, key)
		return s.done("insert", start, s.Flush(ctx))
	}

	s.buffer = append(s.buffer, db.Upsert(table, s.opts.Catalog.PrimaryKey(table), key, values))
	if len(s.buffer) < s.opts.BatchSize {
		return s.done("insert", start, store.BatchedOK)
	}
	return s.done("insert", start, s.Flush(ctx))
}

// Flush writes the whole buffer in one call. The buffer is only cleared
// when the write succeeded, a failed batch is sent again by the next flush.
func (s *storeImpl) Flush(ctx context.Context) store.Status {
	start := time.Now()
	if len(s.buffer) == 0 {
		return store.OK
	}
	if err := s.backend.Apply(ctx, s.buffer); err != nil {
		log.Errorf("flush of %d mutations: %v", len(s.buffer), err)
		return s.done("flush", start, store.Error)
	}
	s.buffer = s.buffer[:0]
	return s.done("flush", start, store.OK)
}

// Update writes one upsert without buffering
func (s *storeImpl) Update(ctx context.Context, table, key string, values codec.Fields) store.Status {
	start := time.Now()
	m := db.Upsert(table, s.opts.Catalog.PrimaryKey(table), key, values)
	if err := s.backend.Apply(ctx, []db.Mutation{m}); err != nil {
		log.Warningf("update %s/%s: %v", table, key, err)
		return s.done("update", start, store.Error)
	}
	return s.done("update", start, store.OK)
}

func (s *storeImpl) Delete(ctx context.Context, table, key string) store.Status {
	start := time.Now()
	m := db.Delete(table, s.opts.Catalog.PrimaryKey(table), key)
	if err := s.backend.Apply(ctx, []db.Mutation{m}); err != nil {
		log.Warningf("delete %s/%s: %v", table, key, err)
		return s.done("delete", start, store.Error)
	}
	return s.done("delete", start, store.OK)
}
