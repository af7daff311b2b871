package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
)

// RunBackendBenchmarks runs all benchmarks for a backend implementation
func RunBackendBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Upsert", func(b *testing.B) {
		benchmarkUpsert(b, factory())
	})

	b.Run("UpsertBatch", func(b *testing.B) {
		benchmarkUpsertBatch(b, factory())
	})

	b.Run("ReadRow", func(b *testing.B) {
		benchmarkReadRow(b, factory())
	})

	b.Run("ReadRange", func(b *testing.B) {
		benchmarkReadRange(b, factory())
	})

	b.Run("Query", func(b *testing.B) {
		benchmarkQuery(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchRow(i int) codec.Fields {
	return codec.Fields{
		"field0": codec.String(fmt.Sprintf("value-%d", i)),
		"n":      codec.Int(int64(i)),
	}
}

// prefill writes n records with keys bench-000000..
func prefill(b *testing.B, backend db.Backend, table string, n int) {
	ctx := context.Background()
	batch := make([]db.Mutation, 0, 100)
	for i := 0; i < n; i++ {
		batch = append(batch, db.Upsert(table, "id", fmt.Sprintf("bench-%06d", i), benchRow(i)))
		if len(batch) == cap(batch) || i == n-1 {
			if err := backend.Apply(ctx, batch); err != nil {
				b.Fatalf("prefill: %v", err)
			}
			batch = batch[:0]
		}
	}
}

// Benchmark for single-mutation writes
func benchmarkUpsert(b *testing.B, backend db.Backend) {

	b.Cleanup(func() {
		backend.Close()
	})

	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("bench-%d", counter%1000)
			_ = backend.Apply(ctx, []db.Mutation{db.Upsert("bench_upsert", "id", key, benchRow(counter))})
			counter++
		}
	})
}

// Benchmark for batched writes of 100 mutations
func benchmarkUpsertBatch(b *testing.B, backend db.Backend) {

	b.Cleanup(func() {
		backend.Close()
	})

	requireFeature(b, backend, db.FeatureBatchWrite)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch := make([]db.Mutation, 100)
		for j := range batch {
			batch[j] = db.Upsert("bench_batch", "id", fmt.Sprintf("bench-%d", j), benchRow(i))
		}
		_ = backend.Apply(ctx, batch)
	}
}

// Benchmark for point reads
func benchmarkReadRow(b *testing.B, backend db.Backend) {

	b.Cleanup(func() {
		backend.Close()
	})

	requireFeature(b, backend, db.FeaturePointRead)
	prefill(b, backend, "bench_read", 1000)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("bench-%06d", counter%1000)
			_, _ = backend.ReadRow(ctx, db.Strong(), "bench_read", key, []string{"field0", "n"})
			counter++
		}
	})
}

// Benchmark for key-range reads of 100 records
func benchmarkReadRange(b *testing.B, backend db.Backend) {

	b.Cleanup(func() {
		backend.Close()
	})

	requireFeature(b, backend, db.FeatureRangeRead)
	prefill(b, backend, "bench_range", 1000)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			start := fmt.Sprintf("bench-%06d", counter%900)
			_, _ = backend.ReadRange(ctx, db.Strong(), "bench_range", start, 100, nil)
			counter++
		}
	})
}

// Benchmark for filtered queries on a non-key column
func benchmarkQuery(b *testing.B, backend db.Backend) {

	b.Cleanup(func() {
		backend.Close()
	})

	requireFeature(b, backend, db.FeatureQuery)
	prefill(b, backend, "bench_query", 1000)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			lo := int64(counter % 900)
			_, _ = backend.Query(ctx, db.Strong(), db.Query{
				Table:     "bench_query",
				KeyColumn: "id",
				Where:     []db.Predicate{{Column: "n", Op: db.OpGE, Value: codec.Int(lo)}, {Column: "n", Op: db.OpLE, Value: codec.Int(lo + 100)}},
				OrderBy:   "id",
				Limit:     50,
			})
			counter++
		}
	})
}
