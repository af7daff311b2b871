package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
)

// DBFactory is a function that creates a new, empty instance of a Backend
type DBFactory func() db.Backend

// RunBackendTests runs a conformance test suite for a Backend implementation.
// Every subtest uses its own table, so backends that cannot be emptied
// between runs (emulators) can share one instance across subtests as long
// as the factory returns a fresh namespace.
func RunBackendTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Apply&ReadRow", func(t *testing.T) {
			testApplyReadRow(t, factory())
		})

		t.Run("UpsertMerges", func(t *testing.T) {
			testUpsertMerges(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("ReadRange", func(t *testing.T) {
			testReadRange(t, factory())
		})

		t.Run("QueryByKey", func(t *testing.T) {
			testQueryByKey(t, factory())
		})

		t.Run("QueryRange", func(t *testing.T) {
			testQueryRange(t, factory())
		})

		t.Run("UpdateVersioned", func(t *testing.T) {
			testUpdateVersioned(t, factory())
		})

		t.Run("ConcurrentApply", func(t *testing.T) {
			testConcurrentApply(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the backend supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, backend db.Backend, feature db.Feature) {
	if !backend.SupportsFeature(feature) {
		t.Skip()
	}
}

func upsert(t testing.TB, backend db.Backend, table, key string, fields codec.Fields) {
	if err := backend.Apply(context.Background(), []db.Mutation{db.Upsert(table, "id", key, fields)}); err != nil {
		t.Fatalf("apply %s/%s: %v", table, key, err)
	}
}

func keysOf(rows []codec.Fields, column string) []string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r[column].Text()
	}
	return keys
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testApplyReadRow(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeaturePointRead)
	ctx := context.Background()

	written := codec.Fields{
		"s": codec.String("text"),
		"b": codec.Bytes([]byte{0, 1, 2}),
		"n": codec.Int(42),
	}
	upsert(t, backend, "conf_rw", "k1", written)

	row, err := backend.ReadRow(ctx, db.Strong(), "conf_rw", "k1", []string{"id", "s", "b", "n"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for name, want := range written {
		if got := row[name]; !got.Equal(want) {
			t.Errorf("field %s: expected %v, got %v", name, want, got)
		}
	}
	if got := row["id"].Text(); got != "k1" {
		t.Errorf("expected key column to be written, got %q", got)
	}

	// projection
	row, err = backend.ReadRow(ctx, db.Strong(), "conf_rw", "k1", []string{"s"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(row) != 1 {
		t.Errorf("expected only the projected column, got %v", row)
	}

	_, err = backend.ReadRow(ctx, db.Strong(), "conf_rw", "missing", []string{"s"})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testUpsertMerges(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeaturePointRead)
	ctx := context.Background()

	upsert(t, backend, "conf_merge", "k", codec.Fields{"a": codec.String("1"), "b": codec.String("1")})
	upsert(t, backend, "conf_merge", "k", codec.Fields{"b": codec.String("2")})

	row, err := backend.ReadRow(ctx, db.Strong(), "conf_merge", "k", []string{"a", "b"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row["a"].Text() != "1" || row["b"].Text() != "2" {
		t.Errorf("upsert should only replace the given columns, got %v", row)
	}
}

func testDelete(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeaturePointRead|db.FeatureDelete)
	ctx := context.Background()

	upsert(t, backend, "conf_del", "k", codec.Fields{"a": codec.String("1")})
	if err := backend.Apply(ctx, []db.Mutation{db.Delete("conf_del", "id", "k")}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := backend.ReadRow(ctx, db.Strong(), "conf_del", "k", []string{"a"}); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// deleting a missing record is not an error
	if err := backend.Apply(ctx, []db.Mutation{db.Delete("conf_del", "id", "never")}); err != nil {
		t.Errorf("delete of missing record: %v", err)
	}
}

func testReadRange(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureRangeRead)
	ctx := context.Background()

	var batch []db.Mutation
	for i := 0; i < 10; i++ {
		batch = append(batch, db.Upsert("conf_range", "id", fmt.Sprintf("key%02d", i), codec.Fields{"i": codec.Int(int64(i))}))
	}
	if err := backend.Apply(ctx, batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	rows, err := backend.ReadRange(ctx, db.Strong(), "conf_range", "key05", 3, []string{"id", "i"})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if got, want := keysOf(rows, "id"), []string{"key05", "key06", "key07"}; !equalKeys(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	rows, err = backend.ReadRange(ctx, db.Strong(), "conf_range", "", 2, []string{"id"})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if got, want := keysOf(rows, "id"), []string{"key00", "key01"}; !equalKeys(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	rows, err = backend.ReadRange(ctx, db.Strong(), "conf_range", "zzz", 5, []string{"id"})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows past the last key, got %d", len(rows))
	}
}

func testQueryByKey(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureQuery)
	ctx := context.Background()

	upsert(t, backend, "conf_qkey", "a", codec.Fields{"v": codec.String("A")})
	upsert(t, backend, "conf_qkey", "b", codec.Fields{"v": codec.String("B")})

	rows, err := backend.Query(ctx, db.Strong(), db.Query{
		Table:     "conf_qkey",
		KeyColumn: "id",
		Columns:   []string{"id", "v"},
		Where:     []db.Predicate{{Column: "id", Op: db.OpEq, Value: codec.String("b")}},
		OrderBy:   "id",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0]["v"].Text() != "B" {
		t.Errorf("expected exactly record b, got %v", rows)
	}
}

func testQueryRange(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureQuery)
	ctx := context.Background()

	var batch []db.Mutation
	for i := 0; i < 20; i++ {
		// keys run opposite to the filtered column
		key := fmt.Sprintf("r%02d", i)
		batch = append(batch, db.Upsert("conf_qrange", "id", key, codec.Fields{"t": codec.Int(int64(100 - i))}))
	}
	if err := backend.Apply(ctx, batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	rows, err := backend.Query(ctx, db.Strong(), db.Query{
		Table:     "conf_qrange",
		KeyColumn: "id",
		Columns:   []string{"id", "t"},
		Where: []db.Predicate{
			{Column: "t", Op: db.OpGE, Value: codec.Int(85)},
			{Column: "t", Op: db.OpLE, Value: codec.Int(95)},
		},
		OrderBy: "id",
		Limit:   4,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got, want := keysOf(rows, "id"), []string{"r05", "r06", "r07", "r08"}; !equalKeys(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func testUpdateVersioned(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureConditionalWrite)
	cw, ok := backend.(db.ConditionalWriter)
	if !ok {
		t.Fatalf("backend advertises ConditionalWrite but does not implement it")
	}
	ctx := context.Background()

	upsert(t, backend, "conf_ver", "k", codec.Fields{"state": codec.String("NEW")})

	v, err := cw.UpdateVersioned(ctx, "conf_ver", "id", "k", nil, codec.Fields{"state": codec.String("STARTING")})
	if err != nil || v != 1 {
		t.Fatalf("first update: expected version 1, got %d (%v)", v, err)
	}
	expected := int64(1)
	v, err = cw.UpdateVersioned(ctx, "conf_ver", "id", "k", &expected, codec.Fields{"state": codec.String("RUNNING")})
	if err != nil || v != 2 {
		t.Fatalf("second update: expected version 2, got %d (%v)", v, err)
	}

	_, err = cw.UpdateVersioned(ctx, "conf_ver", "id", "k", &expected, codec.Fields{"state": codec.String("FAILED")})
	var mismatch *db.VersionMismatchError
	if !errors.As(err, &mismatch) || mismatch.Current != 2 {
		t.Errorf("expected version mismatch against 2, got %v", err)
	}

	row, err := backend.ReadRow(ctx, db.Strong(), "conf_ver", "k", []string{"state", "version"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row["state"].Text() != "RUNNING" {
		t.Errorf("rejected update must not change the record, got %v", row)
	}

	_, err = cw.UpdateVersioned(ctx, "conf_ver", "id", "missing", nil, codec.Fields{})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testConcurrentApply(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureRangeRead)
	ctx := context.Background()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-%03d", w, i)
				if err := backend.Apply(ctx, []db.Mutation{db.Upsert("conf_conc", "id", key, codec.Fields{"w": codec.Int(int64(w))})}); err != nil {
					t.Errorf("apply %s: %v", key, err)
				}
			}
		}(w)
	}
	wg.Wait()

	rows, err := backend.ReadRange(ctx, db.Strong(), "conf_conc", "", 0, []string{"id"})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(rows) != workers*perWorker {
		t.Errorf("expected %d records, got %d", workers*perWorker, len(rows))
	}
}
