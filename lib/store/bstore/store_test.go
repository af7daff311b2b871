package bstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/db/engines/maple"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/ValentinKolb/dBench/lib/session"
	"github.com/ValentinKolb/dBench/lib/store"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// spyBackend counts backend calls and can be switched to fail writes
type spyBackend struct {
	db.Backend
	features db.Feature // 0 = features of the wrapped backend

	applies   atomic.Int32
	mutations atomic.Int32 // sent by Apply, failed calls included
	reads     atomic.Int32
	queries   atomic.Int32
	failing   atomic.Bool
}

func (b *spyBackend) Apply(ctx context.Context, ms []db.Mutation) error {
	b.applies.Add(1)
	b.mutations.Add(int32(len(ms)))
	if b.failing.Load() {
		return errors.New("backend unavailable")
	}
	return b.Backend.Apply(ctx, ms)
}

func (b *spyBackend) ReadRow(ctx context.Context, bound db.TimestampBound, table, key string, columns []string) (codec.Fields, error) {
	b.reads.Add(1)
	return b.Backend.ReadRow(ctx, bound, table, key, columns)
}

func (b *spyBackend) ReadRange(ctx context.Context, bound db.TimestampBound, table, start string, limit int, columns []string) ([]codec.Fields, error) {
	b.reads.Add(1)
	return b.Backend.ReadRange(ctx, bound, table, start, limit, columns)
}

func (b *spyBackend) Query(ctx context.Context, bound db.TimestampBound, q db.Query) ([]codec.Fields, error) {
	b.queries.Add(1)
	return b.Backend.Query(ctx, bound, q)
}

func (b *spyBackend) UpdateVersioned(ctx context.Context, table, keyColumn, key string, expected *int64, fields codec.Fields) (int64, error) {
	return b.Backend.(db.ConditionalWriter).UpdateVersioned(ctx, table, keyColumn, key, expected, fields)
}

func (b *spyBackend) SupportsFeature(f db.Feature) bool {
	if b.features != 0 {
		return b.features&f == f
	}
	return b.Backend.SupportsFeature(f)
}

// newTestStore creates an initialized store on a fresh maple backend
func newTestStore(t *testing.T, opts Options) (store.IStore, *spyBackend) {
	t.Helper()
	spy := &spyBackend{Backend: maple.NewMapleDB(nil)}
	return newStoreOn(t, spy, opts), spy
}

// newStoreOn creates an initialized store sharing an existing backend
func newStoreOn(t *testing.T, spy *spyBackend, opts Options) store.IStore {
	t.Helper()
	mgr := session.NewManager(func(context.Context) (db.Backend, error) { return spy, nil })
	t.Cleanup(func() { _ = mgr.Close() })
	opts.Session = mgr
	if opts.BatchSize == 0 {
		opts.BatchSize = 1
	}
	s := NewStore(opts)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func keys(rows []codec.Fields, column string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r[column].Text()
	}
	return out
}

func int64Ptr(i int64) *int64 { return &i }

// --------------------------------------------------------------------------
// Init
// --------------------------------------------------------------------------

func TestInitRejectsInvalidOptions(t *testing.T) {
	mgr := session.NewManager(func(context.Context) (db.Backend, error) { return maple.NewMapleDB(nil), nil })
	defer mgr.Close()
	ctx := context.Background()

	assert.Error(t, NewStore(Options{Session: mgr, BatchSize: 0}).Init(ctx))
	assert.Error(t, NewStore(Options{Session: mgr, BatchSize: 1, ReadMode: "scan"}).Init(ctx))
	assert.Error(t, NewStore(Options{Session: mgr, BatchSize: 1, Versioning: "pessimistic"}).Init(ctx))
	assert.Error(t, NewStore(Options{Session: mgr, BatchSize: 1, Staleness: -time.Second}).Init(ctx))
	assert.Error(t, NewStore(Options{BatchSize: 1}).Init(ctx))
}

func TestInitPropagatesSessionFailure(t *testing.T) {
	mgr := session.NewManager(func(context.Context) (db.Backend, error) { return nil, errors.New("missing credentials") })
	err := NewStore(Options{Session: mgr, BatchSize: 1}).Init(context.Background())
	assert.ErrorContains(t, err, "missing credentials")
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

func TestInsertReadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	values := codec.Fields{
		"field0": codec.String("zero"),
		"field1": codec.Bytes([]byte{0xde, 0xad}),
	}
	require.Equal(t, store.OK, s.Insert(ctx, "usertable", "user1", values))

	row, status := s.Read(ctx, "usertable", "user1", nil)
	require.Equal(t, store.OK, status)
	assert.Equal(t, codec.Fields{
		"id":     codec.String("user1"),
		"field0": codec.String("zero"),
		"field1": codec.Bytes([]byte{0xde, 0xad}),
	}, row)

	row, status = s.Read(ctx, "usertable", "user1", mapset.NewSet("field1"))
	require.Equal(t, store.OK, status)
	assert.Len(t, row, 1)
}

func TestReadModesAgree(t *testing.T) {
	direct, spy := newTestStore(t, Options{ReadMode: ReadDirect})
	query := newStoreOn(t, spy, Options{ReadMode: ReadQuery})
	ctx := context.Background()

	require.Equal(t, store.OK, direct.Insert(ctx, schema.JobsTable, "job-1", codec.Fields{
		"jobState":  codec.String("RUNNING"),
		"startTime": codec.Int(900),
	}))

	a, status := direct.Read(ctx, schema.JobsTable, "job-1", nil)
	require.Equal(t, store.OK, status)
	queriesBefore := spy.queries.Load()
	b, status := query.Read(ctx, schema.JobsTable, "job-1", nil)
	require.Equal(t, store.OK, status)

	assert.True(t, a.Equal(b), "direct %v, query %v", a, b)
	assert.Equal(t, queriesBefore+1, spy.queries.Load())

	_, status = direct.Read(ctx, schema.JobsTable, "job-2", nil)
	assert.Equal(t, store.Error, status)
	_, status = query.Read(ctx, schema.JobsTable, "job-2", nil)
	assert.Equal(t, store.Error, status)
}

func TestStaleReadsHonourBound(t *testing.T) {
	strong, spy := newTestStore(t, Options{})
	stale := newStoreOn(t, spy, Options{Staleness: time.Hour})
	ctx := context.Background()

	require.Equal(t, store.OK, strong.Insert(ctx, "usertable", "k", codec.Fields{"field0": codec.String("v")}))

	_, status := strong.Read(ctx, "usertable", "k", nil)
	assert.Equal(t, store.OK, status)
	// the record did not exist an hour ago
	_, status = stale.Read(ctx, "usertable", "k", nil)
	assert.Equal(t, store.Error, status)
}

func TestScan(t *testing.T) {
	s, _ := newTestStore(t, Options{BatchSize: 10})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.Insert(ctx, "usertable", fmt.Sprintf("user%02d", i), codec.Fields{"field0": codec.Int(int64(i))})
	}

	rows, status := s.Scan(ctx, "usertable", "user04", 3, mapset.NewSet("id"))
	require.Equal(t, store.OK, status)
	assert.Equal(t, []string{"user04", "user05", "user06"}, keys(rows, "id"))

	rows, status = s.Scan(ctx, "usertable", "", 2, nil)
	require.Equal(t, store.OK, status)
	assert.Equal(t, []string{"user00", "user01"}, keys(rows, "id"))
}

// --------------------------------------------------------------------------
// Filtered scans
// --------------------------------------------------------------------------

// loadJobs writes n jobs whose start time runs opposite to the key order
func loadJobs(t *testing.T, spy *spyBackend, n int) {
	t.Helper()
	batch := make([]db.Mutation, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, db.Upsert(schema.JobsTable, "jobId", fmt.Sprintf("job-%05d", i), codec.Fields{
			"startTime": codec.Int(int64(n - 1 - i)),
			"jobState":  codec.String("COMPLETED"),
		}))
	}
	require.NoError(t, spy.Backend.Apply(context.Background(), batch))
}

func TestScanWithCreatedTimeFilter(t *testing.T) {
	s, spy := newTestStore(t, Options{})
	loadJobs(t, spy, 1800)
	ctx := context.Background()

	rows, status := s.ScanWithCreatedTimeFilter(ctx, schema.JobsTable, "800", "2000", 50, nil)
	require.Equal(t, store.OK, status)
	require.Len(t, rows, 50)

	got := keys(rows, "jobId")
	for i, k := range got {
		// ascending primary key
		assert.Equal(t, fmt.Sprintf("job-%05d", i), k)
		ts, err := rows[i]["startTime"].Int64()
		require.NoError(t, err)
		assert.True(t, ts >= 800 && ts <= 2000, "startTime %d out of range", ts)
	}

	// open upper bound
	rows, status = s.ScanWithCreatedTimeFilter(ctx, schema.JobsTable, "1790", "", 100, nil)
	require.Equal(t, store.OK, status)
	assert.Len(t, rows, 10)

	// open lower bound
	rows, status = s.ScanWithCreatedTimeFilter(ctx, schema.JobsTable, "", "4", 100, nil)
	require.Equal(t, store.OK, status)
	assert.Len(t, rows, 5)
}

func TestScanWithoutBoundsIsBadRequest(t *testing.T) {
	s, spy := newTestStore(t, Options{})
	ctx := context.Background()

	_, status := s.ScanWithCreatedTimeFilter(ctx, schema.JobsTable, "", "", 50, nil)
	assert.Equal(t, store.BadRequest, status)
	_, status = s.ScanWithNamespaceKeyFilter(ctx, schema.NamespaceTable, "", "", 50, nil)
	assert.Equal(t, store.BadRequest, status)

	assert.Equal(t, int32(0), spy.queries.Load())
	assert.Equal(t, int32(0), spy.reads.Load())
}

func TestScanWithoutLimitIsBadRequest(t *testing.T) {
	s, spy := newTestStore(t, Options{})
	ctx := context.Background()

	for _, limit := range []int{0, -1} {
		_, status := s.Scan(ctx, "usertable", "", limit, nil)
		assert.Equal(t, store.BadRequest, status, "limit %d", limit)
		_, status = s.ScanWithCreatedTimeFilter(ctx, schema.JobsTable, "800", "2000", limit, nil)
		assert.Equal(t, store.BadRequest, status, "limit %d", limit)
		_, status = s.ScanWithNamespaceKeyFilter(ctx, schema.NamespaceTable, "/a", "/b", limit, nil)
		assert.Equal(t, store.BadRequest, status, "limit %d", limit)
	}

	assert.Equal(t, int32(0), spy.queries.Load())
	assert.Equal(t, int32(0), spy.reads.Load())
}

func TestScanWithCreatedTimeFilterOnTextTimes(t *testing.T) {
	s, spy := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, spy.Backend.Apply(ctx, []db.Mutation{
		db.Upsert(schema.JobsTable, "jobId", "job-a", codec.Fields{"startTime": codec.String("1200")}),
		db.Upsert(schema.JobsTable, "jobId", "job-b", codec.Fields{"startTime": codec.String("900")}),
		db.Upsert(schema.JobsTable, "jobId", "job-c", codec.Fields{"startTime": codec.String("2500")}),
		db.Upsert(schema.JobsTable, "jobId", "job-d", codec.Fields{"startTime": codec.String("later")}),
	}))

	rows, status := s.ScanWithCreatedTimeFilter(ctx, schema.JobsTable, "800", "2000", 10, nil)
	require.Equal(t, store.OK, status)
	assert.Equal(t, []string{"job-a", "job-b"}, keys(rows, "jobId"))
}

func TestScanWithNamespaceKeyFilter(t *testing.T) {
	s, _ := newTestStore(t, Options{BatchSize: 100})
	ctx := context.Background()

	paths := []string{
		"/mysource0/schema/table1/file1.txt",
		"/mysource1",
		"/mysource1/schema",
		"/mysource1/schema/table1/file1.txt",
		"/mysource1/schema/table3/file30.txt",
		"/mysource1/schema/table4/file1.txt",
		"/mysource2/schema/table1/file1.txt",
	}
	for _, p := range paths {
		s.Insert(ctx, schema.NamespaceTable, p, codec.Fields{"entityType": codec.String("FILE")})
	}
	require.Equal(t, store.OK, s.Flush(ctx))

	rows, status := s.ScanWithNamespaceKeyFilter(ctx, schema.NamespaceTable,
		"/mysource1", "/mysource1/schema/table3/file30.txt", 30, mapset.NewSet("entityId"))
	require.Equal(t, store.OK, status)
	assert.Equal(t, paths[1:5], keys(rows, schema.NamespaceKey))

	// the field set is ignored, all known columns are returned
	assert.Equal(t, "FILE", rows[0]["entityType"].Text())
}

// --------------------------------------------------------------------------
// Buffer
// --------------------------------------------------------------------------

func TestInsertBatching(t *testing.T) {
	s, spy := newTestStore(t, Options{BatchSize: 3})
	ctx := context.Background()

	assert.Equal(t, store.BatchedOK, s.Insert(ctx, "usertable", "a", codec.Fields{"field0": codec.String("1")}))
	assert.Equal(t, store.BatchedOK, s.Insert(ctx, "usertable", "b", codec.Fields{"field0": codec.String("2")}))
	assert.Equal(t, int32(0), spy.applies.Load())
	assert.Equal(t, store.OK, s.Insert(ctx, "usertable", "c", codec.Fields{"field0": codec.String("3")}))
	assert.Equal(t, int32(1), spy.applies.Load())
	assert.Equal(t, int32(3), spy.mutations.Load())

	for _, k := range []string{"a", "b", "c"} {
		_, status := s.Read(ctx, "usertable", k, nil)
		assert.Equal(t, store.OK, status, "record %s", k)
	}
}

func TestFailedFlushKeepsBuffer(t *testing.T) {
	s, spy := newTestStore(t, Options{BatchSize: 2})
	ctx := context.Background()
	spy.failing.Store(true)

	assert.Equal(t, store.BatchedOK, s.Insert(ctx, "usertable", "a", nil))
	assert.Equal(t, store.Error, s.Insert(ctx, "usertable", "b", nil))
	assert.Equal(t, int32(1), spy.applies.Load())

	// the buffer is full: c is dropped and the flush is retried
	assert.Equal(t, store.Error, s.Insert(ctx, "usertable", "c", nil))
	assert.Equal(t, int32(2), spy.applies.Load())

	spy.failing.Store(false)
	assert.Equal(t, store.OK, s.Flush(ctx))

	_, status := s.Read(ctx, "usertable", "a", nil)
	assert.Equal(t, store.OK, status)
	_, status = s.Read(ctx, "usertable", "b", nil)
	assert.Equal(t, store.OK, status)
	_, status = s.Read(ctx, "usertable", "c", nil)
	assert.Equal(t, store.Error, status)

	// empty buffer: nothing is sent
	applies := spy.applies.Load()
	assert.Equal(t, store.OK, s.Flush(ctx))
	assert.Equal(t, applies, spy.applies.Load())
}

func TestDropWhileFullRecoversOnFlush(t *testing.T) {
	s, spy := newTestStore(t, Options{BatchSize: 1})
	ctx := context.Background()
	spy.failing.Store(true)

	assert.Equal(t, store.Error, s.Insert(ctx, "usertable", "a", nil))
	spy.failing.Store(false)

	// b is dropped, but the retried flush writes a
	assert.Equal(t, store.OK, s.Insert(ctx, "usertable", "b", nil))
	_, status := s.Read(ctx, "usertable", "a", nil)
	assert.Equal(t, store.OK, status)
	_, status = s.Read(ctx, "usertable", "b", nil)
	assert.Equal(t, store.Error, status)
}

func TestCleanupFlushes(t *testing.T) {
	s, spy := newTestStore(t, Options{BatchSize: 10})
	ctx := context.Background()

	s.Insert(ctx, "usertable", "a", nil)
	s.Insert(ctx, "usertable", "b", nil)
	s.Cleanup(ctx)
	assert.Equal(t, int32(1), spy.applies.Load())

	rows, status := s.Scan(ctx, "usertable", "", 10, nil)
	require.Equal(t, store.OK, status)
	assert.Len(t, rows, 2)

	// failures during cleanup are only logged
	s.Insert(ctx, "usertable", "c", nil)
	spy.failing.Store(true)
	s.Cleanup(ctx)
}

func TestUpdateAndDelete(t *testing.T) {
	s, spy := newTestStore(t, Options{BatchSize: 10})
	ctx := context.Background()

	assert.Equal(t, store.OK, s.Update(ctx, "usertable", "k", codec.Fields{"field0": codec.String("a")}))
	assert.Equal(t, int32(1), spy.applies.Load())
	assert.Equal(t, store.OK, s.Update(ctx, "usertable", "k", codec.Fields{"field1": codec.String("b")}))

	row, status := s.Read(ctx, "usertable", "k", nil)
	require.Equal(t, store.OK, status)
	assert.Equal(t, "a", row["field0"].Text())
	assert.Equal(t, "b", row["field1"].Text())

	assert.Equal(t, store.OK, s.Delete(ctx, "usertable", "k"))
	_, status = s.Read(ctx, "usertable", "k", nil)
	assert.Equal(t, store.Error, status)

	spy.failing.Store(true)
	assert.Equal(t, store.Error, s.Update(ctx, "usertable", "k", nil))
	assert.Equal(t, store.Error, s.Delete(ctx, "usertable", "k"))
}

// --------------------------------------------------------------------------
// Versioned updates
// --------------------------------------------------------------------------

func TestFindAndUpdate(t *testing.T) {
	for _, mode := range []Versioning{VersioningAtomic, VersioningOptimistic} {
		t.Run(string(mode), func(t *testing.T) {
			s, _ := newTestStore(t, Options{Versioning: mode})
			ctx := context.Background()

			require.Equal(t, store.OK, s.Insert(ctx, schema.JobsTable, "job-1", codec.Fields{"jobState": codec.String("STARTING")}))

			status, v := s.FindAndUpdate(ctx, schema.JobsTable, "job-1", nil, codec.Fields{"jobState": codec.String("RUNNING")})
			require.Equal(t, store.OK, status)
			assert.Equal(t, int64(1), v)

			status, v = s.FindAndUpdate(ctx, schema.JobsTable, "job-1", int64Ptr(1), codec.Fields{"jobState": codec.String("COMPLETED")})
			require.Equal(t, store.OK, status)
			assert.Equal(t, int64(2), v)

			// stale expected version: rejected, record unchanged
			status, v = s.FindAndUpdate(ctx, schema.JobsTable, "job-1", int64Ptr(1), codec.Fields{"jobState": codec.String("FAILED")})
			assert.Equal(t, store.Error, status)
			assert.Equal(t, int64(0), v)

			row, status := s.Read(ctx, schema.JobsTable, "job-1", mapset.NewSet("jobState", "version"))
			require.Equal(t, store.OK, status)
			assert.Equal(t, "COMPLETED", row["jobState"].Text())
			version, err := row["version"].Int64()
			require.NoError(t, err)
			assert.Equal(t, int64(2), version)

			status, _ = s.FindAndUpdate(ctx, schema.JobsTable, "job-404", nil, codec.Fields{})
			assert.Equal(t, store.Error, status)
		})
	}
}

func TestFindAndUpdateMissingVersionStartsAtOne(t *testing.T) {
	s, _ := newTestStore(t, Options{Versioning: VersioningOptimistic})
	ctx := context.Background()

	require.Equal(t, store.OK, s.Insert(ctx, schema.JobsTable, "job-1", nil))

	// without a stored version the expected value is not checked
	status, v := s.FindAndUpdate(ctx, schema.JobsTable, "job-1", int64Ptr(7), nil)
	require.Equal(t, store.OK, status)
	assert.Equal(t, int64(1), v)
}

func TestOptimisticWritesWithoutConditionalWrite(t *testing.T) {
	spy := &spyBackend{
		Backend:  maple.NewMapleDB(nil),
		features: db.FeaturePointRead | db.FeatureQuery | db.FeatureRangeRead | db.FeatureBatchWrite | db.FeatureDelete,
	}
	s := newStoreOn(t, spy, Options{Versioning: VersioningAtomic})
	ctx := context.Background()

	require.Equal(t, store.OK, s.Insert(ctx, schema.JobsTable, "job-1", nil))
	applies := spy.applies.Load()

	status, v := s.FindAndUpdate(ctx, schema.JobsTable, "job-1", nil, codec.Fields{"jobState": codec.String("RUNNING")})
	require.Equal(t, store.OK, status)
	assert.Equal(t, int64(1), v)
	// read-then-write goes through Apply
	assert.Equal(t, applies+1, spy.applies.Load())
}

func TestVersionCheckReadsStrong(t *testing.T) {
	s, _ := newTestStore(t, Options{Versioning: VersioningOptimistic, Staleness: time.Hour})
	ctx := context.Background()

	require.Equal(t, store.OK, s.Insert(ctx, schema.JobsTable, "job-1", nil))
	status, v := s.FindAndUpdate(ctx, schema.JobsTable, "job-1", nil, nil)
	require.Equal(t, store.OK, status)
	assert.Equal(t, int64(1), v)
}
