package maple

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("maple")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultGCInterval = time.Second // Default interval between GC runs
	defaultRetention  = time.Minute // Default lifetime of superseded versions

	allFeatures = db.FeaturePointRead |
		db.FeatureQuery |
		db.FeatureRangeRead |
		db.FeatureBatchWrite |
		db.FeatureConditionalWrite |
		db.FeatureDelete |
		db.FeatureStaleRead
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// table pairs the versioned rows of one table with the lock guarding them
type table struct {
	mu   sync.RWMutex
	data *internal.Table
}

// mapleImpl is an in-memory multi-version backend
type mapleImpl struct {
	tables    *xsync.MapOf[string, *table] // Table registry
	clock     func() time.Time             // Source of commit and snapshot times
	lastTs    atomic.Int64                 // Last issued commit timestamp
	retention time.Duration                // How long superseded versions stay readable
	features  db.Feature

	// garbage collection
	gcInterval  time.Duration
	gcIsRunning atomic.Bool
	gcStop      chan struct{}
	gcDone      chan struct{}
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	Retention  time.Duration    // Lifetime of superseded versions (0 = use default: 1 min)
	GCInterval time.Duration    // Time between GC runs (0 = use default: 1 sec)
	Clock      func() time.Time // Time source (nil = time.Now)
	Features   db.Feature       // Advertised features (0 = all)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		Retention:  defaultRetention,
		GCInterval: defaultGCInterval,
		Clock:      time.Now,
		Features:   allFeatures,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new in-memory backend with the specified options (optional).
// Stale reads are served from superseded versions, so Retention must be
// larger than the largest staleness bound used against this instance.
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) db.Backend {
	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}
	if opts.Retention <= 0 {
		opts.Retention = defaults.Retention
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaults.GCInterval
	}
	if opts.Clock == nil {
		opts.Clock = defaults.Clock
	}
	if opts.Features == 0 {
		opts.Features = defaults.Features
	}

	newDB := &mapleImpl{
		tables:     xsync.NewMapOf[string, *table](),
		clock:      opts.Clock,
		retention:  opts.Retention,
		features:   opts.Features,
		gcInterval: opts.GCInterval,
	}

	newDB.startGC()

	return newDB
}

// table returns the named table, creating it on first use if create is set.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) table(name string, create bool) (*table, bool) {
	if !create {
		return maple.tables.Load(name)
	}
	t, _ := maple.tables.LoadOrCompute(name, func() *table {
		return &table{data: internal.NewTable()}
	})
	return t, true
}

// --------------------------------------------------------------------------
// Timestamps
// --------------------------------------------------------------------------

// commitTs issues a strictly increasing commit timestamp close to the clock.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) commitTs() int64 {
	for {
		last := maple.lastTs.Load()
		now := maple.clock().UnixNano()
		if now <= last {
			now = last + 1
		}
		if maple.lastTs.CompareAndSwap(last, now) {
			return now
		}
	}
}

// snapshot converts a timestamp bound into a read timestamp
func (maple *mapleImpl) snapshot(bound db.TimestampBound) int64 {
	if bound.IsStrong() || maple.features&db.FeatureStaleRead == 0 {
		return internal.Latest
	}
	return maple.clock().Add(-bound.MaxStaleness).UnixNano()
}

// --------------------------------------------------------------------------
// Backend Interface Methods - Read Operations
// --------------------------------------------------------------------------

// ReadRow returns the requested columns of the record visible at the bound.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) ReadRow(ctx context.Context, bound db.TimestampBound, tableName, key string, columns []string) (codec.Fields, error) {
	if err := maple.check(ctx, db.FeaturePointRead); err != nil {
		return nil, err
	}
	t, ok := maple.table(tableName, false)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", tableName, key, db.ErrNotFound)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.data.Visible(key, maple.snapshot(bound))
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", tableName, key, db.ErrNotFound)
	}
	return project(v.Fields, columns), nil
}

// ReadRange returns up to limit records with key >= start in key order.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) ReadRange(ctx context.Context, bound db.TimestampBound, tableName, start string, limit int, columns []string) ([]codec.Fields, error) {
	if err := maple.check(ctx, db.FeatureRangeRead); err != nil {
		return nil, err
	}
	t, ok := maple.table(tableName, false)
	if !ok {
		return nil, nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var rows []codec.Fields
	t.data.Range(start, maple.snapshot(bound), func(v internal.Version) bool {
		rows = append(rows, project(v.Fields, columns))
		return limit <= 0 || len(rows) < limit
	})
	return rows, nil
}

// Query evaluates the predicates against every visible record. When the
// ordering column is the primary key the scan stops at the limit,
// otherwise all matches are sorted first.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Query(ctx context.Context, bound db.TimestampBound, q db.Query) ([]codec.Fields, error) {
	if err := maple.check(ctx, db.FeatureQuery); err != nil {
		return nil, err
	}
	t, ok := maple.table(q.Table, false)
	if !ok {
		return nil, nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	keyColumn := q.KeyColumn
	if keyColumn == "" {
		keyColumn = t.data.KeyColumn
	}
	keyOrdered := q.OrderBy == "" || q.OrderBy == keyColumn
	start := keyLowerBound(q, keyColumn)

	var rows []codec.Fields
	t.data.Range(start, maple.snapshot(bound), func(v internal.Version) bool {
		for _, p := range q.Where {
			if !p.Matches(v.Fields) {
				return true
			}
		}
		rows = append(rows, v.Fields)
		return !keyOrdered || q.Limit <= 0 || len(rows) < q.Limit
	})

	if !keyOrdered {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i][q.OrderBy].Compare(rows[j][q.OrderBy]) < 0
		})
		if q.Limit > 0 && len(rows) > q.Limit {
			rows = rows[:q.Limit]
		}
	}

	out := make([]codec.Fields, len(rows))
	for i, r := range rows {
		out[i] = project(r, q.Columns)
	}
	return out, nil
}

// keyLowerBound returns the first key a query can match, derived from
// predicates on the primary-key column.
func keyLowerBound(q db.Query, keyColumn string) string {
	start := ""
	for _, p := range q.Where {
		if p.Column != keyColumn || keyColumn == "" {
			continue
		}
		if p.Op == db.OpEq || p.Op == db.OpGE {
			if s := p.Value.Text(); s > start {
				start = s
			}
		}
	}
	return start
}

// --------------------------------------------------------------------------
// Backend Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Apply commits all mutations under a single commit timestamp.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Apply(ctx context.Context, ms []db.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ms) == 0 {
		return nil
	}

	// group by table, keeping the order within each table
	var order []string
	byTable := make(map[string][]db.Mutation)
	for _, m := range ms {
		if m.Op == db.MutationDelete && maple.features&db.FeatureDelete == 0 {
			return fmt.Errorf("delete: %w", db.ErrUnsupported)
		}
		if _, ok := byTable[m.Table]; !ok {
			order = append(order, m.Table)
		}
		byTable[m.Table] = append(byTable[m.Table], m)
	}

	ts := maple.commitTs()
	for _, name := range order {
		t, _ := maple.table(name, true)
		t.mu.Lock()
		for _, m := range byTable[name] {
			applyOne(t.data, m, ts)
		}
		t.mu.Unlock()
	}
	return nil
}

// applyOne writes one mutation as a new version. Upserts merge into the
// latest version skipping Null values, deletes of missing records are no-ops.
func applyOne(t *internal.Table, m db.Mutation, ts int64) {
	if t.KeyColumn == "" && m.KeyColumn != "" {
		t.KeyColumn = m.KeyColumn
	}
	prev, exists := t.Visible(m.Key, internal.Latest)

	switch m.Op {
	case db.MutationDelete:
		if exists {
			t.Put(internal.Version{Key: m.Key, Ts: ts, Deleted: true})
		}
	default:
		merged := prev.Fields.Clone()
		if merged == nil {
			merged = make(codec.Fields, len(m.Fields))
		}
		for k, v := range m.Fields {
			if !v.IsNull() {
				merged[k] = v
			}
		}
		t.Put(internal.Version{Key: m.Key, Ts: ts, Fields: merged})
	}
}

// UpdateVersioned checks and bumps the version field under the table lock.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) UpdateVersioned(ctx context.Context, tableName, keyColumn, key string, expected *int64, fields codec.Fields) (int64, error) {
	if err := maple.check(ctx, db.FeatureConditionalWrite); err != nil {
		return 0, err
	}
	t, ok := maple.table(tableName, false)
	if !ok {
		return 0, fmt.Errorf("%s/%s: %w", tableName, key, db.ErrNotFound)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.data.Visible(key, internal.Latest)
	if !ok {
		return 0, fmt.Errorf("%s/%s: %w", tableName, key, db.ErrNotFound)
	}
	stored, present := cur.Fields[schema.VersionColumn]
	next, err := db.NextVersion(stored, present, expected)
	if err != nil {
		return 0, err
	}

	m := db.Upsert(tableName, keyColumn, key, fields)
	m.Fields[schema.VersionColumn] = codec.Int(next)
	applyOne(t.data, m, maple.commitTs())
	return next, nil
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts the garbage collector
// if the GC is already running, this function does nothing
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) startGC() {
	if maple.gcIsRunning.CompareAndSwap(false, true) {
		maple.gcStop = make(chan struct{})
		maple.gcDone = make(chan struct{})
		go maple.garbageCollector(maple.gcStop, maple.gcDone)
	}
}

// stopGC stops the garbage collector and waits for the current cycle.
// if the GC is not running, this function does nothing.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) stopGC() {
	if maple.gcIsRunning.CompareAndSwap(true, false) {
		close(maple.gcStop)
		<-maple.gcDone
	}
}

// garbageCollector is the main garbage collection loop
// WARNING: this method should never be called directly! use startGC() and stopGC()
func (maple *mapleImpl) garbageCollector(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(maple.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := maple.collect(); n > 0 {
				log.Debugf("pruned %d superseded versions", n)
			}
		}
	}
}

// collect prunes every due key in every table once and returns the number
// of removed versions.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) collect() int {
	/*
		Note: The horizon is computed once per cycle so that keys rescheduled
		during this cycle are not processed again in an endless loop.
	*/
	horizon := maple.clock().Add(-maple.retention).UnixNano()

	pruned := 0
	maple.tables.Range(func(_ string, t *table) bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		var due []string
		for {
			key, ok := t.data.Prune.PopDue(horizon)
			if !ok {
				break
			}
			due = append(due, key)
		}
		for _, key := range due {
			pruned += t.data.PruneKey(key, horizon)
		}
		return true
	})
	return pruned
}

// --------------------------------------------------------------------------
// Backend Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// Info returns statistics about the backend
func (maple *mapleImpl) Info() db.BackendInfo {
	type tableStats struct {
		Records  int `json:"records"`
		Versions int `json:"versions"`
		Pending  int `json:"pending_prune"`
	}
	tables := make(map[string]tableStats)

	maple.tables.Range(func(name string, t *table) bool {
		t.mu.RLock()
		defer t.mu.RUnlock()
		records := 0
		t.data.Range("", internal.Latest, func(internal.Version) bool {
			records++
			return true
		})
		tables[name] = tableStats{
			Records:  records,
			Versions: t.data.Rows.Len(),
			Pending:  t.data.Prune.Len(),
		}
		return true
	})

	meta := &struct {
		LastCommitTs int64                 `json:"last_commit_ts"`
		Retention    string                `json:"retention"`
		Tables       map[string]tableStats `json:"tables"`
	}{
		LastCommitTs: maple.lastTs.Load(),
		Retention:    maple.retention.String(),
		Tables:       tables,
	}

	return db.BackendInfo{
		Backend:           db.ImplMaple,
		SupportedFeatures: maple.features.Features(),
		Metadata:          meta,
	}
}

// SupportsFeature checks if this instance supports a specific feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	return maple.features&feature == feature
}

// Close stops the garbage collector
func (maple *mapleImpl) Close() error {
	maple.stopGC()
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// check fails fast on cancelled contexts and disabled features
func (maple *mapleImpl) check(ctx context.Context, feature db.Feature) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !maple.SupportsFeature(feature) {
		return fmt.Errorf("%s: %w", feature, db.ErrUnsupported)
	}
	return nil
}

// project copies the requested columns of a row. A nil column list selects
// every stored column, columns without a value are left out.
func project(fields codec.Fields, columns []string) codec.Fields {
	if columns == nil {
		return fields.Clone()
	}
	out := make(codec.Fields, len(columns))
	for _, c := range columns {
		if v, ok := fields[c]; ok {
			out[c] = v
		}
	}
	return out
}
