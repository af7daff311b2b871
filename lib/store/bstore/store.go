package bstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/measure"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/ValentinKolb/dBench/lib/session"
	"github.com/ValentinKolb/dBench/lib/store"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("bstore")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// ReadMode selects how point reads are issued
type ReadMode string

const (
	ReadDirect ReadMode = "direct" // Read by primary key through the read API
	ReadQuery  ReadMode = "query"  // Read through a filtered query on the primary key
)

// Versioning selects how FindAndUpdate protects the version check
type Versioning string

const (
	// VersioningAtomic runs check and write in one backend transaction when
	// the backend supports it, and falls back to optimistic otherwise
	VersioningAtomic Versioning = "atomic"
	// VersioningOptimistic always reads, checks and writes in separate calls
	VersioningOptimistic Versioning = "optimistic"
)

// Options configures a store. The session manager and catalog are shared
// between all stores of a process.
type Options struct {
	Session    *session.Manager // Source of the shared backend (required)
	Catalog    *schema.Catalog  // Table layouts (nil = built-in catalog with defaults)
	ReadMode   ReadMode         // Point read strategy (empty = direct)
	BatchSize  int              // Insert buffer capacity (>= 1)
	Staleness  time.Duration    // Max staleness of reads (0 = strong)
	Versioning Versioning       // FindAndUpdate mode (empty = atomic)
	Recorder   measure.Recorder // Latency hook (nil = discard)
}

// DefaultOptions returns the options used when a field is left empty
func DefaultOptions() Options {
	return Options{
		ReadMode:   ReadDirect,
		BatchSize:  1,
		Versioning: VersioningAtomic,
		Recorder:   measure.Nop(),
	}
}

// Validate checks the options and fills in defaults
func (o *Options) Validate() error {
	defaults := DefaultOptions()
	if o.Session == nil {
		return errors.New("bstore: a session manager is required")
	}
	if o.Catalog == nil {
		o.Catalog = schema.NewCatalog(0, "")
	}
	if o.ReadMode == "" {
		o.ReadMode = defaults.ReadMode
	}
	if o.ReadMode != ReadDirect && o.ReadMode != ReadQuery {
		return fmt.Errorf("bstore: invalid read mode %q (direct, query)", o.ReadMode)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("bstore: batch size must be >= 1, got %d", o.BatchSize)
	}
	if o.Staleness < 0 {
		return fmt.Errorf("bstore: staleness must be >= 0, got %s", o.Staleness)
	}
	if o.Versioning == "" {
		o.Versioning = defaults.Versioning
	}
	if o.Versioning != VersioningAtomic && o.Versioning != VersioningOptimistic {
		return fmt.Errorf("bstore: invalid versioning %q (atomic, optimistic)", o.Versioning)
	}
	if o.Recorder == nil {
		o.Recorder = defaults.Recorder
	}
	return nil
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

type storeImpl struct {
	opts    Options
	backend db.Backend
	bound   db.TimestampBound
	buffer  []db.Mutation
}

// NewStore creates a store for one worker. The backend is obtained in Init.
func NewStore(opts Options) store.IStore {
	return &storeImpl{opts: opts}
}

// NewFactory returns a store.Factory creating stores that share opts
func NewFactory(opts Options) store.Factory {
	return func() store.IStore {
		return NewStore(opts)
	}
}

func (s *storeImpl) Init(ctx context.Context) error {
	if err := s.opts.Validate(); err != nil {
		return err
	}
	backend, err := s.opts.Session.Get(ctx)
	if err != nil {
		return fmt.Errorf("bstore: backend: %w", err)
	}
	s.backend = backend
	s.bound = db.Strong()
	if s.opts.Staleness > 0 {
		s.bound = db.MaxStaleness(s.opts.Staleness)
	}
	s.buffer = make([]db.Mutation, 0, s.opts.BatchSize)
	log.Debugf("store ready (read=%s, batch=%d, bound=%s, versioning=%s)",
		s.opts.ReadMode, s.opts.BatchSize, s.bound, s.opts.Versioning)
	return nil
}

func (s *storeImpl) Cleanup(ctx context.Context) {
	if len(s.buffer) == 0 {
		return
	}
	if status := s.Flush(ctx); status != store.OK {
		log.Errorf("final flush of %d buffered inserts failed", len(s.buffer))
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// done reports one operation to the recorder and passes the status through
func (s *storeImpl) done(op string, start time.Time, status store.Status) store.Status {
	s.opts.Recorder.Record(op, start, status.String())
	return status
}

// columns resolves a field set to a sorted column list. A nil set selects
// every known column of the table.
func (s *storeImpl) columns(table string, fields mapset.Set[string]) []string {
	if fields == nil {
		return s.opts.Catalog.Table(table).ColumnNames()
	}
	cols := fields.ToSlice()
	sort.Strings(cols)
	return cols
}
