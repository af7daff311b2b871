package spanner

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/compute/metadata"
	sp "cloud.google.com/go/spanner"
	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/lni/dragonboat/v4/logger"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

var log = logger.GetLogger("spanner")

const (
	allFeatures = db.FeaturePointRead |
		db.FeatureQuery |
		db.FeatureRangeRead |
		db.FeatureBatchWrite |
		db.FeatureConditionalWrite |
		db.FeatureDelete |
		db.FeatureStaleRead
)

// Options configures the Spanner client
type Options struct {
	Host            string          // Custom endpoint (empty = default, SPANNER_EMULATOR_HOST is honoured by the client)
	Project         string          // GCP project (empty = discovered from the metadata server)
	Instance        string          // Spanner instance id (required)
	Database        string          // Spanner database id (required)
	Sessions        int             // Minimum number of pooled sessions, usually the worker count
	Channels        int             // Number of gRPC channels (0 = client default)
	CredentialsFile string          // Service account key file (empty = application default credentials)
	Catalog         *schema.Catalog // Resolves column lists of full reads and the declared kind of every column
}

// spannerImpl adapts a Spanner client to the db.Backend interface
type spannerImpl struct {
	client   *sp.Client
	path     string
	catalog  *schema.Catalog
	features db.Feature
}

// New connects to Cloud Spanner. The client keeps a session pool of at least
// opts.Sessions sessions so that every worker can hold one without waiting.
//
// Thread-safety: The returned backend is safe for concurrent use.
func New(ctx context.Context, opts Options) (db.Backend, error) {
	if opts.Instance == "" || opts.Database == "" {
		return nil, errors.New("spanner: instance and database are required")
	}
	if opts.Project == "" {
		project, err := metadata.ProjectIDWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("spanner: no project configured and metadata lookup failed: %w", err)
		}
		log.Infof("using project %s from the metadata server", project)
		opts.Project = project
	}
	if opts.Catalog == nil {
		opts.Catalog = schema.NewCatalog(0, "")
	}

	path := DatabasePath(opts.Project, opts.Instance, opts.Database)

	var clientOpts []option.ClientOption
	if opts.Host != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Host))
	}
	if opts.Channels > 0 {
		clientOpts = append(clientOpts, option.WithGRPCConnectionPool(opts.Channels))
	}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	config := sp.ClientConfig{
		SessionPoolConfig: sp.DefaultSessionPoolConfig,
	}
	if opts.Sessions > 0 {
		config.SessionPoolConfig.MinOpened = uint64(opts.Sessions)
		if config.SessionPoolConfig.MaxOpened < config.SessionPoolConfig.MinOpened {
			config.SessionPoolConfig.MaxOpened = config.SessionPoolConfig.MinOpened
		}
	}

	client, err := sp.NewClientWithConfig(ctx, path, config, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("spanner: connect to %s: %w", path, err)
	}
	log.Infof("connected to %s (sessions=%d, channels=%d)", path, opts.Sessions, opts.Channels)

	return &spannerImpl{
		client:   client,
		path:     path,
		catalog:  opts.Catalog,
		features: allFeatures,
	}, nil
}

// DatabasePath returns the fully qualified database name
func DatabasePath(project, instance, database string) string {
	return fmt.Sprintf("projects/%s/instances/%s/databases/%s", project, instance, database)
}

// timestampBound converts a db bound into the Spanner single-use bound
func timestampBound(b db.TimestampBound) sp.TimestampBound {
	if b.IsStrong() {
		return sp.StrongRead()
	}
	return sp.MaxStaleness(b.MaxStaleness)
}

// --------------------------------------------------------------------------
// Backend Interface Methods - Read Operations
// --------------------------------------------------------------------------

func (s *spannerImpl) ReadRow(ctx context.Context, bound db.TimestampBound, table, key string, columns []string) (codec.Fields, error) {
	row, err := s.client.Single().
		WithTimestampBound(timestampBound(bound)).
		ReadRow(ctx, table, sp.Key{key}, s.columns(table, columns))
	if err != nil {
		if sp.ErrCode(err) == codes.NotFound {
			return nil, fmt.Errorf("%s/%s: %w", table, key, db.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s/%s: %w", table, key, err)
	}
	return decodeRow(row, s.catalog.Table(table))
}

func (s *spannerImpl) Query(ctx context.Context, bound db.TimestampBound, q db.Query) ([]codec.Fields, error) {
	stmt, err := buildStatement(q)
	if err != nil {
		return nil, err
	}
	log.Debugf("query %s", stmt.SQL)

	iter := s.client.Single().WithTimestampBound(timestampBound(bound)).Query(ctx, stmt)
	return collect(iter, s.catalog.Table(q.Table))
}

// ReadRange uses the key-ordered read API: an unbounded key set when start
// is empty, otherwise the closed range from start to the end of the table.
func (s *spannerImpl) ReadRange(ctx context.Context, bound db.TimestampBound, table, start string, limit int, columns []string) ([]codec.Fields, error) {
	var keys sp.KeySet = sp.AllKeys()
	if start != "" {
		keys = sp.KeyRange{Start: sp.Key{start}, End: sp.Key{}, Kind: sp.ClosedClosed}
	}
	opts := &sp.ReadOptions{}
	if limit > 0 {
		opts.Limit = limit
	}

	iter := s.client.Single().
		WithTimestampBound(timestampBound(bound)).
		ReadWithOptions(ctx, table, keys, s.columns(table, columns), opts)
	return collect(iter, s.catalog.Table(table))
}

// collect drains a row iterator
func collect(iter *sp.RowIterator, table schema.Table) ([]codec.Fields, error) {
	var rows []codec.Fields
	err := iter.Do(func(r *sp.Row) error {
		f, err := decodeRow(r, table)
		if err != nil {
			return err
		}
		rows = append(rows, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// columns resolves a nil column list through the catalog, Spanner reads
// always name their columns.
func (s *spannerImpl) columns(table string, columns []string) []string {
	if columns != nil {
		return columns
	}
	return s.catalog.Table(table).ColumnNames()
}

// --------------------------------------------------------------------------
// Backend Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Apply sends all mutations in one at-least-once commit
func (s *spannerImpl) Apply(ctx context.Context, ms []db.Mutation) error {
	if len(ms) == 0 {
		return nil
	}
	batch := make([]*sp.Mutation, 0, len(ms))
	for _, m := range ms {
		batch = append(batch, toMutation(m))
	}
	if _, err := s.client.Apply(ctx, batch, sp.ApplyAtLeastOnce()); err != nil {
		return fmt.Errorf("apply %d mutations: %w", len(ms), err)
	}
	return nil
}

func toMutation(m db.Mutation) *sp.Mutation {
	if m.Op == db.MutationDelete {
		return sp.Delete(m.Table, sp.Key{m.Key})
	}
	return sp.InsertOrUpdateMap(m.Table, toRow(m.Fields))
}

// UpdateVersioned reads the version column and writes the new fields inside
// one read-write transaction.
func (s *spannerImpl) UpdateVersioned(ctx context.Context, table, keyColumn, key string, expected *int64, fields codec.Fields) (int64, error) {
	var (
		next     int64
		checkErr error
	)
	_, err := s.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *sp.ReadWriteTransaction) error {
		checkErr = nil
		row, err := txn.ReadRow(ctx, table, sp.Key{key}, []string{schema.VersionColumn})
		if err != nil {
			if sp.ErrCode(err) == codes.NotFound {
				checkErr = fmt.Errorf("%s/%s: %w", table, key, db.ErrNotFound)
				return checkErr
			}
			return err
		}
		current, err := decodeRow(row, s.catalog.Table(table))
		if err != nil {
			return err
		}
		stored, present := current[schema.VersionColumn]
		n, err := db.NextVersion(stored, present, expected)
		if err != nil {
			checkErr = err
			return err
		}

		m := db.Upsert(table, keyColumn, key, fields)
		m.Fields[schema.VersionColumn] = codec.Int(n)
		next = n
		return txn.BufferWrite([]*sp.Mutation{toMutation(m)})
	})
	if checkErr != nil {
		// the transaction may wrap errors returned from the callback
		return 0, checkErr
	}
	if err != nil {
		return 0, fmt.Errorf("versioned update %s/%s: %w", table, key, err)
	}
	return next, nil
}

// --------------------------------------------------------------------------
// Backend Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

func (s *spannerImpl) Info() db.BackendInfo {
	return db.BackendInfo{
		Backend:           db.ImplSpanner,
		SupportedFeatures: s.features.Features(),
		Metadata: &struct {
			Database string `json:"database"`
		}{
			Database: s.path,
		},
	}
}

func (s *spannerImpl) SupportsFeature(feature db.Feature) bool {
	return s.features&feature == feature
}

// Close releases all sessions
func (s *spannerImpl) Close() error {
	s.client.Close()
	return nil
}
