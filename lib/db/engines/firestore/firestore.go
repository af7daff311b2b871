package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	fs "cloud.google.com/go/firestore"
	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

var log = logger.GetLogger("firestore")

const (
	// EmulatorHostEnv is honoured by the client library and waives the
	// credentials requirement
	EmulatorHostEnv = "FIRESTORE_EMULATOR_HOST"

	datastoreScope = "https://www.googleapis.com/auth/datastore"

	// no multi-document batch: every mutation is its own write
	allFeatures = db.FeaturePointRead |
		db.FeatureQuery |
		db.FeatureRangeRead |
		db.FeatureConditionalWrite |
		db.FeatureDelete |
		db.FeatureStaleRead
)

// Options configures the Firestore client
type Options struct {
	Host             string          // Custom endpoint, without credentials it is treated as an emulator
	Project          string          // GCP project (required)
	Database         string          // Database id (empty = "(default)")
	CredentialsFile  string          // Service account key file (required unless an emulator is used)
	CollectionPrefix string          // Prepended to every collection name, isolates runs sharing a database
	Catalog          *schema.Catalog // Declared kind of every document field
}

// firestoreImpl adapts a Firestore client to the db.Backend interface
type firestoreImpl struct {
	client   *fs.Client
	opts     Options
	catalog  *schema.Catalog
	features db.Feature
}

// New connects to Firestore. The project and a credentials file are
// required, the credentials only when an emulator is configured through
// EmulatorHostEnv or opts.Host.
//
// Thread-safety: The returned backend is safe for concurrent use.
func New(ctx context.Context, opts Options) (db.Backend, error) {
	emulator := os.Getenv(EmulatorHostEnv) != "" || (opts.Host != "" && opts.CredentialsFile == "")
	if opts.Project == "" {
		return nil, errors.New("firestore: project is required")
	}
	if opts.Database == "" {
		opts.Database = fs.DefaultDatabaseID
	}
	if opts.Catalog == nil {
		opts.Catalog = schema.NewCatalog(0, "")
	}

	var clientOpts []option.ClientOption
	if opts.Host != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Host))
		if opts.CredentialsFile == "" {
			// emulators speak plaintext and accept any caller
			clientOpts = append(clientOpts,
				option.WithoutAuthentication(),
				option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		}
	}
	switch {
	case opts.CredentialsFile != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("firestore: read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, datastoreScope)
		if err != nil {
			return nil, fmt.Errorf("firestore: parse credentials: %w", err)
		}
		clientOpts = append(clientOpts, option.WithCredentials(creds))
	case !emulator:
		return nil, errors.New("firestore: credentials file is required")
	}

	client, err := fs.NewClientWithDatabase(ctx, opts.Project, opts.Database, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: connect to %s/%s: %w", opts.Project, opts.Database, err)
	}
	log.Infof("connected to project %s database %s (emulator=%t)", opts.Project, opts.Database, emulator)

	return &firestoreImpl{client: client, opts: opts, catalog: opts.Catalog, features: allFeatures}, nil
}

// collection returns the collection for a table, under the configured
// prefix and read at the given bound
func (f *firestoreImpl) collection(bound db.TimestampBound, table string) *fs.CollectionRef {
	client := f.client
	if !bound.IsStrong() {
		client = client.WithReadOptions(fs.ReadTime(time.Now().Add(-bound.MaxStaleness)))
	}
	return client.Collection(f.opts.CollectionPrefix + table)
}

// --------------------------------------------------------------------------
// Backend Interface Methods - Read Operations
// --------------------------------------------------------------------------

func (f *firestoreImpl) ReadRow(ctx context.Context, bound db.TimestampBound, table, key string, columns []string) (codec.Fields, error) {
	snap, err := f.collection(bound, table).Doc(EncodeID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%s/%s: %w", table, key, db.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s/%s: %w", table, key, err)
	}
	return fromDocument(f.catalog.Table(table), snap.Data(), columns)
}

// Query runs the translated query. Queries with a non-key inequality
// are fetched without limit and ordered by document id on the client.
func (f *firestoreImpl) Query(ctx context.Context, bound db.TimestampBound, q db.Query) ([]codec.Fields, error) {
	p := planQuery(q)
	if !p.ServerOrder {
		log.Debugf("ordering %s on the client", q)
	}

	snaps, err := p.build(f.collection(bound, q.Table)).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}
	table := f.catalog.Table(q.Table)
	rows := make([]row, len(snaps))
	for i, s := range snaps {
		fields, err := fromDocument(table, s.Data(), q.Columns)
		if err != nil {
			return nil, fmt.Errorf("query %s: document %s: %w", q.Table, s.Ref.ID, err)
		}
		rows[i] = row{id: s.Ref.ID, fields: fields}
	}
	return p.finish(rows), nil
}

// ReadRange orders by document id and starts at the encoded start key
func (f *firestoreImpl) ReadRange(ctx context.Context, bound db.TimestampBound, table, start string, limit int, columns []string) ([]codec.Fields, error) {
	coll := f.collection(bound, table)
	query := coll.Query
	if len(columns) > 0 {
		query = query.Select(columns...)
	}
	query = query.OrderBy(fs.DocumentID, fs.Asc)
	if start != "" {
		query = query.StartAt(coll.Doc(EncodeID(start)))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", table, err)
	}
	decl := f.catalog.Table(table)
	rows := make([]codec.Fields, len(snaps))
	for i, s := range snaps {
		if rows[i], err = fromDocument(decl, s.Data(), columns); err != nil {
			return nil, fmt.Errorf("range %s: document %s: %w", table, s.Ref.ID, err)
		}
	}
	return rows, nil
}

// --------------------------------------------------------------------------
// Backend Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Apply writes the mutations one by one in order. The first error aborts,
// mutations before it stay applied.
func (f *firestoreImpl) Apply(ctx context.Context, ms []db.Mutation) error {
	for i, m := range ms {
		doc := f.client.Collection(f.opts.CollectionPrefix + m.Table).Doc(EncodeID(m.Key))
		var err error
		if m.Op == db.MutationDelete {
			_, err = doc.Delete(ctx)
		} else {
			_, err = doc.Set(ctx, toDocument(m.Fields), fs.MergeAll)
		}
		if err != nil {
			return fmt.Errorf("write %d/%d (%s/%s): %w", i+1, len(ms), m.Table, m.Key, err)
		}
	}
	return nil
}

// UpdateVersioned checks and bumps the version field inside a transaction
func (f *firestoreImpl) UpdateVersioned(ctx context.Context, table, keyColumn, key string, expected *int64, fields codec.Fields) (int64, error) {
	doc := f.client.Collection(f.opts.CollectionPrefix + table).Doc(EncodeID(key))

	var (
		next     int64
		checkErr error
	)
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		checkErr = nil
		snap, err := tx.Get(doc)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				checkErr = fmt.Errorf("%s/%s: %w", table, key, db.ErrNotFound)
				return checkErr
			}
			return err
		}
		current, err := fromDocument(f.catalog.Table(table), snap.Data(), []string{schema.VersionColumn})
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
		return tx.Set(doc, toDocument(m.Fields), fs.MergeAll)
	})
	if checkErr != nil {
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

func (f *firestoreImpl) Info() db.BackendInfo {
	return db.BackendInfo{
		Backend:           db.ImplFirestore,
		SupportedFeatures: f.features.Features(),
		Metadata: &struct {
			Project  string `json:"project"`
			Database string `json:"database"`
			Prefix   string `json:"collection_prefix,omitempty"`
		}{
			Project:  f.opts.Project,
			Database: f.opts.Database,
			Prefix:   f.opts.CollectionPrefix,
		},
	}
}

func (f *firestoreImpl) SupportsFeature(feature db.Feature) bool {
	return f.features&feature == feature
}

func (f *firestoreImpl) Close() error {
	return f.client.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// fromDocument converts document data into the declared kinds of the
// table, keeping only the requested columns (all of them when columns is
// empty). Null fields are left out, the same as an unset field.
func fromDocument(table schema.Table, data map[string]interface{}, columns []string) (codec.Fields, error) {
	if len(columns) == 0 {
		columns = make([]string, 0, len(data))
		for k := range data {
			columns = append(columns, k)
		}
	}
	out := make(codec.Fields, len(columns))
	for _, c := range columns {
		raw, ok := data[c]
		if !ok || raw == nil {
			continue
		}
		v, err := table.Decode(c, raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", c, err)
		}
		out[c] = v
	}
	return out, nil
}

// toDocument converts a field map into document data for a merging Set.
// Null values are left out so the stored field stays untouched.
func toDocument(fields codec.Fields) map[string]interface{} {
	doc := make(map[string]interface{}, len(fields))
	for name, v := range fields {
		if v.IsNull() {
			continue
		}
		doc[name] = v.Wire()
	}
	return doc
}
