package util

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/db/engines/firestore"
	"github.com/ValentinKolb/dBench/lib/db/engines/maple"
	"github.com/ValentinKolb/dBench/lib/db/engines/spanner"
	"github.com/ValentinKolb/dBench/lib/measure"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/ValentinKolb/dBench/lib/session"
	"github.com/ValentinKolb/dBench/lib/store/bstore"
	"github.com/spf13/viper"
)

// Backend names accepted by the backend flag
const (
	BackendMemory    = "memory"
	BackendSpanner   = "spanner"
	BackendFirestore = "firestore"
)

// Config is the backend and store configuration of one dbench process
type Config struct {
	Backend         string
	Host            string
	Project         string
	Instance        string
	Database        string
	CredentialsFile string
	DataFile        string
	NumChannels     int

	CollectionPrefix string

	ReadMode   bstore.ReadMode
	BatchSize  int
	Staleness  time.Duration
	Versioning bstore.Versioning
	Threads    int

	FieldCount      int
	FieldNamePrefix string
	Table           string
	SchemaFile      string

	LogLevel string
}

// GetConfig reads the configuration from viper and validates it
func GetConfig() (*Config, error) {
	conf := &Config{
		Backend:          strings.ToLower(viper.GetString("backend")),
		Host:             viper.GetString("host"),
		Project:          viper.GetString("project"),
		Instance:         viper.GetString("instance"),
		Database:         viper.GetString("database"),
		CredentialsFile:  viper.GetString("credentials-file"),
		DataFile:         viper.GetString("data-file"),
		NumChannels:      viper.GetInt("num-channels"),
		CollectionPrefix: viper.GetString("collection-prefix"),
		ReadMode:         bstore.ReadMode(strings.ToLower(viper.GetString("read-mode"))),
		BatchSize:        viper.GetInt("batch-size"),
		Staleness:        time.Duration(viper.GetInt("staleness-seconds")) * time.Second,
		Versioning:       bstore.Versioning(strings.ToLower(viper.GetString("versioning"))),
		Threads:          viper.GetInt("threads"),
		FieldCount:       viper.GetInt("field-count"),
		FieldNamePrefix:  viper.GetString("field-name-prefix"),
		Table:            viper.GetString("table"),
		SchemaFile:       viper.GetString("schema"),
		LogLevel:         viper.GetString("log-level"),
	}
	return conf, conf.Validate()
}

// Validate checks the values that can be checked without contacting a backend
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSpanner:
		if c.Instance == "" || c.Database == "" {
			return fmt.Errorf("backend %s requires --instance and --database", c.Backend)
		}
	case BackendFirestore:
		if c.Project == "" {
			return fmt.Errorf("backend %s requires --project", c.Backend)
		}
	default:
		return fmt.Errorf("invalid backend %q (memory, spanner, firestore)", c.Backend)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch-size must be >= 1, got %d", c.BatchSize)
	}
	if c.Staleness < 0 {
		return fmt.Errorf("staleness-seconds must be >= 0, got %d", int(c.Staleness/time.Second))
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be >= 1, got %d", c.Threads)
	}
	if c.NumChannels < 0 {
		return fmt.Errorf("num-channels must be >= 0, got %d", c.NumChannels)
	}
	return nil
}

// Catalog builds the table catalog, including the optional schema file
func (c *Config) Catalog() (*schema.Catalog, error) {
	catalog := schema.NewCatalog(c.FieldCount, c.FieldNamePrefix)
	if c.SchemaFile != "" {
		if err := catalog.LoadFile(c.SchemaFile); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// BackendFactory returns the constructor of the configured backend
func (c *Config) BackendFactory(catalog *schema.Catalog) db.Factory {
	switch c.Backend {
	case BackendSpanner:
		return func(ctx context.Context) (db.Backend, error) {
			return spanner.New(ctx, spanner.Options{
				Host:            c.Host,
				Project:         c.Project,
				Instance:        c.Instance,
				Database:        c.Database,
				Sessions:        c.Threads,
				Channels:        c.NumChannels,
				CredentialsFile: c.CredentialsFile,
				Catalog:         catalog,
			})
		}
	case BackendFirestore:
		return func(ctx context.Context) (db.Backend, error) {
			return firestore.New(ctx, firestore.Options{
				Host:             c.Host,
				Project:          c.Project,
				Database:         c.Database,
				CredentialsFile:  c.CredentialsFile,
				CollectionPrefix: c.CollectionPrefix,
				Catalog:          catalog,
			})
		}
	default:
		return func(context.Context) (db.Backend, error) {
			// retention has to cover the staleness bound
			opts := &maple.DBOptions{Retention: 2*c.Staleness + time.Minute}
			if c.DataFile != "" {
				return maple.OpenFile(c.DataFile, opts)
			}
			return maple.NewMapleDB(opts), nil
		}
	}
}

// StoreOptions returns the per-worker store options
func (c *Config) StoreOptions(mgr *session.Manager, catalog *schema.Catalog, rec measure.Recorder) bstore.Options {
	return bstore.Options{
		Session:    mgr,
		Catalog:    catalog,
		ReadMode:   c.ReadMode,
		BatchSize:  c.BatchSize,
		Staleness:  c.Staleness,
		Versioning: c.Versioning,
		Recorder:   rec,
	}
}

func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Backend")
	addField("Backend", c.Backend)
	switch c.Backend {
	case BackendSpanner:
		addField("Project", orDefault(c.Project, "(metadata server)"))
		addField("Instance", c.Instance)
		addField("Database", c.Database)
		addField("Host", orDefault(c.Host, "(default)"))
		addField("Channels", orDefault(strconv.Itoa(c.NumChannels), "0"))
		addField("Credentials", orDefault(c.CredentialsFile, "(application default)"))
	case BackendFirestore:
		addField("Project", c.Project)
		addField("Database", orDefault(c.Database, "(default)"))
		addField("Host", orDefault(c.Host, "(default)"))
		addField("Collection Prefix", orDefault(c.CollectionPrefix, "(none)"))
		addField("Credentials", orDefault(c.CredentialsFile, "(emulator)"))
	default:
		addField("Data File", orDefault(c.DataFile, "(none)"))
	}

	addSection("Store")
	addField("Threads", strconv.Itoa(c.Threads))
	addField("Read Mode", string(c.ReadMode))
	addField("Batch Size", strconv.Itoa(c.BatchSize))
	if c.Staleness > 0 {
		addField("Reads", fmt.Sprintf("max staleness %s", c.Staleness))
	} else {
		addField("Reads", "strong")
	}
	addField("Versioning", string(c.Versioning))

	addSection("Tables")
	addField("Generic Layout", fmt.Sprintf("%d x %s<i>", c.FieldCount, c.FieldNamePrefix))
	addField("Schema File", orDefault(c.SchemaFile, "(built-in)"))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
