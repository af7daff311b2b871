package schema

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ValentinKolb/dBench/lib/codec"
	"gopkg.in/yaml.v3"
)

// Well-known tables and columns used by the workloads.
const (
	JobsTable      = "jobs"
	NamespaceTable = "dac_namespace"

	DefaultPrimaryKey = "id"
	VersionColumn     = "version"
	CreatedTimeColumn = "startTime"
	NamespaceKey      = "entityPathKey"
)

// --------------------------------------------------------------------------
// Table Definitions
// --------------------------------------------------------------------------

// Column is one named, typed field of a table.
type Column struct {
	Name string     `yaml:"name"`
	Kind codec.Kind `yaml:"-"`
	Type string     `yaml:"type"`
}

// Table describes the primary key and known columns of a table.
// Columns always contain the primary key column.
type Table struct {
	Name       string   `yaml:"name"`
	PrimaryKey string   `yaml:"primaryKey"`
	Columns    []Column `yaml:"columns"`
}

// ColumnNames returns the names of all known columns in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Kind returns the declared kind of a column. Unknown columns are strings.
func (t Table) Kind(column string) codec.Kind {
	for _, c := range t.Columns {
		if c.Name == column {
			return c.Kind
		}
	}
	return codec.KindString
}

// Decode converts a backend cell into a value of the column's declared kind.
// Columns the table does not declare keep the type of the cell.
func (t Table) Decode(column string, raw any) (codec.Value, error) {
	if !t.Has(column) {
		return codec.FromNative(raw), nil
	}
	return codec.Decode(t.Kind(column), raw)
}

// Has reports whether the column is known.
func (t Table) Has(column string) bool {
	for _, c := range t.Columns {
		if c.Name == column {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Catalog
// --------------------------------------------------------------------------

// Catalog resolves table names to table definitions. Tables that are not
// registered fall back to the generic layout: primary key "id" plus
// FieldCount string columns named FieldPrefix0..FieldPrefixN-1.
//
// Thread-safety: a Catalog is read-only after construction and can be
// shared between workers.
type Catalog struct {
	tables      map[string]Table
	FieldCount  int
	FieldPrefix string
}

// NewCatalog creates a catalog with the built-in jobs and namespace tables.
func NewCatalog(fieldCount int, fieldPrefix string) *Catalog {
	if fieldCount <= 0 {
		fieldCount = 10
	}
	if fieldPrefix == "" {
		fieldPrefix = "field"
	}
	c := &Catalog{
		tables:      make(map[string]Table),
		FieldCount:  fieldCount,
		FieldPrefix: fieldPrefix,
	}
	c.Register(jobsTable())
	c.Register(namespaceTable())
	return c
}

// Register adds or replaces a table definition.
func (c *Catalog) Register(t Table) {
	if !t.Has(t.PrimaryKey) {
		t.Columns = append([]Column{{Name: t.PrimaryKey, Kind: codec.KindString, Type: "string"}}, t.Columns...)
	}
	c.tables[t.Name] = t
}

// Table returns the definition for name, falling back to the generic layout.
func (c *Catalog) Table(name string) Table {
	if t, ok := c.tables[name]; ok {
		return t
	}
	cols := make([]Column, 0, c.FieldCount+1)
	cols = append(cols, Column{Name: DefaultPrimaryKey, Kind: codec.KindString, Type: "string"})
	for i := 0; i < c.FieldCount; i++ {
		cols = append(cols, Column{Name: fmt.Sprintf("%s%d", c.FieldPrefix, i), Kind: codec.KindString, Type: "string"})
	}
	return Table{Name: name, PrimaryKey: DefaultPrimaryKey, Columns: cols}
}

// PrimaryKey returns the primary-key column of a table.
func (c *Catalog) PrimaryKey(table string) string {
	return c.Table(table).PrimaryKey
}

// Names returns the registered table names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// --------------------------------------------------------------------------
// YAML overrides
// --------------------------------------------------------------------------

type catalogFile struct {
	Tables []Table `yaml:"tables"`
}

// LoadFile reads table overrides from a YAML file.
func (c *Catalog) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}

// Load reads table overrides from YAML:
//
//	tables:
//	  - name: jobs
//	    primaryKey: jobId
//	    columns:
//	      - {name: startTime, type: int64}
func (c *Catalog) Load(r io.Reader) error {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}
	for _, t := range file.Tables {
		if t.Name == "" || t.PrimaryKey == "" {
			return fmt.Errorf("catalog table needs name and primaryKey")
		}
		for i := range t.Columns {
			k, err := ParseKind(t.Columns[i].Type)
			if err != nil {
				return fmt.Errorf("table %s column %s: %w", t.Name, t.Columns[i].Name, err)
			}
			t.Columns[i].Kind = k
		}
		c.Register(t)
	}
	return nil
}

// ParseKind maps a type name from the catalog file to a codec kind.
func ParseKind(s string) (codec.Kind, error) {
	switch strings.ToLower(s) {
	case "", "string":
		return codec.KindString, nil
	case "bytes":
		return codec.KindBytes, nil
	case "int", "int64":
		return codec.KindInt, nil
	default:
		return codec.KindNull, fmt.Errorf("unknown column type %q", s)
	}
}

// --------------------------------------------------------------------------
// Built-in tables
// --------------------------------------------------------------------------

func col(name string, k codec.Kind) Column {
	return Column{Name: name, Kind: k, Type: strings.ToLower(k.String())}
}

func jobsTable() Table {
	s, i, b := codec.KindString, codec.KindInt, codec.KindBytes
	return Table{
		Name:       JobsTable,
		PrimaryKey: "jobId",
		Columns: []Column{
			col("jobId", s), col("allDatasets", s), col("dataset", s), col("datasetVersion", s),
			col("duration", i), col("endTime", i), col("jobResult", b), col("jobState", s),
			col("parentDataset", s), col("queryType", s), col("queueName", s), col("space", s),
			col("sql", s), col(CreatedTimeColumn, i), col("user", s), col(VersionColumn, i),
		},
	}
}

func namespaceTable() Table {
	s := codec.KindString
	return Table{
		Name:       NamespaceTable,
		PrimaryKey: NamespaceKey,
		Columns: []Column{
			col(NamespaceKey, s), col("entityType", s), col("entityId", s), col("container", s),
		},
	}
}
