package spanner

import (
	"testing"
	"time"

	sp "cloud.google.com/go/spanner"
	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStatement(t *testing.T) {
	stmt, err := buildStatement(db.Query{
		Table:     "jobs",
		KeyColumn: "jobId",
		Columns:   []string{"jobId", "startTime"},
		Where: []db.Predicate{
			{Column: "startTime", Op: db.OpGE, Value: codec.Int(800)},
			{Column: "startTime", Op: db.OpLE, Value: codec.Int(2000)},
		},
		OrderBy: "jobId",
		Limit:   50,
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT `jobId`, `startTime` FROM `jobs` WHERE `startTime` >= @p0 AND `startTime` <= @p1 ORDER BY `jobId` LIMIT @limit", stmt.SQL)
	assert.Equal(t, map[string]interface{}{
		"p0":    int64(800),
		"p1":    int64(2000),
		"limit": int64(50),
	}, stmt.Params)
}

func TestBuildStatementSelectAll(t *testing.T) {
	stmt, err := buildStatement(db.Query{
		Table: "dac_namespace",
		Where: []db.Predicate{{Column: "entityPathKey", Op: db.OpEq, Value: codec.String("/a")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM `dac_namespace` WHERE `entityPathKey` = @p0", stmt.SQL)
	assert.Equal(t, "/a", stmt.Params["p0"])
	assert.NotContains(t, stmt.Params, "limit")
}

func TestBuildStatementRejectsBadIdentifiers(t *testing.T) {
	_, err := buildStatement(db.Query{Table: "jobs`; DROP TABLE jobs"})
	assert.Error(t, err)

	_, err = buildStatement(db.Query{Table: "jobs", Columns: []string{""}})
	assert.Error(t, err)

	_, err = buildStatement(db.Query{Table: "jobs", OrderBy: "a`b"})
	assert.Error(t, err)
}

func TestDecodeRow(t *testing.T) {
	row, err := sp.NewRow(
		[]string{"s", "b", "n", "missing", "f", "ok"},
		[]interface{}{"text", []byte{1, 2, 3}, int64(42), sp.NullString{}, 1.5, true},
	)
	require.NoError(t, err)

	// no declared columns: every column keeps the kind of its Spanner type
	fields, err := decodeRow(row, schema.Table{Name: "t"})
	require.NoError(t, err)

	assert.Equal(t, codec.KindString, fields["s"].Kind())
	assert.Equal(t, "text", fields["s"].Text())
	assert.Equal(t, codec.KindBytes, fields["b"].Kind())
	assert.Equal(t, []byte{1, 2, 3}, fields["b"].Raw())
	assert.Equal(t, codec.KindInt, fields["n"].Kind())
	n, err := fields["n"].Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	// NULL columns are absent
	_, ok := fields["missing"]
	assert.False(t, ok)

	// other types fall back to their string form
	assert.Equal(t, "1.5", fields["f"].Text())
	assert.Equal(t, "true", fields["ok"].Text())
}

func TestDecodeRowUsesDeclaredKinds(t *testing.T) {
	table := schema.Table{
		Name:       "jobs",
		PrimaryKey: "jobId",
		Columns: []schema.Column{
			{Name: "jobId", Kind: codec.KindString},
			{Name: "startTime", Kind: codec.KindInt},
			{Name: "jobResult", Kind: codec.KindBytes},
			{Name: "version", Kind: codec.KindString},
		},
	}
	row, err := sp.NewRow(
		[]string{"jobId", "startTime", "jobResult", "version"},
		[]interface{}{"job-1", "1200", "done", int64(3)},
	)
	require.NoError(t, err)

	fields, err := decodeRow(row, table)
	require.NoError(t, err)
	assert.Equal(t, codec.Fields{
		"jobId":     codec.String("job-1"),
		"startTime": codec.Int(1200),
		"jobResult": codec.Bytes([]byte("done")),
		"version":   codec.String("3"),
	}, fields)

	// a cell that cannot be read as the declared kind is an error
	row, err = sp.NewRow([]string{"startTime"}, []interface{}{"soon"})
	require.NoError(t, err)
	_, err = decodeRow(row, table)
	assert.Error(t, err)
}

func TestToRowSkipsNull(t *testing.T) {
	row := toRow(codec.Fields{
		"a": codec.String("x"),
		"b": codec.Null(),
		"c": codec.Int(7),
	})
	assert.Equal(t, map[string]interface{}{"a": "x", "c": int64(7)}, row)
}

func TestTimestampBound(t *testing.T) {
	assert.Equal(t, sp.StrongRead().String(), timestampBound(db.Strong()).String())
	assert.Equal(t, sp.MaxStaleness(15*time.Second).String(), timestampBound(db.MaxStaleness(15*time.Second)).String())
}

func TestDatabasePath(t *testing.T) {
	assert.Equal(t, "projects/p/instances/i/databases/d", DatabasePath("p", "i", "d"))
}
