package firestore

import (
	"context"
	"os"
	"testing"

	fs "cloud.google.com/go/firestore"
	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	dbtesting "github.com/ValentinKolb/dBench/lib/db/testing"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeID(t *testing.T) {
	assert.Equal(t, "_mysource0_schema_table1_file2.txt", EncodeID("/mysource0/schema/table1/file2.txt"))
	assert.Equal(t, "job-1", EncodeID("job-1"))

	// '_' sorts after the digits: a sibling source with a longer number falls
	// into the encoded range of its prefix
	start, end := EncodeID("/mysource1"), EncodeID("/mysource1/schema/table3/file30.txt")
	sibling := EncodeID("/mysource10/schema")
	assert.True(t, sibling > start && sibling < end)
	assert.Greater(t, "/mysource10/schema", "/mysource1/schema/table3/file30.txt")
}

func TestPlanKeyRange(t *testing.T) {
	p := planQuery(db.Query{
		Table:     "dac_namespace",
		KeyColumn: "entityPathKey",
		Where: []db.Predicate{
			{Column: "entityPathKey", Op: db.OpGE, Value: codec.String("/mysource1")},
			{Column: "entityPathKey", Op: db.OpLE, Value: codec.String("/mysource1/schema/table3/file30.txt")},
		},
		OrderBy: "entityPathKey",
		Limit:   10,
	})

	assert.True(t, p.ServerOrder)
	require.Len(t, p.Filters, 2)
	assert.Equal(t, filter{Path: fs.DocumentID, Op: ">=", Value: "_mysource1", ByID: true}, p.Filters[0])
	assert.Equal(t, filter{Path: fs.DocumentID, Op: "<=", Value: "_mysource1_schema_table3_file30.txt", ByID: true}, p.Filters[1])
	assert.Equal(t, 10, p.Limit)
}

func TestPlanNonKeyInequality(t *testing.T) {
	p := planQuery(db.Query{
		Table:     "jobs",
		KeyColumn: "jobId",
		Where: []db.Predicate{
			{Column: "startTime", Op: db.OpGE, Value: codec.Int(800)},
			{Column: "startTime", Op: db.OpLE, Value: codec.Int(2000)},
		},
		OrderBy: "jobId",
		Limit:   50,
	})

	assert.False(t, p.ServerOrder)
	assert.Empty(t, p.SortBy)
	assert.Equal(t, filter{Path: "startTime", Op: ">=", Value: int64(800)}, p.Filters[0])
}

func TestPlanEqualityKeepsServerOrder(t *testing.T) {
	p := planQuery(db.Query{
		Table:     "jobs",
		KeyColumn: "jobId",
		Where:     []db.Predicate{{Column: "jobState", Op: db.OpEq, Value: codec.String("RUNNING")}},
	})
	assert.True(t, p.ServerOrder)
	assert.Equal(t, "==", p.Filters[0].Op)
}

func TestFinishOrdersAndTruncates(t *testing.T) {
	p := plan{Limit: 2}
	rows := []row{
		{id: "c", fields: codec.Fields{"k": codec.String("c")}},
		{id: "a", fields: codec.Fields{"k": codec.String("a")}},
		{id: "b", fields: codec.Fields{"k": codec.String("b")}},
	}
	out := p.finish(rows)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0]["k"].Text())
	assert.Equal(t, "b", out[1]["k"].Text())

	// server ordered results pass through untouched
	p = plan{ServerOrder: true, Limit: 2}
	out = p.finish([]row{{id: "z"}, {id: "y"}, {id: "x"}})
	assert.Len(t, out, 3)
}

func TestFinishSortsByColumn(t *testing.T) {
	p := plan{SortBy: "n"}
	out := p.finish([]row{
		{id: "a", fields: codec.Fields{"n": codec.Int(3)}},
		{id: "b", fields: codec.Fields{"n": codec.Int(1)}},
	})
	assert.Equal(t, []int64{1, 3}, []int64{mustInt(t, out[0]["n"]), mustInt(t, out[1]["n"])})
}

func TestDocumentConversion(t *testing.T) {
	doc := toDocument(codec.Fields{
		"s": codec.String("x"),
		"n": codec.Int(5),
		"z": codec.Null(),
	})
	assert.Equal(t, map[string]interface{}{"s": "x", "n": int64(5)}, doc)

	fields, err := fromDocument(schema.Table{Name: "t"}, map[string]interface{}{"s": "x", "n": int64(5), "b": []byte{1}}, []string{"s", "b", "missing"})
	require.NoError(t, err)
	assert.Len(t, fields, 2)
	assert.Equal(t, codec.KindBytes, fields["b"].Kind())
}

func TestFromDocumentUsesDeclaredKinds(t *testing.T) {
	jobs := schema.NewCatalog(0, "").Table(schema.JobsTable)
	data := map[string]interface{}{
		"jobId":                  "job-1",
		schema.CreatedTimeColumn: "1200",
		schema.VersionColumn:     int64(2),
		"jobResult":              "done",
		"jobState":               nil,
		"extra":                  int64(9),
	}

	fields, err := fromDocument(jobs, data, nil)
	require.NoError(t, err)
	assert.Equal(t, codec.Fields{
		"jobId":                  codec.String("job-1"),
		schema.CreatedTimeColumn: codec.Int(1200),
		schema.VersionColumn:     codec.Int(2),
		"jobResult":              codec.Bytes([]byte("done")),
		"extra":                  codec.Int(9),
	}, fields)

	// explicit nulls are absent, as for a NULL Spanner column
	fields, err = fromDocument(jobs, data, []string{"jobState", "jobId"})
	require.NoError(t, err)
	assert.Equal(t, codec.Fields{"jobId": codec.String("job-1")}, fields)

	_, err = fromDocument(jobs, map[string]interface{}{schema.CreatedTimeColumn: "soon"}, nil)
	assert.Error(t, err)
}

func TestNewRequiresCredentials(t *testing.T) {
	if os.Getenv(EmulatorHostEnv) != "" {
		t.Skip("emulator configured")
	}
	_, err := New(context.Background(), Options{Project: "p"})
	assert.Error(t, err)

	_, err = New(context.Background(), Options{})
	assert.Error(t, err)
}

// TestEmulator runs the backend conformance suite against the emulator
func TestEmulator(t *testing.T) {
	if os.Getenv(EmulatorHostEnv) == "" {
		t.Skipf("%s not set", EmulatorHostEnv)
	}
	dbtesting.RunBackendTests(t, "Firestore", func() db.Backend {
		backend, err := New(context.Background(), Options{
			Project:          "demo-dbench",
			CollectionPrefix: uuid.NewString()[:8] + "_",
		})
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		return backend
	})
}

func mustInt(t *testing.T, v codec.Value) int64 {
	n, err := v.Int64()
	require.NoError(t, err)
	return n
}
