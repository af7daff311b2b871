package util

import (
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/store/bstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line exceeds %d characters: %q", Wrap, line)
		}
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestParseValues(t *testing.T) {
	fields, err := ParseValues([]string{"jobState=RUNNING", "startTime:int=900", "jobResult:bytes=cafe", "sql:null", "empty="})
	require.NoError(t, err)

	assert.True(t, fields["jobState"].Equal(codec.String("RUNNING")))
	assert.True(t, fields["startTime"].Equal(codec.Int(900)))
	assert.True(t, fields["jobResult"].Equal(codec.Bytes([]byte{0xca, 0xfe})))
	assert.True(t, fields["sql"].IsNull())
	assert.True(t, fields["empty"].Equal(codec.String("")))

	// untyped input: eight bytes are an integer, other lengths stay blobs
	fields, err = ParseValues([]string{"version:raw=0000000000000007", "blob:raw=cafe"})
	require.NoError(t, err)
	assert.True(t, fields["version"].Equal(codec.Int(7)))
	assert.True(t, fields["blob"].Equal(codec.Bytes([]byte{0xca, 0xfe})))

	for _, bad := range []string{"novalue", "=x", "n:int=abc", "b:bytes=zz", "x:float=1"} {
		_, err := ParseValues([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestParseFieldSet(t *testing.T) {
	assert.Nil(t, ParseFieldSet(""))
	set := ParseFieldSet("a, b,,a")
	require.NotNil(t, set)
	assert.Equal(t, 2, set.Cardinality())
	assert.True(t, set.Contains("a", "b"))
}

func TestFormatFields(t *testing.T) {
	out := FormatFields(codec.Fields{"b": codec.Int(2), "a": codec.String("x")})
	assert.Equal(t, `a="x" b=2`, out)
}

func validConfig() *Config {
	return &Config{
		Backend:    BackendMemory,
		BatchSize:  1,
		Threads:    1,
		ReadMode:   bstore.ReadDirect,
		Versioning: bstore.VersioningAtomic,
		FieldCount: 10,
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	c := validConfig()
	c.Backend = "mongodb"
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Backend = BackendSpanner
	assert.Error(t, c.Validate())
	c.Instance, c.Database = "i", "d"
	assert.NoError(t, c.Validate())

	c = validConfig()
	c.Backend = BackendFirestore
	assert.Error(t, c.Validate())

	c = validConfig()
	c.BatchSize = 0
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Staleness = -time.Second
	assert.Error(t, c.Validate())
}

func TestConfigString(t *testing.T) {
	c := validConfig()
	c.Staleness = 15 * time.Second
	out := c.String()
	assert.Contains(t, out, "BACKEND")
	assert.Contains(t, out, "max staleness 15s")
}

func TestConfigStringFirestore(t *testing.T) {
	c := validConfig()
	c.Backend = BackendFirestore
	c.Project = "p"
	c.Host = "localhost:8080"
	c.CollectionPrefix = "run1_"
	out := c.String()
	assert.Contains(t, out, "localhost:8080")
	assert.Contains(t, out, "run1_")
	assert.Contains(t, out, "(emulator)")
}
