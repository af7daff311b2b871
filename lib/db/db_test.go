package db

import (
	"testing"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/stretchr/testify/assert"
)

func TestPredicateMatches(t *testing.T) {
	ge := Predicate{Column: "startTime", Op: OpGE, Value: codec.Int(800)}
	le := Predicate{Column: "startTime", Op: OpLE, Value: codec.Int(2000)}

	assert.True(t, ge.Matches(codec.Fields{"startTime": codec.Int(800)}))
	assert.False(t, ge.Matches(codec.Fields{"startTime": codec.Int(799)}))
	assert.True(t, le.Matches(codec.Fields{"startTime": codec.Int(2000)}))

	// decimal strings are compared as integers, "1200" < "800" as text
	assert.True(t, ge.Matches(codec.Fields{"startTime": codec.String("1200")}))
	assert.False(t, le.Matches(codec.Fields{"startTime": codec.String("2001")}))

	// other kind mismatches, missing and null columns never match
	assert.False(t, ge.Matches(codec.Fields{"startTime": codec.String("soon")}))
	assert.False(t, ge.Matches(codec.Fields{"startTime": codec.Bytes(codec.LongToBytes(900))}))
	assert.False(t, ge.Matches(codec.Fields{}))
	assert.False(t, ge.Matches(codec.Fields{"startTime": codec.Null()}))

	eq := Predicate{Column: "jobState", Op: OpEq, Value: codec.String("RUNNING")}
	assert.True(t, eq.Matches(codec.Fields{"jobState": codec.String("RUNNING")}))
	assert.False(t, eq.Matches(codec.Fields{"jobState": codec.Int(1)}))
}
