package internal

import (
	"fmt"
	"math"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/tidwall/btree"
)

// Latest is the snapshot timestamp of a strong read.
const Latest = math.MaxInt64

// --------------------------------------------------------------------------
// Version Type (one committed state of a record)
// --------------------------------------------------------------------------

// Version stores one committed state of a record with its commit timestamp
type Version struct {
	Key     string       // Primary key of the record
	Ts      int64        // Commit timestamp (unix nanos)
	Fields  codec.Fields // Column values, nil for tombstones
	Deleted bool         // Tombstone marker
}

func (v Version) String() string {
	return fmt.Sprintf("Version{Key: %s, Ts: %d, Deleted: %t}", v.Key, v.Ts, v.Deleted)
}

// byKeyThenNewest orders versions by key ascending and, within a key, by
// commit timestamp descending. Ascending from (key, snapshot) therefore hits
// the newest version visible at snapshot first.
func byKeyThenNewest(a, b Version) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.Ts > b.Ts
}

// --------------------------------------------------------------------------
// Table Type (ordered multi-version rows)
// --------------------------------------------------------------------------

// Table holds all versions of all records of one table.
// Table is not thread-safe, callers hold an external lock.
type Table struct {
	KeyColumn string                 // Primary-key column, learned from the first upsert
	Rows      *btree.BTreeG[Version] // All versions ordered by byKeyThenNewest
	Prune     *PruneQueue            // Keys that hold superseded versions
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{
		Rows:  btree.NewBTreeGOptions(byKeyThenNewest, btree.Options{NoLocks: true}),
		Prune: NewPruneQueue(),
	}
}

// Visible returns the newest version of key committed at or before snapshot.
// Tombstones are reported as not found.
func (t *Table) Visible(key string, snapshot int64) (Version, bool) {
	var (
		found Version
		ok    bool
	)
	t.Rows.Ascend(Version{Key: key, Ts: snapshot}, func(v Version) bool {
		if v.Key == key && !v.Deleted {
			found, ok = v, true
		}
		return false
	})
	return found, ok
}

// Range calls fn for every record with key >= start that is visible at
// snapshot, in key order, until fn returns false.
func (t *Table) Range(start string, snapshot int64, fn func(v Version) bool) {
	var (
		lastKey string
		seen    bool
	)
	t.Rows.Ascend(Version{Key: start, Ts: Latest}, func(v Version) bool {
		// skip versions newer than the snapshot and older versions of a key already handled
		if v.Ts > snapshot || (seen && v.Key == lastKey) {
			return true
		}
		lastKey, seen = v.Key, true
		if v.Deleted {
			return true
		}
		return fn(v)
	})
}

// versionsOf returns all versions of key, newest first.
func (t *Table) versionsOf(key string) []Version {
	var out []Version
	t.Rows.Ascend(Version{Key: key, Ts: Latest}, func(v Version) bool {
		if v.Key != key {
			return false
		}
		out = append(out, v)
		return true
	})
	return out
}

// Put stores a new version and schedules the key for pruning if it now
// holds superseded versions.
func (t *Table) Put(v Version) {
	t.Rows.Set(v)
	if v.Deleted || len(t.versionsOf(v.Key)) > 1 {
		t.Prune.Schedule(v.Key, v.Ts)
	}
}

// PruneKey drops the versions of key that no read at or after horizon can
// observe: everything older than the newest version at or before horizon,
// and that version too if it is a tombstone. It returns the number of
// removed versions and reschedules the key if more pruning will be possible
// later.
func (t *Table) PruneKey(key string, horizon int64) int {
	versions := t.versionsOf(key)

	keep := len(versions)
	for i, v := range versions {
		if v.Ts <= horizon {
			keep = i + 1
			if v.Deleted {
				keep = i
			}
			break
		}
	}

	for _, v := range versions[keep:] {
		t.Rows.Delete(v)
	}

	remaining := versions[:keep]
	switch {
	case len(remaining) >= 2:
		t.Prune.Schedule(key, remaining[len(remaining)-2].Ts)
	case len(remaining) == 1 && remaining[0].Deleted:
		t.Prune.Schedule(key, remaining[0].Ts)
	}

	return len(versions) - keep
}
