// Package maple provides an in-memory, multi-version implementation of the
// db.Backend interface. It is used for local benchmark runs without a cloud
// backend and as the reference backend in tests.
//
// # Architecture
//
// Tables live in a concurrent registry (xsync.MapOf) and are created on the
// first write. Each table keeps every committed version of every record in
// one ordered B-tree (tidwall/btree), sorted by primary key ascending and,
// within a key, by commit timestamp descending. A read at snapshot S seeks to
// (key, S) and takes the first entry of that key: the newest version
// committed at or before S.
//
// Each table has its own RWMutex. Reads hold the read lock, writes and
// versioned updates hold the write lock of the table they touch.
//
// # Timestamps and staleness
//
// Every Apply call draws one commit timestamp from the clock. Timestamps are
// strictly increasing even if the clock stalls. A strong read uses the latest
// snapshot, a max-staleness read uses now minus the staleness bound, which is
// the oldest snapshot the bound allows. Reads never block writers of other
// tables.
//
// # Garbage collection
//
// Superseded versions and tombstones stay readable for the retention period
// and are pruned afterwards. When a key gains a superseded version it is
// scheduled in the table's prune queue (a min-heap with key lookup). A
// background goroutine wakes up every GCInterval, pops due keys and removes
// every version that no read within the retention window can observe.
//
// Retention must be larger than the largest staleness bound used against
// the instance, otherwise stale reads can miss data that was pruned early.
//
// # Persistence
//
// Save writes the latest visible version of each record in a compact binary
// format, Load restores it under one fresh commit timestamp. OpenFile wraps
// both so that a snapshot file is loaded on open and written back on Close.
//
// # Features
//
// All db features are supported, including ConditionalWrite, which checks and
// bumps a record's version under the table lock. Features can be masked off
// through DBOptions.Features to exercise fallback paths in higher layers.
package maple
