package bench

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/ValentinKolb/dBench/lib/store"
	"github.com/google/uuid"
)

var (
	// ErrDone ends a thread whose workload has no more operations
	ErrDone = errors.New("workload exhausted")
	// ErrShortResult reports a scan that returned fewer rows than expected
	ErrShortResult = errors.New("short result")
)

// Params describes the data set and run shape a workload is built for
type Params struct {
	Threads    int // Number of worker threads
	Operations int // Operation budget of the run (0 = unbounded)
	Records    int // Number of loaded jobs
	Sources    int // Number of loaded namespace sources
	Limit      int // Row limit of the key range search
}

// Step runs one operation of a thread against its store
type Step func(ctx context.Context, s store.IStore) error

// Workload creates the per-thread operation sequence of one benchmark
type Workload struct {
	Name  string
	Short string
	// Thread returns the step function of thread id. The returned function
	// keeps the thread's state and is never called concurrently.
	Thread func(p Params, id int) Step
}

// statusErr turns a failed status into an error
func statusErr(op string, status store.Status) error {
	if status.IsOK() {
		return nil
	}
	return fmt.Errorf("%s: %s", op, status)
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

var workloads = map[string]Workload{
	"load":                   {Name: "load", Short: "Insert the jobs and namespace data sets", Thread: loadThread},
	"scan-read":              {Name: "scan-read", Short: "Four full scans of jobs followed by one insert", Thread: scanReadThread},
	"repeated-updates":       {Name: "repeated-updates", Short: "Move jobs through their states with versioned updates", Thread: repeatedUpdatesThread},
	"key-range-search":       {Name: "key-range-search", Short: "Namespace key range scans below one source", Thread: keyRangeSearchThread},
	"secondary-index-search": {Name: "secondary-index-search", Short: "Jobs created in [800, 2000]", Thread: secondaryIndexSearchThread},
}

// Lookup returns the workload with the given name
func Lookup(name string) (Workload, bool) {
	w, ok := workloads[name]
	return w, ok
}

// Names returns the names of all workloads, sorted
func Names() []string {
	names := make([]string, 0, len(workloads))
	for name := range workloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --------------------------------------------------------------------------
// Workloads
// --------------------------------------------------------------------------

// loadThread inserts the jobs and namespace sources with index id modulo
// threads. Inserts go through the store's buffer.
func loadThread(p Params, id int) Step {
	job := id
	source := id
	var pending []string
	return func(ctx context.Context, s store.IStore) error {
		switch {
		case job < p.Records:
			i := job
			job += p.Threads
			return statusErr("insert", s.Insert(ctx, schema.JobsTable, JobID(i), JobRow(i)))
		case len(pending) == 0 && source < p.Sources:
			pending = NamespacePaths(source)
			source += p.Threads
		}
		if len(pending) == 0 {
			return ErrDone
		}
		path := pending[0]
		pending = pending[1:]
		return statusErr("insert", s.Insert(ctx, schema.NamespaceTable, path, NamespaceRow(path)))
	}
}

const (
	scanReadLimit   = 100000
	scanReadMinRows = 10000
	scansPerInsert  = 4
)

// scanReadThread scans the jobs table four times, then inserts one job
// under a random key
func scanReadThread(p Params, _ int) Step {
	count := 0
	want := min(p.Records, scanReadMinRows)
	return func(ctx context.Context, s store.IStore) error {
		if count < scansPerInsert {
			count++
			rows, status := s.Scan(ctx, schema.JobsTable, "", scanReadLimit, nil)
			if err := statusErr("scan", status); err != nil {
				return err
			}
			if len(rows) < want {
				return fmt.Errorf("%w: scan returned %d rows, want >= %d", ErrShortResult, len(rows), want)
			}
			return nil
		}
		count = 0
		key := uuid.NewString()
		return statusErr("insert", s.Insert(ctx, schema.JobsTable, key, scanReadRow(key)))
	}
}

// repeatedUpdatesThread moves each job of the thread through all job
// states. Every update carries the version returned by the previous one,
// the first update of a job is unconditional. One step processes one job.
func repeatedUpdatesThread(p Params, id int) Step {
	job := id
	return func(ctx context.Context, s store.IStore) error {
		if job >= p.Records {
			return ErrDone
		}
		key := JobID(job)
		job += p.Threads

		var expected *int64
		for _, state := range jobStates {
			status, version := s.FindAndUpdate(ctx, schema.JobsTable, key, expected, codec.Fields{"jobState": codec.String(state)})
			if err := statusErr("fau", status); err != nil {
				return fmt.Errorf("job %s state %s: %w", key, state, err)
			}
			expected = &version
		}
		return nil
	}
}

// keyRangeSearchThread scans the namespace below one source per step. The
// threads start at evenly spaced offsets of the operation budget.
func keyRangeSearchThread(p Params, id int) Step {
	start := 0
	if p.Operations > 0 {
		start = id * (p.Operations / p.Threads)
	}
	count := 0
	sources := max(p.Sources, 1)
	return func(ctx context.Context, s store.IStore) error {
		source := (start + count) % sources
		table := count%7 + 3
		count++

		rows, status := s.ScanWithNamespaceKeyFilter(ctx, schema.NamespaceTable,
			SourcePath(source), FilePath(source, table, 30), p.Limit, nil)
		if err := statusErr("scan-ns", status); err != nil {
			return err
		}
		if len(rows) < p.Limit {
			return fmt.Errorf("%w: range of %s returned %d rows, want %d", ErrShortResult, SourcePath(source), len(rows), p.Limit)
		}
		return nil
	}
}

const (
	secondaryIndexStart = "800"
	secondaryIndexEnd   = "2000"
	secondaryIndexLimit = 50
)

// secondaryIndexSearchThread reads jobs by creation time
func secondaryIndexSearchThread(_ Params, _ int) Step {
	return func(ctx context.Context, s store.IStore) error {
		rows, status := s.ScanWithCreatedTimeFilter(ctx, schema.JobsTable,
			secondaryIndexStart, secondaryIndexEnd, secondaryIndexLimit, nil)
		if err := statusErr("scan-time", status); err != nil {
			return err
		}
		if len(rows) < secondaryIndexLimit {
			return fmt.Errorf("%w: %d rows, want %d", ErrShortResult, len(rows), secondaryIndexLimit)
		}
		return nil
	}
}
