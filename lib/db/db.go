package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dBench/lib/codec"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple     Implementation = "maple"
	ImplSpanner   Implementation = "spanner"
	ImplFirestore Implementation = "firestore"
)

// Feature represents backend capabilities as bit flags
type Feature uint64

const (
	FeaturePointRead        Feature = 1 << iota // Support for ReadRow
	FeatureQuery                                // Support for Query
	FeatureRangeRead                            // Support for ReadRange
	FeatureBatchWrite                           // Apply writes a whole batch in one call
	FeatureConditionalWrite                     // Support for UpdateVersioned
	FeatureDelete                               // Support for delete mutations
	FeatureStaleRead                            // Reads honour a max-staleness bound
)

func (f Feature) String() string {
	switch f {
	case FeaturePointRead:
		return "PointRead"
	case FeatureQuery:
		return "Query"
	case FeatureRangeRead:
		return "RangeRead"
	case FeatureBatchWrite:
		return "BatchWrite"
	case FeatureConditionalWrite:
		return "ConditionalWrite"
	case FeatureDelete:
		return "Delete"
	case FeatureStaleRead:
		return "StaleRead"
	default:
		return "Unknown"
	}
}

// Features splits a feature mask into its single flags.
func (f Feature) Features() []Feature {
	var out []Feature
	for bit := FeaturePointRead; bit <= FeatureStaleRead; bit <<= 1 {
		if f&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}

type BackendInfo struct {
	Backend           Implementation `json:"backend"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrNotFound is returned when a point read finds no record.
	ErrNotFound = errors.New("record not found")
	// ErrMultipleRows is returned when a point lookup matches more than one row.
	ErrMultipleRows = errors.New("point lookup matched more than one row")
	// ErrVersionMismatch is returned by UpdateVersioned on a stale expected version.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrUnsupported is returned for operations the backend does not implement.
	ErrUnsupported = errors.New("operation not supported by backend")
)

// VersionMismatchError carries both sides of a failed version check.
type VersionMismatchError struct {
	Expected int64
	Current  int64
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch: expected %d, current %d", e.Expected, e.Current)
}

func (e *VersionMismatchError) Unwrap() error { return ErrVersionMismatch }

// --------------------------------------------------------------------------
// Timestamp Bound
// --------------------------------------------------------------------------

// TimestampBound selects the snapshot a read observes. The zero value is a
// strong read of the latest committed data.
type TimestampBound struct {
	MaxStaleness time.Duration
}

// Strong returns a bound for the latest committed snapshot.
func Strong() TimestampBound { return TimestampBound{} }

// MaxStaleness returns a bound that may observe data up to d old.
func MaxStaleness(d time.Duration) TimestampBound { return TimestampBound{MaxStaleness: d} }

// IsStrong reports whether b reads the latest committed snapshot.
func (b TimestampBound) IsStrong() bool { return b.MaxStaleness <= 0 }

func (b TimestampBound) String() string {
	if b.IsStrong() {
		return "strong"
	}
	return fmt.Sprintf("max-staleness(%s)", b.MaxStaleness)
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// Op is a comparison operator in a query predicate.
type Op uint8

const (
	OpEq Op = iota
	OpGE
	OpLE
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpGE:
		return ">="
	case OpLE:
		return "<="
	default:
		return "?"
	}
}

// Predicate compares a column against a constant.
type Predicate struct {
	Column string
	Op     Op
	Value  codec.Value
}

// Matches evaluates the predicate against a row. Rows without the column
// never match. A decimal string stored under an integer bound is compared
// as an integer, any other kind mismatch never matches.
func (p Predicate) Matches(row codec.Fields) bool {
	v, ok := row[p.Column]
	if !ok || v.IsNull() {
		return false
	}
	if v.Kind() != p.Value.Kind() {
		if v.Kind() != codec.KindString || p.Value.Kind() != codec.KindInt {
			return false
		}
		n, err := v.Int64()
		if err != nil {
			return false
		}
		v = codec.Int(n)
	}
	c := v.Compare(p.Value)
	switch p.Op {
	case OpEq:
		return c == 0
	case OpGE:
		return c >= 0
	case OpLE:
		return c <= 0
	default:
		return false
	}
}

// Query is a backend-neutral select: all predicates are AND-ed, results are
// ordered ascending by OrderBy and truncated to Limit (0 = no limit).
// KeyColumn names the table's primary-key column, backends that address
// records by document id need it to translate key predicates.
type Query struct {
	Table     string
	KeyColumn string
	Columns   []string
	Where     []Predicate
	OrderBy   string
	Limit     int
}

func (q Query) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SELECT %s FROM %s", strings.Join(q.Columns, ","), q.Table))
	for i, p := range q.Where {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(fmt.Sprintf("%s %s %s", p.Column, p.Op, p.Value))
	}
	if q.OrderBy != "" {
		sb.WriteString(" ORDER BY " + q.OrderBy)
	}
	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

type MutationOp uint8

const (
	MutationUpsert MutationOp = iota // insert-or-replace of the given fields
	MutationDelete
)

// Mutation is one buffered write against a single record.
type Mutation struct {
	Op        MutationOp
	Table     string
	KeyColumn string
	Key       string
	Fields    codec.Fields
}

// Upsert builds an insert-or-replace mutation. The key is written into the
// primary-key column as well. Only the given columns are replaced, Null
// values count as "not supplied" and leave the stored column untouched.
func Upsert(table, keyColumn, key string, fields codec.Fields) Mutation {
	f := fields.Clone()
	if f == nil {
		f = codec.Fields{}
	}
	f[keyColumn] = codec.String(key)
	return Mutation{Op: MutationUpsert, Table: table, KeyColumn: keyColumn, Key: key, Fields: f}
}

// Delete builds a delete mutation.
func Delete(table, keyColumn, key string) Mutation {
	return Mutation{Op: MutationDelete, Table: table, KeyColumn: keyColumn, Key: key}
}

// --------------------------------------------------------------------------
// Backend Interface
// --------------------------------------------------------------------------

// Backend is a shared client for one storage system. A single Backend is
// shared by all workers of a process, so every method must be safe for
// concurrent use. Implementations vary in their feature support, which can be
// queried with SupportsFeature.
type Backend interface {

	// ReadRow returns the given columns of one record by primary key.
	// A missing record yields ErrNotFound.
	ReadRow(ctx context.Context, bound TimestampBound, table, key string, columns []string) (codec.Fields, error)

	// Query runs a filtered select and returns the matching rows in order.
	Query(ctx context.Context, bound TimestampBound, q Query) ([]codec.Fields, error)

	// ReadRange returns up to limit records with primary key >= start (all
	// records if start is empty), ascending by primary key.
	ReadRange(ctx context.Context, bound TimestampBound, table, start string, limit int, columns []string) ([]codec.Fields, error)

	// Apply writes all mutations with at-least-once semantics. Backends with
	// FeatureBatchWrite apply the batch in a single call.
	Apply(ctx context.Context, ms []Mutation) error

	// SupportsFeature checks if the backend supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) bool

	// Info returns information about the backend.
	Info() BackendInfo

	// Close releases all resources held by the backend.
	Close() error
}

// ConditionalWriter is implemented by backends that can check and bump the
// version field of a record atomically (FeatureConditionalWrite).
type ConditionalWriter interface {
	// UpdateVersioned reads the current version of the record, compares it
	// with expected (if not nil), writes fields together with the next
	// version and returns that version. All of this happens in one backend
	// transaction. A missing record yields ErrNotFound, a stale expected
	// version a *VersionMismatchError.
	UpdateVersioned(ctx context.Context, table, keyColumn, key string, expected *int64, fields codec.Fields) (int64, error)
}

// Factory creates a new backend.
type Factory func(ctx context.Context) (Backend, error)

// NextVersion applies the version rule to the stored version field: a
// missing field starts at 1, otherwise the stored value must equal expected
// (when given) and is incremented.
func NextVersion(stored codec.Value, present bool, expected *int64) (int64, error) {
	if !present || stored.IsNull() {
		return 1, nil
	}
	current, err := stored.Int64()
	if err != nil {
		return 0, fmt.Errorf("decode version: %w", err)
	}
	if expected != nil && *expected != current {
		return 0, &VersionMismatchError{Expected: *expected, Current: current}
	}
	return current + 1, nil
}
