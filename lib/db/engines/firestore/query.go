package firestore

import (
	"sort"
	"strings"

	fs "cloud.google.com/go/firestore"
	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
)

// EncodeID turns a primary key into a document id. Document ids cannot
// contain '/', so it is replaced with '_'.
//
// '_' sorts after the digits while '/' sorts before them, so key ranges are
// not order preserving: the encoded range of "/mysource1" up to
// "/mysource1/schema/..." also covers "/mysource10...". Spanner does not
// share this.
func EncodeID(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}

// filter is one translated predicate. ByID filters compare the document
// name instead of a stored field.
type filter struct {
	Path  string
	Op    string
	Value interface{}
	ByID  bool
}

// plan is the Firestore shape of a db.Query
type plan struct {
	Columns []string
	Filters []filter

	// ServerOrder orders by document id on the server and lets the server
	// apply Limit. It is off when a non-key inequality forces the first sort
	// on that field, or when the result is ordered by a non-key column.
	ServerOrder bool
	Limit       int

	// SortBy is the column to sort on the client, empty means document id
	SortBy string
}

// planQuery translates a backend-neutral query. Predicates on the key column
// become document name filters on the encoded id.
func planQuery(q db.Query) plan {
	p := plan{Columns: q.Columns, Limit: q.Limit}

	nonKeyRange := false
	for _, pr := range q.Where {
		f := filter{Path: pr.Column, Op: pr.Op.String(), Value: pr.Value.Wire()}
		if q.KeyColumn != "" && pr.Column == q.KeyColumn {
			f.ByID = true
			f.Path = fs.DocumentID
			f.Value = EncodeID(pr.Value.Text())
		} else if pr.Op != db.OpEq {
			nonKeyRange = true
		}
		if f.Op == "=" {
			f.Op = "=="
		}
		p.Filters = append(p.Filters, f)
	}

	keyOrdered := q.OrderBy == "" || q.OrderBy == q.KeyColumn
	p.ServerOrder = keyOrdered && !nonKeyRange
	if !keyOrdered {
		p.SortBy = q.OrderBy
	}
	return p
}

// build turns the plan into a query on the collection
func (p plan) build(coll *fs.CollectionRef) fs.Query {
	query := coll.Query
	if len(p.Columns) > 0 {
		query = query.Select(p.Columns...)
	}
	for _, f := range p.Filters {
		if f.ByID {
			query = query.Where(fs.DocumentID, f.Op, coll.Doc(f.Value.(string)))
			continue
		}
		query = query.Where(f.Path, f.Op, f.Value)
	}
	if p.ServerOrder {
		query = query.OrderBy(fs.DocumentID, fs.Asc)
		if p.Limit > 0 {
			query = query.Limit(p.Limit)
		}
	}
	return query
}

// row pairs a decoded document with its id for client-side ordering
type row struct {
	id     string
	fields codec.Fields
}

// finish applies the client-side part of the plan: sorting and truncation
// for queries the server could not order.
func (p plan) finish(rows []row) []codec.Fields {
	if !p.ServerOrder {
		if p.SortBy == "" {
			sort.SliceStable(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
		} else {
			sort.SliceStable(rows, func(i, j int) bool {
				return rows[i].fields[p.SortBy].Compare(rows[j].fields[p.SortBy]) < 0
			})
		}
		if p.Limit > 0 && len(rows) > p.Limit {
			rows = rows[:p.Limit]
		}
	}
	out := make([]codec.Fields, len(rows))
	for i, r := range rows {
		out[i] = r.fields
	}
	return out
}
