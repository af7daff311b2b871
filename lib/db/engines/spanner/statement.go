package spanner

import (
	"fmt"
	"strings"

	sp "cloud.google.com/go/spanner"
	"github.com/ValentinKolb/dBench/lib/db"
)

// quote wraps an identifier in backticks
func quote(ident string) string {
	return "`" + ident + "`"
}

// validIdent reports whether name can be used as a quoted identifier.
// Names containing backticks or escapes are rejected rather than escaped.
func validIdent(name string) bool {
	return name != "" && !strings.ContainsAny(name, "`\\\n")
}

// buildStatement translates a backend-neutral query into parameterized SQL.
// Predicate values are bound as @p0, @p1, ... and the limit as @limit, so no
// user data ends up in the SQL text.
func buildStatement(q db.Query) (sp.Statement, error) {
	if !validIdent(q.Table) {
		return sp.Statement{}, fmt.Errorf("invalid table name %q", q.Table)
	}

	var sb strings.Builder
	params := make(map[string]interface{}, len(q.Where)+1)

	sb.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		sb.WriteString("*")
	} else {
		for i, c := range q.Columns {
			if !validIdent(c) {
				return sp.Statement{}, fmt.Errorf("invalid column name %q", c)
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quote(c))
		}
	}
	sb.WriteString(" FROM ")
	sb.WriteString(quote(q.Table))

	for i, p := range q.Where {
		if !validIdent(p.Column) {
			return sp.Statement{}, fmt.Errorf("invalid column name %q", p.Column)
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		name := fmt.Sprintf("p%d", i)
		fmt.Fprintf(&sb, "%s %s @%s", quote(p.Column), p.Op, name)
		params[name] = p.Value.Wire()
	}

	if q.OrderBy != "" {
		if !validIdent(q.OrderBy) {
			return sp.Statement{}, fmt.Errorf("invalid column name %q", q.OrderBy)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(quote(q.OrderBy))
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT @limit")
		params["limit"] = int64(q.Limit)
	}

	return sp.Statement{SQL: sb.String(), Params: params}, nil
}
