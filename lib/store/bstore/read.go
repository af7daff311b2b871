package bstore

import (
	"context"
	"errors"
	"time"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/store"
	mapset "github.com/deckarep/golang-set/v2"
)

// Read dispatches to the query or the direct path. Both use the same column
// list, so their results are identical.
func (s *storeImpl) Read(ctx context.Context, table, key string, fields mapset.Set[string]) (codec.Fields, store.Status) {
	start := time.Now()
	columns := s.columns(table, fields)

	var (
		row codec.Fields
		err error
	)
	if s.opts.ReadMode == ReadQuery && s.backend.SupportsFeature(db.FeatureQuery) {
		row, err = s.readUsingQuery(ctx, table, key, columns)
	} else {
		row, err = s.backend.ReadRow(ctx, s.bound, table, key, columns)
	}
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.Debugf("read %s/%s: %v", table, key, err)
		} else {
			log.Warningf("read %s/%s: %v", table, key, err)
		}
		return nil, s.done("read", start, store.Error)
	}
	return row, s.done("read", start, store.OK)
}

// readUsingQuery selects the record with an equality predicate on the
// primary key and requires exactly one result row.
func (s *storeImpl) readUsingQuery(ctx context.Context, table, key string, columns []string) (codec.Fields, error) {
	pk := s.opts.Catalog.PrimaryKey(table)
	rows, err := s.backend.Query(ctx, s.bound, db.Query{
		Table:     table,
		KeyColumn: pk,
		Columns:   columns,
		Where:     []db.Predicate{{Column: pk, Op: db.OpEq, Value: codec.String(key)}},
	})
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, db.ErrNotFound
	case 1:
		return rows[0], nil
	default:
		return nil, db.ErrMultipleRows
	}
}
