package bstore

import (
	"context"
	"strconv"
	"time"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/ValentinKolb/dBench/lib/store"
	mapset "github.com/deckarep/golang-set/v2"
)

// Scan reads up to limit records from startKey on in primary key order. A
// limit below one is rejected.
func (s *storeImpl) Scan(ctx context.Context, table, startKey string, limit int, fields mapset.Set[string]) ([]codec.Fields, store.Status) {
	start := time.Now()
	if limit < 1 {
		log.Warningf("scan %s with limit %d", table, limit)
		return nil, s.done("scan", start, store.BadRequest)
	}
	rows, err := s.backend.ReadRange(ctx, s.bound, table, startKey, limit, s.columns(table, fields))
	if err != nil {
		log.Warningf("scan %s from %q: %v", table, startKey, err)
		return nil, s.done("scan", start, store.Error)
	}
	return rows, s.done("scan", start, store.OK)
}

func (s *storeImpl) ScanWithCreatedTimeFilter(ctx context.Context, table, startRange, endRange string, limit int, fields mapset.Set[string]) ([]codec.Fields, store.Status) {
	return s.scanFiltered(ctx, "scan-time", table, schema.CreatedTimeColumn, startRange, endRange, limit, fields, parseBound)
}

// ScanWithNamespaceKeyFilter compares namespace keys as strings, they are
// paths and never numeric.
func (s *storeImpl) ScanWithNamespaceKeyFilter(ctx context.Context, table, startRange, endRange string, limit int, fields mapset.Set[string]) ([]codec.Fields, store.Status) {
	return s.scanFiltered(ctx, "scan-ns", table, schema.NamespaceKey, startRange, endRange, limit, fields, codec.String)
}

// scanFiltered selects the records with column in [startRange, endRange]
// ordered by primary key. Empty bounds are left open, a request without any
// bound or with a limit below one is rejected before the backend is
// contacted.
func (s *storeImpl) scanFiltered(ctx context.Context, op, table, column, startRange, endRange string, limit int, fields mapset.Set[string], value func(string) codec.Value) ([]codec.Fields, store.Status) {
	start := time.Now()
	if startRange == "" && endRange == "" {
		log.Warningf("%s on %s without a range", op, table)
		return nil, s.done(op, start, store.BadRequest)
	}
	if limit < 1 {
		log.Warningf("%s on %s with limit %d", op, table, limit)
		return nil, s.done(op, start, store.BadRequest)
	}
	if fields != nil {
		log.Debugf("%s returns all fields, ignoring the requested field set", op)
	}

	var where []db.Predicate
	if startRange != "" {
		where = append(where, db.Predicate{Column: column, Op: db.OpGE, Value: value(startRange)})
	}
	if endRange != "" {
		where = append(where, db.Predicate{Column: column, Op: db.OpLE, Value: value(endRange)})
	}

	pk := s.opts.Catalog.PrimaryKey(table)
	q := db.Query{
		Table:     table,
		KeyColumn: pk,
		Columns:   s.opts.Catalog.Table(table).ColumnNames(),
		Where:     where,
		OrderBy:   pk,
		Limit:     limit,
	}
	log.Debugf("%s: %s", op, q)

	rows, err := s.backend.Query(ctx, s.bound, q)
	if err != nil {
		log.Warningf("%s on %s: %v", op, table, err)
		return nil, s.done(op, start, store.Error)
	}
	return rows, s.done(op, start, store.OK)
}

// parseBound compares integer bounds as integers and everything else as text
func parseBound(raw string) codec.Value {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return codec.Int(n)
	}
	return codec.String(raw)
}
