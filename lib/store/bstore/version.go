package bstore

import (
	"context"
	"errors"
	"time"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/ValentinKolb/dBench/lib/store"
)

// FindAndUpdate bumps the record's version together with values.
//
// In atomic mode the backend checks and writes in one transaction. In
// optimistic mode, or when the backend has no conditional write, the version
// is read, checked and written in separate calls. A writer racing between
// the read and the write is not detected in that mode.
func (s *storeImpl) FindAndUpdate(ctx context.Context, table, key string, expected *int64, values codec.Fields) (store.Status, int64) {
	start := time.Now()

	var (
		next int64
		err  error
	)
	if cw, ok := s.conditionalWriter(); ok {
		next, err = cw.UpdateVersioned(ctx, table, s.opts.Catalog.PrimaryKey(table), key, expected, values)
	} else {
		next, err = s.readCheckWrite(ctx, table, key, expected, values)
	}

	if err != nil {
		var mismatch *db.VersionMismatchError
		switch {
		case errors.As(err, &mismatch):
			log.Errorf("version mismatch on %s/%s: current version %d, expected version %d",
				table, key, mismatch.Current, mismatch.Expected)
		case errors.Is(err, db.ErrNotFound):
			log.Errorf("find-and-update %s/%s: record not found", table, key)
		default:
			log.Errorf("find-and-update %s/%s: %v", table, key, err)
		}
		return s.done("fau", start, store.Error), 0
	}
	return s.done("fau", start, store.OK), next
}

// conditionalWriter returns the backend's atomic version update if it is
// advertised and the atomic mode is selected
func (s *storeImpl) conditionalWriter() (db.ConditionalWriter, bool) {
	if s.opts.Versioning != VersioningAtomic || !s.backend.SupportsFeature(db.FeatureConditionalWrite) {
		return nil, false
	}
	cw, ok := s.backend.(db.ConditionalWriter)
	return cw, ok
}

// readCheckWrite is the optimistic path. The version read is always strong,
// a stale version would turn every check into a conflict.
func (s *storeImpl) readCheckWrite(ctx context.Context, table, key string, expected *int64, values codec.Fields) (int64, error) {
	row, err := s.backend.ReadRow(ctx, db.Strong(), table, key, []string{schema.VersionColumn})
	if err != nil {
		return 0, err
	}
	stored, present := row[schema.VersionColumn]
	next, err := db.NextVersion(stored, present, expected)
	if err != nil {
		return 0, err
	}

	m := db.Upsert(table, s.opts.Catalog.PrimaryKey(table), key, values)
	m.Fields[schema.VersionColumn] = codec.Int(next)
	if err := s.backend.Apply(ctx, []db.Mutation{m}); err != nil {
		return 0, err
	}
	return next, nil
}
