package kv

import (
	"context"
	"testing"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/db/engines/maple"
	"github.com/ValentinKolb/dBench/lib/session"
	"github.com/ValentinKolb/dBench/lib/store"
	"github.com/ValentinKolb/dBench/lib/store/bstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeardownFlushesAndCloses(t *testing.T) {
	ctx := context.Background()
	backend := maple.NewMapleDB(nil)
	kvMgr = session.NewManager(func(context.Context) (db.Backend, error) { return backend, nil })
	kvStore = bstore.NewStore(bstore.Options{Session: kvMgr, BatchSize: 10})
	require.NoError(t, kvStore.Init(ctx))

	// a failed command leaves buffered inserts behind
	assert.Equal(t, store.BatchedOK, kvStore.Insert(ctx, "usertable", "k", codec.Fields{"field0": codec.String("v")}))
	mgr := kvMgr

	require.NoError(t, Teardown(ctx))
	assert.Nil(t, kvStore)

	row, err := backend.ReadRow(ctx, db.Strong(), "usertable", "k", nil)
	require.NoError(t, err)
	assert.Equal(t, "v", row["field0"].Text())

	_, err = mgr.Get(ctx)
	assert.ErrorIs(t, err, session.ErrClosed)

	// nothing left to release
	require.NoError(t, Teardown(ctx))
}

func TestPrintStatus(t *testing.T) {
	assert.NoError(t, printStatus("insert", store.OK))
	assert.NoError(t, printStatus("insert", store.BatchedOK))
	assert.Error(t, printStatus("read", store.Error))
	assert.Error(t, printStatus("scan", store.BadRequest))
}
