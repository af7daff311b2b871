package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/db/engines/maple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSharesOneBackend(t *testing.T) {
	var built atomic.Int32
	m := NewManager(func(context.Context) (db.Backend, error) {
		built.Add(1)
		return maple.NewMapleDB(nil), nil
	})
	defer m.Close()

	const callers = 16
	backends := make([]db.Backend, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := m.Get(context.Background())
			assert.NoError(t, err)
			backends[i] = b
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), built.Load())
	for _, b := range backends {
		assert.Same(t, backends[0], b)
	}
}

func TestGetDoesNotCacheFailures(t *testing.T) {
	fail := true
	m := NewManager(func(context.Context) (db.Backend, error) {
		if fail {
			return nil, errors.New("no credentials")
		}
		return maple.NewMapleDB(nil), nil
	})
	defer m.Close()

	_, err := m.Get(context.Background())
	require.Error(t, err)

	fail = false
	b, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestClose(t *testing.T) {
	m := NewManager(func(context.Context) (db.Backend, error) {
		return maple.NewMapleDB(nil), nil
	})

	// closing before construction is fine
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Get(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
