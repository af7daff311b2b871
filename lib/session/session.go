// Package session holds the one backend client a benchmark process shares
// between all of its workers.
//
// The client is built lazily by the first worker that asks for it. Later
// workers get the same handle. If construction fails the error is returned to
// the caller and nothing is cached, so the next call tries again.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("session")

// ErrClosed is returned by Get after Close
var ErrClosed = errors.New("session manager closed")

// Manager lazily constructs and shares one db.Backend.
//
// Thread-safety: All methods are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	factory db.Factory
	backend db.Backend
	closed  bool
}

// NewManager creates a manager that builds its backend with factory
func NewManager(factory db.Factory) *Manager {
	return &Manager{factory: factory}
}

// Get returns the shared backend, constructing it on the first call.
// Construction holds the manager lock, so concurrent first callers wait for
// one construction instead of racing.
func (m *Manager) Get(ctx context.Context) (db.Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.backend != nil {
		return m.backend, nil
	}

	backend, err := m.factory(ctx)
	if err != nil {
		log.Errorf("backend construction failed: %v", err)
		return nil, err
	}
	info := backend.Info()
	log.Infof("backend %s ready (features: %v)", info.Backend, info.SupportedFeatures)
	m.backend = backend
	return backend, nil
}

// Close releases the backend if one was constructed. Calling Close more
// than once is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.backend == nil {
		return nil
	}
	err := m.backend.Close()
	m.backend = nil
	return err
}
