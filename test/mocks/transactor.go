package mocks

import (
	"context"
	"sync"
)

// Snapshotter is an in-memory store whose state can be restored
type Snapshotter interface {
	Snapshot() (restore func())
}

// Transactor is an in-memory ports.Transactor. Transactions run one at a time
// and a failed one restores every guarded store.
type Transactor struct {
	stores     []Snapshotter
	Committed  int
	RolledBack int
	mu         sync.Mutex
}

// NewTransactor guards stores
func NewTransactor(stores ...Snapshotter) *Transactor {
	return &Transactor{stores: stores}
}

func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	restores := make([]func(), 0, len(t.stores))
	for _, s := range t.stores {
		restores = append(restores, s.Snapshot())
	}

	if err := fn(ctx); err != nil {
		for _, restore := range restores {
			restore()
		}
		t.RolledBack++
		return err
	}
	t.Committed++
	return nil
}
