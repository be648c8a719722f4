package memory

import (
	"context"
	"sync"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
)

type ShareStore struct {
	mu     sync.RWMutex
	pool   core.SharePool
	shares map[uuid.UUID]core.Amount
}

var _ core.ShareStore = (*ShareStore)(nil)

func NewShareStore() *ShareStore {
	return &ShareStore{
		pool:   *core.NewSharePool(),
		shares: make(map[uuid.UUID]core.Amount),
	}
}

func (s *ShareStore) GetSharePool(_ context.Context) (*core.SharePool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool.Clone(), nil
}

func (s *ShareStore) GetShares(_ context.Context, account uuid.UUID) (core.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shares[account], nil
}

func (s *ShareStore) SaveSharePool(_ context.Context, pool *core.SharePool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = *pool
	return nil
}

func (s *ShareStore) SaveShares(_ context.Context, pool *core.SharePool, account uuid.UUID, shares core.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = *pool
	if shares.IsZero() {
		delete(s.shares, account)
	} else {
		s.shares[account] = shares
	}
	return nil
}
