package memory

import (
	"context"
	"sync"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/google/btree"
	"github.com/pkg/errors"
)

// BorrowStore keeps borrows and matched loans ordered by id. An account maps to at most one alive borrow.
type BorrowStore struct {
	mu           sync.RWMutex
	lastBorrowId uint64
	lastLoanId   uint64
	borrows      *btree.BTreeG[*core.Borrow]
	loans        *btree.BTreeG[*core.MatchedLoan]
	alive        map[uuid.UUID]uint64
}

var _ core.BorrowStore = (*BorrowStore)(nil)

func NewBorrowStore() *BorrowStore {
	return &BorrowStore{
		borrows: btree.NewG(defaultTreeDegree, func(a, b *core.Borrow) bool { return a.Id < b.Id }),
		loans:   btree.NewG(defaultTreeDegree, func(a, b *core.MatchedLoan) bool { return a.Id < b.Id }),
		alive:   make(map[uuid.UUID]uint64),
	}
}

func (s *BorrowStore) NextBorrowId(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBorrowId++
	return s.lastBorrowId, nil
}

func (s *BorrowStore) NextMatchedLoanId(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLoanId++
	return s.lastLoanId, nil
}

func (s *BorrowStore) GetBorrow(_ context.Context, id uint64) (*core.Borrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.borrows.Get(&core.Borrow{Id: id})
	if !ok {
		return nil, errors.Wrapf(core.ErrBorrowNotFound, "borrow %d", id)
	}
	return b.Clone(), nil
}

func (s *BorrowStore) AliveBorrowOf(_ context.Context, owner uuid.UUID) (*core.Borrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.alive[owner]
	if !ok {
		return nil, errors.Wrapf(core.ErrBorrowNotFound, "no alive borrow of %s", owner)
	}
	b, _ := s.borrows.Get(&core.Borrow{Id: id})
	return b.Clone(), nil
}

func (s *BorrowStore) ListBorrowsByStatus(_ context.Context, status core.BorrowStatus) ([]*core.Borrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var borrows []*core.Borrow
	s.borrows.Ascend(func(b *core.Borrow) bool {
		if b.Status == status {
			borrows = append(borrows, b.Clone())
		}
		return true
	})
	return borrows, nil
}

func (s *BorrowStore) SaveBorrow(_ context.Context, borrow *core.Borrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveBorrow(borrow)
}

func (s *BorrowStore) saveBorrow(borrow *core.Borrow) error {
	if borrow.Status == core.BorrowStatusAlive {
		if id, ok := s.alive[borrow.Owner]; ok && id != borrow.Id {
			return errors.Wrapf(core.ErrBorrowAlreadyAlive, "%s has borrow %d", borrow.Owner, id)
		}
		s.alive[borrow.Owner] = borrow.Id
	} else if id, ok := s.alive[borrow.Owner]; ok && id == borrow.Id {
		delete(s.alive, borrow.Owner)
	}
	s.borrows.ReplaceOrInsert(borrow.Clone())
	return nil
}

func (s *BorrowStore) GetMatchedLoan(_ context.Context, id uint64) (*core.MatchedLoan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loans.Get(&core.MatchedLoan{Id: id})
	if !ok {
		return nil, errors.Wrapf(core.ErrMatchedLoanNotFound, "loan %d", id)
	}
	return l.Clone(), nil
}

func (s *BorrowStore) ListMatchedLoansByStatus(_ context.Context, status core.MatchedLoanStatus) ([]*core.MatchedLoan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var loans []*core.MatchedLoan
	s.loans.Ascend(func(l *core.MatchedLoan) bool {
		if l.Status == status {
			loans = append(loans, l.Clone())
		}
		return true
	})
	return loans, nil
}

func (s *BorrowStore) SaveMatch(_ context.Context, borrow *core.Borrow, loan *core.MatchedLoan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveBorrow(borrow); err != nil {
		return err
	}
	s.loans.ReplaceOrInsert(loan.Clone())
	return nil
}
