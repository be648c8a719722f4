package memory

import (
	"bytes"
	"context"
	"sync"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/google/btree"
	"github.com/pkg/errors"
)

const defaultTreeDegree = 2

type (
	ownerKey struct {
		owner uuid.UUID
		id    uint64
	}

	// LoanStore keeps pooled loans ordered by id, with an owner index.
	LoanStore struct {
		mu      sync.RWMutex
		lastId  uint64
		loans   *btree.BTreeG[*core.Loan]
		byOwner *btree.BTreeG[ownerKey]
		totals  core.LoanTotals
	}
)

var _ core.LoanStore = (*LoanStore)(nil)

func loanLess(a, b *core.Loan) bool { return a.Id < b.Id }

func (k ownerKey) Less(o ownerKey) bool {
	if c := bytes.Compare(k.owner.Bytes(), o.owner.Bytes()); c != 0 {
		return c < 0
	}
	return k.id < o.id
}

func NewLoanStore() *LoanStore {
	return &LoanStore{
		loans:   btree.NewG(defaultTreeDegree, loanLess),
		byOwner: btree.NewG(defaultTreeDegree, ownerKey.Less),
	}
}

func (s *LoanStore) NextLoanId(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastId++
	return s.lastId, nil
}

func (s *LoanStore) GetLoan(_ context.Context, id uint64) (*core.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans.Get(&core.Loan{Id: id})
	if !ok {
		return nil, errors.Wrapf(core.ErrLoanNotFound, "loan %d", id)
	}
	return loan.Clone(), nil
}

func (s *LoanStore) ListLoans(_ context.Context) ([]*core.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loans := make([]*core.Loan, 0, s.loans.Len())
	s.loans.Ascend(func(l *core.Loan) bool {
		loans = append(loans, l.Clone())
		return true
	})
	return loans, nil
}

func (s *LoanStore) ListLoansByOwner(_ context.Context, owner uuid.UUID) ([]*core.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var loans []*core.Loan
	s.byOwner.AscendGreaterOrEqual(ownerKey{owner: owner}, func(k ownerKey) bool {
		if k.owner != owner {
			return false
		}
		if l, ok := s.loans.Get(&core.Loan{Id: k.id}); ok {
			loans = append(loans, l.Clone())
		}
		return true
	})
	return loans, nil
}

func (s *LoanStore) GetLoanTotals(_ context.Context) (*core.LoanTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals.Clone(), nil
}

func (s *LoanStore) SaveLoanTotals(_ context.Context, totals *core.LoanTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals = *totals
	return nil
}

func (s *LoanStore) CreateLoan(_ context.Context, loan *core.Loan, totals *core.LoanTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loans.Has(loan) {
		return errors.Errorf("loan %d already exists", loan.Id)
	}
	s.loans.ReplaceOrInsert(loan.Clone())
	s.byOwner.ReplaceOrInsert(ownerKey{owner: loan.Owner, id: loan.Id})
	s.totals = *totals
	return nil
}

func (s *LoanStore) UpdateLoan(_ context.Context, loan *core.Loan, totals *core.LoanTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loans.Has(loan) {
		return errors.Wrapf(core.ErrLoanNotFound, "loan %d", loan.Id)
	}
	s.loans.ReplaceOrInsert(loan.Clone())
	if totals != nil {
		s.totals = *totals
	}
	return nil
}

func (s *LoanStore) UpdateLoans(_ context.Context, loans []*core.Loan, totals *core.LoanTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, loan := range loans {
		if !s.loans.Has(loan) {
			return errors.Wrapf(core.ErrLoanNotFound, "loan %d", loan.Id)
		}
	}
	for _, loan := range loans {
		s.loans.ReplaceOrInsert(loan.Clone())
	}
	s.totals = *totals
	return nil
}

func (s *LoanStore) RemoveLoan(_ context.Context, id uint64, totals *core.LoanTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans.Delete(&core.Loan{Id: id})
	if !ok {
		return errors.Wrapf(core.ErrLoanNotFound, "loan %d", id)
	}
	s.byOwner.Delete(ownerKey{owner: loan.Owner, id: id})
	s.totals = *totals
	return nil
}
