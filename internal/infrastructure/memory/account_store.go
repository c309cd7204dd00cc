package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/account-lifecycle/internal/domain/repository"
)

// AccountStore is an in-process AccountRepository used by tests and dry runs.
type AccountStore struct {
	mu          sync.RWMutex
	accounts    map[string]entity.Account
	withdrawals []entity.Withdrawal
	ledger      *NoticeLedger
}

// NewAccountStore creates an empty store. When ledger is non-nil the
// dormancy-notice finder excludes accounts already present in it.
func NewAccountStore(ledger *NoticeLedger) *AccountStore {
	return &AccountStore{accounts: make(map[string]entity.Account), ledger: ledger}
}

// Put inserts or replaces records unconditionally.
func (s *AccountStore) Put(accounts ...entity.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
}

func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

func (s *AccountStore) Withdrawals() []entity.Withdrawal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.Withdrawal(nil), s.withdrawals...)
}

func (s *AccountStore) find(match func(entity.Account) bool) []entity.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Account, 0)
	for _, a := range s.accounts {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func before(t *time.Time, threshold time.Time) bool {
	return t != nil && t.Before(threshold)
}

func (s *AccountStore) FindPending(_ context.Context, createdBefore time.Time) ([]entity.Account, error) {
	return s.find(func(a entity.Account) bool {
		return a.Status == entity.StatusPending && a.CreatedAt.Before(createdBefore)
	}), nil
}

func (s *AccountStore) FindActive(_ context.Context, lastLoginBefore time.Time) ([]entity.Account, error) {
	return s.find(func(a entity.Account) bool {
		return a.Status == entity.StatusActive && before(a.LastLoginAt, lastLoginBefore)
	}), nil
}

func (s *AccountStore) FindDormant(_ context.Context, statusChangedBefore time.Time) ([]entity.Account, error) {
	return s.find(func(a entity.Account) bool {
		return a.Status == entity.StatusDormant && a.StatusChangedAt.Before(statusChangedBefore)
	}), nil
}

func (s *AccountStore) FindDeleted(_ context.Context, deletedBefore time.Time) ([]entity.Account, error) {
	return s.find(func(a entity.Account) bool {
		return a.Status == entity.StatusDeleted && before(a.DeletedAt, deletedBefore)
	}), nil
}

func (s *AccountStore) FindDormancyNoticeCandidates(ctx context.Context, lastLoginBefore, excludingNoticedSince time.Time) ([]entity.Account, error) {
	candidates := s.find(func(a entity.Account) bool {
		return a.Status == entity.StatusActive && before(a.LastLoginAt, lastLoginBefore)
	})
	if s.ledger == nil {
		return candidates, nil
	}
	out := candidates[:0]
	for _, a := range candidates {
		since := excludingNoticedSince
		if a.LastLoginAt.After(since) {
			since = *a.LastLoginAt
		}
		noticed, err := s.ledger.Exists(ctx, a.ID, since)
		if err != nil {
			return nil, err
		}
		if !noticed {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *AccountStore) BulkDelete(_ context.Context, ids []string, expected entity.Status) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok && a.Status == expected {
			delete(s.accounts, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (s *AccountStore) BulkSave(_ context.Context, updates []entity.AccountUpdate) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var written []string
	for _, u := range updates {
		if s.applyLocked(u) {
			written = append(written, u.Account.ID)
		}
	}
	return written, nil
}

func (s *AccountStore) applyLocked(u entity.AccountUpdate) bool {
	cur, ok := s.accounts[u.Account.ID]
	if !ok || cur.Status != u.ExpectedStatus {
		return false
	}
	s.accounts[u.Account.ID] = u.Account
	return true
}

func (s *AccountStore) GetByID(_ context.Context, id string) (*entity.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (s *AccountStore) Save(_ context.Context, update entity.AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.applyLocked(update) {
		return repository.ErrNotFound
	}
	return nil
}

func (s *AccountStore) RecordWithdrawal(_ context.Context, w entity.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawals = append(s.withdrawals, w)
	return nil
}

var _ repository.AccountRepository = (*AccountStore)(nil)
