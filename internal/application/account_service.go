package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/account-lifecycle/internal/domain/lifecycle"
	repo "github.com/oksasatya/account-lifecycle/internal/domain/repository"
)

// conditional writes are retried this many times when a concurrent update
// moved the status between read and write
const maxConditionalAttempts = 3

var ErrConcurrentUpdate = errors.New("account changed concurrently")

// AccountService handles the externally triggered transitions: login
// reactivation and voluntary withdrawal.
type AccountService struct {
	Repo   repo.AccountRepository
	Clock  clockwork.Clock
	Logger *logrus.Logger
	Index  SearchIndex
}

func NewAccountService(r repo.AccountRepository, clock clockwork.Clock, logger *logrus.Logger, index SearchIndex) *AccountService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AccountService{Repo: r, Clock: clock, Logger: logger, Index: index}
}

func (s *AccountService) Get(ctx context.Context, id string) (*entity.Account, error) {
	a, err := s.Repo.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return a, nil
}

// RecordLogin stamps lastLoginAt and reactivates a Dormant account.
func (s *AccountService) RecordLogin(ctx context.Context, id string) (*entity.Account, error) {
	return s.transition(ctx, id, func(a entity.Account) (entity.Account, error) {
		return lifecycle.Login(a, s.Clock.Now())
	})
}

// Withdraw soft-deletes an account on the user's request and keeps the reason.
func (s *AccountService) Withdraw(ctx context.Context, id, reason string) (*entity.Account, error) {
	a, err := s.transition(ctx, id, func(a entity.Account) (entity.Account, error) {
		return lifecycle.Withdraw(a, s.Clock.Now())
	})
	if err != nil {
		return nil, err
	}
	w := entity.Withdrawal{AccountID: a.ID, Reason: strings.TrimSpace(reason), WithdrawnAt: *a.DeletedAt}
	if err := s.Repo.RecordWithdrawal(ctx, w); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("account_id", a.ID).Warn("record withdrawal history failed")
	}
	if s.Index != nil {
		if err := s.Index.IndexAccount(ctx, *a); err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("account_id", a.ID).Warn("search index update failed")
		}
	}
	return a, nil
}

func (s *AccountService) transition(ctx context.Context, id string, fn func(entity.Account) (entity.Account, error)) (*entity.Account, error) {
	for attempt := 0; attempt < maxConditionalAttempts; attempt++ {
		cur, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		next, err := fn(*cur)
		if err != nil {
			return nil, err
		}
		err = s.Repo.Save(ctx, entity.AccountUpdate{Account: next, ExpectedStatus: cur.Status})
		if err == nil {
			if s.Logger != nil {
				s.Logger.WithFields(logrus.Fields{
					"account_id": id,
					"from":       cur.Status,
					"to":         next.Status,
				}).Info("account transitioned")
			}
			return &next, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
	}
	return nil, ErrConcurrentUpdate
}
