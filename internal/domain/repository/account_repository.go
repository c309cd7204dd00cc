package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
)

var ErrNotFound = errors.New("account not found")

// AccountRepository is the query/mutation boundary over account records.
// Every finder returns a snapshot; callers tolerate staleness between read and write.
type AccountRepository interface {
	FindPending(ctx context.Context, createdBefore time.Time) ([]entity.Account, error)
	FindActive(ctx context.Context, lastLoginBefore time.Time) ([]entity.Account, error)
	FindDormant(ctx context.Context, statusChangedBefore time.Time) ([]entity.Account, error)
	FindDeleted(ctx context.Context, deletedBefore time.Time) ([]entity.Account, error)
	// FindDormancyNoticeCandidates returns Active accounts idle since before
	// lastLoginBefore that have no ledger entry noticed at or after the later
	// of excludingNoticedSince and their last login.
	FindDormancyNoticeCandidates(ctx context.Context, lastLoginBefore, excludingNoticedSince time.Time) ([]entity.Account, error)

	// BulkDelete removes the given ids whose status still equals expected and
	// returns the ids it removed.
	BulkDelete(ctx context.Context, ids []string, expected entity.Status) ([]string, error)
	// BulkSave applies conditional updates and returns the ids it wrote.
	// Updates whose expected status no longer matches are skipped silently.
	BulkSave(ctx context.Context, updates []entity.AccountUpdate) ([]string, error)

	GetByID(ctx context.Context, id string) (*entity.Account, error)
	// Save is a single conditional update; it returns ErrNotFound when the
	// record is gone or its status moved away from expected.
	Save(ctx context.Context, update entity.AccountUpdate) error
	RecordWithdrawal(ctx context.Context, w entity.Withdrawal) error
}
