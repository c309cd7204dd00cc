package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/account-lifecycle/internal/domain/repository"
)

const accountColumns = `id::text, email, nickname, profile_image, status, created_at, updated_at,
	status_changed_at, last_login_at, deleted_at, anonymized, anonymized_at`

// AccountRepository is the pgx-backed account store. Timestamps are returned
// in loc so day boundaries match the engine's.
type AccountRepository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

func NewAccountRepository(pool *pgxpool.Pool, loc *time.Location) *AccountRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &AccountRepository{pool: pool, loc: loc}
}

func (r *AccountRepository) in(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.In(r.loc)
	return &v
}

func (r *AccountRepository) scan(row pgx.Row) (entity.Account, error) {
	var (
		a      entity.Account
		status string
	)
	if err := row.Scan(&a.ID, &a.Email, &a.Nickname, &a.ProfileImage, &status, &a.CreatedAt, &a.UpdatedAt,
		&a.StatusChangedAt, &a.LastLoginAt, &a.DeletedAt, &a.Anonymized, &a.AnonymizedAt); err != nil {
		return a, err
	}
	a.Status = entity.Status(status)
	a.CreatedAt = a.CreatedAt.In(r.loc)
	a.UpdatedAt = a.UpdatedAt.In(r.loc)
	a.StatusChangedAt = a.StatusChangedAt.In(r.loc)
	a.LastLoginAt = r.in(a.LastLoginAt)
	a.DeletedAt = r.in(a.DeletedAt)
	a.AnonymizedAt = r.in(a.AnonymizedAt)
	return a, nil
}

func (r *AccountRepository) list(ctx context.Context, sql string, args ...any) ([]entity.Account, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]entity.Account, 0)
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AccountRepository) FindPending(ctx context.Context, createdBefore time.Time) ([]entity.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE status = 'PENDING' AND created_at < $1 ORDER BY id`, createdBefore)
}

func (r *AccountRepository) FindActive(ctx context.Context, lastLoginBefore time.Time) ([]entity.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE status = 'ACTIVE' AND last_login_at < $1 ORDER BY id`, lastLoginBefore)
}

func (r *AccountRepository) FindDormant(ctx context.Context, statusChangedBefore time.Time) ([]entity.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE status = 'DORMANT' AND status_changed_at < $1 ORDER BY id`, statusChangedBefore)
}

func (r *AccountRepository) FindDeleted(ctx context.Context, deletedBefore time.Time) ([]entity.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE status = 'DELETED' AND deleted_at < $1 ORDER BY id`, deletedBefore)
}

func (r *AccountRepository) FindDormancyNoticeCandidates(ctx context.Context, lastLoginBefore, excludingNoticedSince time.Time) ([]entity.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts a
		WHERE a.status = 'ACTIVE' AND a.last_login_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM dormancy_notice_log n
			WHERE n.account_id = a.id
			  AND n.noticed_at >= GREATEST($2::timestamptz, a.last_login_at)
		  )
		ORDER BY a.id`, lastLoginBefore, excludingNoticedSince)
}

func (r *AccountRepository) BulkDelete(ctx context.Context, ids []string, expected entity.Status) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `DELETE FROM accounts WHERE id = ANY($1::uuid[]) AND status = $2 RETURNING id::text`,
		ids, string(expected))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const updateAccount = `UPDATE accounts SET
	email = $3, nickname = $4, profile_image = $5, status = $6, updated_at = $7,
	status_changed_at = $8, last_login_at = $9, deleted_at = $10, anonymized = $11, anonymized_at = $12
	WHERE id = $1 AND status = $2`

func updateArgs(u entity.AccountUpdate) []any {
	a := u.Account
	return []any{a.ID, string(u.ExpectedStatus), a.Email, a.Nickname, a.ProfileImage, string(a.Status), a.UpdatedAt,
		a.StatusChangedAt, a.LastLoginAt, a.DeletedAt, a.Anonymized, a.AnonymizedAt}
}

// BulkSave sends every conditional update in one batch inside a transaction.
// A row that no longer matches its expected status returns nothing and is skipped.
func (r *AccountRepository) BulkSave(ctx context.Context, updates []entity.AccountUpdate) ([]string, error) {
	if len(updates) == 0 {
		return nil, nil
	}
	var written []string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		written = written[:0]
		batch := &pgx.Batch{}
		for _, u := range updates {
			batch.Queue(updateAccount+` RETURNING id::text`, updateArgs(u)...)
		}
		br := tx.SendBatch(ctx, batch)
		for range updates {
			var id string
			err := br.QueryRow().Scan(&id)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				_ = br.Close()
				return err
			}
			written = append(written, id)
		}
		return br.Close()
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	a, err := r.scan(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) Save(ctx context.Context, update entity.AccountUpdate) error {
	tag, err := r.pool.Exec(ctx, updateAccount, updateArgs(update)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) RecordWithdrawal(ctx context.Context, w entity.Withdrawal) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO withdrawal_history (account_id, reason, withdrawn_at) VALUES ($1, $2, $3)`,
		w.AccountID, w.Reason, w.WithdrawnAt)
	return err
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
