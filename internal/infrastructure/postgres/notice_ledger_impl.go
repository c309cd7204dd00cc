package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/account-lifecycle/internal/domain/repository"
)

// NoticeLedger stores dormancy notices in dormancy_notice_log, one row per
// account and calendar day. noticed_at keeps the instant of the first attempt
// that day so a later login on the same day starts a fresh window.
type NoticeLedger struct {
	pool *pgxpool.Pool
}

func NewNoticeLedger(pool *pgxpool.Pool) *NoticeLedger {
	return &NoticeLedger{pool: pool}
}

func (l *NoticeLedger) Exists(ctx context.Context, accountID string, since time.Time) (bool, error) {
	var ok bool
	err := l.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM dormancy_notice_log WHERE account_id = $1 AND noticed_at >= $2
	)`, accountID, since).Scan(&ok)
	return ok, err
}

// Record keys the row by the calendar day of at in at's own location.
func (l *NoticeLedger) Record(ctx context.Context, accountID string, at time.Time) error {
	_, err := l.pool.Exec(ctx, `INSERT INTO dormancy_notice_log (account_id, notice_date, noticed_at)
		VALUES ($1, $2::date, $3)
		ON CONFLICT (account_id, notice_date) DO NOTHING`, accountID, at, at)
	return err
}

var _ repository.NoticeLedger = (*NoticeLedger)(nil)
