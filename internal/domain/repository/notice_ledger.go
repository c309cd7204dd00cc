package repository

import (
	"context"
	"time"
)

// NoticeLedger is the append-only log of dormancy notices already attempted.
type NoticeLedger interface {
	// Exists reports whether accountID has a notice attempted at or after since.
	Exists(ctx context.Context, accountID string, since time.Time) (bool, error)
	// Record logs a notice attempted at the given instant. Entries are keyed by
	// calendar day of at; a second attempt on the same day is a no-op.
	Record(ctx context.Context, accountID string, at time.Time) error
}
