package application

import (
	"errors"
	"fmt"

	"github.com/oksasatya/account-lifecycle/internal/domain/lifecycle"
)

var (
	ErrStoreUnavailable    = errors.New("account store unavailable")
	ErrNotificationFailure = errors.New("dormancy notice delivery failed")
	ErrInvalidState        = lifecycle.ErrInvalidState
	ErrInvalidTransition   = lifecycle.ErrInvalidTransition
	ErrUnknownRule         = errors.New("unknown lifecycle rule")
	ErrLockHeld            = errors.New("rule lock held by another instance")
	ErrLeaseLost           = errors.New("rule lock lease no longer held")
	ErrAccountNotFound     = errors.New("account not found")
)

// SweepError is returned when a rule's batch is aborted.
type SweepError struct {
	Rule RuleID
	Err  error
}

func (e *SweepError) Error() string {
	return fmt.Sprintf("sweep %s: %v", e.Rule, e.Err)
}

func (e *SweepError) Unwrap() error { return e.Err }

func storeUnavailable(rule RuleID, op string, err error) error {
	return &SweepError{Rule: rule, Err: fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)}
}
