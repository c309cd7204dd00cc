package lifecycle

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
)

// ErrInvalidState marks a record that matched a rule but lacks a field the
// rule requires. Such records are skipped, never repaired.
var ErrInvalidState = errors.New("invalid account state")

// ErrInvalidTransition is returned when an externally requested transition
// does not start from an allowed status.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// AnonymizedEmailPattern matches addresses produced by Anonymize.
var AnonymizedEmailPattern = regexp.MustCompile(`^deleted_[0-9a-f]{32}@[a-z0-9.-]+$`)

func invalid(a entity.Account, format string, args ...any) error {
	return fmt.Errorf("%w: account %s: %s", ErrInvalidState, a.ID, fmt.Sprintf(format, args...))
}

// ShouldExpirePending reports whether an unverified signup outlived the pending TTL (R1).
func ShouldExpirePending(a entity.Account, now time.Time, p Policy) (bool, error) {
	if a.Status != entity.StatusPending {
		return false, nil
	}
	if a.CreatedAt.IsZero() {
		return false, invalid(a, "pending without created_at")
	}
	return a.CreatedAt.Before(p.PendingTTL.Before(now)), nil
}

// Demote moves an inactive Active account to Dormant (R2).
func Demote(a entity.Account, now time.Time, p Policy) (entity.Account, bool, error) {
	if a.Status != entity.StatusActive {
		return a, false, nil
	}
	if a.LastLoginAt == nil {
		return a, false, invalid(a, "active without last_login_at")
	}
	if !a.LastLoginAt.Before(p.DormantAfter.Before(now)) {
		return a, false, nil
	}
	a.Status = entity.StatusDormant
	a.StatusChangedAt = now
	a.UpdatedAt = now
	return a, true, nil
}

// SoftDelete moves an account that stayed Dormant too long to Deleted (R3).
func SoftDelete(a entity.Account, now time.Time, p Policy) (entity.Account, bool, error) {
	if a.Status != entity.StatusDormant {
		return a, false, nil
	}
	if a.StatusChangedAt.IsZero() {
		return a, false, invalid(a, "dormant without status_changed_at")
	}
	if a.DeletedAt != nil {
		return a, false, invalid(a, "dormant with deleted_at set")
	}
	if !a.StatusChangedAt.Before(p.DeleteAfterDormant.Before(now)) {
		return a, false, nil
	}
	return markDeleted(a, now), true, nil
}

// ShouldPurge reports whether a Deleted account passed the retention period (R4).
func ShouldPurge(a entity.Account, now time.Time, p Policy) (bool, error) {
	if a.Status != entity.StatusDeleted {
		return false, nil
	}
	if a.DeletedAt == nil {
		return false, invalid(a, "deleted without deleted_at")
	}
	return a.DeletedAt.Before(p.PurgeAfter.Before(now)), nil
}

// Anonymize scrubs identity fields of a Deleted account (R5). token must be
// fresh for every call; it becomes the unique part of the replacement email.
func Anonymize(a entity.Account, now time.Time, p Policy, token string) (entity.Account, bool, error) {
	if a.Status != entity.StatusDeleted {
		return a, false, nil
	}
	if a.DeletedAt == nil {
		return a, false, invalid(a, "deleted without deleted_at")
	}
	if !a.DeletedAt.Before(p.AnonymizeAfter.Before(now)) {
		return a, false, nil
	}
	if p.SkipAnonymized && a.Anonymized {
		return a, false, nil
	}
	token = strings.ReplaceAll(strings.ToLower(token), "-", "")
	a.Nickname = p.PlaceholderNickname
	a.ProfileImage = ""
	a.Email = "deleted_" + token + "@" + p.AnonymousDomain
	a.Anonymized = true
	at := now
	a.AnonymizedAt = &at
	a.UpdatedAt = now
	return a, true, nil
}

// NoticeWindowStart is the earliest notice instant that still suppresses a
// new dormancy notice. A notice sent before the most recent login does not
// count, even when both fall on the same day.
func NoticeWindowStart(a entity.Account, now time.Time, p Policy) time.Time {
	start := truncateDay(p.NoticeWindow.Before(now))
	if a.LastLoginAt != nil && a.LastLoginAt.After(start) {
		start = *a.LastLoginAt
	}
	return start
}

// NeedsDormancyNotice reports whether an Active account is close enough to
// dormancy to be warned (R6). Ledger deduplication is applied by the caller.
func NeedsDormancyNotice(a entity.Account, now time.Time, p Policy) (bool, error) {
	if a.Status != entity.StatusActive {
		return false, nil
	}
	if a.LastLoginAt == nil {
		return false, invalid(a, "active without last_login_at")
	}
	if strings.TrimSpace(a.Email) == "" {
		return false, invalid(a, "active without email")
	}
	return a.LastLoginAt.Before(p.NoticeAfter.Before(now)), nil
}

// DormancyDate is when an account that has not logged in will become Dormant.
func DormancyDate(a entity.Account, p Policy) time.Time {
	if a.LastLoginAt == nil {
		return time.Time{}
	}
	l := *a.LastLoginAt
	return l.AddDate(p.DormantAfter.Years, p.DormantAfter.Months, p.DormantAfter.Days).Add(p.DormantAfter.Clock)
}

// Login records a successful login, reactivating Dormant accounts.
func Login(a entity.Account, now time.Time) (entity.Account, error) {
	switch a.Status {
	case entity.StatusActive:
	case entity.StatusDormant:
		a.Status = entity.StatusActive
		a.StatusChangedAt = now
	default:
		return a, fmt.Errorf("%w: login from %s", ErrInvalidTransition, a.Status)
	}
	at := now
	a.LastLoginAt = &at
	a.UpdatedAt = now
	return a, nil
}

// Withdraw soft-deletes an account at the user's request.
func Withdraw(a entity.Account, now time.Time) (entity.Account, error) {
	if a.Status != entity.StatusActive && a.Status != entity.StatusDormant {
		return a, fmt.Errorf("%w: withdrawal from %s", ErrInvalidTransition, a.Status)
	}
	return markDeleted(a, now), nil
}

func markDeleted(a entity.Account, now time.Time) entity.Account {
	a.Status = entity.StatusDeleted
	at := now
	a.DeletedAt = &at
	a.StatusChangedAt = now
	a.UpdatedAt = now
	return a
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NoticeDate is the ledger date recorded for a notice attempted at now.
func NoticeDate(now time.Time) time.Time { return truncateDay(now) }
