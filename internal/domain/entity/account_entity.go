package entity

import (
	"time"
)

// Status is the stored lifecycle state of an account.
// Purged accounts have no status; their record is removed.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusDormant Status = "DORMANT"
	StatusDeleted Status = "DELETED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDormant, StatusDeleted:
		return true
	}
	return false
}

// Account is the aggregate root for the lifecycle domain.
//
// LastLoginAt and DeletedAt are nil until the corresponding event happened.
// ProfileImage is empty when the account has no avatar.
type Account struct {
	ID              string
	Email           string
	Nickname        string
	ProfileImage    string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StatusChangedAt time.Time
	LastLoginAt     *time.Time
	DeletedAt       *time.Time
	Anonymized      bool
	AnonymizedAt    *time.Time
}

// AccountUpdate is a conditional write: it only applies while the stored
// status still equals ExpectedStatus.
type AccountUpdate struct {
	Account        Account
	ExpectedStatus Status
}

// Withdrawal records a user-requested soft deletion.
type Withdrawal struct {
	AccountID   string
	Reason      string
	WithdrawnAt time.Time
}
