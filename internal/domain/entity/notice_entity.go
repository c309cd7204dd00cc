package entity

import "time"

// NoticeEntry is one append-only dormancy-notice fact.
// NoticeDate is truncated to the day the notice was attempted.
type NoticeEntry struct {
	AccountID  string
	NoticeDate time.Time
	NoticedAt  time.Time
}
