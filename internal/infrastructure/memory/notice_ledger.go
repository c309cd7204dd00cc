package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/account-lifecycle/internal/domain/lifecycle"
	"github.com/oksasatya/account-lifecycle/internal/domain/repository"
)

// NoticeLedger keeps dormancy-notice entries in memory.
type NoticeLedger struct {
	mu      sync.RWMutex
	entries map[string][]entity.NoticeEntry
}

func NewNoticeLedger() *NoticeLedger {
	return &NoticeLedger{entries: make(map[string][]entity.NoticeEntry)}
}

func (l *NoticeLedger) Exists(_ context.Context, accountID string, since time.Time) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries[accountID] {
		if !e.NoticedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// Record appends an entry; a second entry for the same account and day is a no-op.
func (l *NoticeLedger) Record(_ context.Context, accountID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	day := lifecycle.NoticeDate(at)
	for _, e := range l.entries[accountID] {
		if e.NoticeDate.Equal(day) {
			return nil
		}
	}
	l.entries[accountID] = append(l.entries[accountID], entity.NoticeEntry{AccountID: accountID, NoticeDate: day, NoticedAt: at})
	return nil
}

func (l *NoticeLedger) Entries(accountID string) []entity.NoticeEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]entity.NoticeEntry(nil), l.entries[accountID]...)
}

var _ repository.NoticeLedger = (*NoticeLedger)(nil)
