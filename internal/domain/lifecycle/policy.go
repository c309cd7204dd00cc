package lifecycle

import (
	"errors"
	"time"
)

const (
	DefaultPlaceholderNickname = "Unknown User"
	DefaultAnonymousDomain     = "anonymous.invalid"
)

// Policy holds every threshold the lifecycle rules evaluate against.
type Policy struct {
	PendingTTL         Period // R1
	DormantAfter       Period // R2
	DeleteAfterDormant Period // R3
	PurgeAfter         Period // R4
	AnonymizeAfter     Period // R5
	NoticeAfter        Period // R6
	NoticeWindow       Period

	// SkipAnonymized makes R5 ignore rows that were already scrubbed.
	// When false every sweep re-anonymizes, producing a new email each time.
	SkipAnonymized bool

	PlaceholderNickname string
	AnonymousDomain     string
}

func DefaultPolicy() Policy {
	return Policy{
		PendingTTL:          Days(1),
		DormantAfter:        Months(6),
		DeleteAfterDormant:  Years(1),
		PurgeAfter:          Years(3),
		AnonymizeAfter:      Days(30),
		NoticeAfter:         Months(5),
		NoticeWindow:        Months(1),
		SkipAnonymized:      true,
		PlaceholderNickname: DefaultPlaceholderNickname,
		AnonymousDomain:     DefaultAnonymousDomain,
	}
}

// Validate rejects policies whose thresholds would make the rules overlap.
func (p Policy) Validate() error {
	ref := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	for _, per := range []Period{p.PendingTTL, p.DormantAfter, p.DeleteAfterDormant, p.PurgeAfter, p.AnonymizeAfter, p.NoticeAfter, p.NoticeWindow} {
		if !per.Before(ref).Before(ref) {
			return errors.New("lifecycle: every period must be positive")
		}
	}
	if !p.DormantAfter.Before(ref).Before(p.NoticeAfter.Before(ref)) {
		return errors.New("lifecycle: dormancy notice must precede dormancy")
	}
	if !p.PurgeAfter.Before(ref).Before(p.AnonymizeAfter.Before(ref)) {
		return errors.New("lifecycle: anonymization must precede purge")
	}
	if p.PlaceholderNickname == "" || p.AnonymousDomain == "" {
		return errors.New("lifecycle: placeholder nickname and anonymous domain are required")
	}
	return nil
}
