package notification

import (
	"time"

	"github.com/oksasatya/account-lifecycle/internal/application"
	"github.com/oksasatya/account-lifecycle/pkg/mailer"
	mailtpl "github.com/oksasatya/account-lifecycle/pkg/mailer/templates"
)

// Composer turns a dormancy notice into an email job.
type Composer struct {
	Brand    mailtpl.Brand
	Location *time.Location
	// DeleteAfter is the human readable dormant-to-deleted period.
	DeleteAfter string
}

// MessageID is stable for one account and calendar day so a redelivered
// job can be recognised downstream.
func (c Composer) MessageID(n application.DormancyNotice, now time.Time) string {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return mailtpl.DormancyNotice + ":" + n.AccountID + ":" + now.In(loc).Format("2006-01-02")
}

func (c Composer) Job(n application.DormancyNotice, now time.Time) mailer.EmailJob {
	data := mailtpl.NewDormancyNoticeData(c.Brand, n.Nickname, n.Address,
		mailtpl.WithDormantOn(n.DormantOn, c.Location),
		mailtpl.WithDeleteAfter(c.DeleteAfter),
	)
	return mailer.EmailJob{
		ID:       c.MessageID(n, now),
		To:       n.Address,
		Template: mailtpl.DormancyNotice,
		Data:     data,
	}
}
