package notification

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/oksasatya/account-lifecycle/internal/application"
	"github.com/oksasatya/account-lifecycle/pkg/mailer"
	mailtpl "github.com/oksasatya/account-lifecycle/pkg/mailer/templates"
)

// MailgunGateway renders and sends synchronously, without the queue.
type MailgunGateway struct {
	sender   mailer.Sender
	composer Composer
	clock    clockwork.Clock
}

func NewMailgunGateway(sender mailer.Sender, composer Composer, clock clockwork.Clock) *MailgunGateway {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MailgunGateway{sender: sender, composer: composer, clock: clock}
}

func (g *MailgunGateway) SendDormancyNotice(ctx context.Context, n application.DormancyNotice) error {
	job := g.composer.Job(n, g.clock.Now())
	if err := job.Validate(); err != nil {
		return err
	}
	subject, text, html, err := mailtpl.Render(job.Template, job.Data)
	if err != nil {
		return err
	}
	return g.sender.Send(ctx, job.To, subject, text, html)
}

var _ application.NotificationGateway = (*MailgunGateway)(nil)
