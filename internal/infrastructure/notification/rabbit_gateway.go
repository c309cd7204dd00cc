package notification

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/oksasatya/account-lifecycle/internal/application"
)

// JSONPublisher is satisfied by helpers.RabbitPublisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, messageID string, body any) error
}

// RabbitGateway queues dormancy notices for the email worker. A successful
// publish counts as delivered; the worker owns retries against Mailgun.
type RabbitGateway struct {
	pub      JSONPublisher
	composer Composer
	clock    clockwork.Clock
}

func NewRabbitGateway(pub JSONPublisher, composer Composer, clock clockwork.Clock) *RabbitGateway {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RabbitGateway{pub: pub, composer: composer, clock: clock}
}

func (g *RabbitGateway) SendDormancyNotice(ctx context.Context, n application.DormancyNotice) error {
	job := g.composer.Job(n, g.clock.Now())
	if err := job.Validate(); err != nil {
		return err
	}
	if err := g.pub.PublishJSON(ctx, job.ID, job); err != nil {
		return fmt.Errorf("publish %s: %w", job.ID, err)
	}
	return nil
}

var _ application.NotificationGateway = (*RabbitGateway)(nil)
