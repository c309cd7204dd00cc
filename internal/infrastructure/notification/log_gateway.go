package notification

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-lifecycle/internal/application"
)

// LogGateway only logs. Used when NOTIFY_TRANSPORT=log.
type LogGateway struct {
	logger *logrus.Logger
}

func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) SendDormancyNotice(_ context.Context, n application.DormancyNotice) error {
	g.logger.WithFields(logrus.Fields{
		"account_id": n.AccountID,
		"to":         n.Address,
		"dormant_on": n.DormantOn.Format(time.RFC3339),
	}).Info("dormancy notice (log transport)")
	return nil
}

var _ application.NotificationGateway = (*LogGateway)(nil)
