package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-lifecycle/pkg/mailer"
	mailtpl "github.com/oksasatya/account-lifecycle/pkg/mailer/templates"
)

// Outcome tells the consumer how to settle a delivery.
type Outcome int

const (
	Ack     Outcome = iota
	Reject          // nack without requeue
	Requeue         // nack with requeue
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	}
	return "requeue"
}

const sentKeyPrefix = "email:sent:"

// EmailWorker renders and sends queued email jobs. When Redis is set, job
// ids that were already sent are acked without sending again.
type EmailWorker struct {
	Sender  mailer.Sender
	Redis   redis.Cmdable
	Logger  *logrus.Logger
	Timeout time.Duration
	SentTTL time.Duration
}

func NewEmailWorker(sender mailer.Sender, rdb redis.Cmdable, logger *logrus.Logger) *EmailWorker {
	return &EmailWorker{Sender: sender, Redis: rdb, Logger: logger, Timeout: 15 * time.Second, SentTTL: 72 * time.Hour}
}

func (w *EmailWorker) Handle(ctx context.Context, body []byte) Outcome {
	var job mailer.EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.Logger.WithError(err).Warn("email job: bad payload")
		return Reject
	}
	entry := w.Logger.WithFields(logrus.Fields{"job_id": job.ID, "template": job.Template})
	if err := job.Validate(); err != nil {
		entry.WithError(err).Warn("email job: invalid")
		return Reject
	}

	if job.ID != "" && w.Redis != nil {
		n, err := w.Redis.Exists(ctx, sentKeyPrefix+job.ID).Result()
		if err != nil {
			entry.WithError(err).Warn("email job: dedupe lookup failed")
		} else if n > 0 {
			entry.Info("email job: already sent, dropping redelivery")
			return Ack
		}
	}

	subject, text, html := job.Subject, job.Text, job.HTML
	if job.Template != "" {
		s, t, h, err := mailtpl.Render(job.Template, job.Data)
		if err != nil {
			entry.WithError(err).Error("email job: render failed")
			return Reject
		}
		subject, text, html = s, t, h
	}

	c, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()
	if err := w.Sender.Send(c, job.To, subject, text, html); err != nil {
		entry.WithError(err).Warn("email job: send failed, requeueing")
		return Requeue
	}

	if job.ID != "" && w.Redis != nil {
		if err := w.Redis.Set(ctx, sentKeyPrefix+job.ID, 1, w.SentTTL).Err(); err != nil {
			entry.WithError(err).Warn("email job: mark sent failed")
		}
	}
	entry.Info("email job: sent")
	return Ack
}
