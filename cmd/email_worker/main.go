package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-lifecycle/config"
	"github.com/oksasatya/account-lifecycle/internal/infrastructure/notification"
	"github.com/oksasatya/account-lifecycle/pkg/helpers"
	"github.com/oksasatya/account-lifecycle/pkg/mailer"
)

const consumerTag = "email-worker"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-email-worker", cfg.Env, cfg.LogLevel)
	if !cfg.MailSendEnabled {
		logger.Warn("MAIL_SEND_ENABLED=false; email worker disabled (no real emails will be sent)")
		return
	}
	if cfg.RabbitMQURL == "" || cfg.RabbitMQEmailQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}
	if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" || cfg.MailgunSender == "" {
		log.Fatal("Mailgun not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer, err := helpers.NewRabbitConsumer(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue, cfg.EmailWorkerPrefetch)
	if err != nil {
		log.Fatalf("amqp: %v", err)
	}
	defer consumer.Close()

	msgs, err := consumer.Deliveries(consumerTag)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.AppName+"-email-worker")
	defer func() { _ = rdb.Close() }()
	var worker *notification.EmailWorker
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis unavailable; redelivered jobs will not be deduplicated")
		worker = notification.NewEmailWorker(mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender), nil, logger)
	} else {
		worker = notification.NewEmailWorker(mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender), rdb, logger)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			settle(logger, msg, worker.Handle(context.WithoutCancel(ctx), msg.Body))
		}
	}()

	logger.Infof("email worker listening on queue=%s", cfg.RabbitMQEmailQueue)
	<-ctx.Done()
	logger.Info("shutting down...")
	// stop new deliveries; the loop drains what is in flight and exits
	// when the channel closes
	if err := consumer.Cancel(consumerTag); err != nil {
		logger.WithError(err).Warn("cancel consumer")
	}
	<-done
}

func settle(logger *logrus.Logger, msg amqp.Delivery, outcome notification.Outcome) {
	var err error
	switch outcome {
	case notification.Ack:
		err = msg.Ack(false)
	case notification.Reject:
		err = msg.Nack(false, false)
	default:
		err = msg.Nack(false, true)
	}
	if err != nil {
		logger.WithError(err).WithField("outcome", outcome.String()).Warn("settle delivery failed")
	}
}
