package container

import (
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/oksasatya/account-lifecycle/config"
	"github.com/oksasatya/account-lifecycle/internal/application"
	gcsinfra "github.com/oksasatya/account-lifecycle/internal/infrastructure/gcs"
	"github.com/oksasatya/account-lifecycle/internal/infrastructure/memory"
	"github.com/oksasatya/account-lifecycle/internal/infrastructure/notification"
	pginfra "github.com/oksasatya/account-lifecycle/internal/infrastructure/postgres"
	"github.com/oksasatya/account-lifecycle/internal/infrastructure/redislock"
	"github.com/oksasatya/account-lifecycle/internal/infrastructure/search"
	mailtpl "github.com/oksasatya/account-lifecycle/pkg/mailer/templates"
)

var (
	engine         *application.Engine
	scheduler      *application.Scheduler
	accountService *application.AccountService
	accountIndex   *search.AccountIndex
)

func GetEngine() *application.Engine                 { return get(&engine) }
func GetScheduler() *application.Scheduler           { return get(&scheduler) }
func GetAccountService() *application.AccountService { return get(&accountService) }
func GetAccountIndex() *search.AccountIndex          { return get(&accountIndex) }

// BuildLifecycle wires the engine, the scheduler and the account service
// from the registered clients. Call it after the Set* calls in main.
func BuildLifecycle(clock clockwork.Clock) error {
	c := GetConfig()
	if c == nil || GetPGPool() == nil {
		return errors.New("container: config and postgres pool are required")
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	loc, err := c.Location()
	if err != nil {
		return err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := GetLogger()

	store := pginfra.NewAccountRepository(GetPGPool(), loc)
	notifier, err := buildNotifier(c, clock)
	if err != nil {
		return err
	}

	deps := application.EngineDeps{
		Store:    store,
		Ledger:   pginfra.NewNoticeLedger(GetPGPool()),
		Notifier: notifier,
		Clock:    clock,
		Logger:   log,
		Metrics:  application.NewMetrics(GetMetricsRegistry()),
	}
	var (
		index   application.SearchIndex
		esIndex *search.AccountIndex
	)
	if es := GetES(); es != nil {
		esIndex = search.NewAccountIndex(es, c.ESAccountsIndex)
		index = esIndex
		deps.Index = esIndex
	}
	if gcs := GetGCS(); gcs != nil && c.GCSBucket != "" {
		deps.Avatars = gcsinfra.NewAvatarStore(gcs, c.GCSBucket)
	}
	if c.LockEnabled && GetRedis() != nil {
		deps.Locker = redislock.New(GetRedis(), "")
	} else {
		deps.Locker = memory.NewLocker()
	}

	eng := application.NewEngine(deps, application.EngineOptions{
		Policy:        c.Policy,
		OpTimeout:     c.OpTimeout,
		NotifyTimeout: c.NotifyTimeout,
		LockTTL:       c.LockTTL,
		Location:      loc,
	})
	svc := application.NewAccountService(store, clock, log, index)

	var sched *application.Scheduler
	if c.SchedulerEnabled {
		triggers, err := c.Triggers(loc)
		if err != nil {
			return err
		}
		if sched, err = application.NewScheduler(eng, clock, log, triggers...); err != nil {
			return err
		}
	}

	mu.Lock()
	engine, scheduler, accountService, accountIndex = eng, sched, svc, esIndex
	mu.Unlock()
	return nil
}

func buildNotifier(c *config.Config, clock clockwork.Clock) (application.NotificationGateway, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	composer := notification.Composer{
		Brand: mailtpl.Brand{
			CompanyName:    c.CompanyName,
			CompanyAddress: c.CompanyAddress,
			AppName:        c.AppName,
			LogoURL:        c.LogoURL,
			SupportURL:     c.SupportURL,
			PrivacyURL:     c.PrivacyURL,
			UnsubscribeURL: c.UnsubscribeURL,
			LoginURL:       c.LoginURL,
		},
		Location:    loc,
		DeleteAfter: c.Policy.DeleteAfterDormant.Human(),
	}
	switch c.NotifyTransport {
	case "rabbitmq":
		if GetRabbitPub() == nil {
			return nil, errors.New("container: NOTIFY_TRANSPORT=rabbitmq needs a RabbitMQ publisher")
		}
		return notification.NewRabbitGateway(GetRabbitPub(), composer, clock), nil
	case "mailgun":
		if GetMailgun() == nil {
			return nil, errors.New("container: NOTIFY_TRANSPORT=mailgun needs a Mailgun client")
		}
		return notification.NewMailgunGateway(GetMailgun(), composer, clock), nil
	case "log":
		return notification.NewLogGateway(GetLogger()), nil
	}
	return nil, fmt.Errorf("container: unknown NOTIFY_TRANSPORT %q", c.NotifyTransport)
}
