package router

import (
	"context"
	"time"

	"github.com/oksasatya/account-lifecycle/internal/container"
	pginfra "github.com/oksasatya/account-lifecycle/internal/infrastructure/postgres"
	handlers "github.com/oksasatya/account-lifecycle/internal/interface/http"
	"github.com/oksasatya/account-lifecycle/internal/interface/middleware"
	"github.com/oksasatya/account-lifecycle/internal/router/modules"
)

const healthTimeout = 2 * time.Second

func adminLimits() modules.AdminLimits {
	c := container.GetConfig()
	l := modules.AdminLimits{
		PerIP:      c.AdminRatePerIP,
		PerSubject: c.AdminRatePerSubject,
		Window:     c.AdminRateWindow,
		Rejected:   middleware.NewRateLimitMetrics(container.GetMetricsRegistry()),
	}
	allow, err := middleware.ParseCIDRs(c.AdminRateAllowCIDRs)
	if err != nil {
		container.GetLogger().WithError(err).Warn("ignoring ADMIN_RATE_ALLOW_CIDRS")
	}
	l.Allow = allow
	return l
}

func buildHealthHandler() *handlers.HealthHandler {
	checks := map[string]handlers.Check{
		"postgres": func(ctx context.Context) error {
			return pginfra.Ping(ctx, container.GetPGPool(), healthTimeout)
		},
	}
	if rdb := container.GetRedis(); rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return handlers.NewHealthHandler(healthTimeout, checks)
}

func buildLifecycleHandler() *handlers.LifecycleHandler {
	h := handlers.NewLifecycleHandler(container.GetEngine(), nil, nil, container.GetLogger())
	// typed nils must not leak into the interface fields
	if s := container.GetScheduler(); s != nil {
		h.Scheduler = s
	}
	if rdb := container.GetRedis(); rdb != nil {
		h.Redis = rdb
	}
	return h
}

func buildAccountHandler() *handlers.AccountHandler {
	h := handlers.NewAccountHandler(container.GetAccountService(), nil, container.GetLogger())
	if idx := container.GetAccountIndex(); idx != nil {
		h.Search = idx
	}
	return h
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup, after container.BuildLifecycle.
func InitModules(r *Registry) {
	jwt := container.GetJWT()
	limits := adminLimits()
	rdb := container.GetRedis()

	r.Add(modules.NewHealthModule(buildHealthHandler()))
	if rdb != nil {
		r.Add(modules.NewLifecycleModule(buildLifecycleHandler(), jwt, rdb, limits))
		r.Add(modules.NewAccountModule(buildAccountHandler(), jwt, rdb, limits))
	} else {
		r.Add(modules.NewLifecycleModule(buildLifecycleHandler(), jwt, nil, limits))
		r.Add(modules.NewAccountModule(buildAccountHandler(), jwt, nil, limits))
	}
	if container.GetConfig().MetricsEnabled {
		r.AddRoot(modules.NewMetricsModule(container.GetMetricsRegistry()))
	}
}
