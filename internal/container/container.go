package container

import (
	"sync"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-lifecycle/config"
	"github.com/oksasatya/account-lifecycle/pkg/helpers"
	"github.com/oksasatya/account-lifecycle/pkg/mailer"
)

// Clients built in main are registered here; BuildLifecycle and the router
// read them back. Optional clients (GCS, ES, Mailgun, RabbitMQ) stay nil
// when their feature is off.

var (
	mu sync.RWMutex

	cfg         *config.Config
	logger      *logrus.Logger
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	gcsClient   *storage.Client
	esClient    *elasticsearch.Client

	jwtManager *helpers.JWTManager

	mailgunClient *mailer.Mailgun
	rabbitPub     *helpers.RabbitPublisher

	metricsRegistry *prometheus.Registry
)

func set[T any](dst *T, v T) {
	mu.Lock()
	*dst = v
	mu.Unlock()
}

func get[T any](src *T) T {
	mu.RLock()
	defer mu.RUnlock()
	return *src
}

func SetConfig(c *config.Config)              { set(&cfg, c) }
func GetConfig() *config.Config               { return get(&cfg) }
func SetPGPool(p *pgxpool.Pool)               { set(&pgPool, p) }
func GetPGPool() *pgxpool.Pool                { return get(&pgPool) }
func SetRedis(r *redis.Client)                { set(&redisClient, r) }
func GetRedis() *redis.Client                 { return get(&redisClient) }
func SetGCS(s *storage.Client)                { set(&gcsClient, s) }
func GetGCS() *storage.Client                 { return get(&gcsClient) }
func SetES(c *elasticsearch.Client)           { set(&esClient, c) }
func GetES() *elasticsearch.Client            { return get(&esClient) }
func SetMailgun(m *mailer.Mailgun)            { set(&mailgunClient, m) }
func GetMailgun() *mailer.Mailgun             { return get(&mailgunClient) }
func SetRabbitPub(p *helpers.RabbitPublisher) { set(&rabbitPub, p) }
func GetRabbitPub() *helpers.RabbitPublisher  { return get(&rabbitPub) }
func SetJWT(m *helpers.JWTManager)            { set(&jwtManager, m) }
func SetLogger(l *logrus.Logger)              { set(&logger, l) }
func SetMetricsRegistry(r *prometheus.Registry) {
	set(&metricsRegistry, r)
}

// GetLogger falls back to the logrus standard logger.
func GetLogger() *logrus.Logger {
	if l := get(&logger); l != nil {
		return l
	}
	return logrus.StandardLogger()
}

// GetJWT builds the admin token manager from config on first use.
func GetJWT() *helpers.JWTManager {
	mu.Lock()
	defer mu.Unlock()
	if jwtManager == nil && cfg != nil {
		jwtManager = helpers.NewJWTManager(cfg.AdminJWTSecret, cfg.AdminJWTTTL, cfg.AdminJWTIssuer)
	}
	return jwtManager
}

// GetMetricsRegistry creates a private registry on first use.
func GetMetricsRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if metricsRegistry == nil {
		metricsRegistry = prometheus.NewRegistry()
	}
	return metricsRegistry
}

// Reset drops every registered client and built component.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cfg, logger, pgPool, redisClient = nil, nil, nil, nil
	gcsClient, esClient, jwtManager = nil, nil, nil
	mailgunClient, rabbitPub, metricsRegistry = nil, nil, nil
	engine, scheduler, accountService, accountIndex = nil, nil, nil, nil
}
