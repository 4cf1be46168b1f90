package cli

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appservice "github.com/turtacn/authenticator/internal/application/service"
	"github.com/turtacn/authenticator/internal/config"
	domainservice "github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/internal/infrastructure/api"
	"github.com/turtacn/authenticator/internal/infrastructure/audit"
	"github.com/turtacn/authenticator/internal/infrastructure/crypto"
	"github.com/turtacn/authenticator/internal/infrastructure/kms"
	"github.com/turtacn/authenticator/internal/infrastructure/monitoring"
	"github.com/turtacn/authenticator/internal/infrastructure/persistence/gormstore"
	"github.com/turtacn/authenticator/internal/infrastructure/redis"
	"github.com/turtacn/authenticator/internal/interfaces/http/handlers"
	"github.com/turtacn/authenticator/internal/interfaces/presenter"
	"github.com/turtacn/authenticator/pkg/logger"
)

// application holds the wired collaborators of one CLI invocation.
type application struct {
	cfg      *config.Config
	loader   *config.Loader
	log      logger.Logger
	level    zap.AtomicLevel
	tracing  *monitoring.TracingManager
	registry *prometheus.Registry
	metrics  *monitoring.Metrics

	db          *gormstore.DBConnection
	connections *gormstore.ConnectionRepoImpl
	keys        kms.KeyManager
	redis       goredis.UniversalClient
	cache       domainservice.FinalStateCache
	auditLog    *audit.GormAuditService
	kafka       *audit.KafkaProducer
	audit       domainservice.AuditService
	client      *api.Client
	codec       *crypto.AuthorizationCodec
}

// bootstrap loads the configuration and opens every store. Close releases them.
func bootstrap(ctx context.Context, opts *rootOptions) (*application, error) {
	loader := config.NewLoader(opts.configFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	log, level, err := monitoring.NewZapLoggerWithLevel(&cfg.Log)
	if err != nil {
		return nil, err
	}
	app := &application{cfg: cfg, loader: loader, log: log, level: level}

	if app.tracing, err = monitoring.NewTracingManager(&cfg.Tracing, log); err != nil {
		return nil, err
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = monitoring.NewMetrics(app.registry)

	if app.db, err = gormstore.NewDBConnection(ctx, &cfg.Database, log); err != nil {
		app.Close()
		return nil, err
	}
	app.connections = gormstore.NewConnectionRepository(app.db.DB(), log)

	if app.keys, err = kms.NewKeyManager(cfg, log); err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Redis.Address != "" {
		if app.redis, err = redis.NewClient(ctx, cfg.Redis); err != nil {
			app.Close()
			return nil, err
		}
		app.cache = redis.NewRedisFinalStateCache(app.redis, cfg.Redis.KeyPrefix, cfg.Lifecycle.FinalStateTTL, log)
	} else {
		app.cache = redis.NewMemoryFinalStateCache(cfg.Lifecycle.FinalStateTTL)
	}

	if app.auditLog, err = audit.NewGormAuditService(app.db.DB()); err != nil {
		app.Close()
		return nil, err
	}
	app.audit = app.auditLog
	if len(cfg.Kafka.Brokers) > 0 {
		app.kafka = audit.NewKafkaProducer(cfg.Kafka, log)
		app.audit = app.kafka
	}

	app.client = api.NewClient(api.Config{
		HTTPClient:   &http.Client{Timeout: cfg.Provider.RequestTimeout},
		Logger:       log,
		SignatureTTL: cfg.Provider.SignatureTTL,
		UserAgent:    cfg.Provider.UserAgent,
	})
	app.codec = crypto.NewAuthorizationCodec(log)
	return app, nil
}

// Close releases the stores in reverse order of opening.
func (a *application) Close() {
	ctx := context.Background()
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.log.Warn(ctx, "Failed to close audit producer", logger.Fields{"error": err.Error()})
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn(ctx, "Failed to close database", logger.Fields{"error": err.Error()})
		}
	}
	if a.tracing != nil {
		_ = a.tracing.Shutdown(ctx)
	}
}

func (a *application) dependencies(location domainservice.LocationProvider) appservice.Dependencies {
	return appservice.Dependencies{
		Connections: a.connections,
		Keys:        a.keys,
		Fetcher:     a.client,
		Resolver:    a.client,
		Decoder:     a.codec,
		Location:    location,
		Audit:       a.audit,
		Cache:       a.cache,
		Metrics:     monitoring.NewMetricsAdapter(a.metrics),
		Logger:      a.log,
	}
}

func (a *application) timing() appservice.Timing {
	return appservice.Timing{
		PollingInterval: a.cfg.Lifecycle.PollingInterval,
		DestroyDelay:    a.cfg.Lifecycle.DestroyDelay,
		RequestTimeout:  a.cfg.Provider.RequestTimeout,
	}
}

func (a *application) controllerOptions(location domainservice.LocationProvider, gate domainservice.UserAuthenticator) presenter.ControllerOptions {
	return presenter.ControllerOptions{
		Location:       location,
		Authenticator:  gate,
		Logger:         a.log,
		TickInterval:   a.cfg.Lifecycle.TickInterval,
		CloseAppOnBack: true,
	}
}

func (a *application) healthChecks() map[string]handlers.Checker {
	checks := map[string]handlers.Checker{
		"database": a.db.Ping,
		"keys":     a.keys.HealthCheck,
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	return checks
}

// watchConfig applies log level changes of the config file while running.
func (a *application) watchConfig(ctx context.Context) {
	if a.loader.ConfigFile() == "" {
		return
	}
	a.loader.Watch(func(cfg *config.Config) {
		level := monitoring.ParseLevel(cfg.Log.Level)
		if level != a.level.Level() {
			a.level.SetLevel(level)
			a.log.Info(ctx, "Log level changed", logger.Fields{"level": level.String()})
		}
	}, func(err error) {
		a.log.Warn(ctx, "Ignoring invalid configuration change", logger.Fields{"error": err.Error()})
	})
}
