package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Skotchmaster/shop_auth/internal/config"
	"github.com/Skotchmaster/shop_auth/internal/db"
	"github.com/Skotchmaster/shop_auth/internal/events"
	"github.com/Skotchmaster/shop_auth/internal/logging"
	"github.com/Skotchmaster/shop_auth/internal/metrics"
	"github.com/Skotchmaster/shop_auth/internal/refreshstore"
	"github.com/Skotchmaster/shop_auth/internal/repo"
	"github.com/Skotchmaster/shop_auth/internal/service"
	"github.com/Skotchmaster/shop_auth/internal/tokens"
)

// app holds every long-lived dependency of the service.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	db       *gorm.DB
	redis    *redis.Client
	store    *refreshstore.RedisStore
	producer events.Publisher
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	auth     *service.AuthService
	accounts *service.AccountService
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.MustValid(config.Load())
	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)

	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	rc, err := refreshstore.NewRedisClient(cfg.RedisURL)
	if err != nil {
		_ = db.Close(gdb)
		return nil, fmt.Errorf("redis client: %w", err)
	}
	store := refreshstore.NewRedisStore(rc, cfg.RefreshKeyPrefix, cfg.RefreshTokenTTL)

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		p, err := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaAuthTopic, log)
		if err != nil {
			_ = rc.Close()
			_ = db.Close(gdb)
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		pub = p
	} else {
		log.Info("kafka disabled, auth events are dropped")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	codec := tokens.NewCodec(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	auth := &service.AuthService{
		Repo:    repo.New(gdb),
		Store:   store,
		Codec:   codec,
		Events:  pub,
		Metrics: m,
	}

	return &app{
		cfg:      cfg,
		log:      log,
		db:       gdb,
		redis:    rc,
		store:    store,
		producer: pub,
		registry: reg,
		metrics:  m,
		auth:     auth,
		accounts: &service.AccountService{Auth: auth},
	}, nil
}

func (a *app) Close() {
	if err := a.producer.Close(); err != nil {
		a.log.Error("kafka close error", "error", err)
	}
	if err := a.redis.Close(); err != nil {
		a.log.Error("redis close error", "error", err)
	}
	if err := db.Close(a.db); err != nil {
		a.log.Error("db close error", "error", err)
	}
}
