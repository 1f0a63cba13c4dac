package main

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/shovel-house/shovel-api/internal/auth"
	"github.com/shovel-house/shovel-api/internal/config"
	"github.com/shovel-house/shovel-api/internal/events"
	"github.com/shovel-house/shovel-api/internal/ledger"
	"github.com/shovel-house/shovel-api/internal/ledger/stripe"
	"github.com/shovel-house/shovel-api/internal/lock"
	"github.com/shovel-house/shovel-api/internal/notification"
	"github.com/shovel-house/shovel-api/internal/service"
	"github.com/shovel-house/shovel-api/internal/store"
	"go.uber.org/zap"
)

// components is everything run and reconcile share.
type components struct {
	store      store.Store
	producer   *events.EventProducer
	dispatcher *notification.Dispatcher
	locker     lock.Locker
	redis      redis.UniversalClient
	tokens     *auth.JWTAuthenticator

	settlement *service.SettlementService
	referral   *service.ReferralService
	jobs       *service.JobService
	users      *service.UserService
	webhooks   *service.WebhookReconciler
}

func newComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	zap.S().Info("Initializing data store")
	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	c := &components{store: store.NewStore(db)}

	if cfg.Database.Type != "pgsql" {
		if err := c.store.InitialMigration(ctx); err != nil {
			_ = c.store.Close()
			return nil, err
		}
	}

	tokens, err := auth.NewAuthenticator(cfg.Service.Auth)
	if err != nil {
		_ = c.store.Close()
		return nil, err
	}
	c.tokens = tokens

	sender, err := notification.NewSender(cfg.Email)
	if err != nil {
		_ = c.store.Close()
		return nil, err
	}
	c.dispatcher = notification.NewDispatcher(sender, cfg.Email.QueueSize)

	var writer events.Writer = &events.StdoutWriter{}
	if len(cfg.Kafka.Brokers) > 0 {
		zap.S().Infow("publishing lifecycle events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		writer = events.NewKafkaWriter(cfg.Kafka.Brokers)
	}
	c.producer = events.NewEventProducer(writer, events.WithOutputTopic(cfg.Kafka.Topic))

	if cfg.Redis.Address != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.locker = lock.NewRedisLocker(c.redis, "")
	} else {
		zap.S().Warn("no redis configured, the settlement sweep lease is local to this process")
		c.locker = lock.NewMemoryLocker()
	}

	gateway := ledger.NewGuarded(stripe.NewClient(cfg.Ledger.SecretKey), cfg.Ledger)
	verifier := stripe.NewVerifier(cfg.Ledger.PaymentsWebhookSecret, cfg.Ledger.ConnectWebhookSecret)

	c.referral = service.NewReferralService(c.store, gateway, c.dispatcher, c.producer, cfg)
	c.settlement = service.NewSettlementService(c.store, gateway, c.dispatcher, c.producer, c.referral, cfg)
	c.jobs = service.NewJobService(c.store, gateway, c.dispatcher, c.producer, c.tokens, c.settlement, cfg)
	c.users = service.NewUserService(c.store, c.tokens, c.dispatcher, cfg)
	c.webhooks = service.NewWebhookReconciler(c.store, gateway, verifier, c.producer, c.settlement)

	return c, nil
}

// Close flushes pending events and emails before closing the store.
func (c *components) Close() error {
	var errs []error

	c.dispatcher.Close()
	if err := c.producer.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
