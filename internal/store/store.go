package store

import (
	"context"

	"github.com/shovel-house/shovel-api/internal/store/model"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	User() User
	WebhookEvent() WebhookEvent
	InitialMigration(ctx context.Context) error
	Statistics(ctx context.Context) (model.Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db           *gorm.DB
	job          Job
	user         User
	webhookEvent WebhookEvent
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		job:          NewJobStore(db),
		user:         NewUserStore(db),
		webhookEvent: NewWebhookEventStore(db),
		db:           db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) User() User {
	return s.user
}

func (s *DataStore) WebhookEvent() WebhookEvent {
	return s.webhookEvent
}

// InitialMigration creates the schema from the models. Production databases
// are migrated with goose (see pkg/migrations).
func (s *DataStore) InitialMigration(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&model.User{},
		&model.ShovellerProfile{},
		&model.Job{},
		&model.Assignment{},
		&model.WebhookEvent{},
	)
}

func (s *DataStore) Statistics(ctx context.Context) (model.Stats, error) {
	return statistics(getDB(ctx, s.db))
}

func (s *DataStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
