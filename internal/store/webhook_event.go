package store

import (
	"context"
	"errors"

	"github.com/shovel-house/shovel-api/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookEvent interface {
	Processed(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id, eventType string) error
}

type WebhookEventStore struct {
	db *gorm.DB
}

// Make sure we conform to WebhookEvent interface
var _ WebhookEvent = (*WebhookEventStore)(nil)

func NewWebhookEventStore(db *gorm.DB) WebhookEvent {
	return &WebhookEventStore{db: db}
}

func (w *WebhookEventStore) Processed(ctx context.Context, id string) (bool, error) {
	var event model.WebhookEvent
	err := getDB(ctx, w.db).First(&event, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkProcessed is idempotent: recording the same event twice is not an error.
func (w *WebhookEventStore) MarkProcessed(ctx context.Context, id, eventType string) error {
	return getDB(ctx, w.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.WebhookEvent{ID: id, Type: eventType}).Error
}
