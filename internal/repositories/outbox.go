package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"librarylending/internal/models"
)

type OutboxRepository interface {
	Create(db *gorm.DB, msg *models.OutboxMessage) error
	ListPending(db *gorm.DB, limit, maxAttempts int) ([]models.OutboxMessage, error)
	MarkDispatched(db *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailure(db *gorm.DB, id uuid.UUID, cause string) error
}

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Create(db *gorm.DB, msg *models.OutboxMessage) error {
	if db == nil {
		db = r.db
	}
	return db.Create(msg).Error
}

// ListPending returns undispatched messages oldest first, skipping those
// that already failed maxAttempts times.
func (r *outboxRepository) ListPending(db *gorm.DB, limit, maxAttempts int) ([]models.OutboxMessage, error) {
	if db == nil {
		db = r.db
	}
	var out []models.OutboxMessage
	err := Page{Limit: limit}.apply(
		db.Where("dispatched_at IS NULL AND attempts < ?", maxAttempts).Order("created_at ASC, id ASC"),
	).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkDispatched stamps a message as delivered; it is a no-op for one already stamped.
func (r *outboxRepository) MarkDispatched(db *gorm.DB, id uuid.UUID, at time.Time) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.OutboxMessage{}).
		Where("id = ? AND dispatched_at IS NULL", id).
		Update("dispatched_at", at.UTC()).Error
}

func (r *outboxRepository) RecordFailure(db *gorm.DB, id uuid.UUID, cause string) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause,
		}).Error
}
