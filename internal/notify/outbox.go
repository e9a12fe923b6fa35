package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"librarylending/internal/models"
	"librarylending/internal/platform/logger"
	"librarylending/internal/repositories"
)

const (
	EventBorrowingCreated  = "borrowing.created"
	EventBorrowingReturned = "borrowing.returned"
	EventFineRequested     = "fine.requested"
	EventPaymentPaid       = "payment.paid"
	EventRefundDue         = "payment.refund_due"
)

// DefaultMaxAttempts is how often a message may fail before it is parked.
const DefaultMaxAttempts = 10

// Outbox records notifications inside the caller's transaction and pushes
// them to the Queue once that transaction has committed. Delivery is at
// least once: a crash between Push and MarkDispatched repeats the message.
type Outbox struct {
	repo        repositories.OutboxRepository
	queue       Queue
	batch       int
	maxAttempts int
	log         *logger.Logger
	now         func() time.Time

	mu sync.Mutex
}

func NewOutbox(repo repositories.OutboxRepository, queue Queue, batch int, log *logger.Logger) *Outbox {
	if batch <= 0 {
		batch = 100
	}
	return &Outbox{
		repo:        repo,
		queue:       queue,
		batch:       batch,
		maxAttempts: DefaultMaxAttempts,
		log:         log.With("service", "Outbox"),
		now:         time.Now,
	}
}

// WithMaxAttempts sets how many failed pushes park a message. Parked rows stay
// in the table with their last error and are no longer retried.
func (o *Outbox) WithMaxAttempts(n int) *Outbox {
	if n > 0 {
		o.maxAttempts = n
	}
	return o
}

// Enqueue stores a message in tx. Nothing leaves the process until Dispatch.
func (o *Outbox) Enqueue(tx *gorm.DB, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	msg := &models.OutboxMessage{
		Event:     event,
		Payload:   datatypes.JSON(raw),
		CreatedAt: o.now().UTC(),
	}
	if err := o.repo.Create(tx, msg); err != nil {
		return fmt.Errorf("store %s notification: %w", event, err)
	}
	return nil
}

// Dispatch pushes pending messages in creation order and stops at the first
// failure so later messages never overtake an earlier one. A message whose
// failure is its last allowed attempt is parked and skipped instead.
func (o *Outbox) Dispatch(ctx context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending, err := o.repo.ListPending(nil, o.batch, o.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("list pending notifications: %w", err)
	}
	sent := 0
	for _, m := range pending {
		msg := Message{ID: m.ID, Event: m.Event, Payload: json.RawMessage(m.Payload), CreatedAt: m.CreatedAt}
		if err := o.queue.Push(ctx, msg); err != nil {
			if recErr := o.repo.RecordFailure(nil, m.ID, err.Error()); recErr != nil {
				o.log.Error("record notification failure", "message_id", m.ID, "error", recErr)
				return sent, fmt.Errorf("push %s: %w", m.Event, err)
			}
			if m.Attempts+1 >= o.maxAttempts {
				o.log.Error("notification parked after repeated failures",
					"message_id", m.ID, "event", m.Event, "attempts", m.Attempts+1, "error", err)
				continue
			}
			return sent, fmt.Errorf("push %s: %w", m.Event, err)
		}
		if err := o.repo.MarkDispatched(nil, m.ID, o.now()); err != nil {
			return sent, fmt.Errorf("mark %s dispatched: %w", m.ID, err)
		}
		sent++
	}
	return sent, nil
}

// Flush dispatches after a commit. Failures are logged and left for Run to retry.
func (o *Outbox) Flush(ctx context.Context) {
	n, err := o.Dispatch(ctx)
	if err != nil {
		o.log.Warn("notification dispatch deferred", "sent", n, "error", err)
		return
	}
	if n > 0 {
		o.log.Debug("notifications dispatched", "count", n)
	}
}

// Run re-drives undelivered messages every interval until ctx is done.
func (o *Outbox) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	o.log.Info("outbox relay started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			o.log.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			o.Flush(ctx)
		}
	}
}
