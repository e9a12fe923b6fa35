package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"librarylending/internal/config"
	"librarylending/internal/models"
	"librarylending/internal/notify"
	"librarylending/internal/repositories"
	"librarylending/internal/testutil"
)

func TestOutboxDispatchesOnlyCommittedMessages(t *testing.T) {
	db := testutil.NewDB(t)
	queue := &testutil.RecordingQueue{}
	ob := notify.NewOutbox(repositories.NewOutboxRepository(db), queue, 10, testutil.NewLogger(t))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return ob.Enqueue(tx, notify.EventBorrowingCreated, map[string]string{"borrowing_id": "b1"})
	}))
	rolledBack := errors.New("rollback")
	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, ob.Enqueue(tx, notify.EventPaymentPaid, map[string]string{"payment_id": "p1"}))
		return rolledBack
	})
	require.ErrorIs(t, err, rolledBack)

	n, err := ob.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{notify.EventBorrowingCreated}, queue.Events())

	var payload map[string]string
	require.NoError(t, json.Unmarshal(queue.Messages[0].Payload, &payload))
	assert.Equal(t, "b1", payload["borrowing_id"])

	n, err = ob.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "dispatched messages are not sent twice")
}

func TestOutboxKeepsFailedMessagesForRetry(t *testing.T) {
	db := testutil.NewDB(t)
	queue := &testutil.RecordingQueue{Err: errors.New("redis down")}
	ob := notify.NewOutbox(repositories.NewOutboxRepository(db), queue, 10, testutil.NewLogger(t))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := ob.Enqueue(tx, notify.EventBorrowingCreated, map[string]int{"n": 1}); err != nil {
			return err
		}
		return ob.Enqueue(tx, notify.EventBorrowingReturned, map[string]int{"n": 2})
	}))

	_, err := ob.Dispatch(context.Background())
	require.Error(t, err)

	var first models.OutboxMessage
	require.NoError(t, db.Order("created_at ASC").First(&first).Error)
	assert.Equal(t, 1, first.Attempts)
	assert.Equal(t, "redis down", first.LastError)
	assert.Nil(t, first.DispatchedAt)

	queue.Err = nil
	n, err := ob.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{notify.EventBorrowingCreated, notify.EventBorrowingReturned}, queue.Events())
}

// rejectingQueue refuses one event and records the rest.
type rejectingQueue struct {
	*testutil.RecordingQueue
	event string
}

func (q rejectingQueue) Push(ctx context.Context, msg notify.Message) error {
	if msg.Event == q.event {
		return errors.New("payload rejected")
	}
	return q.RecordingQueue.Push(ctx, msg)
}

func TestOutboxParksMessageAfterMaxAttempts(t *testing.T) {
	db := testutil.NewDB(t)
	queue := rejectingQueue{RecordingQueue: &testutil.RecordingQueue{}, event: notify.EventFineRequested}
	ob := notify.NewOutbox(repositories.NewOutboxRepository(db), queue, 10, testutil.NewLogger(t)).WithMaxAttempts(3)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return ob.Enqueue(tx, notify.EventFineRequested, map[string]string{"payment_id": "p1"})
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return ob.Enqueue(tx, notify.EventBorrowingReturned, map[string]string{"borrowing_id": "b1"})
	}))

	for i := 0; i < 2; i++ {
		_, err := ob.Dispatch(context.Background())
		require.Error(t, err)
		assert.Empty(t, queue.Events(), "later messages wait behind the failing one")
	}

	n, err := ob.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{notify.EventBorrowingReturned}, queue.Events())

	var parked models.OutboxMessage
	require.NoError(t, db.Where("event = ?", notify.EventFineRequested).First(&parked).Error)
	assert.Equal(t, 3, parked.Attempts)
	assert.Equal(t, "payload rejected", parked.LastError)
	assert.Nil(t, parked.DispatchedAt)

	n, err = ob.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a parked message is not retried")
	assert.Len(t, queue.Events(), 1)
}

func TestOutboxRunStopsWithContext(t *testing.T) {
	db := testutil.NewDB(t)
	queue := &testutil.RecordingQueue{}
	ob := notify.NewOutbox(repositories.NewOutboxRepository(db), queue, 10, testutil.NewLogger(t))
	require.NoError(t, ob.Enqueue(db, notify.EventFineRequested, map[string]string{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ob.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return len(queue.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRedisQueuePush(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	q, err := notify.NewRedisQueue(context.Background(), config.RedisConfig{Addr: addr, QueueKey: "library:test:" + t.Name()}, testutil.NewLogger(t))
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Push(context.Background(), notify.Message{Event: notify.EventPaymentPaid, Payload: json.RawMessage(`{}`)}))
}

func TestRedisQueueRequiresAddress(t *testing.T) {
	_, err := notify.NewRedisQueue(context.Background(), config.RedisConfig{}, testutil.NewLogger(t))
	require.Error(t, err)
}
