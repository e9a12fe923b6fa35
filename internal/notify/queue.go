package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"librarylending/internal/config"
	"librarylending/internal/platform/logger"
)

// Message is the envelope a worker pops off the queue.
type Message struct {
	ID        uuid.UUID       `json:"id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue accepts messages for an external consumer.
type Queue interface {
	Push(ctx context.Context, msg Message) error
}

// RedisQueue appends messages to a Redis list; workers BLPOP from the other end.
type RedisQueue struct {
	rdb *goredis.Client
	key string
	log *logger.Logger
}

func NewRedisQueue(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisQueue, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	key := cfg.QueueKey
	if key == "" {
		key = "library:notifications"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisQueue{rdb: rdb, key: key, log: log.With("service", "RedisQueue")}, nil
}

func (q *RedisQueue) Push(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", q.key, err)
	}
	q.log.Debug("notification queued", "event", msg.Event, "message_id", msg.ID)
	return nil
}

func (q *RedisQueue) Close() error {
	return q.rdb.Close()
}

// LogQueue only logs. It stands in when no Redis is configured.
type LogQueue struct {
	log *logger.Logger
}

func NewLogQueue(log *logger.Logger) *LogQueue {
	return &LogQueue{log: log.With("service", "LogQueue")}
}

func (q *LogQueue) Push(_ context.Context, msg Message) error {
	q.log.Info("notification", "event", msg.Event, "message_id", msg.ID, "payload", string(msg.Payload))
	return nil
}
