// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"librarylending/internal/checkout"
	"librarylending/internal/config"
	"librarylending/internal/database"
	"librarylending/internal/models"
	"librarylending/internal/notify"
	"librarylending/internal/platform/logger"
)

// NewDB opens a private in-memory sqlite database with the production schema.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_foreign_keys=1", name, uuid.NewString())

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", URL: dsn, MaxIdleConns: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func NewLogger(t testing.TB) *logger.Logger {
	return logger.FromZap(zaptest.NewLogger(t))
}

// SeedBook inserts a book with the given inventory and daily fee.
func SeedBook(t testing.TB, db *gorm.DB, inventory int, dailyFee string) *models.Book {
	t.Helper()
	b := &models.Book{
		Title:     "The Left Hand of Darkness",
		Author:    "Ursula K. Le Guin",
		Cover:     models.CoverSoft,
		Inventory: inventory,
		DailyFee:  decimal.RequireFromString(dailyFee),
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

// ReloadBook reads the book back from the database.
func ReloadBook(t testing.TB, db *gorm.DB, id uuid.UUID) *models.Book {
	t.Helper()
	var b models.Book
	require.NoError(t, db.First(&b, "id = ?", id).Error)
	return &b
}

// FakeProvider is an in-memory checkout provider.
type FakeProvider struct {
	mu       sync.Mutex
	Requests []checkout.SessionRequest
	Err      error
	seq      int
}

var ErrProviderDown = errors.New("provider unavailable")

func (p *FakeProvider) CreateSession(_ context.Context, req checkout.SessionRequest) (*checkout.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	p.seq++
	id := fmt.Sprintf("cs_test_%03d", p.seq)
	return &checkout.ProviderSession{
		ID:          id,
		URL:         "https://checkout.example.com/pay/" + id,
		AmountTotal: req.AmountMinor,
	}, nil
}

func (p *FakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

func (p *FakeProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

// RecordingQueue keeps pushed notifications in memory.
type RecordingQueue struct {
	mu       sync.Mutex
	Messages []notify.Message
	Err      error
}

func (q *RecordingQueue) Push(_ context.Context, msg notify.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.Messages = append(q.Messages, msg)
	return nil
}

func (q *RecordingQueue) Events() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.Messages))
	for _, m := range q.Messages {
		out = append(out, m.Event)
	}
	return out
}
