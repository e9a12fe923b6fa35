package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"librarylending/internal/checkout"
	"librarylending/internal/models"
	"librarylending/internal/notify"
	"librarylending/internal/repositories"
	"librarylending/internal/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now ticks a millisecond per call so rows created in sequence keep their order.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) AddDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}

type fixture struct {
	db       *gorm.DB
	provider *testutil.FakeProvider
	queue    *testutil.RecordingQueue
	clock    *fakeClock

	catalog    CatalogService
	borrowings BorrowingService
	payments   PaymentService

	ctx   context.Context
	staff models.Actor
	alice models.Actor
	bob   models.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	log := testutil.NewLogger(t)
	provider := &testutil.FakeProvider{}
	queue := &testutil.RecordingQueue{}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)}

	bookRepo := repositories.NewBookRepository(db)
	borrowingRepo := repositories.NewBorrowingRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	outbox := notify.NewOutbox(repositories.NewOutboxRepository(db), queue, 50, log)
	orchestrator := checkout.NewOrchestrator(provider, "http://library.test", 2, log)

	return &fixture{
		db:         db,
		provider:   provider,
		queue:      queue,
		clock:      clock,
		catalog:    NewCatalogService(db, bookRepo, borrowingRepo, log),
		borrowings: NewBorrowingService(db, bookRepo, borrowingRepo, paymentRepo, orchestrator, outbox, log, clock.Now),
		payments:   NewPaymentService(db, bookRepo, borrowingRepo, paymentRepo, outbox, log, clock.Now),
		ctx:        context.Background(),
		staff:      models.Actor{UserID: uuid.New(), IsStaff: true},
		alice:      models.Actor{UserID: uuid.New()},
		bob:        models.Actor{UserID: uuid.New()},
	}
}

func (f *fixture) today() time.Time {
	return models.DateOf(f.clock.Now())
}

func (f *fixture) inventory(t *testing.T, bookID uuid.UUID) int {
	t.Helper()
	return testutil.ReloadBook(t, f.db, bookID).Inventory
}

func (f *fixture) borrowing(t *testing.T, id uuid.UUID) *models.Borrowing {
	t.Helper()
	var b models.Borrowing
	require.NoError(t, f.db.First(&b, "id = ?", id).Error)
	return &b
}

func (f *fixture) payment(t *testing.T, id uuid.UUID) *models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, f.db.First(&p, "id = ?", id).Error)
	return &p
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) borrow(t *testing.T, actor models.Actor, bookID uuid.UUID, days int) *BorrowResult {
	t.Helper()
	res, err := f.borrowings.Borrow(f.ctx, actor, bookID, f.today().AddDate(0, 0, days))
	require.NoError(t, err)
	return res
}
