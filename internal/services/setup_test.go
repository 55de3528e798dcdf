package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/churchhub/churchhub-api/internal/audit"
	"github.com/churchhub/churchhub-api/internal/crypto"
	"github.com/churchhub/churchhub-api/internal/models"
	"github.com/churchhub/churchhub-api/internal/queue"
	"github.com/churchhub/churchhub-api/internal/usercache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// capturedJob is one Publish call observed by the fake publisher.
type capturedJob struct {
	Job     string
	Payload interface{}
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []capturedJob
}

var _ queue.Publisher = (*fakePublisher)(nil)

func (p *fakePublisher) Publish(_ context.Context, job string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, capturedJob{Job: job, Payload: payload})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []capturedJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]capturedJob, len(p.jobs))
	copy(out, p.jobs)
	return out
}

type testEnv struct {
	db       *gorm.DB
	codec    *crypto.Codec
	recorder *audit.Recorder
	jobs     *fakePublisher
	bookings *BookingService
	webhooks *WebhookService
	users    *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Booking{},
		&models.FormResponse{},
		&models.ContextSummary{},
		&models.AuditLog{},
	))

	codec, err := crypto.NewCodec(testKey)
	require.NoError(t, err)

	recorder := audit.New(db)
	jobs := &fakePublisher{}
	cache := usercache.New(nil, time.Minute)

	return &testEnv{
		db:       db,
		codec:    codec,
		recorder: recorder,
		jobs:     jobs,
		bookings: NewBookingService(db, codec, recorder, jobs),
		webhooks: NewWebhookService(db, codec, recorder, cache, jobs),
		users:    NewUserService(db, cache),
	}
}

func (e *testEnv) createUser(t *testing.T, username string) *models.User {
	t.Helper()
	user := models.User{
		Username: username,
		Email:    username + "@example.org",
		IsActive: true,
	}
	require.NoError(t, e.db.Create(&user).Error)
	return &user
}

func (e *testEnv) auditEntries(t *testing.T, action string) []models.AuditLog {
	t.Helper()
	var entries []models.AuditLog
	require.NoError(t, e.db.Where("action = ?", action).Order("created_at ASC").Find(&entries).Error)
	return entries
}
