package handlers_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/churchhub/churchhub-api/internal/audit"
	"github.com/churchhub/churchhub-api/internal/config"
	"github.com/churchhub/churchhub-api/internal/crypto"
	"github.com/churchhub/churchhub-api/internal/database"
	"github.com/churchhub/churchhub-api/internal/handlers"
	"github.com/churchhub/churchhub-api/internal/models"
	"github.com/churchhub/churchhub-api/internal/queue"
	"github.com/churchhub/churchhub-api/internal/routes"
	"github.com/churchhub/churchhub-api/internal/services"
	"github.com/churchhub/churchhub-api/internal/usercache"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testJWTSecret     = "test-jwt-secret"
	testWebhookSecret = "test-webhook-secret"
	testAdminToken    = "test-admin-token"
)

type testApp struct {
	app  *fiber.App
	db   *gorm.DB
	cfg  *config.Config
	jobs *capturePublisher
}

// capturePublisher records published jobs for assertions.
type capturePublisher struct {
	mu   sync.Mutex
	jobs []string
}

var _ queue.Publisher = (*capturePublisher)(nil)

func (p *capturePublisher) Publish(_ context.Context, job string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.jobs))
	copy(out, p.jobs)
	return out
}

func newTestApp(t *testing.T) *testApp {
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
	database.DB = db

	cfg := &config.Config{
		JWTSecret:        testJWTSecret,
		EncryptionKey:    testEncryptionKey,
		CalWebhookSecret: testWebhookSecret,
		AdminToken:       testAdminToken,
		CORSOrigins:      "*",
	}

	codec, err := crypto.NewCodec(cfg.EncryptionKey)
	require.NoError(t, err)

	recorder := audit.New(db)
	cache := usercache.New(nil, time.Minute)
	jobs := &capturePublisher{}

	bookingService := services.NewBookingService(db, codec, recorder, jobs)
	webhookService := services.NewWebhookService(db, codec, recorder, cache, jobs)
	userService := services.NewUserService(db, cache)

	app := fiber.New()
	routes.Setup(app, cfg,
		handlers.NewBookingHandler(bookingService),
		handlers.NewWebhookHandler(webhookService, cfg),
		handlers.NewAdminHandler(userService, recorder, jobs),
		handlers.NewHealthHandler(),
	)

	return &testApp{app: app, db: db, cfg: cfg, jobs: jobs}
}

func (ta *testApp) createUser(t *testing.T, username string) *models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.org", IsActive: true}
	require.NoError(t, ta.db.Create(&user).Error)
	return &user
}

func tokenFor(t *testing.T, userID uuid.UUID, email string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (ta *testApp) request(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (ta *testApp) signedWebhook(t *testing.T, path string, payload interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(raw)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cal-Signature-256", hex.EncodeToString(mac.Sum(nil)))
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
