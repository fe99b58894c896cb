package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/http/middleware"
	"github.com/tbourn/go-wa-inbox/internal/provider"
	"github.com/tbourn/go-wa-inbox/internal/repo"
	"github.com/tbourn/go-wa-inbox/internal/services"
	"github.com/tbourn/go-wa-inbox/internal/webhook"
)

const testVerifyToken = "s3cret-verify"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// repoIdem is the repo-backed IdempotencyStore used by the tests.
type repoIdem struct{ db *gorm.DB }

func (s repoIdem) Lookup(ctx context.Context, ws, scope, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, ws, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

func (s repoIdem) Remember(ctx context.Context, ws, scope, key, resourceID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, ws, scope, key, resourceID, status, 24*time.Hour)
	return err
}

func (s repoIdem) exists(ctx context.Context, ws, scope, key string, now time.Time) (bool, error) {
	_, ok, err := s.Lookup(ctx, ws, scope, key, now)
	return ok, err
}

// env is a fully wired handler stack over one in-memory database.
type env struct {
	db     *gorm.DB
	sender *provider.Fake
	r      *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	fake := &provider.Fake{}

	mat := services.NewMaterializer(db)
	disp := services.NewDispatcher(db, fake, nil, mat)
	disp.BackoffBase = time.Second
	v, err := webhook.NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}

	idem := repoIdem{db: db}
	h := New(Deps{
		Intake:      mat,
		Decoder:     v,
		Inbox:       services.NewInbox(db),
		Routing:     services.NewRouter(db),
		Outbox:      disp,
		Campaigns:   services.NewCampaigns(db, disp, 100),
		Idempotency: idem,
		VerifyToken: testVerifyToken,
	})

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Identity(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idem.exists),
	)
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.ReceiveWebhook)

	api := r.Group("", middleware.RequireWorkspace())
	api.POST("/events", h.IngestEvent)
	api.GET("/conversations", h.ListConversations)
	api.GET("/conversations/:id/messages", h.ListMessages)
	api.GET("/conversations/:id/events", h.ListEvents)
	api.POST("/conversations/:id/read", h.MarkRead)
	api.POST("/conversations/:id/auto-assign", h.AutoAssign)
	api.POST("/conversations/:id/assign", h.Assign)
	api.PUT("/conversations/:id/category", h.SetCategory)
	api.POST("/conversations/:id/transfer", h.Transfer)
	api.POST("/conversations/:id/takeover", h.Takeover)
	api.DELETE("/conversations/:id/takeover", h.ReleaseTakeover)
	api.POST("/outbox", h.Enqueue)
	api.GET("/outbox", h.ListOutbox)
	api.POST("/outbox/:id/drain", h.Drain)
	api.POST("/outbox/:id/requeue", h.Requeue)
	api.POST("/campaigns", h.CreateCampaign)
	api.GET("/campaigns/:id/status", h.CampaignStatus)
	api.POST("/campaigns/:id/launch", h.LaunchCampaign)

	return &env{db: db, sender: fake, r: r}
}

// do sends a request as ws (when non-empty) with optional extra headers
// given as name/value pairs.
func (e *env) do(t *testing.T, method, path, ws string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if rdr.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if ws != "" {
		req.Header.Set(middleware.HeaderWorkspaceID, ws)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d; want %d (body=%s)", w.Code, status, w.Body.String())
	}
	if er := decode[ErrorResponse](t, w); er.Code != code {
		t.Fatalf("code = %q; want %q", er.Code, code)
	}
}

func seedSettings(t *testing.T, db *gorm.DB, ws string, mut func(*domain.WorkspaceSettings)) {
	t.Helper()
	s := domain.DefaultWorkspaceSettings(ws)
	if mut != nil {
		mut(&s)
	}
	if err := db.Save(&s).Error; err != nil {
		t.Fatalf("save settings: %v", err)
	}
}

func seedTeam(t *testing.T, db *gorm.DB, ws, id string, isDefault bool, members ...string) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Create(&domain.Team{ID: id, WorkspaceID: ws, Name: id, IsDefault: isDefault, CreatedAt: now}).Error; err != nil {
		t.Fatalf("seed team: %v", err)
	}
	for i, m := range members {
		tm := &domain.TeamMember{
			ID: id + "-" + m, WorkspaceID: ws, TeamID: id, MemberID: m,
			UserRef: "user-" + m, IsActive: true, CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := db.Create(tm).Error; err != nil {
			t.Fatalf("seed member: %v", err)
		}
	}
}

func seedConversation(t *testing.T, db *gorm.DB, ws, id string, team *string) {
	t.Helper()
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID: id, WorkspaceID: ws, ContactID: "contact-" + id, TeamID: team,
		TicketStatus: domain.TicketOpen, SLAStatus: "on_track",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
