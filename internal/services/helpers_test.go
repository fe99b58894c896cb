package services

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
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

// clock is a settable test clock.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func saveSettings(t *testing.T, db *gorm.DB, ws string, mut func(*domain.WorkspaceSettings)) domain.WorkspaceSettings {
	t.Helper()
	s := domain.DefaultWorkspaceSettings(ws)
	if mut != nil {
		mut(&s)
	}
	if err := db.Save(&s).Error; err != nil {
		t.Fatalf("save settings: %v", err)
	}
	return s
}

func seedTeam(t *testing.T, db *gorm.DB, ws, id string, isDefault bool) {
	t.Helper()
	tm := &domain.Team{ID: id, WorkspaceID: ws, Name: id, IsDefault: isDefault, CreatedAt: time.Now().UTC()}
	if err := db.Create(tm).Error; err != nil {
		t.Fatalf("seed team: %v", err)
	}
}

func seedMember(t *testing.T, db *gorm.DB, ws, team, member string, active bool, count int64, created time.Time) {
	t.Helper()
	m := &domain.TeamMember{
		ID: team + "-" + member, WorkspaceID: ws, TeamID: team, MemberID: member,
		UserRef: "user-" + member, IsActive: active, AssignedCount: count, CreatedAt: created,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
}

func seedConversation(t *testing.T, db *gorm.DB, ws, id string, team *string) *domain.Conversation {
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
	return c
}

func seedContact(t *testing.T, db *gorm.DB, ws, id, phone, tags string, optedIn, optedOut bool, created time.Time) {
	t.Helper()
	c := &domain.Contact{
		ID: id, WorkspaceID: ws, Phone: phone, Tags: tags,
		OptedIn: optedIn, OptedOut: optedOut, CreatedAt: created, UpdatedAt: created,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed contact: %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
