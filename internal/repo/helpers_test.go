package repo

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// newTestDB opens a per-test in-memory database with the full schema.
// A single connection keeps the shared-cache database alive and serialises
// writers the way a row lock would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
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
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedConversation(t *testing.T, db *gorm.DB, ws, id string) *domain.Conversation {
	t.Helper()
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID: id, WorkspaceID: ws, ContactID: "contact-" + id,
		TicketStatus: domain.TicketOpen, SLAStatus: "on_track",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return c
}

func seedMember(t *testing.T, db *gorm.DB, ws, team, member string, active bool, count int64, last *time.Time, created time.Time) *domain.TeamMember {
	t.Helper()
	m := &domain.TeamMember{
		ID: team + "-" + member, WorkspaceID: ws, TeamID: team, MemberID: member,
		IsActive: active, AssignedCount: count, LastAssignedAt: last, CreatedAt: created,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return m
}

func ptr[T any](v T) *T { return &v }
