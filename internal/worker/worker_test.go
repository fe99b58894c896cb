package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/provider"
	"github.com/tbourn/go-wa-inbox/internal/queue"
	"github.com/tbourn/go-wa-inbox/internal/repo"
	"github.com/tbourn/go-wa-inbox/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
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

func newDispatcher(t *testing.T, notifier services.Notifier, fail func(int, provider.SendRequest) error) (*services.Dispatcher, *provider.Fake) {
	t.Helper()
	db := newTestDB(t)
	fake := &provider.Fake{Fail: fail}
	d := services.NewDispatcher(db, fake, notifier, services.NewMaterializer(db))
	d.BackoffBase = time.Hour
	return d, fake
}

func enqueue(t *testing.T, d *services.Dispatcher) *domain.OutboxMessage {
	t.Helper()
	m, err := d.Enqueue(context.Background(), "ws1", services.EnqueueInput{
		ToPhone:     "+14155550100",
		MessageType: "text",
		Payload:     []byte(`{"body":"hello"}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return m
}

func status(t *testing.T, d *services.Dispatcher, id string) *domain.OutboxMessage {
	t.Helper()
	m, err := d.Get(context.Background(), "ws1", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return m
}

func TestHandleJob_SendsOnceAndIgnoresStaleHints(t *testing.T) {
	d, fake := newDispatcher(t, nil, nil)
	w := &Worker{Dispatcher: d}
	ctx := context.Background()
	m := enqueue(t, d)

	job := queue.Job{WorkspaceID: "ws1", OutboxID: m.ID}
	if err := w.HandleJob(ctx, job); err != nil {
		t.Fatalf("first job: %v", err)
	}
	if err := w.HandleJob(ctx, job); err != nil {
		t.Fatalf("duplicate hint: %v", err)
	}
	if err := w.HandleJob(ctx, queue.Job{WorkspaceID: "ws1", OutboxID: "missing"}); err != nil {
		t.Fatalf("unknown row: %v", err)
	}
	if fake.Calls() != 1 {
		t.Fatalf("provider calls = %d; want 1", fake.Calls())
	}
	if got := status(t, d, m.ID); got.Status != domain.StatusSent {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestHandleJob_SendFailureIsRecordedNotReturned(t *testing.T) {
	d, _ := newDispatcher(t, nil, func(int, provider.SendRequest) error {
		return &provider.Error{Status: 500, Message: "boom"}
	})
	w := &Worker{Dispatcher: d}
	m := enqueue(t, d)

	if err := w.HandleJob(context.Background(), queue.Job{WorkspaceID: "ws1", OutboxID: m.ID}); err != nil {
		t.Fatalf("job: %v", err)
	}
	got := status(t, d, m.ID)
	if got.Status != domain.StatusQueued || got.Attempts != 1 || got.LastError == nil {
		t.Fatalf("row = %+v", got)
	}
}

func TestSweep_DrainsDueRows(t *testing.T) {
	d, fake := newDispatcher(t, nil, nil)
	a := enqueue(t, d)
	b := enqueue(t, d)

	w := &Worker{Dispatcher: d, Campaigns: services.NewCampaigns(d.DB, d, 10), Batch: 10, ReclaimAfter: time.Minute}
	w.Sweep(context.Background())

	if fake.Calls() != 2 {
		t.Fatalf("provider calls = %d; want 2", fake.Calls())
	}
	for _, id := range []string{a.ID, b.ID} {
		if got := status(t, d, id); got.Status != domain.StatusSent {
			t.Fatalf("%s status = %s", id, got.Status)
		}
	}
}

func TestRun_ConsumesNotifications(t *testing.T) {
	q := queue.NewMemory(8)
	d, fake := newDispatcher(t, q, nil)
	w := &Worker{Dispatcher: d, Queue: q, Interval: time.Hour, Batch: 10}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	m := enqueue(t, d)
	deadline := time.Now().Add(3 * time.Second)
	for fake.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}

	if fake.Calls() != 1 {
		t.Fatalf("provider calls = %d; want 1", fake.Calls())
	}
	if got := status(t, d, m.ID); got.Status != domain.StatusSent {
		t.Fatalf("status = %s", got.Status)
	}
}

type brokenConsumer struct{}

func (brokenConsumer) Consume(context.Context, queue.Handler) error {
	return errors.New("channel closed")
}

func TestRun_ReturnsConsumerFailure(t *testing.T) {
	d, _ := newDispatcher(t, nil, nil)
	w := &Worker{Dispatcher: d, Queue: brokenConsumer{}, Interval: time.Hour}

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "channel closed") {
			t.Fatalf("run err = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop on consumer failure")
	}
}
