package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/database"
	"github.com/WilsonWong800686/yys-autommation/migrations"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSaveSession_InsertThenUpdate(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rec := &Record{Device: "127.0.0.1:16384", Module: "yuhun", StartedAt: start}
	if err := repo.SaveSession(ctx, rec); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if rec.ID == "" {
		t.Fatal("SaveSession() did not assign an ID")
	}

	rec.EndedAt = start.Add(time.Hour)
	rec.Elapsed = time.Hour
	rec.Taps = 420
	rec.Runs = 37
	rec.EndReason = "deadline"
	if err := repo.SaveSession(ctx, rec); err != nil {
		t.Fatalf("SaveSession(update) error = %v", err)
	}

	got, err := repo.GetSession(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Taps != 420 || got.Runs != 37 || got.Elapsed != time.Hour || got.EndReason != "deadline" {
		t.Errorf("GetSession() = %+v", got)
	}
	if !got.StartedAt.Equal(start) || !got.EndedAt.Equal(start.Add(time.Hour)) {
		t.Errorf("times = %v..%v, want %v..%v", got.StartedAt, got.EndedAt, start, start.Add(time.Hour))
	}
}

func TestSaveSession_Invalid(t *testing.T) {
	repo := setupRepo(t)
	if err := repo.SaveSession(context.Background(), &Record{Module: "yuhun"}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("SaveSession(no device) error = %v, want ErrInvalidRecord", err)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	repo := setupRepo(t)
	if _, err := repo.GetSession(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want ErrSessionNotFound", err)
	}
}

func TestListSessions(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, dev := range []string{"a", "b", "a"} {
		rec := &Record{Device: dev, Module: "yuhun", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.SaveSession(ctx, rec); err != nil {
			t.Fatalf("SaveSession() error = %v", err)
		}
	}

	all, err := repo.ListSessions(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(all) != 3 || !all[0].StartedAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("ListSessions() = %+v, want newest first", all)
	}

	onlyA, err := repo.ListSessions(ctx, Filter{Device: "a", Limit: 1})
	if err != nil {
		t.Fatalf("ListSessions(a) error = %v", err)
	}
	if len(onlyA) != 1 || onlyA[0].Device != "a" {
		t.Errorf("ListSessions(a, 1) = %+v", onlyA)
	}
}

func TestEvents(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	rec := &Record{Device: "a", Module: "yuhun"}
	if err := repo.SaveSession(ctx, rec); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, typ := range []string{"tap", "gate_armed", "abort"} {
		ev := &Event{SessionID: rec.ID, Type: typ, Control: "button10", CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := repo.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent(%s) error = %v", typ, err)
		}
	}

	events, err := repo.ListEvents(ctx, rec.ID, 2)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 || events[0].Type != "abort" || events[1].Type != "gate_armed" {
		t.Errorf("ListEvents() = %+v, want [abort gate_armed]", events)
	}
}

func TestAppendEvent_UnknownSession(t *testing.T) {
	repo := setupRepo(t)
	err := repo.AppendEvent(context.Background(), &Event{SessionID: "missing", Type: "tap"})
	if err == nil {
		t.Error("AppendEvent() for a missing session succeeded, want foreign key error")
	}
}

func TestAppendEvent_Invalid(t *testing.T) {
	repo := setupRepo(t)
	if err := repo.AppendEvent(context.Background(), &Event{Type: "tap"}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("AppendEvent() error = %v, want ErrInvalidRecord", err)
	}
}
