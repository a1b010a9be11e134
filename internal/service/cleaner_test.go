package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atinyakov/practiceserver/internal/models"
	"github.com/atinyakov/practiceserver/internal/storage"
)

func TestExpireSessions(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	store := storage.New(storage.WithClock(func() time.Time { return clock }))

	old, err := store.Add(models.SessionsCollection, models.Record{"userId": "u1"})
	if err != nil {
		t.Fatal(err)
	}
	clock = now.Add(2 * time.Hour)
	fresh, err := store.Add(models.SessionsCollection, models.Record{"userId": "u2"})
	if err != nil {
		t.Fatal(err)
	}

	removed := expireSessions(store, now.Add(time.Hour), zap.NewNop())
	if removed != 1 {
		t.Fatalf("removed = %d; want 1", removed)
	}
	if _, err := store.Get(models.SessionsCollection, old.ID()); !storage.IsNotFound(err) {
		t.Errorf("old session should be gone, got %v", err)
	}
	if _, err := store.Get(models.SessionsCollection, fresh.ID()); err != nil {
		t.Errorf("fresh session should stay: %v", err)
	}
}

func TestExpireSessions_NoCollection(t *testing.T) {
	if removed := expireSessions(storage.New(), time.Now(), zap.NewNop()); removed != 0 {
		t.Errorf("removed = %d; want 0", removed)
	}
}

type failingSessions struct {
	deletes atomic.Int32
}

func (f *failingSessions) List(string) ([]models.Record, error) {
	return []models.Record{{models.FieldID: "s1", models.FieldCreatedOn: float64(1)}}, nil
}

func (f *failingSessions) Delete(string, string) (models.Record, error) {
	f.deletes.Add(1)
	return nil, errors.New("delete failed")
}

func TestStartSessionCleaner_ErrorLogged(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(&buf),
		zapcore.ErrorLevel,
	)
	logger := zap.New(core)

	store := &failingSessions{}
	ctx, cancel := context.WithCancel(context.Background())
	StartSessionCleaner(ctx, store, 10*time.Millisecond, time.Minute, logger)

	deadline := time.Now().Add(2 * time.Second)
	for store.deletes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	time.Sleep(20 * time.Millisecond)

	if store.deletes.Load() == 0 {
		t.Fatal("cleaner never ran")
	}
	if !strings.Contains(buf.String(), "failed to remove expired session") {
		t.Errorf("expected error log, got %q", buf.String())
	}
}

func TestStartSessionCleaner_DisabledWithoutTTL(t *testing.T) {
	store := &failingSessions{}
	StartSessionCleaner(context.Background(), store, time.Millisecond, 0, zap.NewNop())
	time.Sleep(20 * time.Millisecond)
	if store.deletes.Load() != 0 {
		t.Error("cleaner should not run with zero ttl")
	}
}
