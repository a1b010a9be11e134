package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/practiceserver/internal/models"
)

// SessionStore is the part of the protected store the cleaner needs.
type SessionStore interface {
	List(name string) ([]models.Record, error)
	Delete(name, id string) (models.Record, error)
}

// StartSessionCleaner removes sessions older than ttl every interval until
// ctx is done. A zero ttl disables the cleaner.
func StartSessionCleaner(
	ctx context.Context,
	store SessionStore,
	interval time.Duration,
	ttl time.Duration,
	log *zap.Logger,
) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := expireSessions(store, time.Now().Add(-ttl), log)
				if removed > 0 {
					log.Info("expired sessions removed", zap.Int("removed", removed))
				}
			}
		}
	}()
}

func expireSessions(store SessionStore, cutoff time.Time, log *zap.Logger) int {
	sessions, err := store.List(models.SessionsCollection)
	if err != nil {
		// No session was ever opened.
		return 0
	}
	limit := cutoff.UnixMilli()
	removed := 0
	for _, s := range sessions {
		created, ok := models.ToNumber(s[models.FieldCreatedOn])
		if !ok || int64(created) >= limit {
			continue
		}
		if _, err := store.Delete(models.SessionsCollection, s.ID()); err != nil {
			log.Error("failed to remove expired session", zap.String("id", s.ID()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}
