package middleware

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"
)

// Throttle delay bounds.
const (
	MinThrottleDelay = 500 * time.Millisecond
	MaxThrottleDelay = 1000 * time.Millisecond
)

// Switch reports whether throttling is on.
type Switch interface {
	Enabled(name string) bool
}

// Throttle delays a request by a random 500-1000ms while the named toggle is
// enabled. The delay ends early when the client goes away.
func Throttle(toggles Switch, flag string) func(http.Handler) http.Handler {
	return throttle(toggles, flag, randomDelay)
}

func randomDelay() time.Duration {
	return MinThrottleDelay + rand.N(MaxThrottleDelay-MinThrottleDelay)
}

func throttle(toggles Switch, flag string, delay func() time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if toggles.Enabled(flag) {
				if err := sleep(r.Context(), delay()); err != nil {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
