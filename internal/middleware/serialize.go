package middleware

import (
	"net/http"
	"sync"
)

// Serialize runs requests one at a time, so each request observes and
// mutates the stores without interleaving with another.
func Serialize() func(http.Handler) http.Handler {
	var mu sync.Mutex
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}
