package middleware

import "net/http"

// CORS adds Access-Control-Allow-Origin to every response and answers
// OPTIONS requests itself, so preflights never reach identity or handlers.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Credentials", "false")
			h.Set("Access-Control-Max-Age", "86400")
			h.Set("Access-Control-Allow-Headers", "X-Requested-With, X-HTTP-Method-Override, Content-Type, Accept, X-Authorization, X-Admin")
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
