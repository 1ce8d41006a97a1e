package identity

import (
	"encoding/json"
	"net/http"
	"strings"
)

// publicPaths never require identity (spec §4.1).
var publicPaths = map[string]bool{
	"/":             true,
	"/health":       true,
	"/ok":           true,
	"/info":         true,
	"/openapi.json": true,
	"/metrics":      true,
	"/docs":         true,
}

func isPublic(path string) bool {
	if publicPaths[path] {
		return true
	}
	return strings.HasPrefix(path, "/metrics/")
}

// Middleware verifies the Authorization header on every non-public path
// and attaches the resulting caller identity to the request context. A
// nil verifier puts the service in dev mode: every caller becomes
// Anonymous and no request is rejected.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if verifier == nil {
				next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), Anonymous)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "Authorization header missing")
				return
			}
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				writeUnauthorized(w, "Authorization header malformed")
				return
			}

			callerID, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), callerID)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
