package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// AuthConfig holds configuration for the API-key auth middleware.
type AuthConfig struct {
	// Enabled controls whether authentication is enforced at all.
	Enabled bool

	// APIKeys is the set of valid keys. Agents and operators share the
	// same key space.
	APIKeys []string

	// Logger is used for logging auth failures. May be nil.
	Logger *slog.Logger
}

func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled: false,
		APIKeys: nil,
	}
}

// Auth returns a middleware that enforces API-key authentication.
//
// Keys are accepted from either "Authorization: Bearer <key>" or the
// "X-API-Key" header. When no keys are configured and auth is enabled,
// every request is rejected.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := extractKey(r)
			if key == "" {
				logUnauthorized(cfg.Logger, r, "missing API key")
				writeAuthError(w, "authentication required")
				return
			}
			if !isValidKey(key, cfg.APIKeys) {
				logUnauthorized(cfg.Logger, r, "invalid API key")
				writeAuthError(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractKey reads the API key from the Authorization or X-API-Key header.
// Returns an empty string if neither is present or the bearer form is
// malformed.
func extractKey(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func isValidKey(key string, validKeys []string) bool {
	for _, k := range validKeys {
		if k == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
			return true
		}
	}
	return false
}

func logUnauthorized(logger *slog.Logger, r *http.Request, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("auth rejected",
		slog.String("reason", reason),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="HomelabCmd API"`)
	w.WriteHeader(http.StatusUnauthorized)

	resp := map[string]any{
		"success": false,
		"error": map[string]any{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}
