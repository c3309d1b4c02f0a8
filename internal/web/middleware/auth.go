package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/inventory/internal/logging"
)

// APIKeyAuth checks the X-API-Key header against keys when required is
// true. With required false every request passes through.
func APIKeyAuth(required bool, keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !required {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			switch {
			case apiKey == "":
				logging.FromContext(r.Context()).Warn("auth: missing API key", "path", r.URL.Path)
				deny(w, http.StatusUnauthorized, "Clé API manquante", "AUTH001")
			case !isValidAPIKey(apiKey, keys):
				logging.FromContext(r.Context()).Warn("auth: invalid API key", "path", r.URL.Path)
				deny(w, http.StatusForbidden, "Clé API invalide", "AUTH002")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func deny(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   message,
		"message": message,
		"code":    code,
	})
}

// isValidAPIKey compares against every key in constant time.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}
