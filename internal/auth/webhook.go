package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

const HeaderWebhookKey = "X-Webhook-Key"

// VerifyWebhookKey gates the HR intake endpoints on the shared key the HR
// system was issued. Constant-time compare.
func VerifyWebhookKey(key string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(HeaderWebhookKey)
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				logger.Warn("hr webhook rejected: invalid key", "remote_addr", r.RemoteAddr)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
