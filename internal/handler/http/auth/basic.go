package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"catalog/internal/handler/http/response"
)

// BasicAuth admits requests whose Basic credentials match one of the
// configured user/password pairs. A missing or unreadable Authorization
// header is answered with 401, wrong credentials with 403.
func BasicAuth(credentials map[string]string, l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := parseBasic(r.Header.Get("Authorization"))
			if !ok {
				l.Info("Rejecting request without usable basic credentials", zap.String("path", r.URL.Path))
				w.Header().Set("WWW-Authenticate", `Basic realm="import"`)
				response.JSON(w, http.StatusUnauthorized, response.Message{Message: "Unauthorized"})
				return
			}

			expected, known := credentials[user]
			if !known || subtle.ConstantTimeCompare([]byte(expected), []byte(pass)) != 1 {
				l.Info("Rejecting request with invalid credentials", zap.String("user", user), zap.String("path", r.URL.Path))
				response.JSON(w, http.StatusForbidden, response.Message{Message: "Forbidden"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseBasic(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	user, pass, found := strings.Cut(string(decoded), ":")
	if !found || user == "" || pass == "" {
		return "", "", false
	}
	return user, pass, true
}
