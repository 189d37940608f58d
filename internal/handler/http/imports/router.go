package imports

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"catalog/internal/handler/http/auth"
)

func RegisterRoutes(r chi.Router, h *ImportHandler, credentials map[string]string, l *zap.Logger) {
	r.With(auth.BasicAuth(credentials, l.With(zap.String("component", "BasicAuth")))).
		Get("/import", h.GetImportURL)
}
