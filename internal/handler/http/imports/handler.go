package imports

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"catalog/internal/handler/http/response"
)

type Presigner interface {
	PresignUpload(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

type ImportHandler struct {
	presigner      Presigner
	bucket         string
	incomingPrefix string
	ttl            time.Duration
	logger         *zap.Logger
}

func NewImportHandler(p Presigner, bucket, incomingPrefix string, ttl time.Duration, l *zap.Logger) *ImportHandler {
	return &ImportHandler{
		presigner:      p,
		bucket:         bucket,
		incomingPrefix: incomingPrefix,
		ttl:            ttl,
		logger:         l,
	}
}

type signedURLResponse struct {
	SignedURL  string `json:"signedUrl"`
	Key        string `json:"key"`
	BucketName string `json:"bucketName"`
}

// GetImportURL issues a presigned PUT URL for <incoming prefix><name>.
func (h *ImportHandler) GetImportURL(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		response.JSON(w, http.StatusBadRequest, response.Error{Error: "Missing required query parameter: name"})
		return
	}
	if strings.Contains(name, "/") || name == "." || name == ".." {
		response.JSON(w, http.StatusBadRequest, response.Error{Error: "Invalid file name"})
		return
	}
	if h.bucket == "" {
		h.logger.Error("Import bucket is not configured")
		response.JSON(w, http.StatusInternalServerError, response.Error{Error: "Server configuration error"})
		return
	}

	key := h.incomingPrefix + name
	signedURL, err := h.presigner.PresignUpload(r.Context(), h.bucket, key, h.ttl)
	if err != nil {
		h.logger.Error("Error generating signed URL", zap.String("bucket", h.bucket), zap.String("key", key), zap.Error(err))
		response.JSON(w, http.StatusInternalServerError, response.Error{Error: "Internal server error"})
		return
	}

	h.logger.Info("Issued signed upload URL", zap.String("bucket", h.bucket), zap.String("key", key))
	response.JSON(w, http.StatusOK, signedURLResponse{SignedURL: signedURL, Key: key, BucketName: h.bucket})
}
