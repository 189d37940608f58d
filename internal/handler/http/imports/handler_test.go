package imports

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"
)

type stubPresigner struct {
	bucket, key string
	ttl         time.Duration
	err         error
}

func (p *stubPresigner) PresignUpload(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	p.bucket, p.key, p.ttl = bucket, key, ttl
	if p.err != nil {
		return "", p.err
	}
	return "https://storage.local/" + bucket + "/" + key + "?X-Amz-Signature=abc", nil
}

const authHeader = "Basic YWRtaW46VEVTVF9QQVNTV09SRA==" // admin:TEST_PASSWORD

func newTestRouter(t *testing.T, p Presigner, bucket string) http.Handler {
	r := chi.NewRouter()
	h := NewImportHandler(p, bucket, "uploaded/", time.Hour, zaptest.NewLogger(t))
	RegisterRoutes(r, h, map[string]string{"admin": "TEST_PASSWORD"}, zaptest.NewLogger(t))
	return r
}

func get(t *testing.T, h http.Handler, target string, withAuth bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if withAuth {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestAuthHeaderFixture(t *testing.T) {
	decoded, err := base64.StdEncoding.DecodeString(authHeader[len("Basic "):])
	if err != nil || string(decoded) != "admin:TEST_PASSWORD" {
		t.Fatalf("fixture out of date: %q %v", decoded, err)
	}
}

func TestGetImportURL(t *testing.T) {
	p := &stubPresigner{}
	rec, body := get(t, newTestRouter(t, p, "imports"), "/import?name=catalog.csv", true)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["key"] != "uploaded/catalog.csv" || body["bucketName"] != "imports" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["signedUrl"] != "https://storage.local/imports/uploaded/catalog.csv?X-Amz-Signature=abc" {
		t.Fatalf("unexpected signed url: %v", body["signedUrl"])
	}
	if p.ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", p.ttl)
	}
}

func TestGetImportURLErrors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		bucket   string
		auth     bool
		err      error
		want     int
		wantBody string
	}{
		{name: "unauthenticated", target: "/import?name=a.csv", bucket: "imports", want: http.StatusUnauthorized},
		{name: "missing name", target: "/import", bucket: "imports", auth: true, want: http.StatusBadRequest, wantBody: "Missing required query parameter: name"},
		{name: "path in name", target: "/import?name=../a.csv", bucket: "imports", auth: true, want: http.StatusBadRequest, wantBody: "Invalid file name"},
		{name: "no bucket", target: "/import?name=a.csv", auth: true, want: http.StatusInternalServerError, wantBody: "Server configuration error"},
		{name: "presign failure", target: "/import?name=a.csv", bucket: "imports", auth: true, err: errors.New("signing failed"), want: http.StatusInternalServerError, wantBody: "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := get(t, newTestRouter(t, &stubPresigner{err: tt.err}, tt.bucket), tt.target, tt.auth)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.wantBody != "" && body["error"] != tt.wantBody {
				t.Fatalf("expected error %q, got %v", tt.wantBody, body["error"])
			}
			if tt.err != nil && strings.Contains(rec.Body.String(), tt.err.Error()) {
				t.Fatalf("internal error leaked to client: %s", rec.Body.String())
			}
		})
	}
}
