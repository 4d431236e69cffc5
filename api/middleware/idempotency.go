package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/angelmondragon/mesa-backend/api/responses"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/mesa-backend/pkg/redis"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	replayedHeader        = "Idempotency-Replayed"
	maxIdempotencyKeyLen  = 128
	fallbackIdempotentTTL = 24 * time.Hour
	// orders and their cancellation keep keys for a week
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

// replayedHeaders are copied into the stored record and restored on replay.
var replayedHeaders = []string{"Content-Type", "Location", "X-Cart-Id"}

type idempotentRoute struct {
	method   string
	pattern  string // path.Match syntax, one "*" per id segment
	critical bool
}

var idempotentRoutes = []idempotentRoute{
	{method: http.MethodPost, pattern: "/api/v1/auth/register"},
	{method: http.MethodPost, pattern: "/api/v1/bookings"},
	{method: http.MethodPost, pattern: "/api/v1/bookings/*/cancel"},
	{method: http.MethodPatch, pattern: "/api/admin/v1/orders/*/status"},
	{method: http.MethodPatch, pattern: "/api/admin/v1/bookings/*/status"},
	{method: http.MethodPost, pattern: "/api/v1/orders", critical: true},
	{method: http.MethodPost, pattern: "/api/v1/carts/*/checkout", critical: true},
	{method: http.MethodPost, pattern: "/api/v1/orders/*/cancel", critical: true},
}

type idempotencyRecord struct {
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency replays the stored response of a repeated Idempotency-Key on
// idempotentRoutes. Requests without a key pass straight through. The record is
// scoped to the caller, so it must run after the auth middleware.
func Idempotency(store pkgredis.IdempotencyStore, defaultTTL time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if defaultTTL <= 0 {
		defaultTTL = fallbackIdempotentTTL
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ttl, ok := routeTTL(r.Method, r.URL.Path, defaultTTL)
			idemKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || idemKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(idemKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			requestHash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, idemKey)

			stored, err := store.Get(ctx, key)
			switch {
			case err != nil && !pkgredis.IsNil(err):
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			case err == nil && stored != "":
				var record idempotencyRecord
				if err := json.Unmarshal([]byte(stored), &record); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
					return
				}
				if record.RequestHash != requestHash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				record.replay(w)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// failed attempts stay retryable under the same key
			if capture.status >= http.StatusInternalServerError {
				return
			}
			payload, err := json.Marshal(capture.record(requestHash))
			if err == nil {
				_, err = store.SetNX(ctx, key, string(payload), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(logg.WithField(ctx, "idempotency_key", idemKey), "persist idempotency record", err)
			}
		})
	}
}

func routeTTL(method, urlPath string, defaultTTL time.Duration) (time.Duration, bool) {
	urlPath = strings.TrimSuffix(urlPath, "/")
	for _, route := range idempotentRoutes {
		if route.method != method {
			continue
		}
		if matched, _ := path.Match(route.pattern, urlPath); !matched {
			continue
		}
		if route.critical {
			return criticalIdempotencyTTL, true
		}
		return defaultTTL, true
	}
	return 0, false
}

func (rec idempotencyRecord) replay(w http.ResponseWriter) {
	for name, value := range rec.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(rec.Status)
	if decoded, err := base64.StdEncoding.DecodeString(rec.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) record(requestHash string) idempotencyRecord {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	rec := idempotencyRecord{
		Status:      status,
		Body:        base64.StdEncoding.EncodeToString(c.body.Bytes()),
		RequestHash: requestHash,
	}
	for _, name := range replayedHeaders {
		if value := c.Header().Get(name); value != "" {
			if rec.Headers == nil {
				rec.Headers = map[string]string{}
			}
			rec.Headers[name] = value
		}
	}
	return rec
}
