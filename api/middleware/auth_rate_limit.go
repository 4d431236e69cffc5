package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/mesa-backend/api/responses"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
)

// maxCredentialBody bounds how much of a login or register body is inspected
// for the email counter.
const maxCredentialBody = 64 << 10

// WindowLimiter counts hits per scope inside a fixed window. The redis client
// satisfies it and namespaces the scope into its own key space.
type WindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy throttles a credential endpoint by caller address and by
// the email address in the request body.
type AuthRateLimitPolicy struct {
	surface    string
	window     time.Duration
	ipLimit    int64
	emailLimit int64
}

func NewAuthRateLimitPolicy(surface string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	surface = strings.ToLower(strings.TrimSpace(surface))
	if surface == "" {
		surface = "auth"
	}
	return AuthRateLimitPolicy{
		surface:    surface,
		window:     window,
		ipLimit:    int64(ipLimit),
		emailLimit: int64(emailLimit),
	}
}

type limitCheck struct {
	scope string
	limit int64
}

// checks lists the counters a request must pass, address first. Empty subjects
// and disabled limits are skipped.
func (p AuthRateLimitPolicy) checks(ip, emailDigest string) []limitCheck {
	if p.window <= 0 {
		return nil
	}
	var out []limitCheck
	if p.ipLimit > 0 && ip != "" {
		out = append(out, limitCheck{scope: p.surface + ":ip:" + ip, limit: p.ipLimit})
	}
	if p.emailLimit > 0 && emailDigest != "" {
		out = append(out, limitCheck{scope: p.surface + ":email:" + emailDigest, limit: p.emailLimit})
	}
	return out
}

func (p AuthRateLimitPolicy) wantsEmail() bool {
	return p.window > 0 && p.emailLimit > 0
}

// AuthRateLimit rejects requests with RATE_LIMIT_EXCEEDED once a counter in the
// policy is exhausted. Limiter failures let the request through.
func AuthRateLimit(policy AuthRateLimitPolicy, limiter WindowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || policy.window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var digest string
			if policy.wantsEmail() {
				digest = emailDigest(r)
			}

			for _, check := range policy.checks(remoteHost(r), digest) {
				allowed, _, err := limiter.FixedWindowAllow(ctx, check.scope, check.limit, policy.window)
				if err != nil {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{"surface": policy.surface}), "rate limiter unavailable: "+err.Error())
					}
					break
				}
				if !allowed {
					w.Header().Set("Retry-After", strconv.Itoa(int(policy.window.Seconds())))
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// remoteHost reads the address chi's RealIP middleware already resolved.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// emailDigest peeks at the JSON body for an email and restores the body for the
// next handler. The digest keeps raw addresses out of redis.
func emailDigest(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCredentialBody))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &payload) != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
