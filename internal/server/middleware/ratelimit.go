package middleware

import (
	"context"
	nethttp "net/http"
	"strconv"
	"strings"

	"Meridian/internal/biz"
	pkglog "Meridian/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// KeyFunc derives the admission key from the incoming request.
type KeyFunc func(req *nethttp.Request) string

// ByClientIP keys admission on the resolved client address.
func ByClientIP() KeyFunc {
	return func(req *nethttp.Request) string {
		return extractClientIP(req)
	}
}

// RateLimitOption configures the RateLimit middleware.
type RateLimitOption func(*rateLimitOptions)

type rateLimitOptions struct {
	keyFn           KeyFunc
	onlyPrefixes    []string
	skipPrefixes    []string
	skipCrossRegion bool
}

// WithKeyFunc overrides the admission key derivation (default: client IP).
func WithKeyFunc(fn KeyFunc) RateLimitOption {
	return func(o *rateLimitOptions) { o.keyFn = fn }
}

// WithOnlyPrefixes restricts the limiter to paths under the given prefixes.
func WithOnlyPrefixes(prefixes ...string) RateLimitOption {
	return func(o *rateLimitOptions) { o.onlyPrefixes = prefixes }
}

// WithSkipPrefixes exempts paths under the given prefixes.
func WithSkipPrefixes(prefixes ...string) RateLimitOption {
	return func(o *rateLimitOptions) { o.skipPrefixes = prefixes }
}

// WithSkipCrossRegion exempts traffic tagged as coming from a peer region.
// Coordination traffic is already bounded by the tick intervals; throttling
// it would let an unrelated client burst knock out region health checks.
func WithSkipCrossRegion() RateLimitOption {
	return func(o *rateLimitOptions) { o.skipCrossRegion = true }
}

// RateLimit enforces an admission policy per client key. Exhausted budgets
// map to 429 with a Retry-After header and retry guidance in the error
// metadata; an unreachable admission store maps to 503, never to a silent
// grant.
func RateLimit(ctrl *biz.AdmissionController, logger *pkglog.LogHelper, opts ...RateLimitOption) middleware.Middleware {
	o := &rateLimitOptions{keyFn: ByClientIP()}
	for _, fn := range opts {
		fn(o)
	}

	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			tr, ok := transport.FromServerContext(ctx)
			if !ok {
				return handler(ctx, req)
			}
			ht, ok := tr.(http.Transporter)
			if !ok {
				return handler(ctx, req)
			}
			httpReq := ht.Request()

			if !o.applies(httpReq) {
				return handler(ctx, req)
			}

			key := o.keyFn(httpReq)
			if err := ctrl.Consume(ctx, key, 1); err != nil {
				if rle, ok := biz.AsRateLimitExceeded(err); ok {
					logger.RateLimit("request rejected",
						"policy", rle.Policy,
						"key", key,
						"path", httpReq.URL.Path,
						"retry_after_ms", rle.MsBeforeNext)
					// Retry-After is whole seconds, rounded up so clients
					// never retry inside the remaining window.
					retrySec := (rle.MsBeforeNext + 999) / 1000
					tr.ReplyHeader().Set("Retry-After", strconv.FormatInt(retrySec, 10))
					return nil, kerrors.New(nethttp.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", rle.Error()).
						WithMetadata(map[string]string{
							"policy":         rle.Policy,
							"retry_after_ms": strconv.FormatInt(rle.MsBeforeNext, 10),
						})
				}
				logger.Errorw("admission store unavailable", "error", err)
				return nil, kerrors.New(nethttp.StatusServiceUnavailable, "ADMISSION_UNAVAILABLE",
					"admission decision could not be made")
			}

			return handler(ctx, req)
		}
	}
}

func (o *rateLimitOptions) applies(req *nethttp.Request) bool {
	if o.skipCrossRegion && req.Header.Get(biz.HeaderCrossRegion) == "true" {
		return false
	}
	path := req.URL.Path
	for _, p := range o.skipPrefixes {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	if len(o.onlyPrefixes) == 0 {
		return true
	}
	for _, p := range o.onlyPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
