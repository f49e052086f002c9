package middleware

import (
	"context"
	nethttp "net/http"
	"strings"
	"time"

	pkglog "Meridian/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Logging records one line per HTTP request with method, path, status and
// duration, and flags slow requests. The request ID comes from the tracking
// context installed by Source.
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method string
				path   string
				ip     string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}
					ip = extractClientIP(httpReq)
				}
			}

			reply, err := handler(ctx, req)

			durationMs := time.Since(startTime).Milliseconds()
			status := 200
			if err != nil {
				status = int(errors.Code(err))
			}

			logger.RequestWithContext(ctx, method, path, status, durationMs, "ip", ip)

			return reply, err
		}
	}
}

// extractClientIP resolves the client address, trusting proxy headers in
// order of specificity.
func extractClientIP(req *nethttp.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		// The first entry is the original client.
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if realIP := req.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	addr := req.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		return addr[:idx]
	}
	return addr
}
