// Package middleware provides HTTP middleware for request tracking, rate
// limiting and request logging.
package middleware

import (
	"context"

	"Meridian/internal/biz"
	pkglog "Meridian/pkg/log"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Source injects the request tracking context: a request ID (taken from
// X-Request-ID or generated) plus the origin region of cross-region traffic.
// It runs before Logging so every log line of the request carries both.
func Source(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			var (
				requestID    string
				sourceRegion string
				crossRegion  bool
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					requestID = httpReq.Header.Get("X-Request-ID")
					sourceRegion = httpReq.Header.Get(biz.HeaderSourceRegion)
					crossRegion = httpReq.Header.Get(biz.HeaderCrossRegion) == "true"
				}
			}
			if requestID == "" {
				requestID = pkglog.GenerateRequestID()
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, sourceRegion, crossRegion)

			if crossRegion {
				logger.Region("cross-region request received",
					"request_id", requestID,
					"source_region", sourceRegion)
			}

			return handler(ctx, req)
		}
	}
}
