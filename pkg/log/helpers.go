package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper extends the Kratos log.Helper with typed convenience methods.
// Each method tags the line with a "type" field, which also drives the
// EmojiConsoleEncoder mapping in console format.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper creates the extended helper.
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

// API logs API level events (emoji: 🔗).
func (h *LogHelper) API(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "api")
	h.Infow(allKvs...)
}

// Request logs one HTTP request (emoji by status code).
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, url, status, durationMs)
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)
}

// RateLimit logs admission control decisions (emoji: 🚦).
func (h *LogHelper) RateLimit(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "rate_limit")
	h.Warnw(allKvs...)
}

// Success logs completed operations (emoji: ✅).
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "success")
	h.Infow(allKvs...)
}

// Redis logs shared-store operations (emoji: 📦).
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "redis")
	h.Debugw(allKvs...)
}

// Region logs region table and routing events (emoji: 🌍).
func (h *LogHelper) Region(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "region")
	h.Infow(allKvs...)
}

// Heartbeat logs liveness protocol events (emoji: 💓).
func (h *LogHelper) Heartbeat(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "heartbeat")
	h.Debugw(allKvs...)
}

// Breaker logs circuit breaker transitions (emoji: ⛓️).
func (h *LogHelper) Breaker(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "breaker")
	h.Warnw(allKvs...)
}

// Replication logs cross-region replication events (emoji: 🔁).
func (h *LogHelper) Replication(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "replication")
	h.Debugw(allKvs...)
}

// Scheduler logs background job events (emoji: 🎯).
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "scheduler")
	h.Infow(allKvs...)
}

// Startup logs boot sequence events (emoji: 🚀).
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "startup")
	h.Infow(allKvs...)
}

// Performance logs timing observations (emoji: ⏱️).
func (h *LogHelper) Performance(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "performance")
	h.Infow(allKvs...)
}

// Security logs suspicious activity (emoji: 🔒).
func (h *LogHelper) Security(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "security")
	h.Warnw(allKvs...)
}

// ========== Context-aware methods ==========
// These extract the tracking information installed by the Source middleware
// (request ID, source region) automatically.

// SlowRequest warns about a request exceeding the duration threshold
// (emoji: 🐌).
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
		reqCtx.RequestID, method, url, duration, threshold)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"source_region", reqCtx.SourceRegion,
		"method", method,
		"url", url,
		"duration_ms", duration,
		"threshold_ms", threshold,
		"type", "slow_request",
	)
	h.Warnw(allKvs...)
}

// RequestWithContext logs one HTTP request with tracking fields and flags
// slow requests automatically.
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("%s %s - %d (%dms) | RequestID: %s",
		method, url, status, durationMs, reqCtx.RequestID)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"request_id", reqCtx.RequestID,
		"source_region", reqCtx.SourceRegion,
		"cross_region", reqCtx.CrossRegion,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)

	// Slow request threshold is fixed at 1000ms.
	if durationMs > 1000 {
		h.SlowRequest(ctx, method, url, durationMs, 1000)
	}
}

// CacheStats logs cache effectiveness counters (emoji: 🧹).
func (h *LogHelper) CacheStats(ctx context.Context, cacheName string, size, maxSize, hits, misses, evictions int64, kvs ...interface{}) {
	var hitRate float64
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	msg := fmt.Sprintf("Cache stats - %s | Size: %d/%d, Hit Rate: %.2f%%, Evictions: %d",
		cacheName, size, maxSize, hitRate, evictions)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"cache_name", cacheName,
		"size", size,
		"max_size", maxSize,
		"hits", hits,
		"misses", misses,
		"evictions", evictions,
		"hit_rate", fmt.Sprintf("%.2f%%", hitRate),
		"total_requests", total,
		"type", "cache_stats",
	)
	h.Infow(allKvs...)
}

// APIWithContext logs an API event prefixed with the request ID.
func (h *LogHelper) APIWithContext(ctx context.Context, msg string, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	fullMsg := fmt.Sprintf("[%s] %s", reqCtx.RequestID, msg)

	allKvs := append([]interface{}{"msg", fullMsg}, kvs...)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"source_region", reqCtx.SourceRegion,
		"type", "api",
	)
	h.Infow(allKvs...)
}
