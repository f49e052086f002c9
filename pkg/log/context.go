package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey is a private key type for storing the RequestContext.
type contextKey string

const requestContextKey contextKey = "meridian_request_context"

// RequestContext carries per-request tracking information across functions
// and layers. For cross-region traffic it also records which region
// originated the call.
type RequestContext struct {
	RequestID    string                 // short random ID, e.g. mgrn0zfqda
	SourceRegion string                 // origin region of cross-region traffic, empty for client traffic
	CrossRegion  bool                   // true when the request came from a peer region
	StartTime    time.Time              // request start time
	Metadata     map[string]interface{} // extension metadata
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 alphabet (lowercase letters + digits)
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRequestID returns a 10 character random request ID. base36 keeps
// it short and cheap compared to a UUID.
func GenerateRequestID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRequestContext installs a RequestContext, normally from middleware at
// the start of the request lifecycle.
func WithRequestContext(ctx context.Context, requestID, sourceRegion string, crossRegion bool) context.Context {
	reqCtx := &RequestContext{
		RequestID:    requestID,
		SourceRegion: sourceRegion,
		CrossRegion:  crossRegion,
		StartTime:    time.Now(),
		Metadata:     make(map[string]interface{}),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// GetRequestContext extracts the RequestContext, returning a placeholder
// when none was installed so callers never nil-check.
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return &RequestContext{
			RequestID: "unknown",
			Metadata:  make(map[string]interface{}),
		}
	}

	if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return reqCtx
	}

	return &RequestContext{
		RequestID: "unknown",
		Metadata:  make(map[string]interface{}),
	}
}

// GetRequestID extracts just the request ID.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetSourceRegion extracts the origin region of cross-region traffic.
func GetSourceRegion(ctx context.Context) string {
	return GetRequestContext(ctx).SourceRegion
}

// IsCrossRegion reports whether the request came from a peer region.
func IsCrossRegion(ctx context.Context) bool {
	return GetRequestContext(ctx).CrossRegion
}

// SetMetadata attaches extra tracking information to the request.
func SetMetadata(ctx context.Context, key string, value interface{}) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		reqCtx.Metadata = make(map[string]interface{})
	}
	reqCtx.Metadata[key] = value
}

// GetMetadata reads request metadata set earlier in the request.
func GetMetadata(ctx context.Context, key string) (interface{}, bool) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		return nil, false
	}
	value, ok := reqCtx.Metadata[key]
	return value, ok
}

// GetElapsedTime returns the request's elapsed time in milliseconds.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
