package audit

import (
	"context"
	"strings"
)

type metaKey struct{}

// RequestMeta is the transport detail copied into every entry of a request.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// WithRequestMeta attaches request metadata to the context.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	meta.IPAddress = strings.TrimSpace(meta.IPAddress)
	meta.UserAgent = strings.TrimSpace(meta.UserAgent)
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext returns the request metadata if present.
func MetaFromContext(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	m, ok := ctx.Value(metaKey{}).(RequestMeta)
	return m, ok
}
