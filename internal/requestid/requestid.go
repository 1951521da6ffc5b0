// Package requestid carries the per-request correlation id through contexts.
package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header used to propagate the id.
const Header = "X-Request-ID"

type idKey struct{}

// New 生成一个新的请求 ID。
func New() string {
	return uuid.NewString()
}

// Normalize 返回客户端提供的 ID，缺失或过长时生成新的 ID。
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 128 {
		return New()
	}
	return raw
}

// WithID 将请求 ID 写入上下文。
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, idKey{}, id)
}

// FromContext 读取上下文中的请求 ID，不存在时返回空字符串。
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(idKey{}).(string); ok {
		return id
	}
	return ""
}
