// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/scanscore/internal/model"
)

// DeviceIDHeader は端末を識別するリクエストヘッダー。
const DeviceIDHeader = "X-Device-ID"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var deviceIDContextKey = contextKey("device_id")

// NewDeviceMiddleware はX-Device-IDヘッダーを検証し、端末IDをコンテキストに注入するミドルウェアを返す。
// ヘッダーはUUID形式である必要がある。requiredがfalseの場合、ヘッダーがなければそのまま通す。
// 不正な値が指定された場合はrequiredに関わらず400 device_requiredを返す。
func NewDeviceMiddleware(required bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(DeviceIDHeader))
			if raw == "" {
				if required {
					WriteAPIError(w, model.NewDeviceRequiredError())
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			id, err := uuid.Parse(raw)
			if err != nil {
				WriteAPIError(w, model.NewDeviceRequiredError())
				return
			}

			ctx := ContextWithDeviceID(r.Context(), id.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DeviceIDFromContext はリクエストコンテキストから端末IDを取得する。
// 端末IDがない場合は空文字列を返す。
func DeviceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(deviceIDContextKey).(string)
	return id
}

// ContextWithDeviceID はコンテキストに端末IDを注入する。
func ContextWithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey, deviceID)
}
