// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/scanscore/internal/middleware"
	"github.com/hitoshi/scanscore/internal/model"
)

// 最大リクエストボディサイズ
const (
	maxJSONBodySize  = 1 << 20  // 1MB
	maxImageBodySize = 16 << 20 // base64エンコード後の画像を含むため大きめに取る
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("レスポンスのエンコードに失敗しました", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをJSONとしてデコードする。
// 失敗した場合はinvalid_requestのAPIErrorを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return model.NewInvalidRequestError(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			return model.NewInvalidRequestError("request body is empty")
		default:
			return model.NewInvalidRequestError("request body is not valid JSON")
		}
	}
	return nil
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// requireDeviceID はコンテキストから端末IDを取得する。
// 取得できない場合はエラーレスポンスを書き込んでfalseを返す。
func requireDeviceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	deviceID := middleware.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		middleware.WriteAPIError(w, model.NewDeviceRequiredError())
		return "", false
	}
	return deviceID, true
}
