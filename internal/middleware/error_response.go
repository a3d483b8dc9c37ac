package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/scanscore/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusForCode はエラーコードに対応するHTTPステータスを返す。
// 未知のコードは500として扱う。
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeInvalidProducts, model.ErrCodeInvalidRequest, model.ErrCodeDeviceRequired:
		return http.StatusBadRequest
	case model.ErrCodeNotFound, model.ErrCodeScanNotFound:
		return http.StatusNotFound
	case model.ErrCodeNotFood:
		return http.StatusUnprocessableEntity
	case model.ErrCodeAnalysisFailed:
		return http.StatusBadGateway
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Error:   apiErr.Code,
		Message: apiErr.Message,
	})
}

// WriteAPIError はエラーコードから決まるステータスでエラーレスポンスを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "internal_error",
		Message:  "An internal error occurred. Please try again later.",
		Category: "system",
	})
}
