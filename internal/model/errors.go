package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// ワイヤ上では {error, message} として返す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, analysis, comparison, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidProducts  = "invalid_products"
	ErrCodeComparisonFailed = "comparison_failed"
	ErrCodeNotFood          = "not_food"
	ErrCodeNotFound         = "not_found"
	ErrCodeAnalysisFailed   = "analysis_failed"
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeScanNotFound     = "scan_not_found"
	ErrCodeDeviceRequired   = "device_required"
	ErrCodeRateLimited      = "rate_limited"
)

// NewInvalidProductsError は比較対象の製品が形状検証に失敗した場合のエラーを生成する。
func NewInvalidProductsError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProducts,
		Message:  fmt.Sprintf("Products could not be compared: %s", reason),
		Category: "validation",
	}
}

// NewComparisonFailedError は比較処理中の予期しない失敗を表すエラーを生成する。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func NewComparisonFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeComparisonFailed,
		Message:  "Failed to compare products. Please try again.",
		Category: "system",
	}
}

// NewNotFoodError は画像が食品ラベルではない場合のエラーを生成する。
// messageが空の場合は既定の文言を使う。
func NewNotFoodError(message string) *APIError {
	if message == "" {
		message = "This doesn't appear to be a food label. Please take a clear photo of a product's ingredient list or nutrition panel."
	}
	return &APIError{
		Code:     ErrCodeNotFood,
		Message:  message,
		Category: "analysis",
	}
}

// NewProductNotFoundError はバーコードに対応する製品が見つからない場合のエラーを生成する。
func NewProductNotFoundError(barcode string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("No product was found for barcode %s. Try scanning the ingredient label instead.", barcode),
		Category: "analysis",
	}
}

// NewAnalysisFailedError は解析処理の失敗を表すエラーを生成する。
func NewAnalysisFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAnalysisFailed,
		Message:  "Failed to analyze the food label. Please try again.",
		Category: "analysis",
	}
}

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
	}
}

// NewScanNotFoundError は履歴にスキャン結果が存在しない場合のエラーを生成する。
func NewScanNotFoundError(scanID string) *APIError {
	return &APIError{
		Code:     ErrCodeScanNotFound,
		Message:  fmt.Sprintf("Scan %s was not found in history.", scanID),
		Category: "validation",
	}
}

// NewDeviceRequiredError はデバイスIDが指定されていない場合のエラーを生成する。
func NewDeviceRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeDeviceRequired,
		Message:  "A valid X-Device-ID header is required.",
		Category: "validation",
	}
}

// NewRateLimitedError はレート制限を超過した場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
	}
}
