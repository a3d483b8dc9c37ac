package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/scanscore/internal/middleware"
	"github.com/hitoshi/scanscore/internal/model"
)

// ScanAnalyzer はスキャンハンドラーが必要とする解析サービスのインターフェース。
type ScanAnalyzer interface {
	AnalyzeImage(ctx context.Context, deviceID, imageBase64 string, prefs *model.UserPreferences) (*model.ScanResult, error)
	AnalyzeBarcode(ctx context.Context, deviceID, barcode string, prefs *model.UserPreferences) (*model.ScanResult, error)
}

// PreferencesResolver は解析に使う嗜好設定を決定するインターフェース。
type PreferencesResolver interface {
	Resolve(ctx context.Context, deviceID string, explicit *model.UserPreferences) *model.UserPreferences
}

// analyzeImageRequest はPOST /api/analyze のリクエストボディ。
type analyzeImageRequest struct {
	ImageBase64 string                 `json:"imageBase64"`
	Preferences *model.UserPreferences `json:"preferences,omitempty"`
}

// analyzeBarcodeRequest はPOST /api/analyze-barcode のリクエストボディ。
type analyzeBarcodeRequest struct {
	Barcode     string                 `json:"barcode"`
	Preferences *model.UserPreferences `json:"preferences,omitempty"`
}

// ScanHandler は製品解析のHTTPハンドラー。
type ScanHandler struct {
	analyzer ScanAnalyzer
	prefs    PreferencesResolver
}

// NewScanHandler はScanHandlerを生成する。prefsがnilの場合はリクエストの指定のみを使う。
func NewScanHandler(analyzer ScanAnalyzer, prefs PreferencesResolver) *ScanHandler {
	return &ScanHandler{analyzer: analyzer, prefs: prefs}
}

// AnalyzeImage は食品ラベル画像を解析する。
// POST /api/analyze
func (h *ScanHandler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	var req analyzeImageRequest
	if err := decodeJSON(w, r, maxImageBodySize, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if strings.TrimSpace(req.ImageBase64) == "" {
		handleServiceError(w, model.NewInvalidRequestError("imageBase64 is required"))
		return
	}

	deviceID := middleware.DeviceIDFromContext(r.Context())
	result, err := h.analyzer.AnalyzeImage(r.Context(), deviceID, req.ImageBase64, h.resolve(r, deviceID, req.Preferences))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// AnalyzeBarcode はバーコードから製品を解析する。
// POST /api/analyze-barcode
func (h *ScanHandler) AnalyzeBarcode(w http.ResponseWriter, r *http.Request) {
	var req analyzeBarcodeRequest
	if err := decodeJSON(w, r, maxJSONBodySize, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	barcode := strings.TrimSpace(req.Barcode)
	if barcode == "" {
		handleServiceError(w, model.NewInvalidRequestError("barcode is required"))
		return
	}

	deviceID := middleware.DeviceIDFromContext(r.Context())
	result, err := h.analyzer.AnalyzeBarcode(r.Context(), deviceID, barcode, h.resolve(r, deviceID, req.Preferences))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *ScanHandler) resolve(r *http.Request, deviceID string, explicit *model.UserPreferences) *model.UserPreferences {
	if h.prefs == nil {
		return explicit
	}
	return h.prefs.Resolve(r.Context(), deviceID, explicit)
}
