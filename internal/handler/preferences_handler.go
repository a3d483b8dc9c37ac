package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/scanscore/internal/model"
)

// PreferencesService は嗜好設定ハンドラーが必要とするサービスインターフェース。
type PreferencesService interface {
	Get(ctx context.Context, deviceID string) (model.UserPreferences, error)
	Update(ctx context.Context, deviceID string, prefs model.UserPreferences) (model.UserPreferences, error)
}

// PreferencesHandler は嗜好設定のHTTPハンドラー。
type PreferencesHandler struct {
	service PreferencesService
}

// NewPreferencesHandler はPreferencesHandlerを生成する。
func NewPreferencesHandler(service PreferencesService) *PreferencesHandler {
	return &PreferencesHandler{service: service}
}

// Get は端末の嗜好設定を返す。未保存の場合は既定値を返す。
// GET /api/preferences
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	prefs, err := h.service.Get(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, prefs)
}

// Update は端末の嗜好設定を置き換える。
// PUT /api/preferences
func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	var prefs model.UserPreferences
	if err := decodeJSON(w, r, maxJSONBodySize, &prefs); err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.service.Update(r.Context(), deviceID, prefs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}
