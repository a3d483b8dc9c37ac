package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/scanscore/internal/history"
	"github.com/hitoshi/scanscore/internal/model"
)

// HistoryService は履歴ハンドラーが必要とするサービスインターフェース。
type HistoryService interface {
	List(ctx context.Context, deviceID string) ([]*model.ScanResult, error)
	Add(ctx context.Context, deviceID string, scan *model.ScanResult) error
	Get(ctx context.Context, deviceID, id string) (*model.ScanResult, error)
	Remove(ctx context.Context, deviceID, id string) error
	Clear(ctx context.Context, deviceID string) (int64, error)
	SetFavorite(ctx context.Context, deviceID, id string, favorite bool) (*model.ScanResult, error)
	WeeklyStats(ctx context.Context, deviceID string, weeks int, now time.Time) ([]model.WeeklyStats, error)
}

// favoriteRequest はPUT /api/history/{id}/favorite のリクエストボディ。
type favoriteRequest struct {
	IsFavorite *bool `json:"isFavorite"`
}

// clearHistoryResponse はDELETE /api/history のレスポンス。
type clearHistoryResponse struct {
	Deleted int64 `json:"deleted"`
}

// HistoryHandler はスキャン履歴のHTTPハンドラー。
type HistoryHandler struct {
	service HistoryService
	now     func() time.Time
}

// NewHistoryHandler はHistoryHandlerを生成する。
func NewHistoryHandler(service HistoryService) *HistoryHandler {
	return &HistoryHandler{service: service, now: time.Now}
}

// List は端末のスキャン履歴を新しい順に返す。
// GET /api/history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	scans, err := h.service.List(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scans)
}

// Add はスキャン結果を履歴に追加する。
// POST /api/history
func (h *HistoryHandler) Add(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	var scan model.ScanResult
	if err := decodeJSON(w, r, maxJSONBodySize, &scan); err != nil {
		handleServiceError(w, err)
		return
	}
	if scan.ScanDate.IsZero() {
		scan.ScanDate = h.now().UTC()
	}

	if err := h.service.Add(r.Context(), deviceID, &scan); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, &scan)
}

// Get は指定IDのスキャンを返す。
// GET /api/history/{id}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	scan, err := h.service.Get(r.Context(), deviceID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scan)
}

// Remove は指定IDのスキャンを履歴から削除する。
// DELETE /api/history/{id}
func (h *HistoryHandler) Remove(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	if err := h.service.Remove(r.Context(), deviceID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Clear は端末のスキャン履歴を全て削除する。
// DELETE /api/history
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	n, err := h.service.Clear(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, clearHistoryResponse{Deleted: n})
}

// SetFavorite はスキャンのお気に入り状態を更新する。
// PUT /api/history/{id}/favorite
func (h *HistoryHandler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	var req favoriteRequest
	if err := decodeJSON(w, r, maxJSONBodySize, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if req.IsFavorite == nil {
		handleServiceError(w, model.NewInvalidRequestError("isFavorite is required"))
		return
	}

	scan, err := h.service.SetFavorite(r.Context(), deviceID, chi.URLParam(r, "id"), *req.IsFavorite)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scan)
}

// Stats は週ごとの平均スコアとスキャン件数を返す。
// GET /api/history/stats?weeks=N
func (h *HistoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	weeks := history.DefaultStatsWeeks
	if raw := r.URL.Query().Get("weeks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > history.MaxStatsWeeks {
			handleServiceError(w, model.NewInvalidRequestError(
				"weeks must be an integer between 1 and "+strconv.Itoa(history.MaxStatsWeeks)))
			return
		}
		weeks = n
	}

	stats, err := h.service.WeeklyStats(r.Context(), deviceID, weeks, h.now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
