package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/scanscore/internal/model"
)

// Comparer は2製品を比較するサービスのインターフェース。
type Comparer interface {
	Compare(ctx context.Context, p1, p2 *model.ScanResult) (*model.ComparisonResult, error)
}

// ScanGetter は履歴からスキャンを取得するインターフェース。
// 存在しない場合はscan_not_foundのAPIErrorを返す。
type ScanGetter interface {
	Get(ctx context.Context, deviceID, id string) (*model.ScanResult, error)
}

// compareRequest はPOST /api/compare のリクエストボディ。
type compareRequest struct {
	Product1 *model.ScanResult `json:"product1"`
	Product2 *model.ScanResult `json:"product2"`
}

// compareHistoryRequest はPOST /api/history/compare のリクエストボディ。
type compareHistoryRequest struct {
	Product1ID string `json:"product1Id"`
	Product2ID string `json:"product2Id"`
}

// CompareHandler は製品比較のHTTPハンドラー。
type CompareHandler struct {
	comparer Comparer
	history  ScanGetter
}

// NewCompareHandler はCompareHandlerを生成する。
func NewCompareHandler(comparer Comparer, history ScanGetter) *CompareHandler {
	return &CompareHandler{comparer: comparer, history: history}
}

// Compare はリクエストで渡された2つのスキャン結果を比較する。
// POST /api/compare
func (h *CompareHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(w, r, maxJSONBodySize, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.comparer.Compare(r.Context(), req.Product1, req.Product2)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CompareFromHistory は履歴に保存された2つのスキャンを比較する。
// POST /api/history/compare
func (h *CompareHandler) CompareFromHistory(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := requireDeviceID(w, r)
	if !ok {
		return
	}

	var req compareHistoryRequest
	if err := decodeJSON(w, r, maxJSONBodySize, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	id1 := strings.TrimSpace(req.Product1ID)
	id2 := strings.TrimSpace(req.Product2ID)
	if id1 == "" || id2 == "" {
		handleServiceError(w, model.NewInvalidRequestError("product1Id and product2Id are required"))
		return
	}

	p1, err := h.history.Get(r.Context(), deviceID, id1)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	p2, err := h.history.Get(r.Context(), deviceID, id2)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.comparer.Compare(r.Context(), p1, p2)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
