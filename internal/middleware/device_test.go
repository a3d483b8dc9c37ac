package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/scanscore/internal/model"
)

const testDeviceID = "3f2b8c1e-9a4d-4e6f-8b7a-1c2d3e4f5a6b"

func serveDevice(t *testing.T, required bool, header string) (*httptest.ResponseRecorder, string, bool) {
	t.Helper()
	var captured string
	called := false
	handler := NewDeviceMiddleware(required)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		captured = DeviceIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	if header != "" {
		req.Header.Set(DeviceIDHeader, header)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, captured, called
}

func TestDeviceMiddleware_ValidID(t *testing.T) {
	w, captured, called := serveDevice(t, true, testDeviceID)

	if w.Code != http.StatusOK || !called {
		t.Fatalf("status = %d, called = %v", w.Code, called)
	}
	if captured != testDeviceID {
		t.Errorf("device ID = %q, want %q", captured, testDeviceID)
	}
}

func TestDeviceMiddleware_NormalizesCase(t *testing.T) {
	_, captured, _ := serveDevice(t, true, "3F2B8C1E-9A4D-4E6F-8B7A-1C2D3E4F5A6B")
	if captured != testDeviceID {
		t.Errorf("device ID = %q, want %q", captured, testDeviceID)
	}
}

func TestDeviceMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		required bool
		header   string
	}{
		{"required and missing", true, ""},
		{"required and invalid", true, "not-a-uuid"},
		{"optional and invalid", false, "device-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _, called := serveDevice(t, tt.required, tt.header)

			if called {
				t.Error("後続のハンドラーを呼び出さないべき")
			}
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Error != model.ErrCodeDeviceRequired {
				t.Errorf("error = %q, want %q", body.Error, model.ErrCodeDeviceRequired)
			}
		})
	}
}

func TestDeviceMiddleware_OptionalWithoutHeader(t *testing.T) {
	w, captured, called := serveDevice(t, false, "")

	if w.Code != http.StatusOK || !called {
		t.Fatalf("status = %d, called = %v", w.Code, called)
	}
	if captured != "" {
		t.Errorf("device ID = %q, want empty", captured)
	}
}

func TestDeviceIDFromContext_Empty(t *testing.T) {
	if got := DeviceIDFromContext(context.Background()); got != "" {
		t.Errorf("DeviceIDFromContext = %q, want empty", got)
	}
	ctx := ContextWithDeviceID(context.Background(), testDeviceID)
	if got := DeviceIDFromContext(ctx); got != testDeviceID {
		t.Errorf("DeviceIDFromContext = %q", got)
	}
}
