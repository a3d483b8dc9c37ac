package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/scanscore/internal/model"
)

func dialSocket(t *testing.T, socket *CompareSocket) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(socket)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocketの接続に失敗: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("メッセージの読み込みに失敗: %v", err)
	}
	return msg
}

func newTestSocket(compareFn func(ctx context.Context, p1, p2 *model.ScanResult) (*model.ComparisonResult, error)) *CompareSocket {
	var buf bytes.Buffer
	return NewCompareSocket(&mockComparer{compareFn: compareFn}, "", slog.New(slog.NewJSONHandler(&buf, nil)))
}

func TestCompareSocket_LoadingThenResult(t *testing.T) {
	socket := newTestSocket(func(ctx context.Context, p1, p2 *model.ScanResult) (*model.ComparisonResult, error) {
		return &model.ComparisonResult{
			Product1:       *p1,
			Product2:       *p2,
			Winner:         model.WinnerProduct1,
			Recommendation: "Oat Cereal is the healthier choice with a higher score.",
		}, nil
	})
	conn := dialSocket(t, socket)

	err := conn.WriteJSON(map[string]any{
		"type": "compare",
		"data": map[string]any{
			"product1": sampleScan("a", "Oat Cereal", 85),
			"product2": sampleScan("b", "Frosted Flakes", 45),
		},
	})
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	if msg := readMessage(t, conn); msg["type"] != MessageComparisonLoading {
		t.Fatalf("1通目 = %v, want comparison_loading", msg)
	}
	msg := readMessage(t, conn)
	if msg["type"] != MessageComparisonResult {
		t.Fatalf("2通目 = %v, want comparison_result", msg)
	}
	data, _ := msg["data"].(map[string]any)
	if data["winner"] != "product1" {
		t.Errorf("winner = %v", data["winner"])
	}
	if socket.ActiveConnections() != 1 {
		t.Errorf("ActiveConnections = %d, want 1", socket.ActiveConnections())
	}
}

func TestCompareSocket_ComparisonError(t *testing.T) {
	conn := dialSocket(t, newTestSocket(func(ctx context.Context, p1, p2 *model.ScanResult) (*model.ComparisonResult, error) {
		return nil, model.NewInvalidProductsError("product2: product is missing")
	}))

	conn.WriteJSON(map[string]any{"type": "compare", "data": map[string]any{"product1": sampleScan("a", "A", 50)}})

	if msg := readMessage(t, conn); msg["type"] != MessageComparisonLoading {
		t.Fatalf("1通目 = %v", msg)
	}
	msg := readMessage(t, conn)
	if msg["type"] != MessageError || msg["error"] != model.ErrCodeInvalidProducts {
		t.Errorf("msg = %v", msg)
	}
	if msg["message"] == "" {
		t.Error("messageが含まれるべき")
	}
}

func TestCompareSocket_InvalidMessages(t *testing.T) {
	conn := dialSocket(t, newTestSocket(func(ctx context.Context, p1, p2 *model.ScanResult) (*model.ComparisonResult, error) {
		t.Error("比較は呼ばれないべき")
		return nil, nil
	}))

	tests := []struct {
		raw      string
		wantCode string
	}{
		{`not json`, model.ErrCodeInvalidRequest},
		{`{"type":"unknown"}`, model.ErrCodeInvalidRequest},
		{`{"type":"compare"}`, model.ErrCodeInvalidProducts},
		{`{"type":"compare","data":"oops"}`, model.ErrCodeInvalidProducts},
	}
	for _, tt := range tests {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.raw)); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
		msg := readMessage(t, conn)
		if msg["type"] != MessageError || msg["error"] != tt.wantCode {
			t.Errorf("%s: msg = %v, want error %s", tt.raw, msg, tt.wantCode)
		}
	}
}

func TestCompareSocket_Ping(t *testing.T) {
	conn := dialSocket(t, newTestSocket(nil))

	conn.WriteJSON(map[string]string{"type": "ping"})

	if msg := readMessage(t, conn); msg["type"] != MessagePong {
		t.Errorf("msg = %v, want pong", msg)
	}
}

func TestCompareSocket_RejectsForeignOrigin(t *testing.T) {
	socket := NewCompareSocket(&mockComparer{}, "https://app.example.com", nil)
	server := httptest.NewServer(socket)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("許可されていないオリジンからの接続は拒否されるべき")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("resp = %v", resp)
	}
}

func TestCompareSocket_CloseAll(t *testing.T) {
	socket := newTestSocket(nil)
	conn := dialSocket(t, socket)

	// 接続の登録を待つ
	conn.WriteJSON(map[string]string{"type": "ping"})
	readMessage(t, conn)

	socket.CloseAll()

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("CloseAll後は読み込みがエラーになるべき")
	} else if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Logf("close error = %v", err)
	}
}
