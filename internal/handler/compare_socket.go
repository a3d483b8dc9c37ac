package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/scanscore/internal/model"
)

// websocketのメッセージ種別
const (
	MessageCompare           = "compare"
	MessagePing              = "ping"
	MessagePong              = "pong"
	MessageComparisonLoading = "comparison_loading"
	MessageComparisonResult  = "comparison_result"
	MessageError             = "error"
)

const (
	socketReadLimit  = 2 << 20
	socketWriteWait  = 10 * time.Second
	socketPongWait   = 60 * time.Second
	socketPingPeriod = socketPongWait * 9 / 10
)

// socketRequest はクライアントから受け取るメッセージ。
type socketRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// socketResponse はクライアントへ送るメッセージ。
type socketResponse struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// socketClient は1本の接続。gorilla/websocketは並行書き込みを許さないため書き込みを直列化する。
type socketClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *socketClient) send(msg socketResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return c.conn.WriteJSON(msg)
}

func (c *socketClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait))
}

// CompareSocket はwebsocket経由で比較を行うハンドラー。
// 比較要求ごとに comparison_loading を送り、続けて comparison_result または error を送る。
type CompareSocket struct {
	comparer Comparer
	logger   *slog.Logger
	upgrader websocket.Upgrader
	clients  sync.Map
}

// NewCompareSocket はCompareSocketを生成する。
// allowedOriginが空または"*"の場合は全てのオリジンを受け入れる。
func NewCompareSocket(comparer Comparer, allowedOrigin string, logger *slog.Logger) *CompareSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompareSocket{
		comparer: comparer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// ServeHTTP はwebsocket接続を確立し、切断されるまでメッセージを処理する。
// GET /ws
func (s *CompareSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocketのアップグレードに失敗しました", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	client := &socketClient{conn: conn}
	clientID := uuid.NewString()
	s.clients.Store(clientID, client)
	defer s.clients.Delete(clientID)

	conn.SetReadLimit(socketReadLimit)
	conn.SetReadDeadline(time.Now().Add(socketPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.keepAlive(ctx, client)

	s.logger.Info("websocketクライアントが接続しました", slog.String("client_id", clientID))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocketの読み込みに失敗しました",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()),
				)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(socketPongWait))
		s.handleMessage(ctx, client, message)
	}

	s.logger.Info("websocketクライアントが切断しました", slog.String("client_id", clientID))
}

// ActiveConnections は接続中のクライアント数を返す。
func (s *CompareSocket) ActiveConnections() int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll は全ての接続に終了を通知して閉じる。シャットダウン時に使う。
func (s *CompareSocket) CloseAll() {
	s.clients.Range(func(key, value any) bool {
		client := value.(*socketClient)
		client.mu.Lock()
		client.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		client.mu.Unlock()
		client.conn.Close()
		return true
	})
}

func (s *CompareSocket) keepAlive(ctx context.Context, client *socketClient) {
	ticker := time.NewTicker(socketPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.ping(); err != nil {
				return
			}
		}
	}
}

func (s *CompareSocket) handleMessage(ctx context.Context, client *socketClient, raw []byte) {
	var msg socketRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError(client, model.NewInvalidRequestError("message is not valid JSON"))
		return
	}

	switch msg.Type {
	case MessageCompare:
		s.handleCompare(ctx, client, msg.Data)
	case MessagePing:
		s.send(client, socketResponse{Type: MessagePong})
	default:
		s.sendError(client, model.NewInvalidRequestError("unknown message type: "+msg.Type))
	}
}

func (s *CompareSocket) handleCompare(ctx context.Context, client *socketClient, data json.RawMessage) {
	var req compareRequest
	if len(data) == 0 || json.Unmarshal(data, &req) != nil {
		s.sendError(client, model.NewInvalidProductsError("data must contain product1 and product2"))
		return
	}

	s.send(client, socketResponse{Type: MessageComparisonLoading})

	result, err := s.comparer.Compare(ctx, req.Product1, req.Product2)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			s.logger.Error("websocket経由の比較に失敗しました", slog.String("error", err.Error()))
			apiErr = model.NewComparisonFailedError()
		}
		s.sendError(client, apiErr)
		return
	}

	s.send(client, socketResponse{Type: MessageComparisonResult, Data: result})
}

func (s *CompareSocket) sendError(client *socketClient, apiErr *model.APIError) {
	s.send(client, socketResponse{Type: MessageError, Error: apiErr.Code, Message: apiErr.Message})
}

func (s *CompareSocket) send(client *socketClient, msg socketResponse) {
	if err := client.send(msg); err != nil {
		s.logger.Warn("websocketメッセージの送信に失敗しました",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()),
		)
	}
}
