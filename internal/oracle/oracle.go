// Package oracle は外部AIモデル（オラクル）との境界を提供する。
// プロンプト組み立て、バックエンド（Gemini API / Vertex AI）の呼び出し、
// 応答の厳格なパースを担い、生のJSONをこの境界の外に渡さない。
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// 呼び出し用途
const (
	PurposeAnalysis   = "analysis"
	PurposeComparison = "comparison"
)

// バックエンド種別
const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

// DefaultModel は既定のモデル名。
const DefaultModel = "gemini-2.5-flash"

// ErrEmptyResponse はオラクルが空の応答を返した場合のエラー。
var ErrEmptyResponse = errors.New("オラクルの応答が空です")

// Request はオラクルへの1回の問い合わせ。
type Request struct {
	Purpose   string
	System    string
	Prompt    string
	Image     []byte // 画像解析時のみ
	ImageMIME string
}

// Completer はオラクルへのテキスト補完のインターフェース。
// 応答はJSON文字列（コードフェンスで囲まれている場合がある）。
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config はオラクルバックエンドの設定。
type Config struct {
	Backend         string
	Model           string
	APIKey          string
	ProjectID       string
	Location        string
	CredentialsFile string
}

// NewCompleter は設定に応じたバックエンドのCompleterを生成する。
func NewCompleter(ctx context.Context, cfg Config) (Completer, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	switch cfg.Backend {
	case BackendGemini, "":
		c, err := NewGeminiCompleter(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendVertex:
		c, err := NewVertexCompleter(ctx, cfg.ProjectID, cfg.Location, cfg.CredentialsFile, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("未対応のオラクルバックエンドです: %s", cfg.Backend)
	}
}

// CallRecorder はオラクル呼び出しの計測インターフェース。
type CallRecorder interface {
	RecordOracleCall(purpose string, outcome string, duration time.Duration)
}

// instrumented は呼び出し結果とレイテンシを記録するCompleter。
type instrumented struct {
	next     Completer
	recorder CallRecorder
}

// Instrument はCompleterに計測を付与する。recorderがnilの場合はそのまま返す。
func Instrument(next Completer, recorder CallRecorder) Completer {
	if recorder == nil {
		return next
	}
	return &instrumented{next: next, recorder: recorder}
}

// Complete は委譲先を呼び出し、結果区分を記録する。
func (c *instrumented) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	raw, err := c.next.Complete(ctx, req)

	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	c.recorder.RecordOracleCall(req.Purpose, outcome, time.Since(start))
	return raw, err
}
