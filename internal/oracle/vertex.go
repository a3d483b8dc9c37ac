package oracle

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

// DefaultLocation はVertex AIの既定リージョン。
const DefaultLocation = "us-central1"

// VertexCompleter はVertex AI上のGeminiモデルを利用するCompleter。
type VertexCompleter struct {
	client *genai.Client
	model  string
}

// NewVertexCompleter はプロジェクトIDとリージョンでVertex AIクライアントを生成する。
// credentialsFileが空の場合はアプリケーションデフォルト認証情報を使う。
func NewVertexCompleter(ctx context.Context, projectID, location, credentialsFile, model string) (*VertexCompleter, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GoogleプロジェクトIDが設定されていません")
	}
	if location == "" {
		location = DefaultLocation
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := genai.NewClient(ctx, projectID, location, opts...)
	if err != nil {
		return nil, fmt.Errorf("Vertex AIクライアントの生成に失敗しました: %w", err)
	}

	return &VertexCompleter{client: client, model: model}, nil
}

// Complete はプロンプト（と画像）を送信し、候補の最初のテキストパートを連結して返す。
func (v *VertexCompleter) Complete(ctx context.Context, req Request) (string, error) {
	m := v.client.GenerativeModel(v.model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.2)
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	parts := make([]genai.Part, 0, 2)
	if len(req.Image) > 0 {
		parts = append(parts, genai.Blob{MIMEType: imageMIME(req.ImageMIME), Data: req.Image})
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("Vertex AIの呼び出しに失敗しました: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Close はクライアントを解放する。
func (v *VertexCompleter) Close() error {
	return v.client.Close()
}

var _ Completer = (*VertexCompleter)(nil)
