package oracle

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiCompleter はGemini APIを利用するCompleter。
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter はAPIキーでGemini APIクライアントを生成する。
func NewGeminiCompleter(ctx context.Context, apiKey, model string) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini APIキーが設定されていません")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini APIクライアントの生成に失敗しました: %w", err)
	}

	return &GeminiCompleter{client: client, model: model}, nil
}

// Complete はプロンプト（と画像）を送信し、応答テキストを返す。
func (g *GeminiCompleter) Complete(ctx context.Context, req Request) (string, error) {
	parts := make([]*genai.Part, 0, 2)
	if len(req.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image, imageMIME(req.ImageMIME)))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		config,
	)
	if err != nil {
		return "", fmt.Errorf("Gemini APIの呼び出しに失敗しました: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// imageMIME は未指定の場合にJPEGを既定とする。
func imageMIME(mime string) string {
	if mime == "" {
		return "image/jpeg"
	}
	return mime
}

var _ Completer = (*GeminiCompleter)(nil)
