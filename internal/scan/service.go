// Package scan は製品ラベル画像またはバーコードから製品を解析するサービスを提供する。
// オラクルの応答を正規化し、代替製品の画像を補完した上でスキャン履歴に保存する。
package scan

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/scanscore/internal/metrics"
	"github.com/hitoshi/scanscore/internal/model"
	"github.com/hitoshi/scanscore/internal/openfoodfacts"
	"github.com/hitoshi/scanscore/internal/oracle"
)

// 解析の入力元
const (
	SourceImage   = "image"
	SourceBarcode = "barcode"
)

// 解析結果の区分（metrics.Outcome*に加えて使う）
const (
	outcomeNotFood  = "not_food"
	outcomeNotFound = "not_found"
)

// MaxImageSize はデコード後の画像の最大サイズ（10MB）。
const MaxImageSize = 10 * 1024 * 1024

// ProductLookup はバーコードから製品情報を取得するインターフェース。
// 見つからない場合はnil, nilを返す。
type ProductLookup interface {
	LookupBarcode(ctx context.Context, barcode string) (*openfoodfacts.Product, error)
}

// HistoryWriter は解析結果をスキャン履歴に保存するインターフェース。
type HistoryWriter interface {
	Add(ctx context.Context, deviceID string, scan *model.ScanResult) error
}

// TextSanitizer はオラクルの自由文からマークアップを除去するインターフェース。
type TextSanitizer interface {
	SanitizeText(text string) string
}

// AnalysisRecorder は解析結果の計測インターフェース。
type AnalysisRecorder interface {
	RecordAnalysis(source, outcome string)
}

// Service は製品解析のサービス層。
type Service struct {
	oracle        oracle.Completer
	products      ProductLookup
	enricher      *AlternativeEnricher
	history       HistoryWriter
	sanitizer     TextSanitizer
	recorder      AnalysisRecorder
	logger        *slog.Logger
	oracleTimeout time.Duration
	now           func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// products・enricher・history・sanitizer・recorderはnilでもよい。
func NewService(
	completer oracle.Completer,
	products ProductLookup,
	enricher *AlternativeEnricher,
	history HistoryWriter,
	sanitizer TextSanitizer,
	recorder AnalysisRecorder,
	logger *slog.Logger,
	oracleTimeout time.Duration,
) *Service {
	if oracleTimeout <= 0 {
		oracleTimeout = 45 * time.Second
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		oracle:        completer,
		products:      products,
		enricher:      enricher,
		history:       history,
		sanitizer:     sanitizer,
		recorder:      recorder,
		logger:        logger,
		oracleTimeout: oracleTimeout,
		now:           time.Now,
	}
}

// AnalyzeImage はbase64エンコードされたラベル画像を解析する。
// deviceIDが空でなければ結果をその端末の履歴に保存する。
func (s *Service) AnalyzeImage(ctx context.Context, deviceID, imageBase64 string, prefs *model.UserPreferences) (*model.ScanResult, error) {
	image, mime, err := DecodeImage(imageBase64)
	if err != nil {
		s.recorder.RecordAnalysis(SourceImage, metrics.OutcomeInvalid)
		return nil, model.NewInvalidRequestError(err.Error())
	}

	result, err := s.analyze(ctx, SourceImage, oracle.ImageAnalysisRequest(image, mime, prefs))
	if err != nil {
		return nil, err
	}

	s.finish(ctx, SourceImage, deviceID, result)
	return result, nil
}

// AnalyzeBarcode はバーコードから製品情報を検索して解析する。
// 製品が見つからない場合はnot_foundのAPIErrorを返す。
func (s *Service) AnalyzeBarcode(ctx context.Context, deviceID, barcode string, prefs *model.UserPreferences) (*model.ScanResult, error) {
	barcode = strings.TrimSpace(barcode)
	if !openfoodfacts.ValidBarcode(barcode) {
		s.recorder.RecordAnalysis(SourceBarcode, metrics.OutcomeInvalid)
		return nil, model.NewInvalidRequestError("barcode must be 8 to 14 digits")
	}
	if s.products == nil {
		s.recorder.RecordAnalysis(SourceBarcode, metrics.OutcomeFailed)
		return nil, model.NewAnalysisFailedError()
	}

	product, err := s.products.LookupBarcode(ctx, barcode)
	if err != nil {
		s.logger.Error("バーコード検索に失敗しました",
			slog.String("barcode", barcode),
			slog.String("error", err.Error()),
		)
		s.recorder.RecordAnalysis(SourceBarcode, metrics.OutcomeFailed)
		return nil, model.NewAnalysisFailedError()
	}
	if product == nil {
		s.recorder.RecordAnalysis(SourceBarcode, outcomeNotFound)
		return nil, model.NewProductNotFoundError(barcode)
	}

	req := oracle.ProductAnalysisRequest(oracle.ProductFacts{
		Barcode:     product.Barcode,
		Name:        product.Name,
		Brand:       product.Brand,
		Category:    product.Category,
		Ingredients: product.Ingredients,
		Nutrition:   product.Nutrition,
	}, prefs)

	result, err := s.analyze(ctx, SourceBarcode, req)
	if err != nil {
		return nil, err
	}

	result.Barcode = product.Barcode
	result.Nutrition = product.Nutrition
	if result.ImageURI == "" {
		result.ImageURI = product.ImageURL
	}
	if result.Category == "" {
		result.Category = product.Category
	}

	s.finish(ctx, SourceBarcode, deviceID, result)
	return result, nil
}

// analyze はオラクルを呼び出し、応答をパース・正規化する。
func (s *Service) analyze(ctx context.Context, source string, req oracle.Request) (*model.ScanResult, error) {
	if s.oracle == nil {
		s.recorder.RecordAnalysis(source, metrics.OutcomeFailed)
		return nil, model.NewAnalysisFailedError()
	}

	callCtx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()

	raw, err := s.oracle.Complete(callCtx, req)
	if err != nil {
		s.logger.Error("製品解析のオラクル呼び出しに失敗しました",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		s.recorder.RecordAnalysis(source, metrics.OutcomeFailed)
		return nil, model.NewAnalysisFailedError()
	}

	result, err := oracle.ParseAnalysis(raw)
	if err != nil {
		var nf *oracle.NotFoodError
		if errors.As(err, &nf) {
			s.recorder.RecordAnalysis(source, outcomeNotFood)
			return nil, model.NewNotFoodError(nf.Message)
		}
		s.logger.Error("製品解析の応答のパースに失敗しました",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		s.recorder.RecordAnalysis(source, metrics.OutcomeFailed)
		return nil, model.NewAnalysisFailedError()
	}

	s.sanitize(result)
	result.Normalize()
	if err := result.Validate(); err != nil {
		s.logger.Error("製品解析の結果が不正です",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		s.recorder.RecordAnalysis(source, metrics.OutcomeFailed)
		return nil, model.NewAnalysisFailedError()
	}

	result.ID = uuid.NewString()
	result.ScanDate = s.now().UTC()
	result.IsFavorite = false
	return result, nil
}

// finish は代替製品の画像補完と履歴保存を行う。どちらも失敗しても解析結果は返す。
func (s *Service) finish(ctx context.Context, source, deviceID string, result *model.ScanResult) {
	s.enricher.Enrich(ctx, result.Alternatives)

	if s.history != nil && deviceID != "" {
		if err := s.history.Add(ctx, deviceID, result); err != nil {
			s.logger.Warn("スキャン履歴への保存に失敗しました",
				slog.String("scan_id", result.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.recorder.RecordAnalysis(source, metrics.OutcomeOK)
	s.logger.Info("製品解析が完了しました",
		slog.String("source", source),
		slog.String("scan_id", result.ID),
		slog.Float64("score", result.Score),
		slog.Int("flags", len(result.Flags)),
		slog.Int("alternatives", len(result.Alternatives)),
	)
}

// sanitize はオラクル由来の自由文からマークアップを除去する。
func (s *Service) sanitize(result *model.ScanResult) {
	if s.sanitizer == nil {
		return
	}
	clean := s.sanitizer.SanitizeText
	result.ProductName = clean(result.ProductName)
	result.Brand = clean(result.Brand)
	result.Category = clean(result.Category)
	for i := range result.Flags {
		result.Flags[i].Term = clean(result.Flags[i].Term)
		result.Flags[i].Explain = clean(result.Flags[i].Explain)
	}
	for i := range result.Alternatives {
		alt := &result.Alternatives[i]
		alt.Name = clean(alt.Name)
		alt.Brand = clean(alt.Brand)
		alt.WhyBetter = clean(alt.WhyBetter)
		for j := range alt.KeyDifferences {
			alt.KeyDifferences[j] = clean(alt.KeyDifferences[j])
		}
	}
}

// DecodeImage はbase64文字列（data URL形式も可）を画像データにデコードし、MIMEタイプを判定する。
func DecodeImage(encoded string) ([]byte, string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, "", fmt.Errorf("image data is required")
	}
	if strings.HasPrefix(encoded, "data:") {
		_, payload, ok := strings.Cut(encoded, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		encoded = payload
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxImageSize {
		return nil, "", fmt.Errorf("image exceeds %d bytes", MaxImageSize)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("image data is not valid base64")
		}
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", fmt.Errorf("image data is not a supported image (%s)", mime)
	}
	return data, mime, nil
}
