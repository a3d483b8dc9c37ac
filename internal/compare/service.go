package compare

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hitoshi/scanscore/internal/metrics"
	"github.com/hitoshi/scanscore/internal/model"
	"github.com/hitoshi/scanscore/internal/oracle"
)

// DefaultOracleTimeout は比較用オラクル呼び出しの既定タイムアウト。
const DefaultOracleTimeout = 45 * time.Second

// DefaultNutritionTimeout は栄養成分補完の既定タイムアウト。
const DefaultNutritionTimeout = 5 * time.Second

// NutritionLookup はバーコードから栄養成分を取得するインターフェース。
// 見つからない場合はnil, nilを返す。
type NutritionLookup interface {
	LookupNutrition(ctx context.Context, barcode string) (*model.NutritionData, error)
}

// TextSanitizer はオラクルの自由文からマークアップを除去するインターフェース。
type TextSanitizer interface {
	SanitizeText(text string) string
}

// ComparisonRecorder は比較結果の計測インターフェース。
type ComparisonRecorder interface {
	RecordComparison(outcome string)
}

// Service は2製品の比較を統括するサービス層。
// 入力検証 → 栄養成分補完 → フラグ照合・カテゴリ比較 → オラクル呼び出し → 結果組み立て のフローを実行する。
// リクエスト間で状態を共有しない。
type Service struct {
	oracle           oracle.Completer
	nutrition        NutritionLookup
	sanitizer        TextSanitizer
	recorder         ComparisonRecorder
	logger           *slog.Logger
	oracleTimeout    time.Duration
	nutritionTimeout time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
// nutrition・sanitizer・recorderはnilでもよい。タイムアウトが0以下の場合は既定値を使う。
func NewService(
	completer oracle.Completer,
	nutrition NutritionLookup,
	sanitizer TextSanitizer,
	recorder ComparisonRecorder,
	logger *slog.Logger,
	oracleTimeout time.Duration,
	nutritionTimeout time.Duration,
) *Service {
	if oracleTimeout <= 0 {
		oracleTimeout = DefaultOracleTimeout
	}
	if nutritionTimeout <= 0 {
		nutritionTimeout = DefaultNutritionTimeout
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		oracle:           completer,
		nutrition:        nutrition,
		sanitizer:        sanitizer,
		recorder:         recorder,
		logger:           logger,
		oracleTimeout:    oracleTimeout,
		nutritionTimeout: nutritionTimeout,
	}
}

// Compare は2製品を比較し、比較結果を返す。
//
// 入力が形状検証に失敗した場合はオラクルを呼ばずにinvalid_productsを返す。
// オラクルの失敗や不正な応答はエラーにせず、曝露一覧を空にして定型の推奨文を使う。
// 想定外のpanicはcomparison_failedとして返す。
// 同一IDの製品同士でも内容のみに基づいて比較する。
func (s *Service) Compare(ctx context.Context, p1, p2 *model.ScanResult) (result *model.ComparisonResult, err error) {
	if verr := p1.Validate(); verr != nil {
		s.recorder.RecordComparison(metrics.OutcomeInvalid)
		return nil, model.NewInvalidProductsError("product1: " + verr.Error())
	}
	if verr := p2.Validate(); verr != nil {
		s.recorder.RecordComparison(metrics.OutcomeInvalid)
		return nil, model.NewInvalidProductsError("product2: " + verr.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("製品比較中にpanicが発生しました",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			s.recorder.RecordComparison(metrics.OutcomeFailed)
			result = nil
			err = model.NewComparisonFailedError()
		}
	}()

	a := canonicalCopy(p1)
	b := canonicalCopy(p2)
	s.enrichNutrition(ctx, &a)
	s.enrichNutrition(ctx, &b)

	winner, diff := DetermineWinner(a.Score, b.Score)
	partition := ReconcileFlags(a.Flags, b.Flags)
	categories := CompareCategories(a.Breakdown, b.Breakdown)

	exposures, recommendation, degraded := s.consultOracle(ctx, &a, &b, winner, partition)

	outcome := metrics.OutcomeOK
	if degraded {
		outcome = metrics.OutcomeDegraded
	}
	s.recorder.RecordComparison(outcome)
	s.logger.Info("製品比較が完了しました",
		slog.String("winner", string(winner)),
		slog.Float64("score_difference", diff),
		slog.Int("shared_flags", len(partition.Shared)),
		slog.Int("chemical_exposures", len(exposures)),
		slog.Bool("degraded", degraded),
	)

	return &model.ComparisonResult{
		Product1:           a,
		Product2:           b,
		Winner:             winner,
		ScoreDifference:    diff,
		Recommendation:     recommendation,
		SharedFlags:        partition.Shared,
		UniqueToProduct1:   partition.UniqueToProduct1,
		UniqueToProduct2:   partition.UniqueToProduct2,
		ChemicalExposures:  exposures,
		CategoryComparison: categories,
	}, nil
}

// consultOracle は化学物質曝露と推奨文をオラクルに1回だけ問い合わせる。
// 失敗時は空の曝露一覧と定型の推奨文を返し、degradedをtrueにする。
func (s *Service) consultOracle(
	ctx context.Context,
	a, b *model.ScanResult,
	winner model.Winner,
	partition FlagPartition,
) (exposures []model.ChemicalExposureInfo, recommendation string, degraded bool) {
	fallback := func(reason string, err error) ([]model.ChemicalExposureInfo, string, bool) {
		s.logger.Warn("オラクルによる比較補完を利用できないため定型の推奨文を使用します",
			slog.String("reason", reason),
			slog.Any("error", err),
		)
		return []model.ChemicalExposureInfo{}, FallbackRecommendation(winner, a, b), true
	}

	if s.oracle == nil {
		return fallback("oracle_disabled", nil)
	}

	concerning := partition.ConcerningOnly()
	req := oracle.ComparisonRequest(oracle.ComparisonContext{
		Product1: oracle.ComparisonProduct{Name: a.ProductName, Brand: a.Brand, Score: a.Score},
		Product2: oracle.ComparisonProduct{Name: b.ProductName, Brand: b.Brand, Score: b.Score},
		Winner:   winner,
		Shared:   terms(concerning.Shared),
		Unique1:  terms(concerning.UniqueToProduct1),
		Unique2:  terms(concerning.UniqueToProduct2),
	})

	oracleCtx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()

	raw, err := s.oracle.Complete(oracleCtx, req)
	if err != nil {
		reason := "oracle_error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "oracle_timeout"
		}
		return fallback(reason, err)
	}

	parsed, err := oracle.ParseComparison(raw)
	if err != nil {
		return fallback("malformed_response", err)
	}

	exposures = ClassifyExposures(parsed, partition)
	recommendation = parsed.Recommendation
	if s.sanitizer != nil {
		recommendation = s.sanitizer.SanitizeText(recommendation)
		for i := range exposures {
			exposures[i].HealthImplication = s.sanitizer.SanitizeText(exposures[i].HealthImplication)
		}
	}
	if recommendation == "" {
		recommendation = FallbackRecommendation(winner, a, b)
	}

	return exposures, recommendation, false
}

// enrichNutrition は栄養成分を持たずバーコードを持つ製品について、栄養成分の取得を試みる。
// 取得に失敗しても比較は継続する。
func (s *Service) enrichNutrition(ctx context.Context, p *model.ScanResult) {
	if s.nutrition == nil || p.Barcode == "" || !p.Nutrition.IsEmpty() {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.nutritionTimeout)
	defer cancel()

	n, err := s.nutrition.LookupNutrition(lookupCtx, p.Barcode)
	if err != nil {
		s.logger.Warn("栄養成分の補完に失敗しました",
			slog.String("barcode", p.Barcode),
			slog.String("error", err.Error()),
		)
		return
	}
	if !n.IsEmpty() {
		p.Nutrition = n
	}
}

// canonicalCopy は呼び出し元の値を変更しないよう製品をコピーし、
// nilのスライスを空スライスに揃える。
func canonicalCopy(p *model.ScanResult) model.ScanResult {
	c := *p
	if c.Flags == nil {
		c.Flags = []model.IngredientFlag{}
	}
	if c.Alternatives == nil {
		c.Alternatives = []model.Alternative{}
	}
	return c
}
