package scan

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/scanscore/internal/metrics"
	"github.com/hitoshi/scanscore/internal/model"
)

const (
	// DefaultImageLookupTimeout は代替製品1件あたりの画像検索タイムアウト。
	DefaultImageLookupTimeout = 5 * time.Second
	// DefaultImageLookupConcurrency は画像検索の同時実行数。
	DefaultImageLookupConcurrency = 4
)

// ImageFinder は製品名から画像URLを検索するインターフェース。
// 見つからない場合は空文字列を返す。
type ImageFinder interface {
	FindImage(ctx context.Context, name, brand string) (string, error)
}

// ImageLookupRecorder は画像検索結果の計測インターフェース。
type ImageLookupRecorder interface {
	RecordImageLookup(outcome string)
}

// AlternativeEnricher は代替製品に画像URLを付与する。
// 検索は並行に行い、失敗した代替製品は画像なしのまま残す。
type AlternativeEnricher struct {
	finder      ImageFinder
	recorder    ImageLookupRecorder
	logger      *slog.Logger
	timeout     time.Duration
	concurrency int
}

// NewAlternativeEnricher はAlternativeEnricherの新しいインスタンスを生成する。
func NewAlternativeEnricher(
	finder ImageFinder,
	recorder ImageLookupRecorder,
	logger *slog.Logger,
	timeout time.Duration,
	concurrency int,
) *AlternativeEnricher {
	if timeout <= 0 {
		timeout = DefaultImageLookupTimeout
	}
	if concurrency <= 0 {
		concurrency = DefaultImageLookupConcurrency
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AlternativeEnricher{
		finder:      finder,
		recorder:    recorder,
		logger:      logger,
		timeout:     timeout,
		concurrency: concurrency,
	}
}

// Enrich は画像URLを持たない代替製品の画像を検索して設定する。
// 各ゴルーチンは自分のインデックスのみ書き込むため、ロックは不要。
// 全ての検索が終わるまで戻らない。
func (e *AlternativeEnricher) Enrich(ctx context.Context, alts []model.Alternative) {
	if e == nil || e.finder == nil || len(alts) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i := range alts {
		if alts[i].ImageURL != "" || alts[i].Name == "" {
			continue
		}
		g.Go(func() error {
			alts[i].ImageURL = e.lookup(ctx, alts[i].Name, alts[i].Brand)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *AlternativeEnricher) lookup(ctx context.Context, name, brand string) string {
	if ctx.Err() != nil {
		e.recorder.RecordImageLookup(metrics.ImageFailed)
		return ""
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	url, err := e.finder.FindImage(lookupCtx, name, brand)
	if err != nil {
		e.recorder.RecordImageLookup(metrics.ImageFailed)
		e.logger.Warn("代替製品の画像検索に失敗しました",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return ""
	}
	if url == "" {
		e.recorder.RecordImageLookup(metrics.ImageMissing)
		return ""
	}
	e.recorder.RecordImageLookup(metrics.ImageFound)
	return url
}
