package scan

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hitoshi/scanscore/internal/metrics"
	"github.com/hitoshi/scanscore/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockImageFinder はImageFinderのモック実装。
type mockImageFinder struct {
	findImageFn func(ctx context.Context, name, brand string) (string, error)
}

func (m *mockImageFinder) FindImage(ctx context.Context, name, brand string) (string, error) {
	return m.findImageFn(ctx, name, brand)
}

// mockRecorder は計測呼び出しを記録するモック。
type mockRecorder struct {
	mu       sync.Mutex
	images   []string
	analyses []string
}

func (r *mockRecorder) RecordImageLookup(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, outcome)
}

func (r *mockRecorder) RecordAnalysis(source, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses = append(r.analyses, source+":"+outcome)
}

func (r *mockRecorder) count(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.images {
		if o == outcome {
			n++
		}
	}
	return n
}

func TestAlternativeEnricher_Enrich(t *testing.T) {
	finder := &mockImageFinder{
		findImageFn: func(ctx context.Context, name, brand string) (string, error) {
			switch name {
			case "KIND Bar":
				return "https://images.example/kind.jpg", nil
			case "Broken":
				return "", errors.New("connection reset")
			default:
				return "", nil
			}
		},
	}
	rec := &mockRecorder{}
	var buf bytes.Buffer
	e := NewAlternativeEnricher(finder, rec, newTestLogger(&buf), time.Second, 2)

	alts := []model.Alternative{
		{Name: "KIND Bar", Brand: "KIND"},
		{Name: "Broken"},
		{Name: "Obscure Bar"},
		{Name: "Preset", ImageURL: "https://images.example/preset.jpg"},
	}
	e.Enrich(context.Background(), alts)

	if alts[0].ImageURL != "https://images.example/kind.jpg" {
		t.Errorf("alts[0].ImageURL = %q", alts[0].ImageURL)
	}
	if alts[1].ImageURL != "" || alts[2].ImageURL != "" {
		t.Errorf("失敗・未検出の代替製品は画像なしのままであるべき: %q, %q", alts[1].ImageURL, alts[2].ImageURL)
	}
	if alts[3].ImageURL != "https://images.example/preset.jpg" {
		t.Error("既存の画像URLは上書きしてはならない")
	}
	if rec.count(metrics.ImageFound) != 1 || rec.count(metrics.ImageFailed) != 1 || rec.count(metrics.ImageMissing) != 1 {
		t.Errorf("計測 = %v", rec.images)
	}
}

func TestAlternativeEnricher_TimeoutPerLookup(t *testing.T) {
	finder := &mockImageFinder{
		findImageFn: func(ctx context.Context, name, brand string) (string, error) {
			if name == "Slow" {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return "https://images.example/" + name + ".jpg", nil
		},
	}
	var buf bytes.Buffer
	e := NewAlternativeEnricher(finder, nil, newTestLogger(&buf), 50*time.Millisecond, 4)

	alts := []model.Alternative{{Name: "Slow"}, {Name: "Fast"}}
	start := time.Now()
	e.Enrich(context.Background(), alts)

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("タイムアウトで打ち切られるべき: %v", elapsed)
	}
	if alts[0].ImageURL != "" {
		t.Errorf("タイムアウトした代替製品は画像なしであるべき: %q", alts[0].ImageURL)
	}
	if alts[1].ImageURL != "https://images.example/Fast.jpg" {
		t.Errorf("他の代替製品は影響を受けないべき: %q", alts[1].ImageURL)
	}
}

func TestAlternativeEnricher_ConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	finder := &mockImageFinder{
		findImageFn: func(ctx context.Context, name, brand string) (string, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return "", nil
		},
	}
	e := NewAlternativeEnricher(finder, nil, nil, time.Second, 2)

	alts := make([]model.Alternative, 8)
	for i := range alts {
		alts[i].Name = "alt"
	}
	e.Enrich(context.Background(), alts)

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("同時実行数 = %d, want <= 2", got)
	}
}

func TestAlternativeEnricher_CanceledContext(t *testing.T) {
	called := false
	finder := &mockImageFinder{
		findImageFn: func(ctx context.Context, name, brand string) (string, error) {
			called = true
			return "x", nil
		},
	}
	rec := &mockRecorder{}
	e := NewAlternativeEnricher(finder, rec, nil, time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	alts := []model.Alternative{{Name: "A"}}
	e.Enrich(ctx, alts)

	if called {
		t.Error("キャンセル済みのコンテキストでは検索しないべき")
	}
	if alts[0].ImageURL != "" {
		t.Errorf("ImageURL = %q", alts[0].ImageURL)
	}
}

func TestAlternativeEnricher_NilSafe(t *testing.T) {
	var e *AlternativeEnricher
	e.Enrich(context.Background(), []model.Alternative{{Name: "A"}})

	NewAlternativeEnricher(nil, nil, nil, 0, 0).Enrich(context.Background(), []model.Alternative{{Name: "A"}})
}
