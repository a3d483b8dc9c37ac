package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockPruner はScanPrunerのモック実装。
type mockPruner struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	deleted int64
	err     error
}

func (m *mockPruner) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.deleted, m.err
}

func (m *mockPruner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewCleanupJob_DefaultRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{}, newTestLogger(&buf), 0)

	if job.RetentionDays != DefaultRetentionDays {
		t.Errorf("RetentionDays = %d, want %d", job.RetentionDays, DefaultRetentionDays)
	}
}

func TestCleanupJob_Run_UsesCutoff(t *testing.T) {
	var buf bytes.Buffer
	pruner := &mockPruner{deleted: 5}
	job := NewCleanupJob(pruner, newTestLogger(&buf), 30)
	now := time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	want := time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC)
	if len(pruner.cutoffs) != 1 || !pruner.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", pruner.cutoffs, want)
	}
}

func TestCleanupJob_Run_LogsResult(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{deleted: 3}, newTestLogger(&buf), 365)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("ログのパースに失敗: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "スキャン履歴クリーンアップジョブが完了しました" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["deleted_count"] != float64(3) {
		t.Errorf("deleted_count = %v, want 3", entry["deleted_count"])
	}
	if entry["retention_days"] != float64(365) {
		t.Errorf("retention_days = %v, want 365", entry["retention_days"])
	}
}

type evictionCounter struct {
	counts []int
}

func (e *evictionCounter) RecordHistoryEvictions(count int) {
	e.counts = append(e.counts, count)
}

func TestCleanupJob_Run_RecordsEvictions(t *testing.T) {
	var buf bytes.Buffer
	counter := &evictionCounter{}
	job := NewCleanupJob(&mockPruner{deleted: 7}, newTestLogger(&buf), 365)
	job.Evictions = counter

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}
	if len(counter.counts) != 1 || counter.counts[0] != 7 {
		t.Errorf("recorded evictions = %v, want [7]", counter.counts)
	}
}

func TestCleanupJob_Run_Error(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{err: errors.New("connection refused")}, newTestLogger(&buf), 365)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("削除に失敗した場合はエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("元のエラーを含むべき: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラーログが出力されるべき: %s", buf.String())
	}
}

func TestCleanupJob_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	pruner := &mockPruner{}
	job := NewCleanupJob(pruner, newTestLogger(&buf), 365)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pruner.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にStartが戻らない")
	}
	if pruner.callCount() < 2 {
		t.Errorf("起動直後とティッカーで実行されるべき: %d回", pruner.callCount())
	}
}
