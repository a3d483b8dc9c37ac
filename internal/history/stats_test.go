package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/scanscore/internal/model"
)

func scanAt(score float64, at time.Time) *model.ScanResult {
	return &model.ScanResult{ProductName: "P", Score: score, ScanDate: at}
}

func TestBuildWeeklyStats(t *testing.T) {
	// 2026-03-11 は水曜日
	now := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)
	scans := []*model.ScanResult{
		scanAt(80, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)),   // 今週の月曜0時
		scanAt(65, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)),  // 今週
		scanAt(90, time.Date(2026, 3, 8, 23, 59, 0, 0, time.UTC)), // 先週の日曜
		scanAt(40, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),   // 範囲外
		nil,
		{ProductName: "no date", Score: 10},
	}

	got := BuildWeeklyStats(scans, 3, now)
	want := []model.WeeklyStats{
		{WeekLabel: "Feb 23 - Mar 1", AvgScore: 0, ScanCount: 0, StartDate: "2026-02-23", EndDate: "2026-03-01"},
		{WeekLabel: "Mar 2 - Mar 8", AvgScore: 90, ScanCount: 1, StartDate: "2026-03-02", EndDate: "2026-03-08"},
		{WeekLabel: "Mar 9 - Mar 15", AvgScore: 72.5, ScanCount: 2, StartDate: "2026-03-09", EndDate: "2026-03-15"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildWeeklyStats mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildWeeklyStats_WeeksBounds(t *testing.T) {
	now := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	if got := len(BuildWeeklyStats(nil, 0, now)); got != DefaultStatsWeeks {
		t.Errorf("weeks=0 → %d週, want %d", got, DefaultStatsWeeks)
	}
	if got := len(BuildWeeklyStats(nil, 100, now)); got != MaxStatsWeeks {
		t.Errorf("weeks=100 → %d週, want %d", got, MaxStatsWeeks)
	}
}

func TestBuildWeeklyStats_RoundsAverage(t *testing.T) {
	now := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	scans := []*model.ScanResult{
		scanAt(70, now), scanAt(71, now), scanAt(71, now),
	}
	got := BuildWeeklyStats(scans, 1, now)
	if got[0].AvgScore != 70.7 {
		t.Errorf("AvgScore = %v, want 70.7", got[0].AvgScore)
	}
}

func TestWeekStart_Sunday(t *testing.T) {
	sunday := time.Date(2026, 3, 15, 22, 0, 0, 0, time.UTC)
	if got := weekStart(sunday); !got.Equal(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("weekStart(Sunday) = %v", got)
	}
}

func TestService_WeeklyStats(t *testing.T) {
	now := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	repo := &mockScanRepo{
		listFn: func(ctx context.Context, deviceID string, limit int) ([]*model.ScanResult, error) {
			return []*model.ScanResult{scanAt(50, now)}, nil
		},
	}
	svc := NewService(repo, nil, nil, 0)

	stats, err := svc.WeeklyStats(context.Background(), "device-1", 2, now)
	if err != nil {
		t.Fatalf("WeeklyStats がエラーを返した: %v", err)
	}
	if len(stats) != 2 || stats[1].ScanCount != 1 || stats[1].AvgScore != 50 {
		t.Errorf("stats = %+v", stats)
	}
}
