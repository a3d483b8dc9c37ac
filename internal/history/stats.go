package history

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hitoshi/scanscore/internal/model"
)

const (
	// DefaultStatsWeeks は週次集計の既定週数。
	DefaultStatsWeeks = 4
	// MaxStatsWeeks は週次集計で指定できる最大週数。
	MaxStatsWeeks = 12
)

// WeeklyStats は直近weeks週分のスキャン集計を古い順に返す。
// スキャンのない週も件数0で含める。
func (s *Service) WeeklyStats(ctx context.Context, deviceID string, weeks int, now time.Time) ([]model.WeeklyStats, error) {
	scans, err := s.List(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("週次集計の取得に失敗しました: %w", err)
	}
	return BuildWeeklyStats(scans, weeks, now), nil
}

// BuildWeeklyStats はスキャン一覧から週次集計を組み立てる。
// 週は月曜0時（UTC）始まりで、nowを含む週が最後の要素になる。
func BuildWeeklyStats(scans []*model.ScanResult, weeks int, now time.Time) []model.WeeklyStats {
	if weeks <= 0 {
		weeks = DefaultStatsWeeks
	}
	if weeks > MaxStatsWeeks {
		weeks = MaxStatsWeeks
	}

	current := weekStart(now)
	first := current.AddDate(0, 0, -7*(weeks-1))

	sums := make([]float64, weeks)
	counts := make([]int, weeks)
	for _, scan := range scans {
		if scan == nil || scan.ScanDate.IsZero() {
			continue
		}
		idx := int(weekStart(scan.ScanDate).Sub(first).Hours() / (24 * 7))
		if idx < 0 || idx >= weeks {
			continue
		}
		sums[idx] += scan.Score
		counts[idx]++
	}

	stats := make([]model.WeeklyStats, weeks)
	for i := range stats {
		start := first.AddDate(0, 0, 7*i)
		end := start.AddDate(0, 0, 6)
		avg := 0.0
		if counts[i] > 0 {
			avg = math.Round(sums[i]/float64(counts[i])*10) / 10
		}
		stats[i] = model.WeeklyStats{
			WeekLabel: start.Format("Jan 2") + " - " + end.Format("Jan 2"),
			AvgScore:  avg,
			ScanCount: counts[i],
			StartDate: start.Format("2006-01-02"),
			EndDate:   end.Format("2006-01-02"),
		}
	}
	return stats
}

// weekStart はtを含む週の月曜0時（UTC）を返す。
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
