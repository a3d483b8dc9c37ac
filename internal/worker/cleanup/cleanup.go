// Package cleanup はスキャン履歴の自動削除ジョブを提供する。
// 保持期間（デフォルト365日）を超過したスキャンを全端末について日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays はスキャン履歴の既定の保持日数。
const DefaultRetentionDays = 365

// ScanPruner は古いスキャンを削除するインターフェース。
type ScanPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EvictionRecorder は削除件数を記録するインターフェース。
type EvictionRecorder interface {
	RecordHistoryEvictions(count int)
}

// CleanupJob は保持期間を超過したスキャンの自動削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	repo          ScanPruner
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int              // スキャンの保持日数
	Evictions     EvictionRecorder // nilの場合は記録しない
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合はDefaultRetentionDaysを使う。
func NewCleanupJob(repo ScanPruner, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		repo:          repo,
		logger:        logger,
		now:           time.Now,
		RetentionDays: retentionDays,
	}
}

// Run は保持期間を超過したスキャンを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("スキャン履歴クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("スキャン履歴クリーンアップの実行に失敗: %w", err)
	}
	if j.Evictions != nil {
		j.Evictions.RecordHistoryEvictions(int(deletedCount))
	}

	j.logger.Info("スキャン履歴クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はジョブを起動直後に1回、その後interval毎に実行する。
// コンテキストがキャンセルされるまで戻らない。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("スキャン履歴クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
