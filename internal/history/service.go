// Package history は端末ごとのスキャン履歴を管理するドメインロジックを提供する。
// 履歴は新しい順に保持し、上限を超えた古いスキャンは保存時に削除する。
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/scanscore/internal/metrics"
	"github.com/hitoshi/scanscore/internal/model"
	"github.com/hitoshi/scanscore/internal/repository"
)

// DefaultCapacity は端末あたりの履歴の既定上限。
const DefaultCapacity = 50

// EvictionRecorder は上限超過による削除件数の計測インターフェース。
type EvictionRecorder interface {
	RecordHistoryEvictions(count int)
}

// Service はスキャン履歴のサービス層。
type Service struct {
	repo     repository.ScanRepository
	recorder EvictionRecorder
	logger   *slog.Logger
	capacity int
}

// NewService はServiceの新しいインスタンスを生成する。
// capacityが0以下の場合はDefaultCapacityを使う。
func NewService(repo repository.ScanRepository, recorder EvictionRecorder, logger *slog.Logger, capacity int) *Service {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		recorder: recorder,
		logger:   logger,
		capacity: capacity,
	}
}

// Capacity は端末あたりの履歴の上限を返す。
func (s *Service) Capacity() int {
	return s.capacity
}

// List は端末のスキャン履歴を新しい順に返す。
func (s *Service) List(ctx context.Context, deviceID string) ([]*model.ScanResult, error) {
	scans, err := s.repo.List(ctx, deviceID, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("スキャン履歴の取得に失敗しました: %w", err)
	}
	return scans, nil
}

// MaxScanIDLength はスキャンIDの最大バイト数。IDはクライアントが採番することもある。
const MaxScanIDLength = 255

// Add はスキャンを履歴の先頭に追加し、上限を超えた古いスキャンを削除する。
func (s *Service) Add(ctx context.Context, deviceID string, scan *model.ScanResult) error {
	if err := scan.Validate(); err != nil {
		return model.NewInvalidRequestError(err.Error())
	}
	if strings.TrimSpace(scan.ID) == "" {
		return model.NewInvalidRequestError("id is required")
	}
	if len(scan.ID) > MaxScanIDLength {
		return model.NewInvalidRequestError(fmt.Sprintf("id must be at most %d bytes", MaxScanIDLength))
	}

	if err := s.repo.Save(ctx, deviceID, scan); err != nil {
		return fmt.Errorf("スキャン履歴への追加に失敗しました: %w", err)
	}

	evicted, err := s.repo.TrimToCapacity(ctx, deviceID, s.capacity)
	if err != nil {
		return fmt.Errorf("スキャン履歴の切り詰めに失敗しました: %w", err)
	}
	if evicted > 0 {
		s.recorder.RecordHistoryEvictions(int(evicted))
		s.logger.Info("上限を超えたスキャン履歴を削除しました",
			slog.String("device_id", deviceID),
			slog.Int64("evicted", evicted),
			slog.Int("capacity", s.capacity),
		)
	}
	return nil
}

// Get は指定IDのスキャンを返す。存在しない場合はscan_not_foundエラーを返す。
func (s *Service) Get(ctx context.Context, deviceID, id string) (*model.ScanResult, error) {
	scan, err := s.repo.FindByID(ctx, deviceID, id)
	if err != nil {
		return nil, fmt.Errorf("スキャンの取得に失敗しました: %w", err)
	}
	if scan == nil {
		return nil, model.NewScanNotFoundError(id)
	}
	return scan, nil
}

// Remove は指定IDのスキャンを履歴から削除する。
func (s *Service) Remove(ctx context.Context, deviceID, id string) error {
	ok, err := s.repo.Delete(ctx, deviceID, id)
	if err != nil {
		return fmt.Errorf("スキャンの削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewScanNotFoundError(id)
	}
	return nil
}

// Clear は端末のスキャン履歴を全て削除し、削除件数を返す。
func (s *Service) Clear(ctx context.Context, deviceID string) (int64, error) {
	n, err := s.repo.DeleteByDeviceID(ctx, deviceID)
	if err != nil {
		return 0, fmt.Errorf("スキャン履歴の削除に失敗しました: %w", err)
	}
	s.logger.Info("スキャン履歴を削除しました",
		slog.String("device_id", deviceID),
		slog.Int64("deleted", n),
	)
	return n, nil
}

// SetFavorite はお気に入り状態を更新し、更新後のスキャンを返す。
func (s *Service) SetFavorite(ctx context.Context, deviceID, id string, favorite bool) (*model.ScanResult, error) {
	ok, err := s.repo.SetFavorite(ctx, deviceID, id, favorite)
	if err != nil {
		return nil, fmt.Errorf("お気に入りの更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewScanNotFoundError(id)
	}
	return s.Get(ctx, deviceID, id)
}
