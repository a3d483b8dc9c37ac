// Package preferences は端末ごとのユーザー設定（避けたい原材料）を管理するドメインロジックを提供する。
package preferences

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/scanscore/internal/model"
	"github.com/hitoshi/scanscore/internal/repository"
)

// Service はユーザー設定のサービス層。
type Service struct {
	repo repository.PreferencesRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.PreferencesRepository) *Service {
	return &Service{repo: repo}
}

// Get は端末の設定を返す。未保存の場合は既定値を返す。
func (s *Service) Get(ctx context.Context, deviceID string) (model.UserPreferences, error) {
	prefs, err := s.repo.FindByDeviceID(ctx, deviceID)
	if err != nil {
		return model.UserPreferences{}, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}
	if prefs == nil {
		return model.DefaultPreferences(), nil
	}
	return *prefs, nil
}

// Update は端末の設定を保存して保存後の値を返す。
func (s *Service) Update(ctx context.Context, deviceID string, prefs model.UserPreferences) (model.UserPreferences, error) {
	if err := s.repo.Upsert(ctx, deviceID, prefs); err != nil {
		return model.UserPreferences{}, fmt.Errorf("ユーザー設定の保存に失敗しました: %w", err)
	}

	slog.Info("ユーザー設定を更新しました",
		slog.String("device_id", deviceID),
		slog.Int("avoided", len(prefs.AvoidedIngredients())),
	)
	return prefs, nil
}

// Resolve は解析リクエストに使う設定を決める。
// リクエストで明示された設定を優先し、なければ端末の保存済み設定を使う。
// 端末IDがない場合や取得に失敗した場合は既定値を使う。
func (s *Service) Resolve(ctx context.Context, deviceID string, explicit *model.UserPreferences) *model.UserPreferences {
	if explicit != nil {
		return explicit
	}
	if deviceID == "" {
		prefs := model.DefaultPreferences()
		return &prefs
	}
	prefs, err := s.Get(ctx, deviceID)
	if err != nil {
		slog.Warn("ユーザー設定の取得に失敗したため既定値を使います",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
		prefs = model.DefaultPreferences()
	}
	return &prefs
}
