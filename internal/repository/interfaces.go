// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/scanscore/internal/model"
)

// ScanRepository はスキャン履歴の永続化インターフェース。
// すべての操作は端末IDでスコープされ、他の端末のスキャンには触れない。
type ScanRepository interface {
	// List は端末のスキャン履歴をスキャン日時の新しい順に最大limit件返す。
	// limitが0以下の場合は全件を返す。
	List(ctx context.Context, deviceID string, limit int) ([]*model.ScanResult, error)

	// FindByID は指定IDのスキャンを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, deviceID, id string) (*model.ScanResult, error)

	// Save はスキャンを保存する。同一IDが既に存在する場合は上書きする。
	Save(ctx context.Context, deviceID string, scan *model.ScanResult) error

	// Delete は指定IDのスキャンを削除する。削除対象がなければfalseを返す。
	Delete(ctx context.Context, deviceID, id string) (bool, error)

	// DeleteByDeviceID は端末のスキャン履歴を全て削除し、削除件数を返す。
	DeleteByDeviceID(ctx context.Context, deviceID string) (int64, error)

	// SetFavorite はお気に入り状態を更新する。対象がなければfalseを返す。
	SetFavorite(ctx context.Context, deviceID, id string, favorite bool) (bool, error)

	// TrimToCapacity は新しい順にcapacity件を残して古いスキャンを削除し、削除件数を返す。
	TrimToCapacity(ctx context.Context, deviceID string, capacity int) (int64, error)

	// DeleteOlderThan は全端末についてcutoffより前のスキャンを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PreferencesRepository は端末ごとのユーザー設定の永続化インターフェース。
type PreferencesRepository interface {
	// FindByDeviceID は端末の設定を取得する。未保存の場合はnilを返す。
	FindByDeviceID(ctx context.Context, deviceID string) (*model.UserPreferences, error)

	// Upsert は端末の設定を冪等に保存する。
	Upsert(ctx context.Context, deviceID string, prefs model.UserPreferences) error
}
