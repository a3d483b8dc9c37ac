package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/scanscore/internal/database"
	"github.com/hitoshi/scanscore/internal/model"
)

// SQLPreferencesRepo はPostgreSQLまたはSQLiteを使用したユーザー設定リポジトリ。
type SQLPreferencesRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLPreferencesRepo はSQLPreferencesRepoを生成する。
func NewSQLPreferencesRepo(db *sql.DB, dialect database.Dialect) *SQLPreferencesRepo {
	return &SQLPreferencesRepo{db: db, dialect: dialect}
}

// FindByDeviceID は端末の設定を取得する。未保存の場合はnilを返す。
func (r *SQLPreferencesRepo) FindByDeviceID(ctx context.Context, deviceID string) (*model.UserPreferences, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		rebind(r.dialect, `SELECT preferences FROM device_preferences WHERE device_id = ?`),
		deviceID,
	).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}

	// 保存後に追加された項目は既定値で補う
	prefs := model.DefaultPreferences()
	if err := json.Unmarshal(payload, &prefs); err != nil {
		return nil, fmt.Errorf("ユーザー設定のデコードに失敗しました: %w", err)
	}
	return &prefs, nil
}

// Upsert は端末の設定を冪等に保存する。
func (r *SQLPreferencesRepo) Upsert(ctx context.Context, deviceID string, prefs model.UserPreferences) error {
	payload, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("ユーザー設定のエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		rebind(r.dialect, `INSERT INTO device_preferences (device_id, preferences, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (device_id) DO UPDATE SET
		     preferences = excluded.preferences,
		     updated_at = CURRENT_TIMESTAMP`),
		deviceID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("ユーザー設定の保存に失敗しました: %w", err)
	}
	return nil
}

var _ PreferencesRepository = (*SQLPreferencesRepo)(nil)
