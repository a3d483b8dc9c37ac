package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/scanscore/internal/database"
	"github.com/hitoshi/scanscore/internal/model"
)

// SQLScanRepo はPostgreSQLまたはSQLiteを使用したスキャン履歴リポジトリ。
// スキャン全体はpayload列にJSONで保存し、検索・並び替えに使う列のみ個別に持つ。
type SQLScanRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLScanRepo はSQLScanRepoを生成する。
func NewSQLScanRepo(db *sql.DB, dialect database.Dialect) *SQLScanRepo {
	return &SQLScanRepo{db: db, dialect: dialect}
}

func (r *SQLScanRepo) q(query string) string {
	return rebind(r.dialect, query)
}

// List は端末のスキャン履歴をスキャン日時の新しい順に返す。
func (r *SQLScanRepo) List(ctx context.Context, deviceID string, limit int) ([]*model.ScanResult, error) {
	query := `SELECT payload, is_favorite FROM scans
		 WHERE device_id = ?
		 ORDER BY scanned_at DESC, id DESC`
	args := []any{deviceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("スキャン履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	scans := []*model.ScanResult{}
	for rows.Next() {
		var payload []byte
		var favorite bool
		if err := rows.Scan(&payload, &favorite); err != nil {
			return nil, fmt.Errorf("スキャン履歴のスキャンに失敗しました: %w", err)
		}
		scan, err := decodeScan(payload, favorite)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("スキャン履歴の走査に失敗しました: %w", err)
	}
	return scans, nil
}

// FindByID は指定IDのスキャンを取得する。見つからない場合はnilを返す。
func (r *SQLScanRepo) FindByID(ctx context.Context, deviceID, id string) (*model.ScanResult, error) {
	var payload []byte
	var favorite bool
	err := r.db.QueryRowContext(ctx,
		r.q(`SELECT payload, is_favorite FROM scans WHERE device_id = ? AND id = ?`),
		deviceID, id,
	).Scan(&payload, &favorite)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スキャンの取得に失敗しました: %w", err)
	}
	return decodeScan(payload, favorite)
}

// Save はスキャンを保存する。IDは端末ごとに一意で、同じ端末に同一IDがあれば上書きする。
// 別の端末が同じIDを使っていても互いに影響しない。
func (r *SQLScanRepo) Save(ctx context.Context, deviceID string, scan *model.ScanResult) error {
	if scan == nil || scan.ID == "" {
		return fmt.Errorf("保存するスキャンにIDがありません")
	}
	payload, err := json.Marshal(scan)
	if err != nil {
		return fmt.Errorf("スキャンのエンコードに失敗しました: %w", err)
	}
	scannedAt := scan.ScanDate
	if scannedAt.IsZero() {
		scannedAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx,
		r.q(`INSERT INTO scans (id, device_id, product_name, score, is_favorite, scanned_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (device_id, id) DO UPDATE SET
		     product_name = excluded.product_name,
		     score = excluded.score,
		     is_favorite = excluded.is_favorite,
		     scanned_at = excluded.scanned_at,
		     payload = excluded.payload`),
		scan.ID, deviceID, scan.ProductName, scan.Score, scan.IsFavorite, scannedAt.UnixMilli(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("スキャンの保存に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのスキャンを削除する。
func (r *SQLScanRepo) Delete(ctx context.Context, deviceID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		r.q(`DELETE FROM scans WHERE device_id = ? AND id = ?`),
		deviceID, id,
	)
	if err != nil {
		return false, fmt.Errorf("スキャンの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteByDeviceID は端末のスキャン履歴を全て削除する。
func (r *SQLScanRepo) DeleteByDeviceID(ctx context.Context, deviceID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		r.q(`DELETE FROM scans WHERE device_id = ?`),
		deviceID,
	)
	if err != nil {
		return 0, fmt.Errorf("スキャン履歴の削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// SetFavorite はお気に入り状態を更新する。
func (r *SQLScanRepo) SetFavorite(ctx context.Context, deviceID, id string, favorite bool) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		r.q(`UPDATE scans SET is_favorite = ? WHERE device_id = ? AND id = ?`),
		favorite, deviceID, id,
	)
	if err != nil {
		return false, fmt.Errorf("お気に入りの更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// TrimToCapacity は新しい順にcapacity件を残して古いスキャンを削除する。
func (r *SQLScanRepo) TrimToCapacity(ctx context.Context, deviceID string, capacity int) (int64, error) {
	if capacity < 0 {
		capacity = 0
	}
	result, err := r.db.ExecContext(ctx,
		r.q(`DELETE FROM scans
		 WHERE device_id = ? AND id NOT IN (
		     SELECT id FROM scans WHERE device_id = ?
		     ORDER BY scanned_at DESC, id DESC
		     LIMIT ?
		 )`),
		deviceID, deviceID, capacity,
	)
	if err != nil {
		return 0, fmt.Errorf("スキャン履歴の切り詰めに失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// DeleteOlderThan はcutoffより前のスキャンを全端末について削除する。
func (r *SQLScanRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		r.q(`DELETE FROM scans WHERE scanned_at < ?`),
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("古いスキャンの削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

func decodeScan(payload []byte, favorite bool) (*model.ScanResult, error) {
	var scan model.ScanResult
	if err := json.Unmarshal(payload, &scan); err != nil {
		return nil, fmt.Errorf("スキャンのデコードに失敗しました: %w", err)
	}
	scan.IsFavorite = favorite
	return &scan, nil
}

var _ ScanRepository = (*SQLScanRepo)(nil)
