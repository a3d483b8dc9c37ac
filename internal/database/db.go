package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect はSQL方言を表す。
type Dialect string

const (
	// DialectPostgres はPostgreSQL（lib/pq）。
	DialectPostgres Dialect = "postgres"
	// DialectSQLite はSQLite（modernc.org/sqlite）。
	DialectSQLite Dialect = "sqlite"
)

const sqliteScheme = "sqlite://"

// DetectDialect はデータベースURLのスキームからSQL方言を判定する。
// postgres:// / postgresql:// はPostgreSQL、sqlite:// はSQLiteとして扱う。
func DetectDialect(databaseURL string) (Dialect, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DialectPostgres, nil
	case strings.HasPrefix(databaseURL, sqliteScheme):
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme: %s", maskScheme(databaseURL))
	}
}

// Open はデータベース接続を開く。
// PostgreSQLの場合、sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
// SQLiteの場合は外部キー制約とWALモードを有効化する。
func Open(databaseURL string) (*sql.DB, Dialect, error) {
	dialect, err := DetectDialect(databaseURL)
	if err != nil {
		return nil, "", err
	}

	switch dialect {
	case DialectSQLite:
		db, err := openSQLite(sqlitePath(databaseURL))
		if err != nil {
			return nil, "", err
		}
		return db, dialect, nil
	default:
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open database: %w", err)
		}
		return db, dialect, nil
	}
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLiteは書き込みが直列化されるため接続を1本に絞る
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// sqlitePath はsqlite:// URLからファイルパスを取り出す。
func sqlitePath(databaseURL string) string {
	path := strings.TrimPrefix(databaseURL, sqliteScheme)
	path, _, _ = strings.Cut(path, "?")
	return path
}

func maskScheme(databaseURL string) string {
	scheme, _, ok := strings.Cut(databaseURL, "://")
	if !ok {
		return "(no scheme)"
	}
	return scheme + "://..."
}
