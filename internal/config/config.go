package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/scanscore/internal/oracle"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Oracle
	OracleBackend         string
	OracleModel           string
	OracleTimeout         time.Duration
	GeminiAPIKey          string
	GoogleProjectID       string
	GoogleLocation        string
	GoogleCredentialsFile string

	// Lookup
	ImageLookupTimeout     time.Duration
	ImageLookupConcurrency int
	NutritionLookupTimeout time.Duration
	OFFBaseURL             string

	// History
	HistoryMax           int
	HistoryRetentionDays int

	// Rate Limit (req/min)
	RateLimitGeneral  int
	RateLimitAnalysis int

	// Logging
	LogLevel string

	// Server
	ServerPort        string
	WorkerMetricsPort string // 空の場合ワーカーはメトリクスを公開しない

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.OracleBackend = strings.ToLower(getEnvString("ORACLE_BACKEND", oracle.BackendGemini))
	switch cfg.OracleBackend {
	case oracle.BackendGemini:
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
		if cfg.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	case oracle.BackendVertex:
		cfg.GoogleProjectID = os.Getenv("GOOGLE_PROJECT_ID")
		if cfg.GoogleProjectID == "" {
			missing = append(missing, "GOOGLE_PROJECT_ID")
		}
	default:
		return nil, fmt.Errorf("unsupported ORACLE_BACKEND: %q", cfg.OracleBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.OracleModel = getEnvString("ORACLE_MODEL", oracle.DefaultModel)
	cfg.OracleTimeout = getEnvDuration("ORACLE_TIMEOUT", 45*time.Second)
	cfg.GoogleLocation = getEnvString("GOOGLE_LOCATION", "")
	cfg.GoogleCredentialsFile = getEnvString("GOOGLE_CREDENTIALS_FILE", "")
	cfg.ImageLookupTimeout = getEnvDuration("IMAGE_LOOKUP_TIMEOUT", 5*time.Second)
	cfg.ImageLookupConcurrency = getEnvInt("IMAGE_LOOKUP_CONCURRENCY", 4)
	cfg.NutritionLookupTimeout = getEnvDuration("NUTRITION_LOOKUP_TIMEOUT", 5*time.Second)
	cfg.OFFBaseURL = getEnvString("OFF_BASE_URL", "")
	cfg.HistoryMax = getEnvInt("HISTORY_MAX", 50)
	cfg.HistoryRetentionDays = getEnvInt("HISTORY_RETENTION_DAYS", 365)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 60)
	cfg.RateLimitAnalysis = getEnvInt("RATE_LIMIT_ANALYSIS", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	return cfg, nil
}

// OracleConfig はオラクルバックエンドの設定を返す。
func (c *Config) OracleConfig() oracle.Config {
	return oracle.Config{
		Backend:         c.OracleBackend,
		Model:           c.OracleModel,
		APIKey:          c.GeminiAPIKey,
		ProjectID:       c.GoogleProjectID,
		Location:        c.GoogleLocation,
		CredentialsFile: c.GoogleCredentialsFile,
	}
}

// loadDotEnv はpathの.envファイルを読み込む。ファイルが存在しない場合は何もしない。
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
