package openfoodfacts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// statusClass はAPI応答のHTTPステータスコードの分類。
type statusClass int

const (
	// statusOK は取得成功（200）。
	statusOK statusClass = iota
	// statusNotFound は製品が存在しない（404/410）。
	statusNotFound
	// statusRetry は時間をおいて再試行すべきステータス（429/5xx）。
	statusRetry
	// statusFail は再試行しても結果が変わらないステータス。
	statusFail
)

const (
	// defaultMaxAttempts は1リクエストあたりの最大試行回数。
	defaultMaxAttempts = 3
	// defaultRetryBase は指数バックオフの初回遅延。
	defaultRetryBase = 250 * time.Millisecond
	// maxRetryDelay は指数バックオフの最大遅延。
	maxRetryDelay = 2 * time.Second
)

// classifyStatus はHTTPステータスコードを分類する。
func classifyStatus(statusCode int) statusClass {
	switch {
	case statusCode == http.StatusOK:
		return statusOK
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return statusNotFound
	case statusCode == http.StatusTooManyRequests:
		return statusRetry
	case statusCode >= 500:
		return statusRetry
	default:
		return statusFail
	}
}

// backoffDelay はattempt回目（0始まり）の失敗後に待つ時間を返す。
// baseから2倍ずつ増加し、maxRetryDelayで頭打ちになる。
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// statusError はAPIが成功以外のステータスを返したことを表す。
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("Open Food Facts APIがステータス %d を返しました", e.code)
}

// retryable はerrが再試行で回復しうるかを判定する。
// コンテキストの終了は再試行しない。
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return classifyStatus(se.code) == statusRetry
	}
	return errors.Is(err, errTransport)
}

// sleepContext はdだけ待つ。コンテキストが先に終了した場合はそのエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
