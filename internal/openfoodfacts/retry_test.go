package openfoodfacts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want statusClass
	}{
		{http.StatusOK, statusOK},
		{http.StatusNotFound, statusNotFound},
		{http.StatusGone, statusNotFound},
		{http.StatusTooManyRequests, statusRetry},
		{http.StatusInternalServerError, statusRetry},
		{http.StatusBadGateway, statusRetry},
		{http.StatusServiceUnavailable, statusRetry},
		{http.StatusBadRequest, statusFail},
		{http.StatusForbidden, statusFail},
		{http.StatusNoContent, statusFail},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.code); got != tt.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	base := 250 * time.Millisecond
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 250 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{10, maxRetryDelay},
	}
	for _, tt := range tests {
		if got := backoffDelay(base, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	ctx := context.Background()
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{"5xx", ctx, &statusError{code: 503}, true},
		{"429 wrapped", ctx, fmt.Errorf("lookup: %w", &statusError{code: 429}), true},
		{"4xx", ctx, &statusError{code: 400}, false},
		{"transport", ctx, fmt.Errorf("%w: %w", errTransport, errors.New("connection refused")), true},
		{"decode", ctx, errors.New("レスポンスJSONのパースに失敗しました"), false},
		{"canceled context", canceled, &statusError{code: 503}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.ctx, tt.err); got != tt.want {
				t.Errorf("retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSleepContext_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := sleepContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("キャンセル済みのコンテキストでは即座に戻るべき")
	}
}
