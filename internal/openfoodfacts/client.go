// Package openfoodfacts はOpen Food Facts APIのクライアントを提供する。
// バーコードによる製品検索、栄養成分の取得、製品名による画像URL検索を行う。
package openfoodfacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/scanscore/internal/model"
)

const (
	// DefaultBaseURL はOpen Food Facts APIのベースURL。
	DefaultBaseURL = "https://world.openfoodfacts.org"
	// maxResponseSize はレスポンスボディの最大サイズ（2MB）。
	maxResponseSize = 2 * 1024 * 1024
	userAgent       = "ScanScore/1.0 (food label analysis)"
)

// Product はバーコード検索で得られた製品情報。
type Product struct {
	Barcode     string
	Name        string
	Brand       string
	Category    string
	Ingredients string
	ImageURL    string
	Nutrition   *model.NutritionData
}

// URLValidator は外部から受け取ったURLの安全性を検証するインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// errTransport はAPIとの通信自体に失敗したことを表す。
var errTransport = errors.New("Open Food Facts APIとの通信に失敗しました")

// Client はOpen Food Facts APIのクライアント。
// 429/5xxと通信エラーは指数バックオフで再試行する。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	validator   URLValidator
	baseURL     string // テスト用に差し替え可能
	maxAttempts int
	retryBase   time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合はDefaultBaseURLを使う。
// validatorが指定された場合、検証に通らない画像URLは返さない。
func NewClient(httpClient *http.Client, logger *slog.Logger, validator URLValidator, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		validator:   validator,
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
	}
}

// productResponse は /api/v2/product/{barcode}.json のレスポンス。
type productResponse struct {
	Status  int        `json:"status"`
	Product offProduct `json:"product"`
}

type offProduct struct {
	Code            string         `json:"code"`
	ProductName     string         `json:"product_name"`
	Brands          string         `json:"brands"`
	Categories      string         `json:"categories"`
	IngredientsText string         `json:"ingredients_text"`
	ImageFrontURL   string         `json:"image_front_url"`
	ImageURL        string         `json:"image_url"`
	Nutriments      map[string]any `json:"nutriments"`
}

// searchResponse は /cgi/search.pl のレスポンス。
type searchResponse struct {
	Products []offProduct `json:"products"`
}

// LookupBarcode はバーコードに対応する製品を取得する。
// 製品が存在しない場合はnil, nilを返す。
func (c *Client) LookupBarcode(ctx context.Context, barcode string) (*Product, error) {
	barcode = strings.TrimSpace(barcode)
	if !ValidBarcode(barcode) {
		return nil, fmt.Errorf("バーコードの形式が不正です: %q", barcode)
	}

	reqURL := fmt.Sprintf("%s/api/v2/product/%s.json", c.baseURL, url.PathEscape(barcode))
	var resp productResponse
	found, err := c.getJSON(ctx, reqURL, &resp)
	if err != nil {
		return nil, fmt.Errorf("製品情報の取得に失敗しました: %w", err)
	}
	if !found || resp.Status != 1 {
		c.logger.Info("製品が見つかりませんでした", slog.String("barcode", barcode))
		return nil, nil
	}

	p := resp.Product
	code := p.Code
	if code == "" {
		code = barcode
	}
	return &Product{
		Barcode:     code,
		Name:        strings.TrimSpace(p.ProductName),
		Brand:       firstListEntry(p.Brands),
		Category:    lastListEntry(p.Categories),
		Ingredients: strings.TrimSpace(p.IngredientsText),
		ImageURL:    c.safeImage(p.frontImage()),
		Nutrition:   nutritionFromNutriments(p.Nutriments),
	}, nil
}

// LookupNutrition はバーコードに対応する製品の栄養成分を取得する。
// 製品が存在しないか栄養成分が空の場合はnil, nilを返す。
func (c *Client) LookupNutrition(ctx context.Context, barcode string) (*model.NutritionData, error) {
	p, err := c.LookupBarcode(ctx, barcode)
	if err != nil || p == nil {
		return nil, err
	}
	if p.Nutrition.IsEmpty() {
		return nil, nil
	}
	return p.Nutrition, nil
}

// FindImage は製品名（とブランド）で検索し、最初に見つかった正面画像のURLを返す。
// 見つからない場合は空文字列を返す。
func (c *Client) FindImage(ctx context.Context, name, brand string) (string, error) {
	terms := strings.TrimSpace(strings.TrimSpace(brand) + " " + strings.TrimSpace(name))
	if terms == "" {
		return "", nil
	}

	q := url.Values{}
	q.Set("search_terms", terms)
	q.Set("search_simple", "1")
	q.Set("action", "process")
	q.Set("json", "1")
	q.Set("page_size", "3")
	q.Set("fields", "code,product_name,image_front_url,image_url")
	reqURL := c.baseURL + "/cgi/search.pl?" + q.Encode()

	var resp searchResponse
	if _, err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return "", fmt.Errorf("製品画像の検索に失敗しました: %w", err)
	}
	for _, p := range resp.Products {
		if img := c.safeImage(p.frontImage()); img != "" {
			return img, nil
		}
	}
	return "", nil
}

// getJSON はGETリクエストを送信しレスポンスをvにデコードする。
// 404の場合はfalse, nilを返す。再試行可能な失敗は最大maxAttempts回まで試行する。
func (c *Client) getJSON(ctx context.Context, reqURL string, v any) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.retryBase, attempt-1)
			c.logger.Info("Open Food Facts APIの呼び出しを再試行します",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			if err := sleepContext(ctx, delay); err != nil {
				return false, lastErr
			}
		}

		found, err := c.getJSONOnce(ctx, reqURL, v)
		if err == nil {
			return found, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}
	return false, lastErr
}

// getJSONOnce は1回分のGETリクエストを送信する。
func (c *Client) getJSONOnce(ctx context.Context, reqURL string, v any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Open Food Facts APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("%w: %w", errTransport, err)
	}
	defer resp.Body.Close()

	switch classifyStatus(resp.StatusCode) {
	case statusOK:
	case statusNotFound:
		return false, nil
	default:
		c.logger.Warn("Open Food Facts APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return false, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return false, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return true, nil
}

// safeImage は検証に通らない画像URLを空文字列にする。
func (c *Client) safeImage(rawURL string) string {
	if rawURL == "" || c.validator == nil {
		return rawURL
	}
	if err := c.validator.ValidateURL(rawURL); err != nil {
		c.logger.Warn("安全でない画像URLを除外しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return rawURL
}

func (p offProduct) frontImage() string {
	if p.ImageFrontURL != "" {
		return p.ImageFrontURL
	}
	return p.ImageURL
}

// nutrimentKeys はNutritionDataの各項目に対応する100gあたりのキー。
var nutrimentKeys = []struct {
	key    string
	target func(n *model.NutritionData) **float64
}{
	{"energy-kcal_100g", func(n *model.NutritionData) **float64 { return &n.Calories }},
	{"proteins_100g", func(n *model.NutritionData) **float64 { return &n.Protein }},
	{"carbohydrates_100g", func(n *model.NutritionData) **float64 { return &n.Carbs }},
	{"sugars_100g", func(n *model.NutritionData) **float64 { return &n.Sugars }},
	{"fat_100g", func(n *model.NutritionData) **float64 { return &n.Fat }},
	{"saturated-fat_100g", func(n *model.NutritionData) **float64 { return &n.SaturatedFat }},
	{"fiber_100g", func(n *model.NutritionData) **float64 { return &n.Fiber }},
	{"sodium_100g", func(n *model.NutritionData) **float64 { return &n.Sodium }},
}

// nutritionFromNutriments はnutrimentsマップから栄養成分を取り出す。
// 該当する値が1つもない場合はnilを返す。
func nutritionFromNutriments(m map[string]any) *model.NutritionData {
	if len(m) == 0 {
		return nil
	}
	n := &model.NutritionData{}
	for _, k := range nutrimentKeys {
		if v, ok := extractFloat(m, k.key); ok {
			*k.target(n) = &v
		}
	}
	// kcalがなくkJのみの製品がある
	if n.Calories == nil {
		if kj, ok := extractFloat(m, "energy_100g"); ok {
			kcal := math.Round(kj/4.184*10) / 10
			n.Calories = &kcal
		}
	}
	if n.IsEmpty() {
		return nil
	}
	return n
}

// extractFloat はnutrimentsの値を数値として取り出す。
// OFFは数値を文字列で返すことがある。
func extractFloat(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) || val < 0 {
			return 0, false
		}
		return val, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(val), "%f", &f); err != nil {
			return 0, false
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// ValidBarcode はEAN/UPC形式（8〜14桁の数字）かを返す。
func ValidBarcode(barcode string) bool {
	if len(barcode) < 8 || len(barcode) > 14 {
		return false
	}
	for _, r := range barcode {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func firstListEntry(list string) string {
	first, _, _ := strings.Cut(list, ",")
	return strings.TrimSpace(first)
}

func lastListEntry(list string) string {
	parts := strings.Split(list, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}
