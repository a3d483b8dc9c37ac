package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/scanscore/internal/model"
)

// ErrMalformedResponse はオラクルの応答が期待するスキーマを満たさない場合のエラー。
var ErrMalformedResponse = errors.New("オラクルの応答形式が不正です")

// NotFoodError はオラクルが入力を食品ではないと判定した場合のエラー。
type NotFoodError struct {
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *NotFoodError) Error() string {
	return fmt.Sprintf("not_food: %s", e.Message)
}

// ExposureEntry はオラクルが返す化学物質曝露の1件。
// 値は未検証であり、分類器が列挙値とfoundInを検証・再計算する。
type ExposureEntry struct {
	Term              string `json:"term"`
	Category          string `json:"category"`
	HealthImplication string `json:"healthImplication"`
	FoundIn           string `json:"foundIn"`
}

// ComparisonOutput は比較用オラクル呼び出しのパース結果。
type ComparisonOutput struct {
	ChemicalExposures []ExposureEntry
	Recommendation    string
}

// StripCodeFence は応答を囲む ``` または ```json のフェンスを除去する。
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// 言語指定（json等）を除去
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		if lang := strings.TrimSpace(s[:i]); lang == "" || !strings.ContainsAny(lang, "{[") {
			s = s[i+1:]
		}
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeObject はJSONオブジェクトをキーごとの生データに分解し、必須キーの存在を検証する。
func decodeObject(raw string, required ...string) (map[string]json.RawMessage, error) {
	cleaned := StripCodeFence(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: 応答が空です", ErrMalformedResponse)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil, fmt.Errorf("%w: JSONのパースに失敗しました: %v", ErrMalformedResponse, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: JSONオブジェクトではありません", ErrMalformedResponse)
	}

	for _, key := range required {
		v, ok := obj[key]
		if !ok || string(v) == "null" {
			return nil, fmt.Errorf("%w: 必須フィールド %q がありません", ErrMalformedResponse, key)
		}
	}
	return obj, nil
}

// ParseComparison は比較用オラクルの応答をパースする。
// chemicalExposures配列とrecommendation文字列が揃っていない場合はErrMalformedResponseを返す。
func ParseComparison(raw string) (ComparisonOutput, error) {
	obj, err := decodeObject(raw, "chemicalExposures", "recommendation")
	if err != nil {
		return ComparisonOutput{}, err
	}

	var out ComparisonOutput
	if err := json.Unmarshal(obj["chemicalExposures"], &out.ChemicalExposures); err != nil {
		return ComparisonOutput{}, fmt.Errorf("%w: chemicalExposuresが配列ではありません: %v", ErrMalformedResponse, err)
	}
	if err := json.Unmarshal(obj["recommendation"], &out.Recommendation); err != nil {
		return ComparisonOutput{}, fmt.Errorf("%w: recommendationが文字列ではありません: %v", ErrMalformedResponse, err)
	}
	out.Recommendation = strings.TrimSpace(out.Recommendation)

	return out, nil
}

// ParseAnalysis は解析用オラクルの応答をScanResultにパースする。
// 食品ではないと判定された場合は*NotFoodErrorを返す。
// 返すScanResultは未正規化であり、呼び出し元がNormalizeする。
func ParseAnalysis(raw string) (*model.ScanResult, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	if rawErr, ok := obj["error"]; ok {
		var code string
		_ = json.Unmarshal(rawErr, &code)
		var message string
		if m, ok := obj["message"]; ok {
			_ = json.Unmarshal(m, &message)
		}
		if code == model.ErrCodeNotFood {
			return nil, &NotFoodError{Message: message}
		}
		return nil, fmt.Errorf("%w: オラクルがエラーを返しました: %s %s", ErrMalformedResponse, code, message)
	}

	for _, key := range []string{"productName", "score", "breakdown", "flags"} {
		if v, ok := obj[key]; !ok || string(v) == "null" {
			return nil, fmt.Errorf("%w: 必須フィールド %q がありません", ErrMalformedResponse, key)
		}
	}

	var result model.ScanResult
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &result); err != nil {
		return nil, fmt.Errorf("%w: スキャン結果のデコードに失敗しました: %v", ErrMalformedResponse, err)
	}
	return &result, nil
}
