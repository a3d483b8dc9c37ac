// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// HazardLevel は原材料フラグの危険度を表す。
type HazardLevel string

const (
	// HazardRed は避けるべき原材料。
	HazardRed HazardLevel = "red"
	// HazardYellow は注意が必要な原材料。
	HazardYellow HazardLevel = "yellow"
	// HazardGreen は好ましい原材料。
	HazardGreen HazardLevel = "green"
	// HazardNeutral は評価対象外の原材料。
	HazardNeutral HazardLevel = "neutral"
)

// Valid は定義済みの危険度かどうかを返す。
func (l HazardLevel) Valid() bool {
	switch l {
	case HazardRed, HazardYellow, HazardGreen, HazardNeutral:
		return true
	default:
		return false
	}
}

// Tier はスコアから決まる6段階の評価ラベル。
type Tier string

const (
	TierExcellent     Tier = "Excellent"
	TierGood          Tier = "Good"
	TierDontEatOften  Tier = "Don't eat often"
	TierLimitRarely   Tier = "Limit / rarely"
	TierTreat         Tier = "Treat / very infrequent"
	TierProbablyAvoid Tier = "Probably avoid"
)

// tierThresholds はスコア下限の降順に並んだティア定義。
var tierThresholds = []struct {
	min  float64
	tier Tier
}{
	{90, TierExcellent},
	{80, TierGood},
	{70, TierDontEatOften},
	{60, TierLimitRarely},
	{50, TierTreat},
}

// TierForScore はスコアに対応するティアを返す。
func TierForScore(score float64) Tier {
	for _, t := range tierThresholds {
		if score >= t.min {
			return t.tier
		}
	}
	return TierProbablyAvoid
}

// Valid は6つのティアラベルのいずれかであるかを返す。
func (t Tier) Valid() bool {
	switch t {
	case TierExcellent, TierGood, TierDontEatOften, TierLimitRarely, TierTreat, TierProbablyAvoid:
		return true
	default:
		return false
	}
}

// IngredientFlag は1つの原材料に対する危険度の判定。
// 一度ScanResultに付与された後は変更しない。
type IngredientFlag struct {
	Term    string      `json:"term"`
	Level   HazardLevel `json:"level"`
	Explain string      `json:"explain"`
}

// Key は製品間でフラグを照合するためのキー（前後空白除去・小文字化）を返す。
func (f IngredientFlag) Key() string {
	return strings.ToLower(strings.TrimSpace(f.Term))
}

// ScoreBreakdown はスコアを構成するペナルティとボーナス。
// MacroPenaltyは古いスキャン結果には存在しないためポインタで保持する。
type ScoreBreakdown struct {
	AdditivesPenalty  float64  `json:"additivesPenalty"`
	NutritionPenalty  float64  `json:"nutritionPenalty"`
	ProcessingPenalty float64  `json:"processingPenalty"`
	MacroPenalty      *float64 `json:"macroPenalty,omitempty"`
	GreenBonus        float64  `json:"greenBonus"`
}

// Macro はマクロペナルティを返す。未設定の場合は0。
func (b ScoreBreakdown) Macro() float64 {
	if b.MacroPenalty == nil {
		return 0
	}
	return *b.MacroPenalty
}

// ComputeScore は 100 − Σペナルティ + Σボーナス を[0,100]に丸めた値を返す。
func ComputeScore(b ScoreBreakdown) float64 {
	score := 100 - (b.AdditivesPenalty + b.NutritionPenalty + b.ProcessingPenalty + b.Macro()) + b.GreenBonus
	return clampScore(score)
}

func clampScore(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(100, score))
}

// Alternative はより健康的な代替製品の提案。
type Alternative struct {
	Name           string   `json:"name"`
	Brand          string   `json:"brand"`
	Score          float64  `json:"score"`
	Tier           Tier     `json:"tier"`
	KeyDifferences []string `json:"keyDifferences"`
	WhyBetter      string   `json:"whyBetter"`
	ImageURL       string   `json:"imageUrl,omitempty"`
}

// NutritionData は100gあたりの栄養成分。取得できない値はnil。
type NutritionData struct {
	Calories     *float64 `json:"calories"`
	Protein      *float64 `json:"protein"`
	Carbs        *float64 `json:"carbs"`
	Sugars       *float64 `json:"sugars"`
	Fat          *float64 `json:"fat"`
	SaturatedFat *float64 `json:"saturatedFat"`
	Fiber        *float64 `json:"fiber"`
	Sodium       *float64 `json:"sodium"`
}

// IsEmpty はすべての値が未取得かどうかを返す。
func (n *NutritionData) IsEmpty() bool {
	if n == nil {
		return true
	}
	for _, v := range []*float64{n.Calories, n.Protein, n.Carbs, n.Sugars, n.Fat, n.SaturatedFat, n.Fiber, n.Sodium} {
		if v != nil {
			return false
		}
	}
	return true
}

// ScanResult は解析済みの1製品を表す。
// 外部オラクルの応答から生成され、お気に入りの切り替え以外では変更しない。
type ScanResult struct {
	ID             string           `json:"id"`
	ProductName    string           `json:"productName"`
	Brand          string           `json:"brand"`
	Category       string           `json:"category"`
	Barcode        string           `json:"barcode,omitempty"`
	IngredientsRaw string           `json:"ingredientsRaw"`
	Score          float64          `json:"score"`
	Tier           Tier             `json:"tier"`
	Breakdown      ScoreBreakdown   `json:"breakdown"`
	Flags          []IngredientFlag `json:"flags"`
	Alternatives   []Alternative    `json:"alternatives"`
	ScanDate       time.Time        `json:"scanDate"`
	ImageURI       string           `json:"imageUri,omitempty"`
	IsFavorite     bool             `json:"isFavorite,omitempty"`
	Nutrition      *NutritionData   `json:"nutrition,omitempty"`
}

// Validate はScanResultが比較可能な形状を満たすかを検証する。
// 違反内容はエラーメッセージに含める。
func (s *ScanResult) Validate() error {
	if s == nil {
		return fmt.Errorf("product is missing")
	}
	if strings.TrimSpace(s.ProductName) == "" {
		return fmt.Errorf("productName is empty")
	}
	if math.IsNaN(s.Score) || math.IsInf(s.Score, 0) || s.Score < 0 || s.Score > 100 {
		return fmt.Errorf("score %v is out of range 0-100", s.Score)
	}
	if !s.Tier.Valid() {
		return fmt.Errorf("tier %q is not a known tier", s.Tier)
	}
	if want := TierForScore(s.Score); s.Tier != want {
		return fmt.Errorf("tier %q does not match score %v (want %q)", s.Tier, s.Score, want)
	}

	components := []struct {
		name  string
		value float64
	}{
		{"additivesPenalty", s.Breakdown.AdditivesPenalty},
		{"nutritionPenalty", s.Breakdown.NutritionPenalty},
		{"processingPenalty", s.Breakdown.ProcessingPenalty},
		{"macroPenalty", s.Breakdown.Macro()},
		{"greenBonus", s.Breakdown.GreenBonus},
	}
	for _, c := range components {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) || c.value < 0 {
			return fmt.Errorf("breakdown.%s %v must be a non-negative number", c.name, c.value)
		}
	}

	for i, f := range s.Flags {
		if strings.TrimSpace(f.Term) == "" {
			return fmt.Errorf("flags[%d].term is empty", i)
		}
		if !f.Level.Valid() {
			return fmt.Errorf("flags[%d].level %q is not a known level", i, f.Level)
		}
	}
	return nil
}

// Normalize はオラクル応答を正規の形に整える。
// ペナルティを絶対値に揃え、スコアを内訳から再計算してティアを導出し、
// 空の用語を持つフラグを除去して未知の危険度をneutralに置き換える。
func (s *ScanResult) Normalize() {
	s.ProductName = strings.TrimSpace(s.ProductName)
	s.Brand = strings.TrimSpace(s.Brand)

	// オラクルはペナルティを負数で返すことがあるため絶対値に揃える
	b := &s.Breakdown
	b.AdditivesPenalty = math.Abs(b.AdditivesPenalty)
	b.NutritionPenalty = math.Abs(b.NutritionPenalty)
	b.ProcessingPenalty = math.Abs(b.ProcessingPenalty)
	b.GreenBonus = math.Abs(b.GreenBonus)
	if b.MacroPenalty != nil {
		macro := math.Abs(*b.MacroPenalty)
		b.MacroPenalty = &macro
	}

	// スコアは内訳から決まる。オラクルの申告値は使わない
	s.Score = ComputeScore(s.Breakdown)
	s.Tier = TierForScore(s.Score)

	flags := make([]IngredientFlag, 0, len(s.Flags))
	for _, f := range s.Flags {
		f.Term = strings.TrimSpace(f.Term)
		if f.Term == "" {
			continue
		}
		f.Level = HazardLevel(strings.ToLower(strings.TrimSpace(string(f.Level))))
		if !f.Level.Valid() {
			f.Level = HazardNeutral
		}
		flags = append(flags, f)
	}
	s.Flags = flags

	if s.Alternatives == nil {
		s.Alternatives = []Alternative{}
	}
	for i := range s.Alternatives {
		s.Alternatives[i].Score = clampScore(s.Alternatives[i].Score)
		s.Alternatives[i].Tier = TierForScore(s.Alternatives[i].Score)
	}
}
