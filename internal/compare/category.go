package compare

import (
	"fmt"
	"strconv"

	"github.com/hitoshi/scanscore/internal/model"
)

// CategoryDefinition は比較対象となる1つの評価軸の定義。
// すべての評価軸は値が小さいほど良い。
type CategoryDefinition struct {
	Key     string
	Label   string
	Extract func(model.ScoreBreakdown) float64
	// Assign は比較結果をCategoryComparisonsの該当フィールドに格納する。
	Assign func(*model.CategoryComparisons, model.CategoryComparison)
}

// Categories は比較する評価軸の一覧。評価軸の追加はこの一覧への1エントリ追加で行う。
var Categories = []CategoryDefinition{
	{
		Key:     "additives",
		Label:   "additives penalty",
		Extract: func(b model.ScoreBreakdown) float64 { return b.AdditivesPenalty },
		Assign:  func(c *model.CategoryComparisons, v model.CategoryComparison) { c.Additives = v },
	},
	{
		Key:     "nutrition",
		Label:   "nutrition penalty",
		Extract: func(b model.ScoreBreakdown) float64 { return b.NutritionPenalty },
		Assign:  func(c *model.CategoryComparisons, v model.CategoryComparison) { c.Nutrition = v },
	},
	{
		Key:     "processing",
		Label:   "processing penalty",
		Extract: func(b model.ScoreBreakdown) float64 { return b.ProcessingPenalty },
		Assign:  func(c *model.CategoryComparisons, v model.CategoryComparison) { c.Processing = v },
	},
	{
		Key:     "macros",
		Label:   "macro penalty",
		Extract: func(b model.ScoreBreakdown) float64 { return b.Macro() },
		Assign:  func(c *model.CategoryComparisons, v model.CategoryComparison) { c.Macros = v },
	},
}

// CompareCategories は2つのスコア内訳を評価軸ごとに比較する。
// 値が厳密に小さい方が勝ち、等しい場合は引き分け。値は内訳から変換せずにコピーする。
func CompareCategories(b1, b2 model.ScoreBreakdown) model.CategoryComparisons {
	var out model.CategoryComparisons
	for _, def := range Categories {
		def.Assign(&out, compareValues(def.Label, def.Extract(b1), def.Extract(b2)))
	}
	return out
}

func compareValues(label string, v1, v2 float64) model.CategoryComparison {
	c := model.CategoryComparison{
		Product1Value: v1,
		Product2Value: v2,
	}

	switch {
	case v1 < v2:
		c.Winner = model.WinnerProduct1
		c.Explanation = fmt.Sprintf("Product 1 has a lower %s (%s vs %s).", label, formatValue(v1), formatValue(v2))
	case v2 < v1:
		c.Winner = model.WinnerProduct2
		c.Explanation = fmt.Sprintf("Product 2 has a lower %s (%s vs %s).", label, formatValue(v2), formatValue(v1))
	default:
		c.Winner = model.WinnerTie
		c.Explanation = fmt.Sprintf("Both products have the same %s (%s).", label, formatValue(v1))
	}
	return c
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
