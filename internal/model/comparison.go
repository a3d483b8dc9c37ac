package model

// Winner は比較の勝者を表す。
type Winner string

const (
	WinnerProduct1 Winner = "product1"
	WinnerProduct2 Winner = "product2"
	WinnerTie      Winner = "tie"
)

// FoundIn は化学物質への懸念がどちらの製品に当てはまるかを表す。
type FoundIn string

const (
	FoundInBoth     FoundIn = "both"
	FoundInProduct1 FoundIn = "product1"
	FoundInProduct2 FoundIn = "product2"
)

// ChemicalCategory は化学物質の分類。
type ChemicalCategory string

const (
	ChemicalPreservative       ChemicalCategory = "preservative"
	ChemicalArtificialColoring ChemicalCategory = "artificial_coloring"
	ChemicalAdditive           ChemicalCategory = "chemical_additive"
	ChemicalOther              ChemicalCategory = "other"
)

// Valid は定義済みの分類かどうかを返す。
func (c ChemicalCategory) Valid() bool {
	switch c {
	case ChemicalPreservative, ChemicalArtificialColoring, ChemicalAdditive, ChemicalOther:
		return true
	default:
		return false
	}
}

// ChemicalExposureInfo は比較から導出される化学物質への曝露情報。永続化しない。
type ChemicalExposureInfo struct {
	Term              string           `json:"term"`
	Category          ChemicalCategory `json:"category"`
	HealthImplication string           `json:"healthImplication"`
	FoundIn           FoundIn          `json:"foundIn"`
}

// CategoryComparison は1つの評価軸における2製品の比較。
type CategoryComparison struct {
	Winner        Winner  `json:"winner"`
	Product1Value float64 `json:"product1Value"`
	Product2Value float64 `json:"product2Value"`
	Explanation   string  `json:"explanation"`
}

// CategoryComparisons は評価軸ごとの比較結果。
type CategoryComparisons struct {
	Additives  CategoryComparison `json:"additives"`
	Nutrition  CategoryComparison `json:"nutrition"`
	Processing CategoryComparison `json:"processing"`
	Macros     CategoryComparison `json:"macros"`
}

// ComparisonResult は2製品の比較結果。要求ごとに生成され、保存しない。
type ComparisonResult struct {
	Product1           ScanResult             `json:"product1"`
	Product2           ScanResult             `json:"product2"`
	Winner             Winner                 `json:"winner"`
	ScoreDifference    float64                `json:"scoreDifference"`
	Recommendation     string                 `json:"recommendation"`
	SharedFlags        []IngredientFlag       `json:"sharedFlags"`
	UniqueToProduct1   []IngredientFlag       `json:"uniqueToProduct1"`
	UniqueToProduct2   []IngredientFlag       `json:"uniqueToProduct2"`
	ChemicalExposures  []ChemicalExposureInfo `json:"chemicalExposures"`
	CategoryComparison CategoryComparisons    `json:"categoryComparison"`
}
