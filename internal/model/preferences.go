package model

// UserPreferences は避けたい原材料の設定。
// 有効な項目はスコアリング時に赤フラグへ格上げされる。
type UserPreferences struct {
	AvoidArtificialColors      bool `json:"avoidArtificialColors"`
	AvoidArtificialSweeteners  bool `json:"avoidArtificialSweeteners"`
	AvoidNitrites              bool `json:"avoidNitrites"`
	AvoidTransFats             bool `json:"avoidTransFats"`
	AvoidBHABHT                bool `json:"avoidBHABHT"`
	AvoidHighFructoseCornSyrup bool `json:"avoidHighFructoseCornSyrup"`
	AvoidMSG                   bool `json:"avoidMSG"`
	AvoidCarrageenan           bool `json:"avoidCarrageenan"`
}

// DefaultPreferences は初期設定を返す。トランス脂肪のみ有効。
func DefaultPreferences() UserPreferences {
	return UserPreferences{AvoidTransFats: true}
}

// AvoidedIngredients は有効な設定に対応する原材料名を定義順で返す。
func (p UserPreferences) AvoidedIngredients() []string {
	entries := []struct {
		enabled bool
		label   string
	}{
		{p.AvoidArtificialColors, "artificial colors"},
		{p.AvoidArtificialSweeteners, "artificial sweeteners"},
		{p.AvoidNitrites, "nitrites/nitrates"},
		{p.AvoidTransFats, "trans fats / partially hydrogenated oils"},
		{p.AvoidBHABHT, "BHA/BHT"},
		{p.AvoidHighFructoseCornSyrup, "high fructose corn syrup"},
		{p.AvoidMSG, "MSG / monosodium glutamate"},
		{p.AvoidCarrageenan, "carrageenan"},
	}

	var labels []string
	for _, e := range entries {
		if e.enabled {
			labels = append(labels, e.label)
		}
	}
	return labels
}
