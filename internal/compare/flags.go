// Package compare は2製品のスキャン結果を比較するエンジンを提供する。
// フラグの照合、カテゴリ別比較、化学物質曝露の分類、推奨文の生成を統括する。
package compare

import "github.com/hitoshi/scanscore/internal/model"

// FlagPartition は2製品のフラグを共通・製品1のみ・製品2のみに分割した結果。
// 3つのリストは照合キーについて互いに素で、各リスト内に重複はない。
type FlagPartition struct {
	Shared           []model.IngredientFlag
	UniqueToProduct1 []model.IngredientFlag
	UniqueToProduct2 []model.IngredientFlag
}

// ReconcileFlags は2つのフラグリストを照合キー（前後空白除去・小文字化した用語）で分割する。
// 共通と製品1のみは製品1での初出順、製品2のみは製品2での初出順に並ぶ。
// 共通フラグは製品1側のフラグを採用する。用語が空のフラグはどこにも含めない。
func ReconcileFlags(f1, f2 []model.IngredientFlag) FlagPartition {
	inProduct2 := make(map[string]bool, len(f2))
	for _, f := range f2 {
		if key := f.Key(); key != "" {
			inProduct2[key] = true
		}
	}

	p := FlagPartition{
		Shared:           []model.IngredientFlag{},
		UniqueToProduct1: []model.IngredientFlag{},
		UniqueToProduct2: []model.IngredientFlag{},
	}

	seen1 := make(map[string]bool, len(f1))
	for _, f := range f1 {
		key := f.Key()
		if key == "" || seen1[key] {
			continue
		}
		seen1[key] = true

		if inProduct2[key] {
			p.Shared = append(p.Shared, f)
		} else {
			p.UniqueToProduct1 = append(p.UniqueToProduct1, f)
		}
	}

	seen2 := make(map[string]bool, len(f2))
	for _, f := range f2 {
		key := f.Key()
		if key == "" || seen2[key] || seen1[key] {
			continue
		}
		seen2[key] = true
		p.UniqueToProduct2 = append(p.UniqueToProduct2, f)
	}

	return p
}

// Locate は照合キーに一致するフラグと、それがどの集合に属するかを返す。
// どこにも属さない場合はfalse。
func (p FlagPartition) Locate(key string) (model.IngredientFlag, model.FoundIn, bool) {
	for _, set := range []struct {
		flags   []model.IngredientFlag
		foundIn model.FoundIn
	}{
		{p.Shared, model.FoundInBoth},
		{p.UniqueToProduct1, model.FoundInProduct1},
		{p.UniqueToProduct2, model.FoundInProduct2},
	} {
		for _, f := range set.flags {
			if f.Key() == key {
				return f, set.foundIn, true
			}
		}
	}
	return model.IngredientFlag{}, "", false
}

// ConcerningOnly は緑以外のフラグだけを残した分割を返す。
func (p FlagPartition) ConcerningOnly() FlagPartition {
	return FlagPartition{
		Shared:           concerningOnly(p.Shared),
		UniqueToProduct1: concerningOnly(p.UniqueToProduct1),
		UniqueToProduct2: concerningOnly(p.UniqueToProduct2),
	}
}

// terms はフラグの用語を順に返す。
func terms(flags []model.IngredientFlag) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		out = append(out, f.Term)
	}
	return out
}

func concerningOnly(flags []model.IngredientFlag) []model.IngredientFlag {
	out := make([]model.IngredientFlag, 0, len(flags))
	for _, f := range flags {
		if f.Level != model.HazardGreen {
			out = append(out, f)
		}
	}
	return out
}
