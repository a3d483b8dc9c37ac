package compare

import (
	"strings"

	"github.com/hitoshi/scanscore/internal/model"
	"github.com/hitoshi/scanscore/internal/oracle"
)

// ClassifyExposures はオラクルが返した化学物質曝露を検証し、比較結果用の一覧に変換する。
//
// 採用するのは、用語が緑以外のフラグ（共通・製品1のみ・製品2のみ）のいずれかに一致し、
// 分類が定義済みの列挙値であるエントリのみ。foundInはオラクルの値を使わず、
// フラグの分割から決定する。同じ用語は最初の1件のみ採用する。
func ClassifyExposures(parsed oracle.ComparisonOutput, partition FlagPartition) []model.ChemicalExposureInfo {
	concerning := partition.ConcerningOnly()

	exposures := []model.ChemicalExposureInfo{}
	seen := make(map[string]bool, len(parsed.ChemicalExposures))

	for _, e := range parsed.ChemicalExposures {
		key := strings.ToLower(strings.TrimSpace(e.Term))
		if key == "" || seen[key] {
			continue
		}

		category := model.ChemicalCategory(strings.ToLower(strings.TrimSpace(e.Category)))
		if !category.Valid() {
			continue
		}

		flag, foundIn, ok := concerning.Locate(key)
		if !ok {
			continue
		}

		seen[key] = true
		exposures = append(exposures, model.ChemicalExposureInfo{
			Term:              flag.Term,
			Category:          category,
			HealthImplication: strings.TrimSpace(e.HealthImplication),
			FoundIn:           foundIn,
		})
	}

	return exposures
}
