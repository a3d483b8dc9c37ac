package compare

import (
	"fmt"
	"math"

	"github.com/hitoshi/scanscore/internal/model"
)

// tieRecommendation は引き分け時の既定の推奨文。
const tieRecommendation = "Both products have similar health profiles. Choose based on your taste preference."

// DetermineWinner はスコアの高い方を勝者とし、スコア差の絶対値とともに返す。
// 同点の場合は引き分け。
func DetermineWinner(score1, score2 float64) (model.Winner, float64) {
	diff := math.Abs(score1 - score2)
	switch {
	case score1 > score2:
		return model.WinnerProduct1, diff
	case score2 > score1:
		return model.WinnerProduct2, diff
	default:
		return model.WinnerTie, diff
	}
}

// FallbackRecommendation はオラクルから推奨文を得られなかった場合の定型文を返す。
func FallbackRecommendation(winner model.Winner, p1, p2 *model.ScanResult) string {
	switch winner {
	case model.WinnerProduct1:
		return fmt.Sprintf("%s is the healthier choice with a higher score.", p1.ProductName)
	case model.WinnerProduct2:
		return fmt.Sprintf("%s is the healthier choice with a higher score.", p2.ProductName)
	default:
		return tieRecommendation
	}
}
