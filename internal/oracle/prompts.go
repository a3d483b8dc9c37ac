package oracle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/scanscore/internal/model"
)

// analysisRubric は原材料解析とスコア算出の固定ルーブリック。
const analysisRubric = `You are a food ingredient analyst. You receive either a photo of a packaged food label or product data looked up by barcode. Your job:

1. Read ALL ingredients
2. Identify the product name and brand
3. Flag each notable ingredient as red (avoid), yellow (caution) or green (positive signal)
4. Calculate a deterministic health score 0-100:
   - Start at 100
   - Additives penalty (max 45): red additive = 25 each (cap 45), yellow = 7 each (cap 21)
   - Nutrition penalty (max 35): added sugar 0 to 15, sodium 0 to 10, saturated fat 0 to 10
   - Processing penalty (max 10): minimally processed 0, processed 5, ultra-processed 10
   - Macro penalty (optional, max 10): poor protein/fiber balance relative to calories
   - Green bonus (max 10): whole food markers 4, no added sugar 4, short list of 5 or fewer ingredients 2
   - Final score bounded 0-100
5. Assign a tier: 90-100 "Excellent", 80-89 "Good", 70-79 "Don't eat often", 60-69 "Limit / rarely", 50-59 "Treat / very infrequent", 0-49 "Probably avoid"
6. Suggest up to 3 cleaner alternatives in the same category with higher scores

RED flags (examples): partially hydrogenated oils, potassium bromate, titanium dioxide, BVO, artificial colors (Red 40, Yellow 5, Blue 1), nitrites in processed meats
YELLOW flags (examples): artificial sweeteners (sucralose, aspartame, acesulfame K), BHA/BHT, high added sugar, excess sodium, natural flavors, carrageenan, HFCS
GREEN signals: whole grains, live cultures, short recognizable ingredient list, no artificial colors/sweeteners/preservatives, no added sugar%s

Penalties and the bonus are reported as non-negative magnitudes.
Respond ONLY with valid JSON (no markdown) in this exact format:
{
  "productName": "string",
  "brand": "string",
  "category": "string (e.g. Yogurt, Cereal, Snack Bar)",
  "ingredientsRaw": "string (full ingredient list)",
  "score": number,
  "tier": "string (one of the tier labels)",
  "breakdown": {
    "additivesPenalty": number,
    "nutritionPenalty": number,
    "processingPenalty": number,
    "macroPenalty": number,
    "greenBonus": number
  },
  "flags": [
    {"term": "string", "level": "red|yellow|green", "explain": "string (1-2 sentence plain English explanation)"}
  ],
  "alternatives": [
    {"name": "string", "brand": "string", "score": number, "tier": "string", "keyDifferences": ["string"], "whyBetter": "string (1 sentence)"}
  ]
}

If the input is not a food product, return: {"error": "not_food", "message": "string"}`

// imageInstruction は画像解析時のユーザープロンプト。
const imageInstruction = "Analyze this food label. Read all ingredients, flag them, score the product, and suggest alternatives."

// comparisonSystem は比較時のシステムプロンプト。
const comparisonSystem = `You compare two packaged food products for a shopper. You receive both products' names, brands, health scores and their concerning ingredient terms grouped by where they occur.

For every listed term, classify the chemical exposure it represents and explain its health implication in one sentence. Use only the terms given. Then write a one to two sentence recommendation.

Respond ONLY with valid JSON (no markdown) in this exact format:
{
  "chemicalExposures": [
    {"term": "string (exactly as given)", "category": "preservative|artificial_coloring|chemical_additive|other", "healthImplication": "string", "foundIn": "both|product1|product2"}
  ],
  "recommendation": "string"
}`

// AnalysisSystemPrompt は利用者の設定を反映したルーブリックを返す。
// 避けたい原材料が設定されている場合は赤フラグへの格上げを指示する。
func AnalysisSystemPrompt(prefs *model.UserPreferences) string {
	clause := ""
	if prefs != nil {
		if avoided := prefs.AvoidedIngredients(); len(avoided) > 0 {
			clause = "\n\nUSER PREFERENCES: The user wants to AVOID these ingredients (escalate them to RED if found): " +
				strings.Join(avoided, ", ")
		}
	}
	return fmt.Sprintf(analysisRubric, clause)
}

// ImageAnalysisRequest は画像解析のリクエストを組み立てる。
func ImageAnalysisRequest(image []byte, mime string, prefs *model.UserPreferences) Request {
	return Request{
		Purpose:   PurposeAnalysis,
		System:    AnalysisSystemPrompt(prefs),
		Prompt:    imageInstruction,
		Image:     image,
		ImageMIME: mime,
	}
}

// ProductFacts はバーコード検索で得た製品情報。
type ProductFacts struct {
	Barcode     string
	Name        string
	Brand       string
	Category    string
	Ingredients string
	Nutrition   *model.NutritionData
}

// ProductAnalysisRequest はバーコード検索結果をもとにした解析リクエストを組み立てる。
func ProductAnalysisRequest(facts ProductFacts, prefs *model.UserPreferences) Request {
	var sb strings.Builder
	sb.WriteString("Analyze this product from a barcode lookup. Flag its ingredients, score it, and suggest alternatives.\n\n")
	fmt.Fprintf(&sb, "Barcode: %s\n", facts.Barcode)
	fmt.Fprintf(&sb, "Product name: %s\n", orUnknown(facts.Name))
	fmt.Fprintf(&sb, "Brand: %s\n", orUnknown(facts.Brand))
	if facts.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", facts.Category)
	}
	fmt.Fprintf(&sb, "Ingredients: %s\n", orUnknown(facts.Ingredients))

	if n := facts.Nutrition; !n.IsEmpty() {
		sb.WriteString("Nutrition per 100g:\n")
		writeNutrient(&sb, "calories (kcal)", n.Calories)
		writeNutrient(&sb, "protein (g)", n.Protein)
		writeNutrient(&sb, "carbohydrates (g)", n.Carbs)
		writeNutrient(&sb, "sugars (g)", n.Sugars)
		writeNutrient(&sb, "fat (g)", n.Fat)
		writeNutrient(&sb, "saturated fat (g)", n.SaturatedFat)
		writeNutrient(&sb, "fiber (g)", n.Fiber)
		writeNutrient(&sb, "sodium (g)", n.Sodium)
	}

	return Request{
		Purpose: PurposeAnalysis,
		System:  AnalysisSystemPrompt(prefs),
		Prompt:  sb.String(),
	}
}

// ComparisonProduct は比較プロンプトに含める製品の情報。
type ComparisonProduct struct {
	Name  string
	Brand string
	Score float64
}

// ComparisonContext は比較時にオラクルへ渡す文脈。
// 用語は緑以外のフラグのみを含む。
type ComparisonContext struct {
	Product1 ComparisonProduct
	Product2 ComparisonProduct
	Winner   model.Winner
	Shared   []string
	Unique1  []string
	Unique2  []string
}

// ComparisonRequest は化学物質曝露と推奨文を1回で得るリクエストを組み立てる。
func ComparisonRequest(c ComparisonContext) Request {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product 1: %s by %s, score %s/100\n", c.Product1.Name, orUnknown(c.Product1.Brand), formatScore(c.Product1.Score))
	fmt.Fprintf(&sb, "Product 2: %s by %s, score %s/100\n", c.Product2.Name, orUnknown(c.Product2.Brand), formatScore(c.Product2.Score))
	fmt.Fprintf(&sb, "Higher score: %s\n\n", c.Winner)
	fmt.Fprintf(&sb, "Concerning ingredients in both (foundIn \"both\"): %s\n", joinTerms(c.Shared))
	fmt.Fprintf(&sb, "Concerning ingredients only in product 1 (foundIn \"product1\"): %s\n", joinTerms(c.Unique1))
	fmt.Fprintf(&sb, "Concerning ingredients only in product 2 (foundIn \"product2\"): %s\n", joinTerms(c.Unique2))

	return Request{
		Purpose: PurposeComparison,
		System:  comparisonSystem,
		Prompt:  sb.String(),
	}
}

func writeNutrient(sb *strings.Builder, label string, v *float64) {
	if v == nil {
		return
	}
	fmt.Fprintf(sb, "- %s: %s\n", label, formatScore(*v))
}

func joinTerms(terms []string) string {
	if len(terms) == 0 {
		return "none"
	}
	return strings.Join(terms, ", ")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
