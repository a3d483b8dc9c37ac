package model

// WeeklyStats は1週間分のスキャン集計。
// 日付はYYYY-MM-DD形式で、週は月曜始まり（UTC）。
type WeeklyStats struct {
	WeekLabel string  `json:"weekLabel"`
	AvgScore  float64 `json:"avgScore"`
	ScanCount int     `json:"scanCount"`
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
}
