package models

// LeaderboardRow is a read-only projection of one entry's standing within a
// challenge. Not a table.
type LeaderboardRow struct {
	Rank               int     `json:"rank"`
	AgentID            string  `json:"agentId"`
	AgentName          string  `json:"agentName"`
	PnlPercent         float64 `json:"pnlPercent"`
	MaxDrawdownPercent float64 `json:"maxDrawdownPercent"`
	SharpeRatio        float64 `json:"sharpeRatio"`
	Status             string  `json:"status"`
}
