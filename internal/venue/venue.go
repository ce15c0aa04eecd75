// Package venue defines the narrow interfaces the core uses to talk to the
// external execution venue, plus a REST client implementing them.
package venue

import "context"

type Position struct {
	MarketIndex   int     `json:"marketIndex"`
	BaseAmount    float64 `json:"baseAssetAmount"`
	QuoteAmount   float64 `json:"quoteAssetAmount"`
	UnrealizedPnl float64 `json:"unrealizedPnl"`
	Direction     string  `json:"direction"`
}

// AccountSnapshot is one point-in-time read of an execution sub-account.
type AccountSnapshot struct {
	Equity        float64    `json:"equity"`
	UnrealizedPnl float64    `json:"unrealizedPnl"`
	Positions     []Position `json:"openPositions"`
	TradeCount    int        `json:"tradeCount"`
}

// SnapshotSource provides live account reads. Calls may fail when the venue
// is unavailable; callers substitute the fallback generator.
type SnapshotSource interface {
	AccountSnapshot(ctx context.Context, accountID int64) (AccountSnapshot, error)
}

// Delegator revokes delegated trading authority on a sub-account (vault
// freeze path).
type Delegator interface {
	RevokeDelegation(ctx context.Context, accountID int64) error
}
