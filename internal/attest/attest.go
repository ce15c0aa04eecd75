// Package attest canonicalizes evaluation outcomes and hands them to an
// external immutable-ledger sink. Sink failures never block a state
// transition; callers fall back to a local placeholder reference.
package attest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	KindChallengeResult = "challenge_result"
	KindFundedStatus    = "funded_status"
)

// Payload is the attested record of a final evaluation outcome. Field order
// is fixed, so the canonical encoding of identical results is byte-identical
// and repeated submissions are verifiable.
type Payload struct {
	Kind                string  `json:"type"`
	AgentID             string  `json:"agentId"`
	ChallengeID         string  `json:"challengeId,omitempty"`
	Phase               int     `json:"phase,omitempty"`
	PnlPercent          float64 `json:"pnlPercent"`
	MaxDrawdownPercent  float64 `json:"maxDrawdown"`
	MaxDailyLossPercent float64 `json:"maxDailyLoss,omitempty"`
	TradingDays         int     `json:"tradingDays,omitempty"`
	SharpeRatio         float64 `json:"sharpeRatio,omitempty"`
	Passed              bool    `json:"passed"`
	Timestamp           int64   `json:"timestamp"`
}

// Canonical returns the deterministic encoding of the payload.
func (p Payload) Canonical() ([]byte, error) {
	return json.Marshal(p)
}

// Digest is the hex sha256 of the canonical encoding.
func (p Payload) Digest() (string, error) {
	raw, err := p.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Sink stores an attestation and returns an opaque reference.
type Sink interface {
	Store(ctx context.Context, p Payload) (string, error)
}

// FallbackRef synthesizes a local placeholder reference when the sink is
// unavailable, so terminal transitions are never lost.
func FallbackRef(kind string, now time.Time) string {
	return fmt.Sprintf("offline:%s:%d", kind, now.Unix())
}

// LogSink records attestations locally; the returned reference is derived
// from the payload digest. Used when no ledger endpoint is configured.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Store(ctx context.Context, p Payload) (string, error) {
	digest, err := p.Digest()
	if err != nil {
		return "", err
	}
	if s.Logger != nil {
		s.Logger.Info("attestation recorded locally",
			zap.String("type", p.Kind),
			zap.String("agent_id", p.AgentID),
			zap.Bool("passed", p.Passed),
			zap.String("digest", digest),
		)
	}
	return "local:" + digest[:16], nil
}
