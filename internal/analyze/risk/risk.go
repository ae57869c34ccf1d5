// Package risk implements C8 RiskCalculator: the composite inventory
// risk index and alert decision, grounded on
// original_source/etl/transformers/risk_calculator.py. The
// high-risk direction is resolved to `risk > threshold` here, the
// opposite of the original's `risk_index < threshold`, per the worked
// example in spec.md §4.8 (see DESIGN.md).
package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/esomin/gpu-market-etl/internal/store"
	"github.com/esomin/gpu-market-etl/pkg/logger"
)

const newReleaseMentionWeight = 0.3

// HistoryReader is the subset of store.Port RiskCalculator depends on.
type HistoryReader interface {
	HistoricalPrices(ctx context.Context, productID uint, from, to time.Time) ([]store.PriceObservation, error)
}

// Config carries the threshold a product's risk index is compared
// against. Defaults mirror spec.md §6.
type Config struct {
	Threshold float64
}

// Result is the outcome of evaluating one product.
type Result struct {
	ProductID           uint
	RiskIndex           float64
	IsHighRisk          bool
	ContributingFactors map[string]interface{}
}

// Calculator computes the composite risk index for a product and
// decides whether to fire an alert.
type Calculator struct {
	store HistoryReader
	cfg   Config
}

// New builds a RiskCalculator.
func New(s HistoryReader, cfg Config) *Calculator {
	if cfg.Threshold == 0 {
		cfg.Threshold = 100.0
	}
	return &Calculator{store: s, cfg: cfg}
}

// Threshold returns the configured high-risk cutoff, recorded on each
// fired alert so operators can see the threshold in effect at the time.
func (c *Calculator) Threshold() float64 {
	return c.cfg.Threshold
}

// Evaluate computes risk_index = (current_price - avg_7d_ago_price) +
// (new_release_mentions * 0.3). Returns (nil, nil) when there is no
// 7-day-ago price history to compare against — the caller must skip
// the product with a warning rather than treat this as fatal.
func (c *Calculator) Evaluate(ctx context.Context, productID uint, currentPrice float64, newReleaseMentions int, sentimentScore float64) (*Result, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -8)
	to := now.AddDate(0, 0, -6)

	obs, err := c.store.HistoricalPrices(ctx, productID, from, to)
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		logger.Warn("skipping risk evaluation, no 7-day-ago price history", map[string]interface{}{"product_id": productID})
		return nil, nil
	}

	var sum float64
	for _, o := range obs {
		sum += o.Price
	}
	avg := sum / float64(len(obs))

	priceDelta := currentPrice - avg
	sentimentImpact := float64(newReleaseMentions) * newReleaseMentionWeight
	riskIndex := roundTo2(priceDelta + sentimentImpact)

	isHighRisk := riskIndex > c.cfg.Threshold

	result := &Result{
		ProductID:  productID,
		RiskIndex:  riskIndex,
		IsHighRisk: isHighRisk,
		ContributingFactors: map[string]interface{}{
			"price_delta":          roundTo2(priceDelta),
			"new_release_mentions": newReleaseMentions,
			"sentiment_score":      sentimentScore,
		},
	}

	if isHighRisk {
		logger.Warn("high risk detected", map[string]interface{}{
			"product_id": productID, "risk_index": riskIndex, "threshold": c.cfg.Threshold,
		})
	}

	return result, nil
}

// Recommendation produces a severity-tiered operator message. The
// thresholds are relative multiples of the configured threshold, not
// absolute figures, so they scale with whatever risk_threshold an
// operator configures.
func (c *Calculator) Recommendation(riskIndex float64) string {
	switch {
	case riskIndex > c.cfg.Threshold*2:
		return fmt.Sprintf("CRITICAL: risk index %.2f is more than double the threshold (%.2f). Consider an immediate clearance discount.", riskIndex, c.cfg.Threshold)
	case riskIndex > c.cfg.Threshold*1.5:
		return fmt.Sprintf("HIGH: risk index %.2f substantially exceeds the threshold (%.2f). Review pricing within the week.", riskIndex, c.cfg.Threshold)
	default:
		return fmt.Sprintf("ELEVATED: risk index %.2f exceeds the threshold (%.2f). Monitor closely.", riskIndex, c.cfg.Threshold)
	}
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
