// Package price implements C6 PriceAnalyzer: the week-over-week
// price-change percentage, grounded on
// original_source/etl/transformers/price_analyzer.py, with the
// insufficient-data case resolved to (nil, warning) rather than the
// original's InsufficientDataError (see DESIGN.md).
package price

import (
	"context"
	"math"
	"time"

	apperrors "github.com/esomin/gpu-market-etl/internal/errors"
	"github.com/esomin/gpu-market-etl/internal/store"
	"github.com/esomin/gpu-market-etl/pkg/logger"
)

// HistoryReader is the subset of store.Port PriceAnalyzer depends on.
type HistoryReader interface {
	HistoricalPrices(ctx context.Context, productID uint, from, to time.Time) ([]store.PriceObservation, error)
}

// Analyzer computes price_change_pct against the [now-8d, now-6d]
// window average.
type Analyzer struct {
	store HistoryReader
}

// New builds a PriceAnalyzer.
func New(s HistoryReader) *Analyzer {
	return &Analyzer{store: s}
}

// ChangePct computes (current - avg_7d_ago) / avg_7d_ago * 100,
// rounded to two decimals. Returns (nil, nil) when the 7-day-ago
// window has no observations — the caller must accept the null and
// continue, not treat it as a fatal error.
func (a *Analyzer) ChangePct(ctx context.Context, productID uint, currentPrice float64) (*float64, error) {
	if currentPrice <= 0 {
		return nil, &apperrors.ValidationError{
			Code: apperrors.ValidationNonPositivePrice, Field: "current_price", Message: "must be positive",
		}
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -8)
	to := now.AddDate(0, 0, -6)

	obs, err := a.store.HistoricalPrices(ctx, productID, from, to)
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		logger.Warn("insufficient historical data for price change calculation", map[string]interface{}{"product_id": productID})
		return nil, nil
	}

	var sum float64
	for _, o := range obs {
		sum += o.Price
	}
	avg := sum / float64(len(obs))
	if avg == 0 {
		logger.Warn("seven-day-ago average price is zero, skipping price change calculation", map[string]interface{}{"product_id": productID})
		return nil, nil
	}

	pct := roundTo2((currentPrice - avg) / avg * 100)
	return &pct, nil
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
