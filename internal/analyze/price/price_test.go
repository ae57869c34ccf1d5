package price

import (
	"context"
	"testing"
	"time"

	"github.com/esomin/gpu-market-etl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	obs []store.PriceObservation
	err error
}

func (f *fakeHistory) HistoricalPrices(ctx context.Context, productID uint, from, to time.Time) ([]store.PriceObservation, error) {
	return f.obs, f.err
}

func TestChangePct_ComputesPercentAgainstWindowAverage(t *testing.T) {
	a := New(&fakeHistory{obs: []store.PriceObservation{{Price: 900000}, {Price: 1000000}}})
	pct, err := a.ChangePct(context.Background(), 1, 1045000)
	require.NoError(t, err)
	require.NotNil(t, pct)
	assert.Equal(t, 10.0, *pct)
}

func TestChangePct_NoHistoryReturnsNilNotError(t *testing.T) {
	a := New(&fakeHistory{obs: nil})
	pct, err := a.ChangePct(context.Background(), 1, 900000)
	require.NoError(t, err)
	assert.Nil(t, pct)
}

func TestChangePct_NonPositivePriceRejected(t *testing.T) {
	a := New(&fakeHistory{})
	_, err := a.ChangePct(context.Background(), 1, 0)
	require.Error(t, err)
}

func TestChangePct_NegativePriceRejected(t *testing.T) {
	a := New(&fakeHistory{})
	_, err := a.ChangePct(context.Background(), 1, -5)
	require.Error(t, err)
}
