package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	riskan "github.com/esomin/gpu-market-etl/internal/analyze/risk"
	apperrors "github.com/esomin/gpu-market-etl/internal/errors"
	"github.com/esomin/gpu-market-etl/internal/extract/feed"
	"github.com/esomin/gpu-market-etl/internal/extract/price"
	"github.com/esomin/gpu-market-etl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	products  map[uint]store.Product
	nextID    uint
	prices    []store.PriceRecord
	signals   []store.SignalRecord
	alerts    []store.AlertRecord
	histories map[uint][]store.PriceObservation
	keywords  map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:  map[uint]store.Product{},
		histories: map[uint][]store.PriceObservation{},
		keywords:  map[string]int{},
	}
}

func (f *fakeStore) UpsertProduct(ctx context.Context, identity store.Identity) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.products[id] = store.Product{ID: id, Brand: identity.Brand, Chipset: identity.Chipset, ModelName: identity.ModelName, VRAM: identity.VRAM, IsOC: identity.IsOC}
	return id, nil
}

func (f *fakeStore) InsertPrice(ctx context.Context, rec store.PriceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = append(f.prices, rec)
	return nil
}

func (f *fakeStore) InsertSignal(ctx context.Context, rec store.SignalRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, rec)
	f.keywords[rec.Keyword]++
	return nil
}

func (f *fakeStore) InsertAlert(ctx context.Context, rec store.AlertRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, rec)
	return nil
}

func (f *fakeStore) HistoricalPrices(ctx context.Context, productID uint, from, to time.Time) ([]store.PriceObservation, error) {
	return f.histories[productID], nil
}

func (f *fakeStore) PriceHistory(ctx context.Context, productID uint, days int) ([]store.PriceObservation, error) {
	return f.histories[productID], nil
}

func (f *fakeStore) KeywordCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	return f.keywords, nil
}

func (f *fakeStore) ListProducts(ctx context.Context) ([]store.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Product
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

// fakePriceExtractor returns a fixed listing set per chipset, or an
// error for chipsets named in failFor, so tests can exercise the
// per-chipset "log and continue" fault model.
type fakePriceExtractor struct {
	listings map[store.Chipset][]price.Listing
	failFor  map[store.Chipset]error
}

func (f *fakePriceExtractor) Extract(ctx context.Context, chipset store.Chipset) ([]price.Listing, error) {
	if err, ok := f.failFor[chipset]; ok {
		return nil, err
	}
	return f.listings[chipset], nil
}

type fakeFeedExtractor struct {
	hits []feed.Hit
}

func (f *fakeFeedExtractor) Extract(ctx context.Context) []feed.Hit {
	return f.hits
}

type fakePriceAnalyzer struct {
	pct *float64
	err error
}

func (f *fakePriceAnalyzer) ChangePct(ctx context.Context, productID uint, currentPrice float64) (*float64, error) {
	return f.pct, f.err
}

type fakeSentimentAnalyzer struct {
	score    float64
	mentions int
	err      error
}

func (f *fakeSentimentAnalyzer) Score(ctx context.Context) (float64, error) {
	return f.score, f.err
}

func (f *fakeSentimentAnalyzer) NewReleaseMentions(ctx context.Context) (int, error) {
	return f.mentions, f.err
}

type fakeRiskCalculator struct {
	result    *riskan.Result
	err       error
	threshold float64
}

func (f *fakeRiskCalculator) Evaluate(ctx context.Context, productID uint, currentPrice float64, newReleaseMentions int, sentimentScore float64) (*riskan.Result, error) {
	return f.result, f.err
}

func (f *fakeRiskCalculator) Threshold() float64 { return f.threshold }

func (f *fakeRiskCalculator) Recommendation(riskIndex float64) string {
	return fmt.Sprintf("risk index %.2f", riskIndex)
}

func TestRunPriceOnlyLocked_ContinuesPastOneChipsetFailure(t *testing.T) {
	s := newFakeStore()
	pct := 5.0
	pe := &fakePriceExtractor{
		listings: map[store.Chipset][]price.Listing{
			store.ChipsetRTX4070: {
				{RawProductName: "ASUS TUF RTX 4070 OC 12GB", Price: 700000, SourceURL: "http://x/1", RecordedAt: time.Now()},
			},
		},
		failFor: map[store.Chipset]error{
			store.ChipsetRTX4070Super: errors.New("upstream unreachable"),
		},
	}
	p := New(s, pe, nil, &fakePriceAnalyzer{pct: &pct}, nil, nil)

	stats := &Stats{Phase: PhaseInit}
	err := p.runPriceOnlyLocked(context.Background(), stats)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.ProductsUpserted)
	assert.Equal(t, 1, stats.PricesInserted)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "RTX 4070 Super")
	require.Len(t, s.prices, 1)
	require.NotNil(t, s.prices[0].PriceChangePct)
	assert.Equal(t, pct, *s.prices[0].PriceChangePct)
}

func TestLoadListing_NormalizeFailureRecordsErrorWithoutUpsert(t *testing.T) {
	s := newFakeStore()
	p := New(s, nil, nil, nil, nil, nil)

	stats := &Stats{Phase: PhaseExtract}
	p.loadListing(context.Background(), price.Listing{RawProductName: "totally unrelated widget", Price: 100, RecordedAt: time.Now()}, stats)

	assert.Equal(t, 0, stats.ProductsUpserted)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "normalize")
	assert.Empty(t, s.prices)
}

func TestRunSignalsOnlyLocked_InsertsEveryHit(t *testing.T) {
	s := newFakeStore()
	fe := &fakeFeedExtractor{hits: []feed.Hit{
		{Keyword: "New Release", PostTitle: "t1", PostURL: "u1", Subreddit: "nvidia", Date: time.Now()},
		{Keyword: "Leak", PostTitle: "t2", PostURL: "u2", Subreddit: "nvidia", Date: time.Now()},
	}}
	p := New(s, nil, fe, nil, nil, nil)

	stats := &Stats{Phase: PhaseInit}
	err := p.runSignalsOnlyLocked(context.Background(), stats)

	require.NoError(t, err)
	assert.Equal(t, 2, stats.SignalsInserted)
	assert.Empty(t, stats.Errors)
	assert.Len(t, s.signals, 2)
}

func TestAnalyzeProduct_FiresAlertWhenHighRisk(t *testing.T) {
	s := newFakeStore()
	s.histories[1] = []store.PriceObservation{{Price: 750000, RecordedAt: time.Now()}}
	sa := &fakeSentimentAnalyzer{score: 4.0, mentions: 2}
	rc := &fakeRiskCalculator{
		result:    &riskan.Result{ProductID: 1, RiskIndex: 200, IsHighRisk: true, ContributingFactors: map[string]interface{}{"price_delta": 200.0}},
		threshold: 100,
	}
	p := New(s, nil, nil, nil, sa, rc)

	stats := &Stats{Phase: PhaseAnalyze}
	p.analyzeProduct(context.Background(), store.Product{ID: 1}, stats)

	require.Len(t, s.alerts, 1)
	assert.Equal(t, 200.0, s.alerts[0].RiskIndex)
	assert.Equal(t, 1, stats.AlertsFired)
	assert.Empty(t, stats.Errors)
}

func TestAnalyzeProduct_SkipsWithoutFiringWhenNoRecentPrice(t *testing.T) {
	s := newFakeStore()
	sa := &fakeSentimentAnalyzer{score: 1.0, mentions: 0}
	rc := &fakeRiskCalculator{threshold: 100}
	p := New(s, nil, nil, nil, sa, rc)

	stats := &Stats{Phase: PhaseAnalyze}
	p.analyzeProduct(context.Background(), store.Product{ID: 42}, stats)

	assert.Empty(t, s.alerts)
	assert.Equal(t, 0, stats.AlertsFired)
}

func TestRunFull_RejectsSecondInvocationWhileFirstInFlight(t *testing.T) {
	s := newFakeStore()
	p := New(s, nil, nil, nil, nil, nil)

	require.True(t, p.acquire())
	_, err := p.RunFull(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrPipelineAlreadyRunning)
	p.release()
}

func TestStats_ErrorfAccumulatesMessages(t *testing.T) {
	stats := &Stats{Phase: PhaseExtract}
	stats.errorf("fetch failed: %s", "timeout")
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "timeout")
}
