// Package pipeline implements C9 Pipeline: orchestration of one
// end-to-end pass across extraction, normalization, analysis, and
// persistence. The phase layout (Init -> Extract -> Transform -> Load
// -> Analyze -> Done) and the "log and continue" fault model are
// grounded on the gold-price update flow in
// internal/app/service/gold_price_service.go, generalized from a
// single external API call to the multi-stage ETL described in
// SPEC_FULL.md.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	riskan "github.com/esomin/gpu-market-etl/internal/analyze/risk"
	"github.com/esomin/gpu-market-etl/internal/archive"
	apperrors "github.com/esomin/gpu-market-etl/internal/errors"
	"github.com/esomin/gpu-market-etl/internal/extract/feed"
	"github.com/esomin/gpu-market-etl/internal/extract/price"
	"github.com/esomin/gpu-market-etl/internal/normalize"
	"github.com/esomin/gpu-market-etl/internal/store"
	"github.com/esomin/gpu-market-etl/pkg/logger"
)

// Phase names the stage a run is in; Stats.Phase holds the stage at the
// moment each error is recorded. The value is not strictly linear: a
// price pass alternates between transform and load per listing, and
// RunFull's signals pass sets extract again after the price pass.
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseExtract   Phase = "extract"
	PhaseTransform Phase = "transform"
	PhaseLoad      Phase = "load"
	PhaseAnalyze   Phase = "analyze"
	PhaseDone      Phase = "done"
)

// Stats summarizes one pipeline run for logging and introspection.
type Stats struct {
	Phase            Phase
	ProductsUpserted int
	PricesInserted   int
	SignalsInserted  int
	AlertsFired      int
	Errors           []string
	Duration         time.Duration
	Success          bool
}

// PriceExtractor is the subset of *price.Extractor the pipeline depends
// on, narrowed so tests can substitute a fake (the same pattern
// internal/analyze/price and internal/analyze/risk already use for
// their own store dependency).
type PriceExtractor interface {
	Extract(ctx context.Context, chipset store.Chipset) ([]price.Listing, error)
}

// FeedExtractor is the subset of *feed.Extractor the pipeline depends
// on.
type FeedExtractor interface {
	Extract(ctx context.Context) []feed.Hit
}

// PriceAnalyzer is the subset of internal/analyze/price's *Analyzer the
// pipeline depends on.
type PriceAnalyzer interface {
	ChangePct(ctx context.Context, productID uint, currentPrice float64) (*float64, error)
}

// SentimentAnalyzer is the subset of internal/analyze/sentiment's
// *Analyzer the pipeline depends on.
type SentimentAnalyzer interface {
	Score(ctx context.Context) (float64, error)
	NewReleaseMentions(ctx context.Context) (int, error)
}

// RiskCalculator is the subset of *riskan.Calculator the pipeline
// depends on.
type RiskCalculator interface {
	Evaluate(ctx context.Context, productID uint, currentPrice float64, newReleaseMentions int, sentimentScore float64) (*riskan.Result, error)
	Threshold() float64
	Recommendation(riskIndex float64) string
}

// Pipeline wires the extractors, normalizer, analyzers, and store into
// the three invocations spec.md §4.9 names.
type Pipeline struct {
	store          store.Port
	priceExtractor PriceExtractor
	feedExtractor  FeedExtractor
	priceAnalyzer  PriceAnalyzer
	sentAnalyzer   SentimentAnalyzer
	riskCalc       RiskCalculator
	archive        *archive.Sink

	running int32 // guards the no-reentry rule via atomic CAS
}

// New builds a Pipeline from its already-constructed collaborators.
func New(s store.Port, pe PriceExtractor, fe FeedExtractor, pa PriceAnalyzer, sa SentimentAnalyzer, rc RiskCalculator) *Pipeline {
	return &Pipeline{store: s, priceExtractor: pe, feedExtractor: fe, priceAnalyzer: pa, sentAnalyzer: sa, riskCalc: rc}
}

// WithArchive attaches an optional archival sink; a nil sink (the
// default, when AWS_S3_ARCHIVE_BUCKET is unset) disables archiving
// without changing any other pipeline behavior.
func (p *Pipeline) WithArchive(sink *archive.Sink) *Pipeline {
	p.archive = sink
	return p
}

func (p *Pipeline) archiveStats(ctx context.Context, kind string, stats *Stats) {
	if p.archive == nil {
		return
	}
	runID := archive.NewRunID()
	if err := p.archive.ArchiveRun(ctx, runID, kind, stats); err != nil {
		logger.Warn("failed to archive run stats", map[string]interface{}{"kind": kind, "error": err.Error()})
	}
}

func (p *Pipeline) acquire() bool {
	return atomic.CompareAndSwapInt32(&p.running, 0, 1)
}

func (p *Pipeline) release() {
	atomic.StoreInt32(&p.running, 0)
}

// RunFull extracts prices and signals, then for every product
// computes sentiment and risk and conditionally inserts an alert.
func (p *Pipeline) RunFull(ctx context.Context) (*Stats, error) {
	if !p.acquire() {
		return nil, apperrors.ErrPipelineAlreadyRunning
	}
	defer p.release()

	start := time.Now()
	stats := &Stats{Phase: PhaseInit, Success: true}

	if err := p.runPriceOnlyLocked(ctx, stats); err != nil {
		stats.Success = false
		stats.Duration = time.Since(start)
		return stats, err
	}
	if err := p.runSignalsOnlyLocked(ctx, stats); err != nil {
		stats.Success = false
		stats.Duration = time.Since(start)
		return stats, err
	}

	stats.Phase = PhaseAnalyze
	products, err := p.store.ListProducts(ctx)
	if err != nil {
		stats.Success = false
		stats.Duration = time.Since(start)
		return stats, err
	}

	for _, prod := range products {
		if err := ctx.Err(); err != nil {
			stats.errorf("context cancelled during analyze phase: %v", err)
			break
		}
		p.analyzeProduct(ctx, prod, stats)
	}

	stats.Phase = PhaseDone
	stats.Duration = time.Since(start)
	p.archiveStats(ctx, "full", stats)
	return stats, nil
}

// RunPriceOnly extracts prices, normalizes, upserts products, computes
// price change, and inserts price observations.
func (p *Pipeline) RunPriceOnly(ctx context.Context) (*Stats, error) {
	if !p.acquire() {
		return nil, apperrors.ErrPipelineAlreadyRunning
	}
	defer p.release()

	start := time.Now()
	stats := &Stats{Phase: PhaseInit, Success: true}
	err := p.runPriceOnlyLocked(ctx, stats)
	stats.Success = err == nil
	stats.Phase = PhaseDone
	stats.Duration = time.Since(start)
	p.archiveStats(ctx, "price-crawl", stats)
	return stats, err
}

// RunSignalsOnly extracts feeds and inserts signals.
func (p *Pipeline) RunSignalsOnly(ctx context.Context) (*Stats, error) {
	if !p.acquire() {
		return nil, apperrors.ErrPipelineAlreadyRunning
	}
	defer p.release()

	start := time.Now()
	stats := &Stats{Phase: PhaseInit, Success: true}
	err := p.runSignalsOnlyLocked(ctx, stats)
	stats.Success = err == nil
	stats.Phase = PhaseDone
	stats.Duration = time.Since(start)
	p.archiveStats(ctx, "reddit-collection", stats)
	return stats, err
}

func (p *Pipeline) runPriceOnlyLocked(ctx context.Context, stats *Stats) error {
	stats.Phase = PhaseExtract
	for _, chip := range store.AllChipsets {
		if err := ctx.Err(); err != nil {
			return err
		}
		listings, err := p.priceExtractor.Extract(ctx, chip)
		if err != nil {
			stats.errorf("extract %s: %v", chip, err)
			continue
		}

		stats.Phase = PhaseTransform
		for _, listing := range listings {
			p.loadListing(ctx, listing, stats)
		}
	}
	return nil
}

func (p *Pipeline) loadListing(ctx context.Context, listing price.Listing, stats *Stats) {
	identity, err := normalize.Normalize(listing.RawProductName)
	if err != nil {
		stats.errorf("normalize %q: %v", listing.RawProductName, err)
		return
	}

	stats.Phase = PhaseLoad
	productID, err := p.store.UpsertProduct(ctx, store.Identity{
		Brand: identity.Brand, Chipset: identity.Chipset, ModelName: identity.ModelName,
		VRAM: identity.VRAM, IsOC: identity.IsOC,
	})
	if err != nil {
		stats.errorf("upsert product for %q: %v", listing.RawProductName, err)
		return
	}
	stats.ProductsUpserted++

	changePct, err := p.priceAnalyzer.ChangePct(ctx, productID, listing.Price)
	if err != nil {
		stats.errorf("price change for product %d: %v", productID, err)
		changePct = nil
	} else if changePct == nil {
		logger.Warn("no price change computed for product", map[string]interface{}{"product_id": productID, "reason": apperrors.ErrInsufficientData.Error()})
	}

	if err := p.store.InsertPrice(ctx, store.PriceRecord{
		ProductID: productID, Price: listing.Price, Source: price.SourceName,
		SourceURL: listing.SourceURL, RecordedAt: listing.RecordedAt, PriceChangePct: changePct,
	}); err != nil {
		stats.errorf("insert price for product %d: %v", productID, err)
		return
	}
	stats.PricesInserted++
}

func (p *Pipeline) runSignalsOnlyLocked(ctx context.Context, stats *Stats) error {
	stats.Phase = PhaseExtract
	hits := p.feedExtractor.Extract(ctx)

	stats.Phase = PhaseLoad
	for _, h := range hits {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.store.InsertSignal(ctx, store.SignalRecord{
			Keyword: h.Keyword, PostTitle: h.PostTitle, PostURL: h.PostURL,
			Subreddit: h.Subreddit, Date: h.Date,
		}); err != nil {
			stats.errorf("insert signal for %q/%q: %v", h.Keyword, h.PostURL, err)
			continue
		}
		stats.SignalsInserted++
	}
	return nil
}

func (p *Pipeline) analyzeProduct(ctx context.Context, prod store.Product, stats *Stats) {
	score, err := p.sentAnalyzer.Score(ctx)
	if err != nil {
		stats.errorf("sentiment score for product %d: %v", prod.ID, err)
		return
	}
	mentions, err := p.sentAnalyzer.NewReleaseMentions(ctx)
	if err != nil {
		stats.errorf("new release mentions for product %d: %v", prod.ID, err)
		return
	}

	latestPrice, ok := p.latestPrice(ctx, prod.ID)
	if !ok {
		logger.Warn("skipping risk evaluation, no recent price for product", map[string]interface{}{"product_id": prod.ID, "reason": apperrors.ErrInsufficientData.Error()})
		return
	}

	result, err := p.riskCalc.Evaluate(ctx, prod.ID, latestPrice, mentions, score)
	if err != nil {
		stats.errorf("risk evaluation for product %d: %v", prod.ID, err)
		return
	}
	if result == nil {
		return
	}
	if !result.IsHighRisk {
		return
	}

	if err := p.store.InsertAlert(ctx, store.AlertRecord{
		ProductID: prod.ID, RiskIndex: result.RiskIndex, Threshold: p.riskCalc.Threshold(),
		ContributingFactors: result.ContributingFactors,
		Recommendation:      p.riskCalc.Recommendation(result.RiskIndex),
	}); err != nil {
		stats.errorf("insert alert for product %d: %v", prod.ID, err)
		return
	}
	stats.AlertsFired++
}

func (p *Pipeline) latestPrice(ctx context.Context, productID uint) (float64, bool) {
	obs, err := p.store.PriceHistory(ctx, productID, 1)
	if err != nil || len(obs) == 0 {
		return 0, false
	}
	return obs[0].Price, true
}

func (s *Stats) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Warn("pipeline phase error", map[string]interface{}{"phase": string(s.Phase), "detail": msg})
	s.Errors = append(s.Errors, msg)
}
