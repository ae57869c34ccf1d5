// Package store is the boundary over the relational store (C2
// StorePort): idempotent upserts keyed by each table's natural key,
// plus the historical reads the analyzers need. Every operation here
// is grounded on the conflict targets and SQL shape of
// original_source/etl/loaders/db_loader.py, adapted to GORM's
// clause.OnConflict the way gold_price_repository.go wraps *gorm.DB.
package store

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/esomin/gpu-market-etl/internal/errors"
	applogger "github.com/esomin/gpu-market-etl/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Identity is the normalized product shape StorePort upserts against
// the (brand, model_name) natural key.
type Identity struct {
	Brand     string
	Chipset   Chipset
	ModelName string
	VRAM      string
	IsOC      bool
}

// PriceRecord is one price point to persist, keyed by
// (product_id, source, recorded_at).
type PriceRecord struct {
	ProductID      uint
	Price          float64
	Source         string
	SourceURL      string
	RecordedAt     time.Time
	PriceChangePct *float64
}

// SignalRecord is one keyword hit to persist, keyed by
// (keyword, date, post_url).
type SignalRecord struct {
	Keyword        string
	PostTitle      string
	PostURL        string
	Subreddit      string
	SentimentScore float64
	Date           time.Time
}

// AlertRecord is one risk event to append.
type AlertRecord struct {
	ProductID           uint
	RiskIndex           float64
	Threshold           float64
	ContributingFactors map[string]interface{}
	Recommendation      string
}

// Port is the interface the analyzers and pipeline depend on, so
// tests can substitute an in-memory SQLite-backed implementation.
type Port interface {
	UpsertProduct(ctx context.Context, identity Identity) (uint, error)
	InsertPrice(ctx context.Context, rec PriceRecord) error
	InsertSignal(ctx context.Context, rec SignalRecord) error
	InsertAlert(ctx context.Context, rec AlertRecord) error
	HistoricalPrices(ctx context.Context, productID uint, from, to time.Time) ([]PriceObservation, error)
	PriceHistory(ctx context.Context, productID uint, days int) ([]PriceObservation, error)
	KeywordCounts(ctx context.Context, from, to time.Time) (map[string]int, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

// GormStore is the Postgres-backed (or, in tests, SQLite-backed)
// implementation of Port.
type GormStore struct {
	db *gorm.DB
}

// Open connects to Postgres and configures the connection pool size
// per spec.md §6's `pool_size` option, mirroring
// internal/db/database.go's connect-then-pool-tune sequence but with
// the pool size coming from config instead of a hardcoded constant.
func Open(dsn string, poolSize int) (*GormStore, error) {
	applogger.Info("connecting to store", map[string]interface{}{"dsn_host": dsn})

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Cause: err}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Cause: err}
	}
	if poolSize <= 0 {
		poolSize = 5
	}
	sqlDB.SetMaxOpenConns(poolSize)
	sqlDB.SetMaxIdleConns(poolSize)

	applogger.Info("store connection established", map[string]interface{}{"pool_size": poolSize})
	return &GormStore{db: db}, nil
}

// NewGormStore wraps an already-open *gorm.DB (used by tests against
// an in-memory SQLite database, see testdb.go).
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates/updates the four core tables.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&Product{}, &PriceObservation{}, &MarketSignal{}, &RiskAlert{})
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertProduct persists a normalized product identity. Conflict
// target (brand, model_name) updates chipset/vram/is_oc/updated_at and
// preserves id, since later observations are authoritative about spec
// (spec.md §4.2).
func (s *GormStore) UpsertProduct(ctx context.Context, identity Identity) (uint, error) {
	p := Product{
		Category:  CategoryGPU,
		Chipset:   identity.Chipset,
		Brand:     identity.Brand,
		ModelName: identity.ModelName,
		VRAM:      identity.VRAM,
		IsOC:      identity.IsOC,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "brand"}, {Name: "model_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"chipset", "v_ram", "is_oc", "updated_at"}),
	}).Create(&p).Error
	if err != nil {
		return 0, classifyStoreError(err, fmt.Sprintf("%s/%s", identity.Brand, identity.ModelName))
	}

	// Postgres RETURNING id via Create doesn't populate p.ID on conflict
	// update paths for every driver version; re-select by natural key
	// to always return the authoritative id.
	if p.ID == 0 {
		var existing Product
		if err := s.db.WithContext(ctx).
			Where("brand = ? AND model_name = ?", identity.Brand, identity.ModelName).
			First(&existing).Error; err != nil {
			return 0, classifyStoreError(err, fmt.Sprintf("%s/%s", identity.Brand, identity.ModelName))
		}
		return existing.ID, nil
	}
	return p.ID, nil
}

// InsertPrice persists a price observation. Conflict target
// (product_id, source, recorded_at) updates price/source_url/
// price_change_pct; never duplicates (spec.md §4.2).
func (s *GormStore) InsertPrice(ctx context.Context, rec PriceRecord) error {
	obs := PriceObservation{
		ProductID:      rec.ProductID,
		Price:          rec.Price,
		Source:         rec.Source,
		SourceURL:      rec.SourceURL,
		RecordedAt:     rec.RecordedAt,
		PriceChangePct: rec.PriceChangePct,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "source"}, {Name: "recorded_at"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "source_url", "price_change_pct"}),
	}).Create(&obs).Error
	if err != nil {
		return classifyStoreError(err, fmt.Sprintf("product=%d source=%s at=%s", rec.ProductID, rec.Source, rec.RecordedAt))
	}
	return nil
}

// InsertSignal persists a market signal. Conflict target
// (keyword, date, post_url) updates title/sentiment_score and
// increments mention_count by 1 (spec.md §4.2, testable property 6).
func (s *GormStore) InsertSignal(ctx context.Context, rec SignalRecord) error {
	sig := MarketSignal{
		Keyword:        rec.Keyword,
		PostTitle:      rec.PostTitle,
		PostURL:        rec.PostURL,
		Subreddit:      rec.Subreddit,
		SentimentScore: rec.SentimentScore,
		MentionCount:   1,
		Date:           rec.Date,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "keyword"}, {Name: "date"}, {Name: "post_url"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"post_title":      gorm.Expr("EXCLUDED.post_title"),
			"sentiment_score": gorm.Expr("EXCLUDED.sentiment_score"),
			"mention_count":   gorm.Expr("market_signals.mention_count + 1"),
		}),
	}).Create(&sig).Error
	if err != nil {
		return classifyStoreError(err, fmt.Sprintf("%s/%s/%s", rec.Keyword, rec.Date.Format("2006-01-02"), rec.PostURL))
	}
	return nil
}

// InsertAlert is a pure insert with no conflict target: alerts form an
// append-only time series (spec.md §4.2).
func (s *GormStore) InsertAlert(ctx context.Context, rec AlertRecord) error {
	alert := RiskAlert{
		ProductID:           rec.ProductID,
		RiskIndex:           rec.RiskIndex,
		Threshold:           rec.Threshold,
		ContributingFactors: JSONMap(rec.ContributingFactors),
		Recommendation:      rec.Recommendation,
	}
	if err := s.db.WithContext(ctx).Create(&alert).Error; err != nil {
		return classifyStoreError(err, fmt.Sprintf("product=%d", rec.ProductID))
	}
	return nil
}

// HistoricalPrices returns observations in [from, to] ordered by
// recorded_at ascending, used by PriceAnalyzer's 7-day window query.
func (s *GormStore) HistoricalPrices(ctx context.Context, productID uint, from, to time.Time) ([]PriceObservation, error) {
	var obs []PriceObservation
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND recorded_at >= ? AND recorded_at <= ?", productID, from, to).
		Order("recorded_at ASC").
		Find(&obs).Error
	if err != nil {
		return nil, classifyStoreError(err, fmt.Sprintf("product=%d", productID))
	}
	return obs, nil
}

// PriceHistory returns a product's observations recorded within the
// last `days` days, newest first, per original_source's
// get_price_history. The pipeline's analyze phase reads each product's
// most recent price through it; there is no per-listing history
// backfill behind it.
func (s *GormStore) PriceHistory(ctx context.Context, productID uint, days int) ([]PriceObservation, error) {
	since := time.Now().AddDate(0, 0, -days)
	var obs []PriceObservation
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND recorded_at >= ?", productID, since).
		Order("recorded_at DESC").
		Find(&obs).Error
	if err != nil {
		return nil, classifyStoreError(err, fmt.Sprintf("product=%d", productID))
	}
	return obs, nil
}

// KeywordCounts sums mention_count per keyword over [from, to], used
// by SentimentAnalyzer.
func (s *GormStore) KeywordCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	type row struct {
		Keyword string
		Total   int
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&MarketSignal{}).
		Select("keyword, SUM(mention_count) as total").
		Where("date >= ? AND date <= ?", from, to).
		Group("keyword").
		Scan(&rows).Error
	if err != nil {
		return nil, classifyStoreError(err, "keyword_counts")
	}
	result := make(map[string]int, len(rows))
	for _, r := range rows {
		result[r.Keyword] = r.Total
	}
	return result, nil
}

// ListProducts returns every persisted product, used by the pipeline's
// analyze phase to iterate candidates for risk evaluation.
func (s *GormStore) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := s.db.WithContext(ctx).Find(&products).Error; err != nil {
		return nil, classifyStoreError(err, "list_products")
	}
	return products, nil
}

// classifyStoreError wraps every GORM/driver error as a
// StoreConstraintError tied to the given natural key. It does not tell
// transient failures apart from constraint violations, and store
// operations are not retried, here or by their callers.
func classifyStoreError(err error, naturalKey string) error {
	if err == nil {
		return nil
	}
	return &apperrors.StoreConstraintError{NaturalKey: naturalKey, Cause: err}
}
