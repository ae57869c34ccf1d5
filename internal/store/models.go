package store

import "time"

// Chipset is restricted to the closed RTX 4070 family.
type Chipset string

const (
	ChipsetRTX4070        Chipset = "RTX 4070"
	ChipsetRTX4070Super   Chipset = "RTX 4070 Super"
	ChipsetRTX4070Ti      Chipset = "RTX 4070 Ti"
	ChipsetRTX4070TiSuper Chipset = "RTX 4070 Ti Super"
)

// AllChipsets is the closed chipset set; the price pass extracts
// listings for each member, and the normalizer only yields these values.
var AllChipsets = []Chipset{ChipsetRTX4070, ChipsetRTX4070Super, ChipsetRTX4070Ti, ChipsetRTX4070TiSuper}

// CategoryGPU is the fixed category value for any product carrying a
// chipset (spec.md §9's "Category" open question resolved per the
// core's enforced rule).
const CategoryGPU = "그래픽카드"

// Product is the stable identity for a GPU variant. Natural key is
// (brand, model_name).
type Product struct {
	ID        uint    `gorm:"primarykey"`
	Category  string  `gorm:"type:varchar(50);not null;default:'그래픽카드'"`
	Chipset   Chipset `gorm:"type:varchar(30);not null;index"`
	Brand     string  `gorm:"type:varchar(50);not null;uniqueIndex:idx_products_brand_model"`
	ModelName string  `gorm:"type:varchar(120);not null;uniqueIndex:idx_products_brand_model"`
	VRAM      string  `gorm:"type:varchar(10);not null"`
	IsOC      bool    `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time

	PriceObservations []PriceObservation `gorm:"constraint:OnDelete:CASCADE;"`
	RiskAlerts        []RiskAlert        `gorm:"constraint:OnDelete:CASCADE;"`
}

func (Product) TableName() string { return "products" }

// PriceObservation is one price point for a product at one source at
// one time. Natural key is (product_id, source, recorded_at).
type PriceObservation struct {
	ID             uint    `gorm:"primarykey"`
	ProductID      uint    `gorm:"not null;uniqueIndex:idx_price_logs_natural;index:idx_price_logs_product_recorded,priority:1"`
	Price          float64 `gorm:"not null;check:price >= 0"`
	Source         string  `gorm:"type:varchar(50);not null;uniqueIndex:idx_price_logs_natural"`
	SourceURL      string  `gorm:"type:text"`
	RecordedAt     time.Time `gorm:"not null;uniqueIndex:idx_price_logs_natural;index:idx_price_logs_product_recorded,priority:2,sort:desc"`
	PriceChangePct *float64
}

func (PriceObservation) TableName() string { return "price_logs" }

// MarketSignal is one keyword hit inside one community post on one
// date. Natural key is (keyword, date, post_url).
type MarketSignal struct {
	ID             uint      `gorm:"primarykey"`
	Keyword        string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_market_signals_natural;index:idx_market_signals_keyword_date,priority:1"`
	PostTitle      string    `gorm:"type:text;not null"`
	PostURL        string    `gorm:"type:text;not null;uniqueIndex:idx_market_signals_natural"`
	Subreddit      string    `gorm:"type:varchar(100);not null"`
	SentimentScore float64   `gorm:"not null;default:0"`
	MentionCount   int       `gorm:"not null;default:1"`
	Date           time.Time `gorm:"not null;uniqueIndex:idx_market_signals_natural;index:idx_market_signals_keyword_date,priority:2"`
}

func (MarketSignal) TableName() string { return "market_signals" }

// RiskAlert is an append-only risk event. No natural key.
type RiskAlert struct {
	ID                  uint    `gorm:"primarykey"`
	ProductID           uint    `gorm:"not null;index:idx_risk_alerts_product_created,priority:1"`
	RiskIndex           float64 `gorm:"not null"`
	Threshold           float64 `gorm:"not null"`
	ContributingFactors JSONMap `gorm:"type:jsonb"`
	Recommendation      string  `gorm:"type:text"`
	Acknowledged        bool    `gorm:"not null;default:false;index:idx_risk_alerts_ack_created,priority:1"`
	CreatedAt           time.Time `gorm:"index:idx_risk_alerts_product_created,priority:2,sort:desc;index:idx_risk_alerts_ack_created,priority:2,sort:desc"`
}

func (RiskAlert) TableName() string { return "risk_alerts" }
