// Package price implements C3 PriceExtractor: scraping GPU listings
// from a Korean price-comparison site, grounded on
// original_source/etl/extractors/danawa_crawler.py, using goquery's
// selection idiom the way
// hayakawa99-excavation_service/cmd/batch/trend_discovery.go parses
// HTML listing pages.
package price

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	apperrors "github.com/esomin/gpu-market-etl/internal/errors"
	"github.com/esomin/gpu-market-etl/internal/retry"
	"github.com/esomin/gpu-market-etl/internal/store"
	"github.com/esomin/gpu-market-etl/pkg/logger"
)

// SourceName is the fixed source label persisted with every price
// observation this extractor produces.
const SourceName = "다나와"

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Listing is one raw scraped record before normalization. Historical
// price points are not part of the raw record: 다나와's listing pages
// carry no chart endpoint danawa_crawler.py ever calls (its "3-month
// history" is docstring only, never implemented — see DESIGN.md), and
// the store already accumulates real per-listing history from every
// prior InsertPrice call, read back through HistoricalPrices/PriceHistory.
type Listing struct {
	RawProductName string
	Price          float64
	SourceURL      string
	RecordedAt     time.Time
}

// Config governs the HTTP client and target site.
type Config struct {
	BaseURL    string // defaults to http://prod.danawa.com/list/
	CategoryID string // defaults to 112758 (graphics cards)
	Timeout    time.Duration
}

// Extractor fetches listings for each chipset in the closed RTX 4070
// family.
type Extractor struct {
	cfg     Config
	client  *http.Client
	retryer *retry.Retryer
}

// New builds a PriceExtractor. retryer wraps every outbound request.
func New(cfg Config, retryer *retry.Retryer) *Extractor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://prod.danawa.com/list/"
	}
	if cfg.CategoryID == "" {
		cfg.CategoryID = "112758"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Extractor{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		retryer: retryer,
	}
}

// Extract fetches listings for a single chipset. Parse failures for
// individual listings are logged and skipped; the batch is only
// aborted by a failure fetching the search page itself.
func (e *Extractor) Extract(ctx context.Context, chipset store.Chipset) ([]Listing, error) {
	searchURL := e.searchURL(chipset)

	var body []byte
	err := e.retryer.Do(ctx, "prod.danawa.com", func(ctx context.Context) error {
		b, ferr := e.fetch(ctx, searchURL)
		if ferr != nil {
			return ferr
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch listing page for %s: %w", chipset, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		logger.Warn("failed to parse listing page", map[string]interface{}{"code": apperrors.ParseHTMLFailure, "chipset": string(chipset), "error": err.Error()})
		return nil, nil
	}

	now := time.Now().UTC()
	var listings []Listing
	doc.Find(".product_list .product_item").Each(func(i int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Find(".prod_name a").First().Text())
		if name == "" {
			return
		}
		if !matchesChipset(name, chipset) {
			return
		}

		href, _ := s.Find(".prod_name a").First().Attr("href")
		sourceURL := absoluteURL(e.cfg.BaseURL, href)

		priceText := strings.TrimSpace(s.Find(".price_sect strong").First().Text())
		price, perr := parsePrice(priceText)
		if perr != nil {
			logger.Warn("skipping listing with unparseable price", map[string]interface{}{"name": name, "raw_price": priceText})
			return
		}

		listings = append(listings, Listing{
			RawProductName: name,
			Price:          price,
			SourceURL:      sourceURL,
			RecordedAt:     now,
		})
	})

	return listings, nil
}

func (e *Extractor) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &retry.HTTPStatusError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return nil, &retry.HTTPStatusError{StatusCode: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}

func (e *Extractor) searchURL(chipset store.Chipset) string {
	q := url.Values{}
	q.Set("cate", e.cfg.CategoryID)
	q.Set("limit", "40")
	q.Set("sort", "saveDESC")
	q.Set("search", strings.ReplaceAll(string(chipset), " ", ""))
	return e.cfg.BaseURL + "?" + q.Encode()
}

func absoluteURL(base, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

func parsePrice(raw string) (float64, error) {
	cleaned := strings.NewReplacer(",", "", "원", "", " ", "").Replace(raw)
	if cleaned == "" {
		return 0, &apperrors.ValidationError{Code: apperrors.ValidationRequiredField, Field: "price", Message: "listing has no price text"}
	}
	return strconv.ParseFloat(cleaned, 64)
}

// matchesChipset mirrors danawa_crawler.py's _is_matching_chipset: a
// spacing-normalized substring match, with a guard so a plain "RTX
// 4070 Ti" search doesn't also accept "RTX 4070 Ti Super" listings.
func matchesChipset(name string, chipset store.Chipset) bool {
	upperName := strings.ToUpper(strings.ReplaceAll(name, " ", ""))
	upperChip := strings.ToUpper(strings.ReplaceAll(string(chipset), " ", ""))

	if !strings.Contains(upperName, upperChip) {
		return false
	}
	if strings.Contains(strings.ToUpper(string(chipset)), "TI") &&
		!strings.Contains(strings.ToUpper(string(chipset)), "SUPER") &&
		strings.Contains(upperName, "TISUPER") {
		return false
	}
	return true
}
