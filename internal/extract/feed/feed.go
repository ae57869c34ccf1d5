// Package feed implements C4 FeedExtractor: fetching subreddit RSS
// feeds and filtering posts by a curated keyword set, grounded on
// original_source/etl/extractors/reddit_collector.py. Uses gofeed for
// RSS/Atom parsing since no example repo in the corpus does its own
// feed parsing (see DESIGN.md).
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/esomin/gpu-market-etl/internal/errors"
	"github.com/esomin/gpu-market-etl/internal/retry"
	"github.com/esomin/gpu-market-etl/pkg/logger"
	"github.com/mmcdole/gofeed"
)

const userAgent = "GPU-Price-Monitor-ETL/1.0 (Educational Project)"

// Keywords is the curated set FeedExtractor scans every post for.
// "5070 release date" supplements the spec's five (see DESIGN.md);
// it is weighted the same as "New Release" by SentimentAnalyzer.
var Keywords = []string{
	"New Release",
	"Leak",
	"Issues",
	"Price Drop",
	"Used Market",
	"5070 release date",
}

// Hit is one keyword match inside one post.
type Hit struct {
	Keyword   string
	PostTitle string
	PostURL   string
	Subreddit string
	Date      time.Time
}

// Config governs which subreddits are polled and the RSS endpoint
// shape.
type Config struct {
	Subreddits      []string // defaults to {nvidia, pcmasterrace}
	FeedURLTemplate string   // defaults to https://www.reddit.com/r/%s/.rss
	RateLimitWait   time.Duration
	Timeout         time.Duration
}

// Extractor fetches and filters subreddit RSS feeds.
type Extractor struct {
	cfg     Config
	client  *http.Client
	parser  *gofeed.Parser
	retryer *retry.Retryer
}

// New builds a FeedExtractor. retryer wraps every outbound request.
func New(cfg Config, retryer *retry.Retryer) *Extractor {
	if len(cfg.Subreddits) == 0 {
		cfg.Subreddits = []string{"nvidia", "pcmasterrace"}
	}
	if cfg.FeedURLTemplate == "" {
		cfg.FeedURLTemplate = "https://www.reddit.com/r/%s/.rss"
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = 60 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Extractor{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		parser:  gofeed.NewParser(),
		retryer: retryer,
	}
}

// Extract fetches every configured subreddit's feed and returns every
// keyword hit across all of them. A subreddit whose feed cannot be
// fetched or parsed is skipped with a logged warning; the batch is
// never aborted for one bad feed.
func (e *Extractor) Extract(ctx context.Context) []Hit {
	var hits []Hit
	for _, sub := range e.cfg.Subreddits {
		subHits, err := e.extractSubreddit(ctx, sub)
		if err != nil {
			if _, ok := err.(*apperrors.RateLimitError); ok {
				logger.Warn("subreddit rate limited, skipping this run", map[string]interface{}{"subreddit": sub, "error": err.Error()})
			} else {
				logger.Warn("failed to collect signals from subreddit", map[string]interface{}{"subreddit": sub, "error": err.Error()})
			}
			continue
		}
		hits = append(hits, subHits...)
	}
	return hits
}

func (e *Extractor) extractSubreddit(ctx context.Context, subreddit string) ([]Hit, error) {
	feedURL := fmt.Sprintf(e.cfg.FeedURLTemplate, subreddit)

	var raw *gofeed.Feed
	attempted429 := false
	rateLimited := false
	err := e.retryer.Do(ctx, "reddit.com", func(ctx context.Context) error {
		f, waitAfter, ferr := e.fetchFeed(ctx, feedURL)
		if ferr != nil {
			if waitAfter > 0 {
				if attempted429 {
					// A second 429 ends the retry loop: one bounded wait, one retry.
					rateLimited = true
					return nil
				}
				attempted429 = true
				return &retry.HTTPStatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: waitAfter}
			}
			return ferr
		}
		raw = f
		return nil
	})
	if rateLimited {
		return nil, &apperrors.RateLimitError{RetryAfterSeconds: int(e.cfg.RateLimitWait.Seconds())}
	}
	if err != nil {
		if httpErr, ok := err.(*retry.HTTPStatusError); ok && httpErr.StatusCode == http.StatusTooManyRequests {
			return nil, &apperrors.RateLimitError{RetryAfterSeconds: int(e.cfg.RateLimitWait.Seconds())}
		}
		return nil, err
	}

	return filterByKeywords(raw, subreddit), nil
}

// fetchFeed returns (feed, 0, nil) on success, (nil, retryAfter, err)
// on a 429, or (nil, 0, err) on any other failure.
func (e *Extractor) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := e.cfg.RateLimitWait
		if h := resp.Header.Get("Retry-After"); h != "" {
			if secs, perr := strconv.Atoi(h); perr == nil {
				wait = time.Duration(secs) * time.Second
			}
		}
		return nil, wait, &retry.HTTPStatusError{StatusCode: resp.StatusCode, RetryAfter: wait}
	}
	if resp.StatusCode >= 500 {
		return nil, 0, &retry.HTTPStatusError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return nil, 0, &retry.HTTPStatusError{StatusCode: resp.StatusCode}
	}

	f, err := e.parser.Parse(resp.Body)
	if err != nil {
		return nil, 0, &apperrors.ValidationError{Code: apperrors.ParseFeedFailure, Field: "feed", Message: err.Error()}
	}
	return f, 0, nil
}

// filterByKeywords scans title+description case-insensitively;
// a keyword contributes at most one Hit per post even if it appears
// multiple times (spec.md §4.4's counting rule).
func filterByKeywords(f *gofeed.Feed, subreddit string) []Hit {
	if f == nil {
		return nil
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var hits []Hit
	for _, item := range f.Items {
		fullText := strings.ToLower(item.Title + " " + item.Description)
		for _, kw := range Keywords {
			if strings.Contains(fullText, strings.ToLower(kw)) {
				hits = append(hits, Hit{
					Keyword:   kw,
					PostTitle: item.Title,
					PostURL:   item.Link,
					Subreddit: subreddit,
					Date:      today,
				})
			}
		}
	}
	return hits
}
