package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/models"
	"github.com/ternarybob/aurum/internal/services/dedup"
)

const (
	// GoogleNewsName is the adapter name recorded on each item
	GoogleNewsName = "google_news"

	// DefaultGoogleNewsURL is the RSS search endpoint
	DefaultGoogleNewsURL = "https://news.google.com/rss/search"
)

// GoogleNewsAdapter searches Google News RSS
type GoogleNewsAdapter struct {
	baseURL   string
	fetcher   *feedFetcher
	seen      *dedup.BoundedSet
	liveBatch int
	logger    arbor.ILogger
}

// NewGoogleNewsAdapter creates the adapter. seen is owned by the adapter.
func NewGoogleNewsAdapter(baseURL string, seen *dedup.BoundedSet, liveBatch int, timeout time.Duration, logger arbor.ILogger) *GoogleNewsAdapter {
	if baseURL == "" {
		baseURL = DefaultGoogleNewsURL
	}
	if seen == nil {
		seen = dedup.NewBoundedSet(1000)
	}
	return &GoogleNewsAdapter{
		baseURL:   baseURL,
		fetcher:   newFeedFetcher(timeout, logger),
		seen:      seen,
		liveBatch: liveBatch,
		logger:    logger,
	}
}

// Name implements interfaces.SourceAdapter
func (a *GoogleNewsAdapter) Name() string { return GoogleNewsName }

// SearchURL builds the RSS search url for a query and optional date range
func (a *GoogleNewsAdapter) SearchURL(query string, start, end *time.Time) string {
	q := strings.TrimSpace(query)
	if start != nil {
		q += " after:" + start.UTC().Format("2006-01-02")
	}
	if end != nil {
		q += " before:" + end.UTC().Format("2006-01-02")
	}
	return fmt.Sprintf("%s?q=%s&hl=en-US&gl=US&ceid=US:en", a.baseURL, url.QueryEscape(strings.TrimSpace(q)))
}

// Fetch implements interfaces.SourceAdapter. With no range it returns the
// newest unseen items up to the live batch size; with a range it returns
// every unseen item oldest first.
func (a *GoogleNewsAdapter) Fetch(ctx context.Context, query string, start, end *time.Time) ([]*models.RawItem, error) {
	feedURL := a.SearchURL(query, start, end)
	feed, err := a.fetcher.fetch(ctx, feedURL)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("source", GoogleNewsName).
			Str("query", query).
			Msg("Google News fetch failed")
		return nil, nil
	}

	var items []*models.RawItem
	for _, entry := range feed.Items {
		title, outlet := splitTitle(entry.Title)
		if outlet == "" {
			outlet = entrySource(entry)
		}
		if outlet == "" {
			outlet = "Unknown"
		}

		id := entryID(entry)
		if a.seen.Contains(id) {
			continue
		}

		item := buildItem(GoogleNewsName, id, title, outlet, entrySummary(entry), strings.TrimSpace(entry.Link), entryTime(entry))
		if item != nil {
			items = append(items, item)
		}
	}

	if start == nil && end == nil {
		items = takeLive(items, a.liveBatch)
	} else {
		sortByTime(items)
	}
	for _, item := range items {
		a.seen.Add(item.SourceID)
	}

	a.logger.Debug().
		Str("source", GoogleNewsName).
		Int("entries", len(feed.Items)).
		Int("items", len(items)).
		Msg("Google News feed parsed")

	return items, nil
}
