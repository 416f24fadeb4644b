package sources

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/eodhd"
	"github.com/ternarybob/aurum/internal/models"
	"github.com/ternarybob/aurum/internal/services/dedup"
)

// EODHDNewsName is the adapter name recorded on each item
const EODHDNewsName = "eodhd_news"

// NewsClient is the subset of the EODHD client used for news
type NewsClient interface {
	GetNews(ctx context.Context, symbols []string, opts ...eodhd.QueryOption) (eodhd.NewsResponse, error)
}

// EODHDNewsAdapter reads ticker-tagged news from EODHD. The query is ignored.
type EODHDNewsAdapter struct {
	client    NewsClient
	tickers   []string
	seen      *dedup.BoundedSet
	liveBatch int
	logger    arbor.ILogger
}

// NewEODHDNewsAdapter creates the adapter
func NewEODHDNewsAdapter(client NewsClient, tickers []string, seen *dedup.BoundedSet, liveBatch int, logger arbor.ILogger) *EODHDNewsAdapter {
	if seen == nil {
		seen = dedup.NewBoundedSet(1000)
	}
	return &EODHDNewsAdapter{
		client:    client,
		tickers:   tickers,
		seen:      seen,
		liveBatch: liveBatch,
		logger:    logger,
	}
}

// Name implements interfaces.SourceAdapter
func (a *EODHDNewsAdapter) Name() string { return EODHDNewsName }

// Fetch implements interfaces.SourceAdapter
func (a *EODHDNewsAdapter) Fetch(ctx context.Context, query string, start, end *time.Time) ([]*models.RawItem, error) {
	if len(a.tickers) == 0 {
		return nil, nil
	}

	var opts []eodhd.QueryOption
	if start != nil || end != nil {
		var from, to time.Time
		if start != nil {
			from = *start
		}
		if end != nil {
			to = *end
		}
		opts = append(opts, eodhd.WithDateRange(from, to), eodhd.WithLimit(1000))
	}

	news, err := a.client.GetNews(ctx, a.tickers, opts...)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("source", EODHDNewsName).
			Strs("tickers", a.tickers).
			Msg("EODHD news fetch failed")
		return nil, nil
	}

	var items []*models.RawItem
	for _, n := range news {
		link := strings.TrimSpace(n.Link)
		if link == "" || a.seen.Contains(link) {
			continue
		}
		var published *time.Time
		if !n.Date.IsZero() {
			t := n.Date.UTC()
			published = &t
		}
		summary := strings.Join(strings.Fields(n.Content), " ")
		if r := []rune(summary); len(r) > 1000 {
			summary = string(r[:1000])
		}
		item := buildItem(EODHDNewsName, link, strings.TrimSpace(n.Title), linkHost(link), summary, link, published)
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
	return items, nil
}

func linkHost(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Hostname() == "" {
		return "Unknown"
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
