package sources

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/models"
	"github.com/ternarybob/aurum/internal/services/dedup"
)

const (
	// RSSHubName is the adapter name recorded on each item
	RSSHubName = "rsshub"

	// DefaultRSSHubURL is the public RSSHub instance
	DefaultRSSHubURL = "https://rsshub.app"
)

// DefaultRSSHubRoutes are polled when no routes are configured
var DefaultRSSHubRoutes = []string{
	"/truthsocial/user/realDonaldTrump",
	"/bloomberg/news/terminal",
	"/reuters/world/us",
}

var routeOutlets = map[string]string{
	"truthsocial": "Truth Social",
	"bloomberg":   "Bloomberg",
	"reuters":     "Reuters",
	"wsj":         "Wall Street Journal",
	"ft":          "Financial Times",
	"cnbc":        "CNBC",
	"apnews":      "AP News",
}

// RSSHubAdapter polls a fixed set of RSSHub routes. The query is ignored.
type RSSHubAdapter struct {
	baseURL   string
	routes    []string
	fetcher   *feedFetcher
	seen      *dedup.BoundedSet
	liveBatch int
	logger    arbor.ILogger
}

// NewRSSHubAdapter creates the adapter
func NewRSSHubAdapter(baseURL string, routes []string, seen *dedup.BoundedSet, liveBatch int, timeout time.Duration, logger arbor.ILogger) *RSSHubAdapter {
	if baseURL == "" {
		baseURL = DefaultRSSHubURL
	}
	if len(routes) == 0 {
		routes = DefaultRSSHubRoutes
	}
	if seen == nil {
		seen = dedup.NewBoundedSet(2000)
	}
	return &RSSHubAdapter{
		baseURL:   strings.TrimRight(baseURL, "/"),
		routes:    routes,
		fetcher:   newFeedFetcher(timeout, logger),
		seen:      seen,
		liveBatch: liveBatch,
		logger:    logger,
	}
}

// Name implements interfaces.SourceAdapter
func (a *RSSHubAdapter) Name() string { return RSSHubName }

// RouteOutlet derives the outlet name from a route's first path segment
func RouteOutlet(route string) string {
	seg := strings.Split(strings.Trim(route, "/"), "/")[0]
	if outlet, ok := routeOutlets[strings.ToLower(seg)]; ok {
		return outlet
	}
	return seg
}

// Fetch implements interfaces.SourceAdapter. A failing route is logged and skipped.
func (a *RSSHubAdapter) Fetch(ctx context.Context, query string, start, end *time.Time) ([]*models.RawItem, error) {
	var items []*models.RawItem

	for _, route := range a.routes {
		if ctx.Err() != nil {
			break
		}

		feed, err := a.fetcher.fetch(ctx, a.baseURL+route)
		if err != nil {
			a.logger.Error().
				Err(err).
				Str("source", RSSHubName).
				Str("route", route).
				Msg("RSSHub fetch failed")
			continue
		}

		outlet := RouteOutlet(route)
		for _, entry := range feed.Items {
			id := entryID(entry)
			if a.seen.Contains(id) {
				continue
			}
			published := entryTime(entry)
			if !inRange(published, start, end) {
				continue
			}
			item := buildItem(RSSHubName, id, strings.TrimSpace(entry.Title), outlet, entrySummary(entry), strings.TrimSpace(entry.Link), published)
			if item != nil {
				items = append(items, item)
			}
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

// inRange reports whether t falls in [start, end). Unknown times pass only in live mode.
func inRange(t, start, end *time.Time) bool {
	if start == nil && end == nil {
		return true
	}
	if t == nil {
		return false
	}
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && !t.Before(*end) {
		return false
	}
	return true
}
