package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/rss"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/aurum/internal/models"
)

const (
	userAgent       = "Mozilla/5.0 (compatible; aurum/1.0; +https://github.com/ternarybob/aurum)"
	maxFeedBodySize = 8 << 20

	// customSource carries the RSS <source> outlet name on a gofeed item
	customSource = "source"
)

// sourceTranslator is gofeed's RSS translator plus the <source> element,
// which the universal item model drops
type sourceTranslator struct {
	gofeed.DefaultRSSTranslator
}

func (t *sourceTranslator) Translate(feed interface{}) (*gofeed.Feed, error) {
	out, err := t.DefaultRSSTranslator.Translate(feed)
	if err != nil {
		return nil, err
	}
	raw, ok := feed.(*rss.Feed)
	if !ok || len(raw.Items) != len(out.Items) {
		return out, nil
	}
	for i, item := range raw.Items {
		if item.Source == nil || strings.TrimSpace(item.Source.Title) == "" {
			continue
		}
		if out.Items[i].Custom == nil {
			out.Items[i].Custom = map[string]string{}
		}
		out.Items[i].Custom[customSource] = strings.TrimSpace(item.Source.Title)
	}
	return out, nil
}

// newFeedParser returns a parser for RSS, Atom and JSON feeds. Parsers keep
// per-document state, so each fetch gets its own.
func newFeedParser() *gofeed.Parser {
	p := gofeed.NewParser()
	p.RSSTranslator = &sourceTranslator{}
	return p
}

// entryID returns the guid, falling back to the link
func entryID(item *gofeed.Item) string {
	if g := strings.TrimSpace(item.GUID); g != "" {
		return g
	}
	return strings.TrimSpace(item.Link)
}

// entryTime returns the published time, falling back to updated; nil when
// neither parsed
func entryTime(item *gofeed.Item) *time.Time {
	t := item.PublishedParsed
	if t == nil {
		t = item.UpdatedParsed
	}
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// entrySource returns the outlet named by the RSS <source> element
func entrySource(item *gofeed.Item) string {
	return item.Custom[customSource]
}

// entrySummary returns the description as plain text, falling back to content
func entrySummary(item *gofeed.Item) string {
	desc := item.Description
	if strings.TrimSpace(desc) == "" {
		desc = item.Content
	}
	return htmlToText(desc)
}

// feedFetcher performs paced GETs of RSS and Atom documents
type feedFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
}

func newFeedFetcher(timeout time.Duration, logger arbor.ILogger) *feedFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &feedFetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		logger:  logger,
	}
}

func (f *feedFetcher) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	feed, err := newFeedParser().Parse(io.LimitReader(resp.Body, maxFeedBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

// htmlToText strips markup from a feed description
func htmlToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// splitTitle splits "Title - Outlet" at the last separator
func splitTitle(title string) (clean, outlet string) {
	idx := strings.LastIndex(title, " - ")
	if idx < 0 {
		return strings.TrimSpace(title), ""
	}
	return strings.TrimSpace(title[:idx]), strings.TrimSpace(title[idx+3:])
}

// buildItem applies the tier and noise filters. It returns nil for dropped items.
func buildItem(source, sourceID, title, outlet, summary, link string, published *time.Time) *models.RawItem {
	if sourceID == "" || IsNoiseTitle(title) {
		return nil
	}
	tier, multiplier := ClassifySource(outlet)
	if tier == models.TierBlocked {
		return nil
	}

	content := title
	if summary != "" {
		content = title + ". " + summary
	}

	return &models.RawItem{
		SourceID:          sourceID,
		Source:            source,
		Author:            outlet,
		Title:             title,
		Content:           content,
		URL:               link,
		PublishedAt:       published,
		SourceTier:        tier,
		UrgencyMultiplier: multiplier,
	}
}

// sortByTime orders items oldest first; items without a time sort last
func sortByTime(items []*models.RawItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].PublishedAt, items[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}

// takeLive returns the newest n items
func takeLive(items []*models.RawItem, n int) []*models.RawItem {
	sortByTime(items)
	if n > 0 && len(items) > n {
		items = items[len(items)-n:]
	}
	return items
}
