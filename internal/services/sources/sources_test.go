package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/eodhd"
	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
	"github.com/ternarybob/aurum/internal/services/dedup"
)

const googleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>search</title>
<item>
  <title>Trump threatens new tariffs on EU goods - Reuters</title>
  <link>https://news.google.com/articles/a1</link>
  <guid isPermaLink="false">a1</guid>
  <pubDate>Tue, 06 May 2025 14:30:00 GMT</pubDate>
  <description>&lt;a href="https://reuters.com/x"&gt;Trump threatens new tariffs&lt;/a&gt;&amp;nbsp;&lt;font&gt;Reuters&lt;/font&gt;</description>
  <source url="https://www.reuters.com">Reuters</source>
</item>
<item>
  <title>Opinion: Fed will cut rates - Bloomberg</title>
  <link>https://news.google.com/articles/a2</link>
  <guid>a2</guid>
  <pubDate>Tue, 06 May 2025 12:00:00 GMT</pubDate>
</item>
<item>
  <title>Gold soars on Fed fears - Daily Mail</title>
  <link>https://news.google.com/articles/a3</link>
  <guid>a3</guid>
  <pubDate>Tue, 06 May 2025 11:00:00 GMT</pubDate>
</item>
<item>
  <title>Markets - brace for Fed - Some Local Paper</title>
  <link>https://news.google.com/articles/a4</link>
  <pubDate>Mon, 05 May 2025 09:00:00 +0000</pubDate>
</item>
</channel></rss>`

func TestClassifySource(t *testing.T) {
	tests := []struct {
		name       string
		tier       int
		multiplier float64
	}{
		{"Reuters", models.TierOne, 1.5},
		{"The Wall Street Journal", models.TierOne, 1.5},
		{"bbc.com", models.TierTwo, 1.0},
		{"Forbes", models.TierTwo, 1.0},
		{"Daily Mail", models.TierBlocked, 0},
		{"Some Substack", models.TierBlocked, 0},
		{"Kitco", models.TierThree, 0.8},
		{"", models.TierThree, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, m := ClassifySource(tt.name)
			assert.Equal(t, tt.tier, tier)
			assert.Equal(t, tt.multiplier, m)
		})
	}
}

func TestIsNoiseTitle(t *testing.T) {
	assert.True(t, IsNoiseTitle("Opinion: Fed will cut rates"))
	assert.True(t, IsNoiseTitle("  video: gold explained"))
	assert.True(t, IsNoiseTitle("FACT CHECK: tariffs"))
	assert.False(t, IsNoiseTitle("Fed holds rates steady"))
	assert.False(t, IsNoiseTitle("Why the Opinion: poll matters"))
}

func TestSplitTitle(t *testing.T) {
	clean, outlet := splitTitle("Markets - brace for Fed - Some Local Paper")
	assert.Equal(t, "Markets - brace for Fed", clean)
	assert.Equal(t, "Some Local Paper", outlet)

	clean, outlet = splitTitle("No outlet here")
	assert.Equal(t, "No outlet here", clean)
	assert.Empty(t, outlet)
}

func TestGoogleNewsAdapter_SearchURL(t *testing.T) {
	a := NewGoogleNewsAdapter("", nil, 5, time.Second, arbor.NewLogger())
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	got := a.SearchURL("Donald Trump", &start, &end)
	assert.Equal(t, "https://news.google.com/rss/search?q=Donald+Trump+after%3A2025-05-01+before%3A2025-06-01&hl=en-US&gl=US&ceid=US:en", got)
}

func TestGoogleNewsAdapter_Fetch(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, googleFeed)
	}))
	defer srv.Close()

	seen := dedup.NewBoundedSet(10)
	a := NewGoogleNewsAdapter(srv.URL, seen, 5, time.Second, arbor.NewLogger())

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	items, err := a.Fetch(t.Context(), "gold", &start, &end)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "gold after:2025-05-01 before:2025-06-01", queries[0])

	// Oldest first in backfill mode
	local := items[0]
	assert.Equal(t, "https://news.google.com/articles/a4", local.SourceID)
	assert.Equal(t, "Some Local Paper", local.Author)
	assert.Equal(t, models.TierThree, local.SourceTier)

	reuters := items[1]
	assert.Equal(t, "a1", reuters.SourceID)
	assert.Equal(t, "Reuters", reuters.Author)
	assert.Equal(t, models.TierOne, reuters.SourceTier)
	assert.Equal(t, 1.5, reuters.UrgencyMultiplier)
	assert.Equal(t, "Trump threatens new tariffs on EU goods. Trump threatens new tariffs Reuters", reuters.Content)
	require.NotNil(t, reuters.PublishedAt)
	assert.Equal(t, time.Date(2025, 5, 6, 14, 30, 0, 0, time.UTC), *reuters.PublishedAt)

	// Second poll sees nothing new
	items, err = a.Fetch(t.Context(), "gold", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGoogleNewsAdapter_LiveBatchAndFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, googleFeed)
	}))
	defer srv.Close()

	a := NewGoogleNewsAdapter(srv.URL, dedup.NewBoundedSet(10), 1, time.Second, arbor.NewLogger())
	items, err := a.Fetch(t.Context(), "gold", nil, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a1", items[0].SourceID)

	items, err = a.Fetch(t.Context(), "gold", nil, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://news.google.com/articles/a4", items[0].SourceID)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	b := NewGoogleNewsAdapter(broken.URL, nil, 5, time.Second, arbor.NewLogger())
	items, err = b.Fetch(t.Context(), "gold", nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, items)
}

func TestRSSHubAdapter_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/reuters") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `<rss><channel>
<item><title>We will make America rich again</title><link>https://truthsocial.com/p/1</link>
<pubDate>Wed, 07 May 2025 01:00:00 +0000</pubDate><description>&lt;p&gt;Big &lt;b&gt;news&lt;/b&gt;&lt;/p&gt;</description></item>
</channel></rss>`)
	}))
	defer srv.Close()

	a := NewRSSHubAdapter(srv.URL+"/", []string{"/truthsocial/user/realDonaldTrump", "/reuters/world/us"}, nil, 5, time.Second, arbor.NewLogger())
	items, err := a.Fetch(t.Context(), "", nil, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Truth Social", items[0].Author)
	assert.Equal(t, RSSHubName, items[0].Source)
	assert.Equal(t, "We will make America rich again. Big news", items[0].Content)
	assert.Equal(t, "https://truthsocial.com/p/1", items[0].SourceID)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fresh := NewRSSHubAdapter(srv.URL, []string{"/truthsocial/user/realDonaldTrump"}, nil, 5, time.Second, arbor.NewLogger())
	items, err = fresh.Fetch(t.Context(), "", &start, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Truth Social</title>
<entry>
  <id>tag:truthsocial.com,2025:p2</id>
  <title>Tariffs are working</title>
  <link href="https://truthsocial.com/p/2"/>
  <published>2025-05-07T03:15:00+02:00</published>
  <summary type="html">&lt;p&gt;Gold &lt;i&gt;up&lt;/i&gt; again&lt;/p&gt;</summary>
</entry>
<entry>
  <id>tag:truthsocial.com,2025:p3</id>
  <title>Fed must cut now</title>
  <link href="https://truthsocial.com/p/3"/>
  <updated>2025-05-07T09:00:00Z</updated>
  <content type="html">&lt;p&gt;Rates too high&lt;/p&gt;</content>
</entry>
</feed>`

func TestRSSHubAdapter_FetchAtom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, atomFeed)
	}))
	defer srv.Close()

	a := NewRSSHubAdapter(srv.URL, []string{"/truthsocial/user/realDonaldTrump"}, nil, 5, time.Second, arbor.NewLogger())
	start := time.Date(2025, 5, 7, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC)
	items, err := a.Fetch(t.Context(), "", &start, &end)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "tag:truthsocial.com,2025:p2", first.SourceID)
	assert.Equal(t, "https://truthsocial.com/p/2", first.URL)
	assert.Equal(t, "Tariffs are working. Gold up again", first.Content)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, time.Date(2025, 5, 7, 1, 15, 0, 0, time.UTC), *first.PublishedAt)

	// No published date: updated is used, and content stands in for the summary
	second := items[1]
	assert.Equal(t, "Fed must cut now. Rates too high", second.Content)
	require.NotNil(t, second.PublishedAt)
	assert.Equal(t, time.Date(2025, 5, 7, 9, 0, 0, 0, time.UTC), *second.PublishedAt)
}

func TestRouteOutlet(t *testing.T) {
	assert.Equal(t, "Bloomberg", RouteOutlet("/bloomberg/news/terminal"))
	assert.Equal(t, "custom", RouteOutlet("/custom/feed"))
}

type fakeNewsClient struct {
	news eodhd.NewsResponse
	err  error
}

func (f *fakeNewsClient) GetNews(ctx context.Context, symbols []string, opts ...eodhd.QueryOption) (eodhd.NewsResponse, error) {
	return f.news, f.err
}

func TestEODHDNewsAdapter_Fetch(t *testing.T) {
	client := &fakeNewsClient{news: eodhd.NewsResponse{
		{Date: time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC), Title: "Gold climbs", Content: "Spot gold rose.", Link: "https://www.reuters.com/gold"},
		{Date: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), Title: "Gold dips", Content: "Spot gold fell.", Link: "https://www.kitco.com/dips"},
		{Title: "No link"},
	}}
	a := NewEODHDNewsAdapter(client, []string{"XAUUSD.FOREX"}, nil, 5, arbor.NewLogger())

	items, err := a.Fetch(t.Context(), "", nil, nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "kitco.com", items[0].Author)
	assert.Equal(t, models.TierThree, items[0].SourceTier)
	assert.Equal(t, "reuters.com", items[1].Author)
	assert.Equal(t, models.TierOne, items[1].SourceTier)

	failing := NewEODHDNewsAdapter(&fakeNewsClient{err: errors.New("boom")}, []string{"XAUUSD.FOREX"}, nil, 5, arbor.NewLogger())
	items, err = failing.Fetch(t.Context(), "", nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, items)
}

type stubAdapter struct {
	name  string
	items []*models.RawItem
	err   error
	delay time.Duration
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Fetch(ctx context.Context, query string, start, end *time.Time) ([]*models.RawItem, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.items, s.err
}

func TestMultiSource_JoinsInAdapterOrder(t *testing.T) {
	m := NewMultiSource([]interfaces.SourceAdapter{
		&stubAdapter{name: "slow", delay: 20 * time.Millisecond, items: []*models.RawItem{{SourceID: "s1"}}},
		&stubAdapter{name: "broken", err: errors.New("down")},
		&stubAdapter{name: "hung", delay: time.Minute},
		&stubAdapter{name: "fast", items: []*models.RawItem{{SourceID: "f1"}, {SourceID: "f2"}}},
	}, 100*time.Millisecond, arbor.NewLogger())

	items, err := m.Fetch(t.Context(), "q", nil, nil)
	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.SourceID)
	}
	assert.Equal(t, []string{"s1", "f1", "f2"}, ids)
}
