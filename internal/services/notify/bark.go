package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// BarkChannel pushes to an iOS Bark endpoint with GET {base}/{title}/{message}
type BarkChannel struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewBarkChannel returns nil when baseURL is empty or still the sample placeholder
func NewBarkChannel(baseURL string, timeout time.Duration, logger arbor.ILogger) *BarkChannel {
	if baseURL == "" || strings.Contains(baseURL, "YOUR_TOKEN") {
		return nil
	}
	return &BarkChannel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (b *BarkChannel) Name() string { return "bark" }

// PushURL builds the request URL. Both segments are path-escaped so slashes in
// a headline cannot change the route.
func (b *BarkChannel) PushURL(title, message string) string {
	return fmt.Sprintf("%s/%s/%s", b.baseURL, url.PathEscape(title), url.PathEscape(message))
}

func (b *BarkChannel) Send(ctx context.Context, title, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.PushURL(title, message), nil)
	if err != nil {
		return fmt.Errorf("failed to build bark request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bark request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bark returned status %d", resp.StatusCode)
	}

	b.logger.Debug().Str("title", title).Msg("Bark push sent")
	return nil
}
