package notify

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
)

// Dispatcher fans an alert out to every configured channel. Delivery is best
// effort: a failing channel is logged and the others still run.
type Dispatcher struct {
	channels []interfaces.NotificationChannel
	logger   arbor.ILogger
}

func NewDispatcher(channels []interfaces.NotificationChannel, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{channels: channels, logger: logger}
}

// NewDispatcherFromConfig builds the channels whose settings are present
func NewDispatcherFromConfig(cfg *common.NotifyConfig, logger arbor.ILogger) *Dispatcher {
	timeout := common.MustDuration(cfg.Timeout, 10*time.Second)

	var channels []interfaces.NotificationChannel
	if bark := NewBarkChannel(cfg.BarkURL, timeout, logger); bark != nil {
		channels = append(channels, bark)
	}
	if email := NewEmailChannel(cfg, logger); email != nil {
		channels = append(channels, email)
	}
	if tg := NewTelegramChannel(cfg.TelegramToken, cfg.TelegramChatID, "", timeout, logger); tg != nil {
		channels = append(channels, tg)
	}

	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	logger.Info().Strs("channels", names).Msg("Notification channels configured")

	return NewDispatcher(channels, logger)
}

// Channels returns the configured channels
func (d *Dispatcher) Channels() []interfaces.NotificationChannel {
	return d.channels
}

// Email returns the email channel when one is configured
func (d *Dispatcher) Email() *EmailChannel {
	for _, ch := range d.channels {
		if e, ok := ch.(*EmailChannel); ok {
			return e
		}
	}
	return nil
}

// Dispatch sends to every channel and returns how many succeeded
func (d *Dispatcher) Dispatch(ctx context.Context, title, message string) int {
	sent := 0
	for _, ch := range d.channels {
		if err := ch.Send(ctx, title, message); err != nil {
			d.logger.Warn().Err(err).Str("channel", ch.Name()).Str("title", title).Msg("Notification failed")
			continue
		}
		sent++
	}
	return sent
}
