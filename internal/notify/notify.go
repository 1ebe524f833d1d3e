// Package notify renders check-in announcements and delivers them to the chat channel.
package notify

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"slappd/internal/metrics"
	"slappd/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Message is one chat notification. A message with a Title or Thumb is
// sent as a rich attachment, otherwise as plain text.
type Message struct {
	Text  string
	Icon  string
	Title string
	Thumb string
}

// IsAttachment reports whether m uses the rich attachment shape.
func (m Message) IsAttachment() bool {
	return m.Title != "" || m.Thumb != ""
}

// Sender delivers a message to the chat endpoint.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier renders and delivers announcements. Delivery failures are
// logged and swallowed.
type Notifier struct {
	sender   Sender
	renderer *Renderer
	limiter  *rate.Limiter
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a Notifier that sends at most perSecond messages per second.
// A non-positive perSecond disables pacing.
func New(sender Sender, renderer *Renderer, perSecond float64, log *slog.Logger, m *metrics.Metrics) *Notifier {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Notifier{
		sender:   sender,
		renderer: renderer,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
		metrics:  m,
	}
}

// AnnounceCheckin sends the check-in message.
func (n *Notifier) AnnounceCheckin(ctx context.Context, c model.Checkin) {
	n.metrics.Announced("checkin")
	msg, err := n.renderer.Checkin(c)
	if err != nil {
		n.log.Error("render checkin", "checkin_id", c.ID, "error", err)
		n.metrics.NotifyFailed()
		return
	}
	n.Notify(ctx, msg)
}

// AnnounceBadge sends the badge message for a badge earned on c.
func (n *Notifier) AnnounceBadge(ctx context.Context, c model.Checkin, b model.Badge) {
	n.metrics.Announced("badge")
	n.Notify(ctx, n.renderer.Badge(c, b))
}

// Notify strips markup from msg and delivers it.
func (n *Notifier) Notify(ctx context.Context, msg Message) {
	msg.Text = StripMarkup(msg.Text)
	msg.Title = StripMarkup(msg.Title)
	if msg.Icon == "" {
		msg.Icon = DefaultIcon
	}

	if err := n.limiter.Wait(ctx); err != nil {
		n.log.Warn("notification dropped", "title", msg.Title, "error", err)
		n.metrics.NotifyFailed()
		return
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.log.Error("send notification", "title", msg.Title, "error", err)
		n.metrics.NotifyFailed()
		return
	}
	n.log.Debug("notification sent", "title", msg.Title, "attachment", msg.IsAttachment())
}
