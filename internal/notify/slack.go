package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// SlackUsername is the display name used for every message.
const SlackUsername = "Untappd"

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

type slackAttachment struct {
	Title    string `json:"title,omitempty"`
	Text     string `json:"text,omitempty"`
	ThumbURL string `json:"thumb_url,omitempty"`
}

type slackPayload struct {
	Channel     string            `json:"channel"`
	Username    string            `json:"username"`
	IconURL     string            `json:"icon_url,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// SlackSender posts messages with chat.postMessage.
type SlackSender struct {
	client   HTTPClient
	token    string
	channel  string
	endpoint string
}

// NewSlackSender creates a SlackSender posting to channel.
func NewSlackSender(client HTTPClient, token, channel string) *SlackSender {
	return &SlackSender{
		client:   client,
		token:    token,
		channel:  channel,
		endpoint: slackPostMessageURL,
	}
}

// Send posts msg to the configured channel.
func (s *SlackSender) Send(ctx context.Context, msg Message) error {
	p := slackPayload{
		Channel:  s.channel,
		Username: SlackUsername,
		IconURL:  msg.Icon,
	}
	if msg.IsAttachment() {
		p.Attachments = []slackAttachment{{
			Title:    slackEscaper.Replace(msg.Title),
			Text:     slackEscaper.Replace(msg.Text),
			ThumbURL: msg.Thumb,
		}}
	} else {
		p.Text = slackEscaper.Replace(msg.Text)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var sr slackResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&sr); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !sr.OK {
		return fmt.Errorf("slack error: %s", sr.Error)
	}
	return nil
}
