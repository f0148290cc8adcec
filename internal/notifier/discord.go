package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/pauljones0/production-scout/internal/models"
)

const (
	colorLowVfx     = 3092790  // #2F3136
	colorMediumVfx  = 16753920 // #FFA500
	colorHighVfx    = 16711680 // #FF0000
	colorExtremeVfx = 10181046 // #9B59B6

	maxTitleLen       = 256
	maxDescriptionLen = 350
	maxRetries        = 3
)

// retryBaseDelay is the first backoff after a 5xx from Discord.
var retryBaseDelay = 500 * time.Millisecond

type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
	minTier     models.BudgetTier
	minVfx      models.VfxNeedsLevel
}

type Option func(*Client)

// WithThresholds sets which postings are worth a notification. A posting
// qualifies when its tier is at or above minTier or its VFX level is at or
// above minVfx. An empty threshold disables that criterion.
func WithThresholds(minTier models.BudgetTier, minVfx models.VfxNeedsLevel) Option {
	return func(c *Client) {
		c.minTier = minTier
		c.minVfx = minVfx
	}
}

func New(webhookURL string, opts ...Option) *Client {
	c := &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		// Discord allows roughly 30 webhook messages a minute per channel.
		rateLimiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
		minTier:     models.Tier1,
		minVfx:      models.VfxHigh,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a webhook is configured.
func (c *Client) Enabled() bool {
	return c.webhookURL != ""
}

// Qualifies reports whether p clears the notification thresholds.
func (c *Client) Qualifies(p models.Posting) bool {
	if r := c.minTier.Rank(); r > 0 && p.Tier.Rank() > 0 && p.Tier.Rank() <= r {
		return true
	}
	if r := c.minVfx.Rank(); r > 0 && p.VfxNeeds.Rank() > 0 && p.VfxNeeds.Rank() <= r {
		return true
	}
	return false
}

// Notify posts one embed per qualifying posting and returns how many were sent.
// It stops at the first delivery failure.
func (c *Client) Notify(ctx context.Context, sourceName string, postings []models.Posting) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}
	sent := 0
	for _, p := range postings {
		if !c.Qualifies(p) {
			continue
		}
		if _, err := c.Send(ctx, sourceName, p); err != nil {
			return sent, fmt.Errorf("notify %q: %w", p.Title, err)
		}
		sent++
	}
	return sent, nil
}

// Send posts a single posting and returns the Discord message ID.
func (c *Client) Send(ctx context.Context, sourceName string, p models.Posting) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	return c.sendAndGetMessageID(ctx, formatPostingToEmbed(sourceName, p))
}

// Internal structures
type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

type discordMessageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func formatPostingToEmbed(sourceName string, p models.Posting) discordEmbed {
	description := p.Summary
	if description == "" {
		description = p.Description
	}

	fields := []discordEmbedField{
		{Name: "Budget", Value: fmt.Sprintf("%s (%s)", p.Budget, p.Tier), Inline: true},
		{Name: "VFX Needs", Value: string(p.VfxNeeds), Inline: true},
	}
	for _, f := range []struct{ name, value string }{
		{"Location", p.Location},
		{"Company", p.Company},
		{"Stage", p.Stage},
	} {
		if f.value != "" {
			fields = append(fields, discordEmbedField{Name: f.name, Value: f.value, Inline: true})
		}
	}
	for _, contact := range p.Contacts {
		if contact.Email != "" {
			fields = append(fields, discordEmbedField{Name: "Contact", Value: contact.Email})
			break
		}
	}

	ts := p.PostedAt
	if ts.IsZero() {
		ts = p.ScrapedAt
	}
	var isoTimestamp string
	if !ts.IsZero() {
		isoTimestamp = ts.Format(time.RFC3339)
	}

	return discordEmbed{
		Title:       truncate(p.Title, maxTitleLen),
		URL:         p.URL,
		Description: truncate(description, maxDescriptionLen),
		Timestamp:   isoTimestamp,
		Color:       vfxColor(p.VfxNeeds),
		Fields:      fields,
		Footer:      discordEmbedFooter{Text: sourceName + " · " + p.VfxNeedsRationale},
	}
}

func (c *Client) sendAndGetMessageID(ctx context.Context, embed discordEmbed) (string, error) {
	payload := discordWebhookPayload{Embeds: []discordEmbed{embed}}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(c.webhookURL)
	if err != nil {
		return "", err
	}
	q := parsedURL.Query()
	q.Set("wait", "true")
	parsedURL.RawQuery = q.Encode()

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsedURL.String(), bytes.NewReader(payloadBytes))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return "", err
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var msgResponse discordMessageResponse
			if err := json.Unmarshal(bodyBytes, &msgResponse); err != nil {
				return "", err
			}
			return msgResponse.ID, nil
		}

		backoff := retryBackoff(resp, attempt)
		if backoff == 0 || attempt >= maxRetries {
			return "", fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
		}
		slog.Warn("Discord webhook failed, retrying", "status", resp.StatusCode, "attempt", attempt+1, "backoff", backoff)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// retryBackoff returns how long to wait before retrying resp, or zero when
// the failure should not be retried.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		return time.Second
	case resp.StatusCode >= 500:
		return retryBaseDelay * time.Duration(1<<attempt)
	}
	return 0
}

func vfxColor(level models.VfxNeedsLevel) int {
	switch level {
	case models.VfxExtreme:
		return colorExtremeVfx
	case models.VfxHigh:
		return colorHighVfx
	case models.VfxMedium:
		return colorMediumVfx
	}
	return colorLowVfx
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
