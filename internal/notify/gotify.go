// Package notify delivers task notifications to an external channel.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"duewatch/internal/domain"
)

// Notifier delivers one notification. An error means the delivery must not
// be recorded as sent.
type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Gotify posts notifications to a Gotify server's message endpoint.
type Gotify struct {
	ServerURL string
	Token     string
	Client    *http.Client
}

func NewGotify(serverURL, token string) *Gotify {
	return &Gotify{
		ServerURL: serverURL,
		Token:     token,
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *Gotify) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

// Send posts a form-encoded message. Any non-2xx response counts as a
// delivery failure.
func (g *Gotify) Send(ctx context.Context, n domain.Notification) error {
	endpoint := strings.TrimRight(g.ServerURL, "/") + "/message?token=" + url.QueryEscape(g.Token)
	form := url.Values{
		"title":   {n.Title},
		"message": {n.Message},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build gotify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client().Do(req)
	if err != nil {
		return fmt.Errorf("post to gotify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gotify returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
