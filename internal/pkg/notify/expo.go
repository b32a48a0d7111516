package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ExpoPusher delivers push notifications through the Expo push API.
type ExpoPusher struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewExpoPusher creates an ExpoPusher targeting the given push endpoint.
func NewExpoPusher(url string, logger zerolog.Logger) *ExpoPusher {
	return &ExpoPusher{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type expoMessage struct {
	To    []string          `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound"`
}

// Push sends one notification to every token. A non-2xx response or
// transport failure is returned to the caller; the dispatcher decides
// whether that matters.
func (p *ExpoPusher) Push(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	if len(tokens) == 0 {
		return nil
	}

	payload, err := json.Marshal(expoMessage{
		To:    tokens,
		Title: title,
		Body:  body,
		Data:  data,
		Sound: "default",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("push rejected with status %d", res.StatusCode)
	}

	p.logger.Debug().Int("tokens", len(tokens)).Str("title", title).Msg("Push notification sent")
	return nil
}
