package fanout

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quorum/internal/config"
)

const userAgent = "Quorum-Go/0.1.0"

// Pusher mirrors notification summaries to an external push channel.
type Pusher interface {
	Push(ctx context.Context, title, message string, tags []string, priority string) error
}

// NewPusher builds a push client backed by ntfy when a topic is configured.
// When no topic is configured, a noop implementation is returned.
func NewPusher(cfg *config.Config) Pusher {
	topic := strings.TrimSpace(cfg.Fanout.PushTopic)
	if topic == "" {
		return noopPusher{}
	}

	timeout := time.Duration(cfg.Fanout.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyPusher{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type noopPusher struct{}

func (noopPusher) Push(context.Context, string, string, []string, string) error { return nil }

type ntfyPusher struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyPusher) Push(ctx context.Context, title, message string, tags []string, priority string) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if title != "" {
		req.Header.Set("Title", title)
	}
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if priority != "" && priority != "default" {
		req.Header.Set("Priority", priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
