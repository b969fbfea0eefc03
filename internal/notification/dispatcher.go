// Package notification delivers operator alerts for daemon failures to
// webhook, Slack, Discord and ntfy channels.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"grimm.is/wlanctl/internal/clock"
	"grimm.is/wlanctl/internal/config"
	"grimm.is/wlanctl/internal/logging"
)

// Severity levels, lowest first. Channels set a minimum.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

var severity = map[string]int{LevelInfo: 1, LevelWarning: 2, LevelCritical: 3}

// DefaultNtfyServer is used when an ntfy channel names no server.
const DefaultNtfyServer = "https://ntfy.sh"

const sendTimeout = 10 * time.Second

// Notification is one alert. Webhook channels receive it as JSON verbatim.
type Notification struct {
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Level     string         `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Dispatcher posts notifications to the configured channels.
type Dispatcher struct {
	client *http.Client
	logger *logging.Logger

	mu  sync.RWMutex
	cfg *config.NotificationsConfig
}

// NewDispatcher creates a dispatcher. A nil client gets a 10s timeout.
func NewDispatcher(cfg *config.NotificationsConfig, client *http.Client, logger *logging.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	if logger == nil {
		logger = logging.WithComponent("notification")
	}
	return &Dispatcher{cfg: cfg, client: client, logger: logger}
}

// UpdateConfig replaces the channel list for later sends.
func (d *Dispatcher) UpdateConfig(cfg *config.NotificationsConfig) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

// Send posts n to every enabled channel whose minimum level it meets, in
// parallel, and returns how many accepted it. Failures are only logged.
func (d *Dispatcher) Send(ctx context.Context, n Notification) int {
	d.mu.RLock()
	cfg := d.cfg
	d.mu.RUnlock()
	if cfg == nil {
		return 0
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = clock.Now()
	}

	var (
		wg sync.WaitGroup
		ok atomic.Int32
	)
	for _, ch := range cfg.Channels {
		if !ch.IsEnabled() || !shouldSend(n.Level, ch.Level) {
			continue
		}
		wg.Go(func() {
			if err := d.deliver(ctx, ch, n); err != nil {
				d.logger.Error("failed to send notification", "channel", ch.Name, "type", ch.Type, "error", err)
				return
			}
			ok.Add(1)
		})
	}
	wg.Wait()
	return int(ok.Load())
}

// shouldSend reports whether level reaches the channel minimum. An empty
// minimum accepts everything.
func shouldSend(level, minimum string) bool {
	if minimum == "" {
		return true
	}
	return severity[strings.ToLower(level)] >= severity[strings.ToLower(minimum)]
}

// post is one HTTP request to a channel.
type post struct {
	url         string
	contentType string
	body        []byte
	headers     map[string]string
}

func jsonPost(url string, v any) (post, error) {
	b, err := json.Marshal(v)
	return post{url: url, contentType: "application/json", body: b}, err
}

// render turns n into the request the channel type expects.
func render(ch config.NotificationChannel, n Notification) (post, error) {
	switch strings.ToLower(ch.Type) {
	case "webhook":
		return jsonPost(ch.WebhookURL, n)
	case "slack":
		return jsonPost(ch.WebhookURL, map[string]string{
			"text": fmt.Sprintf("*%s*\n%s\n_Level: %s_", n.Title, n.Message, n.Level),
		})
	case "discord":
		return jsonPost(ch.WebhookURL, map[string]string{
			"content": fmt.Sprintf("**%s**\n%s", n.Title, n.Message),
		})
	case "ntfy":
		if ch.Topic == "" {
			return post{}, errors.New("ntfy channel has no topic")
		}
		server := ch.Server
		if server == "" {
			server = DefaultNtfyServer
		}
		priority, tag := ntfyStyle(n.Level)
		return post{
			url:         strings.TrimSuffix(server, "/") + "/" + ch.Topic,
			contentType: "text/plain",
			body:        []byte(n.Message),
			headers:     map[string]string{"Title": n.Title, "Priority": priority, "Tags": tag},
		}, nil
	}
	return post{}, fmt.Errorf("unknown channel type %q", ch.Type)
}

func ntfyStyle(level string) (priority, tag string) {
	switch level {
	case LevelCritical:
		return "high", "rotating_light"
	case LevelWarning:
		return "default", "warning"
	}
	return "low", "information_source"
}

func (d *Dispatcher) deliver(ctx context.Context, ch config.NotificationChannel, n Notification) error {
	p, err := render(ch, n)
	if err != nil {
		return err
	}
	if p.url == "" {
		return fmt.Errorf("%s channel has no webhook_url", ch.Type)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(p.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", p.contentType)
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	// Operator headers override ours.
	for k, v := range ch.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s returned %s", ch.Type, resp.Status)
	}
	return nil
}
