package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/wlanctl/internal/brand"
	"grimm.is/wlanctl/internal/events"
)

// EventsOptions configures "wlanctl events".
type EventsOptions struct {
	// Addr is the API listen address, host:port.
	Addr   string
	Topics []string
	// Raw prints every message as received.
	Raw bool
}

type streamMessage struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type streamEvent struct {
	Type      events.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Data      json.RawMessage  `json:"data"`
}

// EventsURL returns the websocket URL for addr and topics.
func EventsURL(addr string, topics []string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/api/events"}
	if len(topics) > 0 {
		u.RawQuery = url.Values{"topics": {strings.Join(topics, ",")}}.Encode()
	}
	return u.String()
}

// RunEvents streams hub events from the API until ctx is cancelled or the
// server closes the stream.
func RunEvents(ctx context.Context, opts EventsOptions, w io.Writer) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{"User-Agent": {brand.UserAgent(brand.Version)}}

	conn, resp, err := dialer.DialContext(ctx, EventsURL(opts.Addr, opts.Topics), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("event stream: %w (HTTP %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("event stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("event stream: %w", err)
		}
		if opts.Raw {
			w.Write(append(raw, '\n'))
			continue
		}
		printStreamMessage(w, raw)
	}
}

// printStreamMessage prints supplicant events as their canonical line and
// everything else as compact JSON.
func printStreamMessage(w io.Writer, raw []byte) {
	var msg streamMessage
	var ev streamEvent
	if json.Unmarshal(raw, &msg) != nil || json.Unmarshal(msg.Data, &ev) != nil {
		w.Write(append(raw, '\n'))
		return
	}
	ts := ev.Timestamp.Local().Format("15:04:05.000")

	switch ev.Type {
	case events.EventWifi, events.EventTerminating:
		var d events.WifiEventData
		if json.Unmarshal(ev.Data, &d) == nil {
			Printer.Fprintf(w, "%s %s\n", ts, d.Line)
			return
		}
	}
	Printer.Fprintf(w, "%s [%s] %s %s\n", ts, msg.Topic, ev.Type, string(ev.Data))
}
