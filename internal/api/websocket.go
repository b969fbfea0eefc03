package api

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/wlanctl/internal/logging"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	clientQueue = 256
	maxInbound  = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOriginOrLoopback,
}

// sameOriginOrLoopback accepts requests without an Origin, from the API's
// own host, or from a page served on a loopback host.
func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// DefaultTopics are subscribed when the client names none.
var DefaultTopics = []string{"events"}

// WSMessage is the frame sent to clients.
type WSMessage struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// wsControl is a client request to change its subscriptions.
type wsControl struct {
	Action string   `json:"action"` // subscribe | unsubscribe
	Topics []string `json:"topics"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	topics map[string]struct{}
}

func newWSClient(conn *websocket.Conn, topics []string) *wsClient {
	c := &wsClient{conn: conn, send: make(chan []byte, clientQueue), topics: make(map[string]struct{})}
	c.apply(wsControl{Action: "subscribe", Topics: topics})
	return c
}

func (c *wsClient) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

func (c *wsClient) apply(ctl wsControl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range ctl.Topics {
		switch ctl.Action {
		case "subscribe":
			c.topics[t] = struct{}{}
		case "unsubscribe":
			delete(c.topics, t)
		}
	}
}

// WSManager tracks connected clients and fans topic messages out to them.
// A client that cannot keep up loses messages rather than slowing Publish.
type WSManager struct {
	logger  *logging.Logger
	dropped atomic.Uint64

	mutex   sync.RWMutex
	clients map[*wsClient]bool
	closed  bool
}

func NewWSManager(logger *logging.Logger) *WSManager {
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	return &WSManager{logger: logger, clients: make(map[*wsClient]bool)}
}

// add registers c. It reports false once the manager is closed.
func (m *WSManager) add(c *wsClient) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return false
	}
	m.clients[c] = true
	return true
}

// remove unregisters c and ends its writer. Safe to call more than once.
func (m *WSManager) remove(c *wsClient) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.clients[c] {
		delete(m.clients, c)
		close(c.send)
	}
}

// Close disconnects every client. Later connections are refused.
func (m *WSManager) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	for c := range m.clients {
		delete(m.clients, c)
		close(c.send)
	}
}

func (m *WSManager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (m *WSManager) Dropped() uint64 { return m.dropped.Load() }

// Publish sends data to every client subscribed to topic.
func (m *WSManager) Publish(topic string, data any) {
	frame, err := json.Marshal(WSMessage{Topic: topic, Data: data})
	if err != nil {
		m.logger.Warn("failed to encode websocket message", "topic", topic, "error", err)
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for c := range m.clients {
		if !c.subscribed(topic) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			m.dropped.Add(1)
		}
	}
}

// readLoop applies subscription changes until the connection fails.
func (m *WSManager) readLoop(c *wsClient) {
	defer m.remove(c)

	c.conn.SetReadLimit(maxInbound)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var ctl wsControl
		if json.Unmarshal(msg, &ctl) == nil {
			c.apply(ctl)
		}
	}
}

// writeLoop drains the send queue and pings until the queue is closed or a
// write fails. It owns closing the connection.
func (c *wsClient) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		var (
			kind    = websocket.PingMessage
			payload []byte
		)
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			kind, payload = websocket.TextMessage, frame
		case <-ping.C:
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(kind, payload); err != nil {
			return
		}
	}
}

// parseTopics reads ?topics=a,b from the request.
func parseTopics(r *http.Request) []string {
	raw := r.URL.Query().Get("topics")
	if raw == "" {
		return DefaultTopics
	}
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// handleEventsWS upgrades the connection and streams hub events.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.wsManager == nil {
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, "Websockets not enabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err)
		return
	}

	c := newWSClient(conn, parseTopics(r))
	if !s.wsManager.add(c) {
		conn.Close()
		return
	}
	go c.writeLoop()
	go s.wsManager.readLoop(c)
}
