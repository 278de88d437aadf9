// Package websocket streams ward domain events to connected clients. Clients
// subscribe to topics: the event family ("patient", "stock", ...), one record
// within a family ("patient/T-100"), or AllTopics.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/donka/ward/internal/platform/events"
)

// AllTopics receives every event.
const AllTopics = "*"

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Message is the frame sent to clients for each event.
type Message struct {
	Topic   string                 `json:"topic"`
	Type    string                 `json:"type"`
	Subject string                 `json:"subject"`
	At      time.Time              `json:"at"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ClientMessage is an inbound subscription change.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connected listener.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// Hub tracks clients and their subscriptions. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// NewClient returns an unregistered client with the given initial topics.
func NewClient(topics ...string) *Client {
	return &Client{ID: uuid.NewString(), Topics: topics, Send: make(chan []byte, sendBuffer)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister removes the client from every topic and closes its Send channel.
// Unregistering twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if _, dup := h.clients[topic][client]; dup {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		drop[topic] = struct{}{}
		h.removeLocked(topic, client)
	}
	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, rm := drop[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// ProcessMessage applies a subscribe or unsubscribe request.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// TopicsFor lists the topics an event is delivered on.
func TopicsFor(evt events.Event) []string {
	family := evt.Type
	if i := strings.IndexByte(family, '.'); i >= 0 {
		family = family[:i]
	}
	topics := []string{AllTopics, family}
	if evt.Subject != "" {
		topics = append(topics, family+"/"+evt.Subject)
	}
	return topics
}

// Publish delivers evt to every subscriber of one of its topics, once per
// client. Slow clients whose buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, evt events.Event) error {
	topics := TopicsFor(evt)
	data, err := json.Marshal(Message{
		Topic:   topics[1],
		Type:    evt.Type,
		Subject: evt.Subject,
		At:      evt.At,
		Data:    evt.Data,
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := make(map[*Client]struct{})
	for _, topic := range topics {
		for client := range h.clients[topic] {
			if _, done := delivered[client]; done {
				continue
			}
			delivered[client] = struct{}{}
			select {
			case client.Send <- data:
			default:
				h.logger.Warn().Str("client", client.ID).Str("event", evt.Type).Msg("live client too slow, event dropped")
			}
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Handler upgrades HTTP requests to WebSocket connections on the hub.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler accepts connections whose Origin is in allowedOrigins. Requests
// without an Origin header (non-browser clients) are always accepted.
func NewHandler(hub *Hub, allowedOrigins []string, logger zerolog.Logger) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed[AllTopics]; ok {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/ws", h.Connect)
}

// Connect upgrades the request. Initial topics come from ?topics=a,b and
// default to AllTopics.
func (h *Handler) Connect(c echo.Context) error {
	topics := splitTopics(c.QueryParam("topics"))
	if len(topics) == 0 {
		topics = []string{AllTopics}
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(topics...)
	h.hub.Register(client)
	h.logger.Debug().Str("client", client.ID).Strs("topics", topics).Msg("live client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func splitTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
