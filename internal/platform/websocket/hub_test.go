package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/donka/ward/internal/platform/events"
)

func receive(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case raw := <-client.Send:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("client did not receive event")
	}
	return Message{}
}

func expectNothing(t *testing.T, client *Client) {
	t.Helper()
	select {
	case raw := <-client.Send:
		t.Fatalf("unexpected message %s", raw)
	default:
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient("patient")

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount("patient") != 1 {
		t.Fatalf("expected 1 client on patient, got %d/%d", hub.ClientCount(), hub.TopicCount("patient"))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount("patient") != 0 {
		t.Fatalf("expected empty hub, got %d/%d", hub.ClientCount(), hub.TopicCount("patient"))
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send to be closed")
	}
	hub.Unregister(client)
}

func TestTopicsFor(t *testing.T) {
	got := TopicsFor(events.New("patient.complication_declared", "T-100", nil))
	want := []string{AllTopics, "patient", "patient/T-100"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got := TopicsFor(events.Event{Type: "heartbeat"}); len(got) != 2 || got[1] != "heartbeat" {
		t.Errorf("unexpected topics %v", got)
	}
}

func TestHub_PublishRoutesByTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	patients := NewClient("patient")
	one := NewClient("patient/T-100")
	stock := NewClient("stock")
	everything := NewClient(AllTopics)
	for _, c := range []*Client{patients, one, stock, everything} {
		hub.Register(c)
	}

	evt := events.New("patient.admitted", "T-100", map[string]interface{}{"name": "Diallo"})
	if err := hub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range []*Client{patients, one, everything} {
		msg := receive(t, c)
		if msg.Type != "patient.admitted" || msg.Subject != "T-100" || msg.Topic != "patient" {
			t.Errorf("unexpected message %+v", msg)
		}
		if msg.Data["name"] != "Diallo" {
			t.Errorf("expected data to be forwarded, got %v", msg.Data)
		}
	}
	expectNothing(t, stock)
}

func TestHub_PublishDeliversOncePerClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(AllTopics, "stock", "stock/Betadine")
	hub.Register(client)

	_ = hub.Publish(context.Background(), events.New("stock.alert", "Betadine", nil))
	receive(t, client)
	expectNothing(t, client)
}

func TestHub_PublishDropsForSlowClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{"stock"}, Send: make(chan []byte, 1)}
	hub.Register(client)

	for i := 0; i < 3; i++ {
		if err := hub.Publish(context.Background(), events.New("stock.adjusted", "Gauze", nil)); err != nil {
			t.Fatalf("publish must not fail on a slow client: %v", err)
		}
	}
	if len(client.Send) != 1 {
		t.Errorf("expected buffer of 1 to stay full, got %d", len(client.Send))
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient()
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"patient", "stock", "patient"}})
	if len(client.Topics) != 2 || hub.TopicCount("patient") != 1 || hub.TopicCount("stock") != 1 {
		t.Fatalf("unexpected subscriptions %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"patient"}})
	if len(client.Topics) != 1 || client.Topics[0] != "stock" || hub.TopicCount("patient") != 0 {
		t.Fatalf("unexpected subscriptions after unsubscribe %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "shout", Topics: []string{"finance"}})
	if hub.TopicCount("finance") != 0 {
		t.Error("unknown action must be ignored")
	}
}

func TestHub_ConcurrentPublishAndRegister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := NewClient(AllTopics)
			hub.Register(c)
			hub.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			_ = hub.Publish(context.Background(), events.New("transaction.recorded", "x", nil))
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected no clients left, got %d", hub.ClientCount())
	}
}

func TestSplitTopics(t *testing.T) {
	got := splitTopics(" patient, ,stock/Gauze ")
	if len(got) != 2 || got[0] != "patient" || got[1] != "stock/Gauze" {
		t.Errorf("unexpected topics %v", got)
	}
	if splitTopics("") != nil {
		t.Error("expected nil for empty query")
	}
}

func TestHandler_ConnectRequiresUpgrade(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), nil, zerolog.Nop())
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), rec)

	err := h.Connect(c)
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for a plain request")
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), []string{"http://ward.local"}, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	req.Header.Set("Origin", "http://evil.local")
	if h.upgrader.CheckOrigin(req) {
		t.Error("expected foreign origin to be rejected")
	}
	req.Header.Set("Origin", "http://ward.local")
	if !h.upgrader.CheckOrigin(req) {
		t.Error("expected configured origin to be accepted")
	}
	req.Header.Del("Origin")
	if !h.upgrader.CheckOrigin(req) {
		t.Error("expected request without origin to be accepted")
	}
}

func TestHandler_StreamsEventsOverWebSocket(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil, zerolog.Nop()).RegisterRoutes(e.Group(""))

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?topics=stock"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(time.Second)
	for hub.TopicCount("stock") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount("stock") != 1 {
		t.Fatal("expected the connection to subscribe to stock")
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"patient/T-100"}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	deadline = time.Now().Add(time.Second)
	for hub.TopicCount("patient/T-100") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	_ = hub.Publish(context.Background(), events.New("patient.note_appended", "T-100", nil))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if msg.Type != "patient.note_appended" || msg.Subject != "T-100" {
		t.Errorf("unexpected message %+v", msg)
	}
}
