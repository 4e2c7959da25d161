package stream

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func TestStreamHandlersUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil))

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/supervisors", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected 426 for non-websocket request, got %d", resp.StatusCode)
	}
}

func TestStreamHandlersSupervisorFeed(t *testing.T) {
	hub := NewHub(nil)
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	defer ln.Close()

	go func() {
		_ = app.Listener(ln)
	}()
	defer func() { _ = app.Shutdown() }()

	wsURL := "ws://" + ln.Addr().String() + "/stream/ws/supervisors"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	hub.PublishTrip("courier-7", Event{Type: EventMetricsUpdate, TripID: "trip-42"})
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != EventMetricsUpdate || ev.TripID != "trip-42" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestStreamHandlersCourierFeed(t *testing.T) {
	hub := NewHub(nil)
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	defer ln.Close()

	go func() {
		_ = app.Listener(ln)
	}()
	defer func() { _ = app.Shutdown() }()

	wsURL := "ws://" + ln.Addr().String() + "/stream/ws/" + CourierGroup("courier-1")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	hub.Broadcast(CourierGroup("courier-1"), []byte("hello"))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != "hello" {
		t.Fatalf("unexpected message")
	}
}

func TestStreamHandlersWebsocketWriteError(t *testing.T) {
	hub := NewHub(nil)
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	defer ln.Close()

	go func() {
		_ = app.Listener(ln)
	}()
	defer func() { _ = app.Shutdown() }()

	wsURL := "ws://" + ln.Addr().String() + "/stream/ws/supervisors"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	conn.Close()

	hub.Broadcast(GroupSupervisors, []byte("ping"))
	time.Sleep(20 * time.Millisecond)
}

func TestStreamHandlersWebsocketCloseMessage(t *testing.T) {
	hub := NewHub(nil)
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	defer ln.Close()

	go func() {
		_ = app.Listener(ln)
	}()
	defer func() { _ = app.Shutdown() }()

	wsURL := "ws://" + ln.Addr().String() + "/stream/ws/" + CourierGroup("courier-3")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	hub.Broadcast(CourierGroup("courier-3"), []byte("ping"))
	time.Sleep(20 * time.Millisecond)
}
