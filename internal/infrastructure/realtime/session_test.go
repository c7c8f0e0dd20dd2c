package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/observability/logging"
)

func dialSession(t *testing.T, reg *Registry, userID string) *websocket.Conn {
	t.Helper()
	session := NewSession(reg, logging.Discard(), 4)
	srv := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		session.Serve(context.Background(), userID, conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(url, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func receive(t *testing.T, conn *websocket.Conn) domain.Notification {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg domain.Notification
	if err := websocket.JSON.Receive(conn, &msg); err != nil {
		t.Fatalf("receive: %v", err)
	}
	return msg
}

func TestSessionAcknowledgesAndAnswersFrames(t *testing.T) {
	reg := newTestRegistry()
	conn := dialSession(t, reg, "u1")

	if msg := receive(t, conn); msg.Type != domain.MessageConnectionEstablished {
		t.Fatalf("expected connection ack, got %q", msg.Type)
	}

	if err := websocket.Message.Send(conn, "{not json"); err != nil {
		t.Fatalf("send malformed frame: %v", err)
	}
	if err := websocket.Message.Send(conn, `{"type":"ping"}`); err != nil {
		t.Fatalf("send ping: %v", err)
	}
	if msg := receive(t, conn); msg.Type != domain.MessagePong || msg.Timestamp.IsZero() {
		t.Fatalf("expected pong with timestamp after malformed frame, got %+v", msg)
	}

	if err := websocket.Message.Send(conn, `{"type":"request_stats"}`); err != nil {
		t.Fatalf("send request_stats: %v", err)
	}
	msg := receive(t, conn)
	if msg.Type != domain.MessageStats {
		t.Fatalf("expected stats, got %q", msg.Type)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok || data["total_connections"] != float64(1) {
		t.Fatalf("unexpected stats payload: %#v", msg.Data)
	}
}

func TestSessionReceivesUserNotifications(t *testing.T) {
	reg := newTestRegistry()
	conn := dialSession(t, reg, "u1")
	receive(t, conn)

	reg.SendToUser(context.Background(), "u1", domain.NewNotification(domain.MessageDocumentProcessed, nil, "✅ a.pdf processed successfully!"))

	msg := receive(t, conn)
	if msg.Type != domain.MessageDocumentProcessed || msg.Message == "" {
		t.Fatalf("unexpected notification: %+v", msg)
	}
}

func TestSessionUnregistersOnClose(t *testing.T) {
	reg := newTestRegistry()
	conn := dialSession(t, reg, "u1")
	receive(t, conn)
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reg.Stats().TotalConnections == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected channel to be removed after client close, got %+v", reg.Stats())
}
