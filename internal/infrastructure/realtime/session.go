package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

type clientFrame struct {
	Type string `json:"type"`
}

// Session drives one websocket connection: it registers the channel, answers
// client frames and unregisters when the client goes away.
type Session struct {
	registry   ports.ConnectionRegistry
	logger     *slog.Logger
	sendBuffer int
}

func NewSession(registry ports.ConnectionRegistry, logger *slog.Logger, sendBuffer int) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{registry: registry, logger: logger, sendBuffer: sendBuffer}
}

// Serve blocks until the connection is closed or ctx is done.
func (s *Session) Serve(ctx context.Context, userID string, conn *websocket.Conn) {
	ch := NewWebsocketChannel(conn, s.sendBuffer)
	s.registry.Connect(ctx, userID, ch)
	defer func() {
		s.registry.Disconnect(userID, ch)
		_ = ch.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = ch.Close()
		case <-ch.Done():
		}
	}()

	for {
		var raw string
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, ErrChannelClosed) {
				s.logger.Debug("push_channel_read_ended", "user_id", userID, "channel_id", ch.ID(), "error", err)
			}
			return
		}
		s.handleFrame(ctx, userID, ch, raw)
	}
}

func (s *Session) handleFrame(ctx context.Context, userID string, ch *WebsocketChannel, raw string) {
	var frame clientFrame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		s.logger.Warn("push_frame_malformed", "user_id", userID, "channel_id", ch.ID(), "error", err)
		return
	}

	var reply domain.Notification
	switch strings.ToLower(strings.TrimSpace(frame.Type)) {
	case "ping":
		reply = domain.NewNotification(domain.MessagePong, nil, "")
	case "request_stats":
		reply = domain.NewNotification(domain.MessageStats, s.registry.Stats(), "")
	default:
		s.logger.Debug("push_frame_ignored", "user_id", userID, "type", frame.Type)
		return
	}
	if err := ch.Send(ctx, reply); err != nil {
		s.logger.Warn("notification_dropped", "user_id", userID, "channel_id", ch.ID(), "type", reply.Type, "error", err)
	}
}
