package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

var (
	ErrChannelClosed = errors.New("push channel closed")
	ErrChannelFull   = errors.New("push channel send buffer full")
)

const defaultWriteTimeout = 10 * time.Second

// WebsocketChannel queues notifications for one websocket connection and
// writes them from a dedicated goroutine, so each channel sees messages in
// send order and a slow client never blocks the sender.
type WebsocketChannel struct {
	id           string
	conn         *websocket.Conn
	outbox       chan domain.Notification
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func NewWebsocketChannel(conn *websocket.Conn, buffer int) *WebsocketChannel {
	if buffer <= 0 {
		buffer = 16
	}
	ch := &WebsocketChannel{
		id:           uuid.NewString(),
		conn:         conn,
		outbox:       make(chan domain.Notification, buffer),
		done:         make(chan struct{}),
		writeTimeout: defaultWriteTimeout,
	}
	go ch.writeLoop()
	return ch
}

func (c *WebsocketChannel) ID() string {
	return c.id
}

func (c *WebsocketChannel) Send(_ context.Context, msg domain.Notification) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.outbox <- msg:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		return ErrChannelFull
	}
}

func (c *WebsocketChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the channel stops accepting messages.
func (c *WebsocketChannel) Done() <-chan struct{} {
	return c.done
}

func (c *WebsocketChannel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.outbox:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := websocket.JSON.Send(c.conn, msg); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
