package realtime

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// Registry tracks the live push channels of every connected user. It is safe
// for concurrent use; delivery never holds the lock while writing to a channel.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string][]ports.Channel
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		channels: make(map[string][]ports.Channel),
	}
}

// Connect registers ch under userID and acknowledges on that channel only.
func (r *Registry) Connect(ctx context.Context, userID string, ch ports.Channel) {
	r.mu.Lock()
	r.channels[userID] = append(r.channels[userID], ch)
	count := len(r.channels[userID])
	r.mu.Unlock()

	r.logger.Info("push_channel_connected", "user_id", userID, "channel_id", ch.ID(), "user_channels", count)

	ack := domain.NewNotification(
		domain.MessageConnectionEstablished,
		map[string]string{"user_id": userID, "channel_id": ch.ID()},
		"Connected to document notifications",
	)
	if err := ch.Send(ctx, ack); err != nil {
		r.logger.Warn("notification_dropped", "user_id", userID, "channel_id", ch.ID(), "type", ack.Type, "error", err)
		r.drop(userID, ch)
	}
}

// Disconnect removes ch. Removing an unknown channel is a no-op.
func (r *Registry) Disconnect(userID string, ch ports.Channel) {
	if r.remove(userID, ch) {
		r.logger.Info("push_channel_disconnected", "user_id", userID, "channel_id", ch.ID())
	}
}

func (r *Registry) remove(userID string, ch ports.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.channels[userID]
	if !ok {
		return false
	}
	idx := slices.IndexFunc(current, func(c ports.Channel) bool { return c.ID() == ch.ID() })
	if idx < 0 {
		return false
	}
	// Copy so snapshots taken by concurrent senders stay intact.
	next := slices.Delete(slices.Clone(current), idx, idx+1)
	if len(next) == 0 {
		delete(r.channels, userID)
	} else {
		r.channels[userID] = next
	}
	return true
}

// SendToUser delivers msg on every channel of userID. Channels that fail are
// removed after the pass; a user without channels is a silent no-op.
func (r *Registry) SendToUser(ctx context.Context, userID string, msg domain.Notification) {
	r.mu.RLock()
	targets := slices.Clone(r.channels[userID])
	r.mu.RUnlock()

	if len(targets) == 0 {
		r.logger.Debug("notification_no_channels", "user_id", userID, "type", msg.Type)
		return
	}

	var failed []ports.Channel
	for _, ch := range targets {
		if err := ch.Send(ctx, msg); err != nil {
			r.logger.Warn("notification_dropped", "user_id", userID, "channel_id", ch.ID(), "type", msg.Type, "error", err)
			failed = append(failed, ch)
		}
	}
	for _, ch := range failed {
		r.drop(userID, ch)
	}
}

func (r *Registry) Broadcast(ctx context.Context, msg domain.Notification) {
	r.mu.RLock()
	users := make([]string, 0, len(r.channels))
	for userID := range r.channels {
		users = append(users, userID)
	}
	r.mu.RUnlock()

	r.logger.Info("notification_broadcast", "type", msg.Type, "users", len(users))
	for _, userID := range users {
		r.SendToUser(ctx, userID, msg)
	}
}

func (r *Registry) Stats() domain.ConnectionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.ConnectionStats{TotalUsersConnected: len(r.channels)}
	for _, chans := range r.channels {
		stats.TotalConnections += len(chans)
		if len(chans) > 1 {
			stats.UsersWithMultipleConnections++
		}
	}
	if stats.TotalUsersConnected > 0 {
		stats.AverageConnectionsPerUser = float64(stats.TotalConnections) / float64(stats.TotalUsersConnected)
	}
	return stats
}

func (r *Registry) drop(userID string, ch ports.Channel) {
	r.Disconnect(userID, ch)
	if err := ch.Close(); err != nil {
		r.logger.Debug("push_channel_close_failed", "user_id", userID, "channel_id", ch.ID(), "error", err)
	}
}
