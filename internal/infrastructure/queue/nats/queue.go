package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

const insightsQueueGroup = "insights-workers"

// Queue carries insights jobs to workers and relays notifications published
// by workers back to the API process that holds the push channels.
type Queue struct {
	conn            *nats.Conn
	insightsSubject string
	notifySubject   string
	executor        *resilience.Executor
	logger          *slog.Logger
}

type Options struct {
	Name                 string
	InsightsSubject      string
	NotifySubject        string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	if options.Name == "" {
		options.Name = "document-intake"
	}
	if options.InsightsSubject == "" {
		options.InsightsSubject = "documents.insights"
	}
	if options.NotifySubject == "" {
		options.NotifySubject = "documents.notify"
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name(options.Name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	executor := options.ResilienceExecutor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.PublishPolicy(), resilience.WithLogger(logger))
	}
	return &Queue{
		conn:            conn,
		insightsSubject: options.InsightsSubject,
		notifySubject:   options.NotifySubject,
		executor:        executor,
		logger:          logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

type insightsJob struct {
	DocumentID string    `json:"document_id"`
	QueuedAt   time.Time `json:"queued_at"`
}

type relayedNotification struct {
	UserID       string              `json:"user_id"`
	Notification domain.Notification `json:"notification"`
}

func (q *Queue) PublishInsightsJob(ctx context.Context, documentID string) error {
	payload, err := json.Marshal(insightsJob{DocumentID: documentID, QueuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal insights job: %w", err)
	}
	return q.publish(ctx, q.insightsSubject, payload)
}

func (q *Queue) PublishNotification(ctx context.Context, userID string, msg domain.Notification) error {
	payload, err := json.Marshal(relayedNotification{UserID: userID, Notification: msg})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return q.publish(ctx, q.notifySubject, payload)
}

// Dispatch makes the queue usable as the insights dispatcher.
func (q *Queue) Dispatch(ctx context.Context, documentID string) error {
	return q.PublishInsightsJob(ctx, documentID)
}

// SendToUser makes the queue usable as the worker's notifier. Delivery is
// best effort, so publish failures are only logged.
func (q *Queue) SendToUser(ctx context.Context, userID string, msg domain.Notification) {
	if err := q.PublishNotification(ctx, userID, msg); err != nil {
		q.logger.Warn("notification_dropped", "user_id", userID, "type", msg.Type, "error", err)
	}
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return asTemporary(err)
	}
	return nil
}

func (q *Queue) SubscribeInsightsJobs(ctx context.Context, handler func(context.Context, string) error) error {
	return q.subscribe(ctx, q.insightsSubject, insightsQueueGroup, func(msgCtx context.Context, data []byte) {
		documentID, err := decodeInsightsJob(data)
		if err != nil {
			q.logger.Warn("insights_job_malformed", "error", err)
			return
		}
		if err := handler(msgCtx, documentID); err != nil {
			q.logger.Error("insights_job_failed", "document_id", documentID, "error", err)
		}
	})
}

func (q *Queue) SubscribeNotifications(
	ctx context.Context,
	handler func(context.Context, string, domain.Notification) error,
) error {
	return q.subscribe(ctx, q.notifySubject, "", func(msgCtx context.Context, data []byte) {
		var relayed relayedNotification
		if err := json.Unmarshal(data, &relayed); err != nil || relayed.UserID == "" {
			q.logger.Warn("notification_malformed", "error", err)
			return
		}
		if err := handler(msgCtx, relayed.UserID, relayed.Notification); err != nil {
			q.logger.Warn("notification_relay_failed", "user_id", relayed.UserID, "error", err)
		}
	})
}

// subscribe blocks until ctx is done, then drains the subscription.
func (q *Queue) subscribe(ctx context.Context, subject, group string, handle func(context.Context, []byte)) error {
	cb := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		handle(handlerCtx, msg.Data)
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = q.conn.QueueSubscribe(subject, group, cb)
	} else {
		sub, err = q.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// decodeInsightsJob accepts the JSON job and a bare document id.
func decodeInsightsJob(data []byte) (string, error) {
	var job insightsJob
	if err := json.Unmarshal(data, &job); err == nil && job.DocumentID != "" {
		return job.DocumentID, nil
	}
	if len(data) > 0 && data[0] != '{' {
		return string(data), nil
	}
	return "", errors.New("insights job without document_id")
}
