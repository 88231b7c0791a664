package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/lessons-learned/internal/infrastructure/resilience"
)

const (
	DefaultSearchSubject    = "search.requested"
	DefaultKnowledgeSubject = "knowledge.ingested"

	publishedAtHeader = "Lls-Published-At"
	workerQueueGroup  = "workers"
)

type Queue struct {
	conn             *nats.Conn
	searchSubject    string
	knowledgeSubject string
	executor         *resilience.Executor
}

type Options struct {
	SearchSubject        string
	KnowledgeSubject     string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url string) (*Queue, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Queue, error) {
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
	searchSubject := options.SearchSubject
	if searchSubject == "" {
		searchSubject = DefaultSearchSubject
	}
	knowledgeSubject := options.KnowledgeSubject
	if knowledgeSubject == "" {
		knowledgeSubject = DefaultKnowledgeSubject
	}

	conn, err := nats.Connect(
		url,
		nats.Name("lessons-learned"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:             conn,
		searchSubject:    searchSubject,
		knowledgeSubject: knowledgeSubject,
		executor:         options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) DispatchSearch(ctx context.Context, searchID string) error {
	return q.publish(ctx, q.searchSubject, searchID)
}

func (q *Queue) DispatchKnowledgeDocument(ctx context.Context, documentID string) error {
	return q.publish(ctx, q.knowledgeSubject, documentID)
}

func (q *Queue) SubscribeSearchRequested(ctx context.Context, handler func(context.Context, string) error) error {
	return q.subscribe(ctx, q.searchSubject, handler)
}

func (q *Queue) SubscribeKnowledgeIngested(ctx context.Context, handler func(context.Context, string) error) error {
	return q.subscribe(ctx, q.knowledgeSubject, handler)
}

func (q *Queue) publish(ctx context.Context, subject, id string) error {
	msg := newMessage(subject, id, time.Now().UTC())
	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish %s: %w", id, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, publishOperation(subject), call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return publishError(subject, err)
}

func newMessage(subject, id string, publishedAt time.Time) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = []byte(id)
	msg.Header.Set(publishedAtHeader, publishedAt.Format(time.RFC3339Nano))
	return msg
}

// subscribe blocks until ctx is done, then drains the subscription.
func (q *Queue) subscribe(ctx context.Context, subject string, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(subject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		handlerCtx, cancel := context.WithCancel(messageContext(ctx, msg))
		defer cancel()
		if err := handler(handlerCtx, string(msg.Data)); err != nil {
			slog.Error("queue_handler_failed", "subject", subject, "id", string(msg.Data), "error", err)
		}
	})
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
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

type publishedAtKey struct{}

func messageContext(ctx context.Context, msg *nats.Msg) context.Context {
	if msg.Header == nil {
		return ctx
	}
	raw := msg.Header.Get(publishedAtHeader)
	if raw == "" {
		return ctx
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return ctx
	}
	return context.WithValue(ctx, publishedAtKey{}, ts)
}

// PublishedAt reports when the message being handled was published.
func PublishedAt(ctx context.Context) (time.Time, bool) {
	ts, ok := ctx.Value(publishedAtKey{}).(time.Time)
	return ts, ok
}
