// Package stream_listener connects the realtime social stream to the
// tipping orchestrator. It deduplicates events, routes each one to the
// right handler and isolates handler failures so one poisoned status
// never stops the stream.
package stream_listener

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	"github.com/xnotip/tipbot_service/internal/infrastructure/cache"
	"github.com/xnotip/tipbot_service/internal/infrastructure/mastodon"
	"github.com/xnotip/tipbot_service/pkg/metrics"
)

// Stream delivers decoded events until its context is cancelled
type Stream interface {
	Run(ctx context.Context, handle func(mastodon.StreamEvent)) error
}

// TipHandler reacts to routed statuses
type TipHandler interface {
	HandleTipStatus(ctx context.Context, status *entities.Status) error
	HandleReply(ctx context.Context, status *entities.Status) error
	HandleDirectMessage(ctx context.Context, status *entities.Status) error
}

// Config holds worker configuration
type Config struct {
	TriggerHashtag string
	BotAccountID   string
	HandlerTimeout time.Duration
	SeenStatusTTL  time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		HandlerTimeout: 2 * time.Minute,
		SeenStatusTTL:  24 * time.Hour,
	}
}

// Worker dispatches stream events to the tipping orchestrator
type Worker struct {
	stream  Stream
	handler TipHandler
	redis   cache.RedisClient
	config  *Config
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewWorker creates a new stream listener worker
func NewWorker(stream Stream, handler TipHandler, redis cache.RedisClient, config *Config, logger *zap.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = DefaultConfig().HandlerTimeout
	}
	if config.SeenStatusTTL <= 0 {
		config.SeenStatusTTL = DefaultConfig().SeenStatusTTL
	}
	return &Worker{
		stream:  stream,
		handler: handler,
		redis:   redis,
		config:  config,
		logger:  logger,
	}
}

// Start consumes the stream until the context is cancelled, then waits
// for in-flight handlers to drain.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting stream listener",
		zap.String("trigger_hashtag", w.config.TriggerHashtag))

	err := w.stream.Run(ctx, func(event mastodon.StreamEvent) {
		w.dispatch(ctx, event)
	})

	w.wg.Wait()
	w.logger.Info("Stream listener stopped")
	return err
}

func (w *Worker) dispatch(ctx context.Context, event mastodon.StreamEvent) {
	metrics.StreamEventsTotal.WithLabelValues(event.Event).Inc()

	status := event.Status
	if event.Notification != nil {
		if event.Notification.Type != "mention" {
			return
		}
		status = event.Notification.Status
	}
	if status == nil {
		return
	}
	// The bot's own replies come back on the stream.
	if w.config.BotAccountID != "" && status.Account.ID == w.config.BotAccountID {
		return
	}

	// The same status arrives on both the hashtag and the user
	// subscription; the first claim wins across all instances.
	claimed, err := w.redis.SetNX(ctx, "seen_status:"+status.ID, time.Now().Unix(), w.config.SeenStatusTTL)
	if err != nil {
		w.logger.Error("Dedupe check failed, skipping event",
			zap.String("statusID", status.ID), zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Handler panicked",
					zap.String("statusID", status.ID), zap.Any("panic", r))
			}
		}()

		handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.config.HandlerTimeout)
		defer cancel()

		if err := w.route(handlerCtx, status); err != nil {
			w.logger.Error("Handler failed",
				zap.String("statusID", status.ID), zap.Error(err))
		}
	}()
}

func (w *Worker) route(ctx context.Context, status *entities.Status) error {
	switch {
	case status.Visibility == entities.VisibilityDirect:
		return w.handler.HandleDirectMessage(ctx, status)
	case status.HasTag(w.config.TriggerHashtag):
		return w.handler.HandleTipStatus(ctx, status)
	case status.InReplyToID != "":
		return w.handler.HandleReply(ctx, status)
	default:
		return nil
	}
}
