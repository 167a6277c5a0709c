package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	"github.com/xnotip/tipbot_service/pkg/metrics"
)

// ConnState models the streaming connection lifecycle. The connection
// is replaced wholesale on every transition, never mutated in place.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateSubscribed
)

// StreamEvent is one decoded frame from the social network stream.
type StreamEvent struct {
	Event        string
	Status       *entities.Status
	Notification *entities.Notification
}

// StreamingConfig configures the streaming client
type StreamingConfig struct {
	StreamingBaseURL string // e.g. wss://social.example/api/v1/streaming
	AccessToken      string
	TriggerHashtag   string
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
}

// StreamingClient maintains the realtime subscription and decodes
// incoming frames. Reconnection re-issues both subscriptions, so no
// subscription survives only by accident of connection reuse.
type StreamingClient struct {
	config StreamingConfig
	logger *zap.Logger
}

// NewStreamingClient creates a new streaming client
func NewStreamingClient(config StreamingConfig, logger *zap.Logger) *StreamingClient {
	if config.ReconnectMin == 0 {
		config.ReconnectMin = time.Second
	}
	if config.ReconnectMax == 0 {
		config.ReconnectMax = time.Minute
	}
	return &StreamingClient{config: config, logger: logger}
}

type subscribeRequest struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
	Tag    string `json:"tag,omitempty"`
}

type streamFrame struct {
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

// Run connects, subscribes and delivers events to handle until ctx is
// done. Connection loss triggers reconnection with capped backoff;
// events are delivered in arrival order within one connection, with no
// ordering guarantee across a reconnect boundary.
func (s *StreamingClient) Run(ctx context.Context, handle func(StreamEvent)) error {
	backoff := s.config.ReconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runConnection(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.StreamReconnectsTotal.Inc()
		s.logger.Warn("Stream connection lost, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.config.ReconnectMax {
			backoff = s.config.ReconnectMax
		}
	}
}

func (s *StreamingClient) runConnection(ctx context.Context, handle func(StreamEvent)) error {
	wsURL, err := s.buildURL()
	if err != nil {
		return err
	}

	s.logger.Debug("Connecting to stream", zap.String("state", "connecting"))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	// Both subscriptions are issued on every connection: the tagged
	// post stream and the bot's own notification stream.
	subscriptions := []subscribeRequest{
		{Type: "subscribe", Stream: "hashtag", Tag: s.config.TriggerHashtag},
		{Type: "subscribe", Stream: "user"},
	}
	for _, sub := range subscriptions {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.Stream, err)
		}
	}
	s.logger.Info("Stream subscribed",
		zap.String("hashtag", s.config.TriggerHashtag))

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read stream frame: %w", err)
		}

		event, ok := s.decodeFrame(raw)
		if !ok {
			continue
		}
		handle(event)
	}
}

func (s *StreamingClient) decodeFrame(raw []byte) (StreamEvent, bool) {
	var frame streamFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.logger.Debug("Skipping undecodable frame", zap.Error(err))
		return StreamEvent{}, false
	}

	// The payload is a JSON document encoded as a string.
	switch frame.Event {
	case "update":
		var status entities.Status
		if err := json.Unmarshal([]byte(frame.Payload), &status); err != nil {
			s.logger.Debug("Skipping undecodable status payload", zap.Error(err))
			return StreamEvent{}, false
		}
		return StreamEvent{Event: frame.Event, Status: &status}, true
	case "notification":
		var notification entities.Notification
		if err := json.Unmarshal([]byte(frame.Payload), &notification); err != nil {
			s.logger.Debug("Skipping undecodable notification payload", zap.Error(err))
			return StreamEvent{}, false
		}
		return StreamEvent{Event: frame.Event, Notification: &notification}, true
	default:
		return StreamEvent{}, false
	}
}

func (s *StreamingClient) buildURL() (string, error) {
	u, err := url.Parse(s.config.StreamingBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse streaming url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", s.config.AccessToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
