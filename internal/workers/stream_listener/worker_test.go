package stream_listener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	"github.com/xnotip/tipbot_service/internal/infrastructure/mastodon"
)

type fakeStream struct {
	events []mastodon.StreamEvent
}

func (f *fakeStream) Run(_ context.Context, handle func(mastodon.StreamEvent)) error {
	for _, event := range f.events {
		handle(event)
	}
	return nil
}

type recordingHandler struct {
	mu      sync.Mutex
	tips    []string
	replies []string
	directs []string
}

func (h *recordingHandler) HandleTipStatus(_ context.Context, status *entities.Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tips = append(h.tips, status.ID)
	return nil
}

func (h *recordingHandler) HandleReply(_ context.Context, status *entities.Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replies = append(h.replies, status.ID)
	return nil
}

func (h *recordingHandler) HandleDirectMessage(_ context.Context, status *entities.Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.directs = append(h.directs, status.ID)
	return nil
}

type fakeRedis struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{seen: make(map[string]bool)}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeRedis) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (f *fakeRedis) Get(context.Context, string, interface{}) error                { return nil }
func (f *fakeRedis) Del(context.Context, string) error                             { return nil }
func (f *fakeRedis) Exists(context.Context, string) (bool, error)                  { return false, nil }
func (f *fakeRedis) Ping(context.Context) error                                    { return nil }
func (f *fakeRedis) Close() error                                                  { return nil }

func taggedStatus(id, accountID string) *entities.Status {
	return &entities.Status{
		ID:         id,
		Visibility: entities.VisibilityPublic,
		Account:    entities.SocialAccount{ID: accountID},
		Tags:       []entities.Tag{{Name: "xnotip"}},
	}
}

func runWorker(t *testing.T, events []mastodon.StreamEvent) *recordingHandler {
	t.Helper()
	handler := &recordingHandler{}
	worker := NewWorker(&fakeStream{events: events}, handler, newFakeRedis(), &Config{
		TriggerHashtag: "xnotip",
		BotAccountID:   "bot",
		HandlerTimeout: time.Second,
		SeenStatusTTL:  time.Minute,
	}, zap.NewNop())

	require.NoError(t, worker.Start(context.Background()))
	return handler
}

func TestRoutesTaggedUpdateToTipHandler(t *testing.T) {
	handler := runWorker(t, []mastodon.StreamEvent{
		{Event: "update", Status: taggedStatus("s1", "user")},
	})
	assert.Equal(t, []string{"s1"}, handler.tips)
	assert.Empty(t, handler.replies)
	assert.Empty(t, handler.directs)
}

func TestRoutesDirectVisibilityToDirectHandler(t *testing.T) {
	status := taggedStatus("dm1", "user")
	status.Visibility = entities.VisibilityDirect
	handler := runWorker(t, []mastodon.StreamEvent{{Event: "update", Status: status}})
	// Direct visibility wins even when the trigger tag is present.
	assert.Equal(t, []string{"dm1"}, handler.directs)
	assert.Empty(t, handler.tips)
}

func TestRoutesUntaggedReplyToReplyHandler(t *testing.T) {
	status := &entities.Status{
		ID:          "r1",
		Visibility:  entities.VisibilityPublic,
		InReplyToID: "sign-me",
		Account:     entities.SocialAccount{ID: "user"},
	}
	handler := runWorker(t, []mastodon.StreamEvent{{Event: "update", Status: status}})
	assert.Equal(t, []string{"r1"}, handler.replies)
}

func TestDeduplicatesAcrossSubscriptions(t *testing.T) {
	status := taggedStatus("s1", "user")
	handler := runWorker(t, []mastodon.StreamEvent{
		{Event: "update", Status: status},
		{Event: "notification", Notification: &entities.Notification{Type: "mention", Status: status}},
	})
	assert.Equal(t, []string{"s1"}, handler.tips)
}

func TestIgnoresOwnStatuses(t *testing.T) {
	handler := runWorker(t, []mastodon.StreamEvent{
		{Event: "update", Status: taggedStatus("s1", "bot")},
	})
	assert.Empty(t, handler.tips)
	assert.Empty(t, handler.replies)
	assert.Empty(t, handler.directs)
}

func TestIgnoresNonMentionNotifications(t *testing.T) {
	handler := runWorker(t, []mastodon.StreamEvent{
		{Event: "notification", Notification: &entities.Notification{
			Type:   "follow",
			Status: taggedStatus("s1", "user"),
		}},
	})
	assert.Empty(t, handler.tips)
}
