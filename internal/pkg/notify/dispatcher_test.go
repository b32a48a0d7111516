package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokens struct {
	tokens map[int64][]string
	err    error
}

func (s *stubTokens) PushTokensForUsers(_ context.Context, userIDs []int64) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []string
	for _, id := range userIDs {
		out = append(out, s.tokens[id]...)
	}
	return out, nil
}

type recordedPush struct {
	tokens []string
	title  string
	body   string
	data   map[string]string
}

type stubPusher struct {
	mu     sync.Mutex
	pushes []recordedPush
}

func (s *stubPusher) Push(_ context.Context, tokens []string, title, body string, data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, recordedPush{tokens: tokens, title: title, body: body, data: data})
	return nil
}

func (s *stubPusher) recorded() []recordedPush {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedPush(nil), s.pushes...)
}

func runDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	go d.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d.Shutdown(ctx)
	})
}

func TestDispatcherDelivers(t *testing.T) {
	tokens := &stubTokens{tokens: map[int64][]string{7: {"ExponentPushToken[abc]"}}}
	pusher := &stubPusher{}
	d := NewDispatcher(tokens, pusher, 8, zerolog.Nop())
	runDispatcher(t, d)

	d.Dispatch(Event{
		Type:           EventResponse,
		ConversationID: 42,
		ResponderName:  "Olive Ng",
		ResponseType:   "handover",
		Status:         "rejected",
		PostTitle:      "Black umbrella",
		TargetUserIDs:  []int64{7},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Shutdown(ctx)

	pushes := pusher.recorded()
	require.Len(t, pushes, 1)
	assert.Equal(t, []string{"ExponentPushToken[abc]"}, pushes[0].tokens)
	assert.Equal(t, "Request declined", pushes[0].title)
	assert.Contains(t, pushes[0].body, "Olive Ng")
	assert.Contains(t, pushes[0].body, "Black umbrella")
	assert.Equal(t, "42", pushes[0].data["conversationId"])
}

func TestDispatcherSkipsUsersWithoutTokens(t *testing.T) {
	pusher := &stubPusher{}
	d := NewDispatcher(&stubTokens{}, pusher, 8, zerolog.Nop())
	runDispatcher(t, d)

	d.Dispatch(Event{Type: EventNewMessage, TargetUserIDs: []int64{7}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Shutdown(ctx)
	assert.Empty(t, pusher.recorded())
}

func TestDispatcherSwallowsTokenLookupFailure(t *testing.T) {
	pusher := &stubPusher{}
	d := NewDispatcher(&stubTokens{err: errors.New("db down")}, pusher, 8, zerolog.Nop())
	runDispatcher(t, d)

	d.Dispatch(Event{Type: EventConfirmation, TargetUserIDs: []int64{7}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Shutdown(ctx)
	assert.Empty(t, pusher.recorded())
}

func TestDispatchNeverBlocks(t *testing.T) {
	// Without a running loop a full queue drops events instead of
	// blocking the caller.
	d := NewDispatcher(&stubTokens{}, &stubPusher{}, 1, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			d.Dispatch(Event{Type: EventNewMessage})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
}

func TestRenderTitles(t *testing.T) {
	d := NewDispatcher(&stubTokens{}, &stubPusher{}, 1, zerolog.Nop())

	title, _ := d.render(Event{Type: EventResponse, Status: "accepted"})
	assert.Equal(t, "Request accepted", title)
	title, _ = d.render(Event{Type: EventResponse, Status: "rejected"})
	assert.Equal(t, "Request declined", title)
	title, _ = d.render(Event{Type: EventConfirmation})
	assert.Equal(t, "Item resolved", title)
	title, _ = d.render(Event{Type: EventNewMessage})
	assert.Equal(t, "New message", title)
}
