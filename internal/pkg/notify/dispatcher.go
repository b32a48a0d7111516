package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies the domain event carried by an Event.
type EventType string

const (
	// EventResponse is emitted when a handover or claim request is
	// accepted or rejected.
	EventResponse EventType = "response"
	// EventConfirmation is emitted when a verification photo is
	// confirmed and the transaction completes.
	EventConfirmation EventType = "confirmation"
	// EventNewMessage is emitted when a plain message arrives.
	EventNewMessage EventType = "new_message"
)

// Event is a discrete domain event handed to the dispatcher. The core
// emits these and moves on; resolving them into per-user delivery is
// the dispatcher's problem.
type Event struct {
	Type           EventType
	ConversationID int64
	ResponderID    int64
	ResponderName  string
	ResponseType   string
	Status         string
	PostTitle      string
	TargetUserIDs  []int64
}

// TokenSource resolves user ids to push tokens, honoring each user's
// notification preference.
type TokenSource interface {
	PushTokensForUsers(ctx context.Context, userIDs []int64) ([]string, error)
}

// Pusher delivers one notification to a set of tokens.
type Pusher interface {
	Push(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// Dispatcher fans domain events out to push notifications on a
// background goroutine. Enqueueing never blocks and never fails the
// caller: a full queue drops the event with a warning, and delivery
// errors are logged and swallowed.
type Dispatcher struct {
	events chan Event
	tokens TokenSource
	pusher Pusher
	logger zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewDispatcher creates a Dispatcher with the given queue size.
func NewDispatcher(tokens TokenSource, pusher Pusher, queueSize int, logger zerolog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		events: make(chan Event, queueSize),
		tokens: tokens,
		pusher: pusher,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run drains the event queue until Shutdown is called.
func (d *Dispatcher) Run() {
	defer close(d.done)
	for {
		select {
		case event := <-d.events:
			d.deliver(event)
		case <-d.stop:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case event := <-d.events:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// Dispatch enqueues an event. Fire-and-forget: a full queue drops the
// event rather than blocking a business transition.
func (d *Dispatcher) Dispatch(event Event) {
	select {
	case d.events <- event:
	default:
		d.logger.Warn().
			Str("type", string(event.Type)).
			Int64("conversationId", event.ConversationID).
			Msg("Notification queue full, event dropped")
	}
}

// Shutdown stops the run loop after draining queued events.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.stopOnce.Do(func() { close(d.stop) })
	select {
	case <-d.done:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tokens, err := d.tokens.PushTokensForUsers(ctx, event.TargetUserIDs)
	if err != nil {
		d.logger.Warn().Err(err).
			Str("type", string(event.Type)).
			Msg("Failed to resolve push tokens, notification skipped")
		return
	}
	if len(tokens) == 0 {
		return
	}

	title, body := d.render(event)
	data := map[string]string{
		"type":           string(event.Type),
		"conversationId": fmt.Sprintf("%d", event.ConversationID),
		"status":         event.Status,
	}

	if err := d.pusher.Push(ctx, tokens, title, body, data); err != nil {
		d.logger.Warn().Err(err).
			Str("type", string(event.Type)).
			Int64("conversationId", event.ConversationID).
			Msg("Push delivery failed")
	}
}

func (d *Dispatcher) render(event Event) (title, body string) {
	switch event.Type {
	case EventResponse:
		if event.Status == "rejected" {
			title = "Request declined"
			body = fmt.Sprintf("%s declined your %s request for %s", event.ResponderName, event.ResponseType, event.PostTitle)
		} else {
			title = "Request accepted"
			body = fmt.Sprintf("%s accepted your %s request for %s", event.ResponderName, event.ResponseType, event.PostTitle)
		}
	case EventConfirmation:
		title = "Item resolved"
		body = fmt.Sprintf("The %s for %s has been confirmed", event.ResponseType, event.PostTitle)
	case EventNewMessage:
		title = "New message"
		body = fmt.Sprintf("%s sent you a message about %s", event.ResponderName, event.PostTitle)
	default:
		title = "UniClaim"
		body = event.PostTitle
	}
	return title, body
}
