package events

import (
	"sync"

	"github.com/wusimpl/hackernewscn/internal/logger"
	"github.com/wusimpl/hackernewscn/internal/model"
)

// subscriberBuffer sizes each subscriber channel. A slow SSE consumer
// drops events rather than stalling the pipeline.
const subscriberBuffer = 16

// Bus fans pipeline events out to SSE subscribers. Publishing never
// blocks; a subscriber whose buffer is full misses the event.
type Bus struct {
	mu          sync.Mutex
	subscribers map[chan model.Event]struct{}
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan model.Event]struct{}),
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe func. Unsubscribe closes the channel; callers must stop
// reading after calling it.
func (b *Bus) Subscribe() (<-chan model.Event, func()) {
	ch := make(chan model.Event, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish delivers the event to every current subscriber.
func (b *Bus) Publish(event model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			logger.Warn("subscriber buffer full, dropping event", "module", "events", "type", event.Type, "story_id", event.StoryID)
		}
	}
}

// SubscriberCount reports the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
