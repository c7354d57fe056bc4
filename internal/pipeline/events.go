package pipeline

import (
	"sync"
	"time"

	"github.com/dharsanguruparan/WallDrop/internal/model"
)

// Event types emitted by a session.
const (
	EventItemAdded       = "item.added"
	EventItemRemoved     = "item.removed"
	EventItemStatus      = "item.status"
	EventItemProgress    = "item.progress"
	EventDrainFinished   = "drain.finished"
	EventPublishProgress = "publish.progress"
	EventPublishFinished = "publish.finished"
)

// Event is one notification on a session stream.
type Event struct {
	Type     string           `json:"type"`
	ItemID   string           `json:"itemId,omitempty"`
	Status   model.ItemStatus `json:"status,omitempty"`
	Progress int              `json:"progress,omitempty"`
	Error    string           `json:"error,omitempty"`
	Data     any              `json:"data,omitempty"`
	At       time.Time        `json:"at"`
}

// Broadcaster fans events out to subscribers. Slow subscribers miss events
// rather than stall the pipeline.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers e to every subscriber without blocking.
func (b *Broadcaster) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
