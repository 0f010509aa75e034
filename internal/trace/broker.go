package trace

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultHistory     = 256
	subscriberBuffer   = 64
	completedRetention = 30 * time.Second
)

type topic struct {
	history []Event
	subs    map[int]chan Event
	done    bool
}

// Broker fans run events out to subscribers. Each run keeps a bounded history so a
// subscriber that arrives late still sees what happened. A slow subscriber misses
// events instead of blocking the run.
type Broker struct {
	mu      sync.Mutex
	topics  map[string]*topic
	nextID  int
	history int
	retain  time.Duration
}

func NewBroker() *Broker {
	return &Broker{topics: map[string]*topic{}, history: DefaultHistory, retain: completedRetention}
}

func (b *Broker) topic(runID string) *topic {
	t, ok := b.topics[runID]
	if !ok {
		t = &topic{subs: map[int]chan Event{}}
		b.topics[runID] = t
	}
	return t
}

// Publish delivers ev to the run's subscribers. A StageDone event closes them and
// schedules the run's history for removal.
func (b *Broker) Publish(ev Event) {
	if b == nil {
		return
	}
	runID := strings.TrimSpace(ev.RunID)
	if runID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.topic(runID)
	if t.done {
		return
	}
	t.history = append(t.history, ev)
	if len(t.history) > b.history {
		t.history = t.history[len(t.history)-b.history:]
	}
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Stage != StageDone {
		return
	}
	t.done = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	time.AfterFunc(b.retain, func() {
		b.mu.Lock()
		if b.topics[runID] == t {
			delete(b.topics, runID)
		}
		b.mu.Unlock()
	})
}

// Subscribe returns the run's history followed by live events. The channel is
// closed after the run's StageDone event or when cancel is called.
func (b *Broker) Subscribe(runID string) (<-chan Event, func()) {
	runID = strings.TrimSpace(runID)
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.topic(runID)
	ch := make(chan Event, len(t.history)+subscriberBuffer)
	for _, ev := range t.history {
		ch <- ev
	}
	if t.done {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	t.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				close(c)
				delete(t.subs, id)
			}
		})
	}
}
