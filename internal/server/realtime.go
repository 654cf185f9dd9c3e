package server

import (
	"context"
	"sync"
	"time"
)

// Change event types emitted on the /events stream.
const (
	EventDocumentChanged = "document-change"
	EventFolderChanged   = "folder-change"
	eventHeartbeat       = "heartbeat"
	eventSource          = "shelf"
)

// ChangeEvent tells subscribers which records a mutation touched. Subscribers reload the records
// themselves; events carry identifiers only.
type ChangeEvent struct {
	Type        string
	DocumentIDs []string
	FolderIDs   []string
	Timestamp   time.Time
}

// EventDispatcher fans change events out to every open stream. Slow subscribers drop events rather
// than block publishers.
type EventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]chan ChangeEvent
	nextID      int64
	bufferSize  int
}

func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		subscribers: make(map[int64]chan ChangeEvent),
		bufferSize:  16,
	}
}

// Subscribe registers a stream that stays open until ctx is done or the returned cleanup runs.
func (d *EventDispatcher) Subscribe(ctx context.Context) (<-chan ChangeEvent, func()) {
	stream := make(chan ChangeEvent, d.bufferSize)
	subscriberID := d.register(stream)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(subscriberID)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

func (d *EventDispatcher) Publish(event ChangeEvent) {
	if event.Type == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.subscribers {
		select {
		case stream <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams.
func (d *EventDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *EventDispatcher) register(stream chan ChangeEvent) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.subscribers[d.nextID] = stream
	return d.nextID
}

func (d *EventDispatcher) unregister(subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if stream, ok := d.subscribers[subscriberID]; ok {
		delete(d.subscribers, subscriberID)
		close(stream)
	}
}
