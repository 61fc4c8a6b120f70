package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventMealPlanChanged = "meal-plan-change"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeSourceBackend        = "cookbook-api"
)

// RealtimeMessage announces that some of a user's meal plans changed.
type RealtimeMessage struct {
	UserID    string
	EventType string
	PlanIDs   []int64
	Timestamp time.Time
}

// RealtimeDispatcher fans meal plan changes out to the owner's open streams.
// Slow subscribers drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]chan RealtimeMessage
	nextID      int64
	bufferSize  int
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]chan RealtimeMessage),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for userID until ctx is done or the returned
// cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		stream := make(chan RealtimeMessage)
		close(stream)
		return stream, func() {}
	}
	stream := make(chan RealtimeMessage, d.bufferSize)

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]chan RealtimeMessage)
	}
	d.subscribers[userID][id] = stream
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unsubscribe(userID, id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.subscribers[message.UserID] {
		select {
		case stream <- message:
		default:
		}
	}
}

// Subscribers reports how many streams userID has open.
func (d *RealtimeDispatcher) Subscribers(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) unsubscribe(userID string, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[userID]
	if subscribers == nil {
		return
	}
	delete(subscribers, id)
	if len(subscribers) == 0 {
		delete(d.subscribers, userID)
	}
}
