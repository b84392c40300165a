package bulk

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/store"
	"github.com/wolfeidau/bulkadmin/internal/telemetry"
)

const topicQueueSize = 64

// EventType classifies a progress event.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event carries the full counters snapshot of an operation, never a delta.
type Event struct {
	Type     EventType
	Snapshot models.Snapshot
}

func eventFor(snap models.Snapshot) Event {
	switch snap.Status {
	case models.StatusCompleted:
		return Event{Type: EventCompleted, Snapshot: snap}
	case models.StatusFailed:
		return Event{Type: EventFailed, Snapshot: snap}
	default:
		return Event{Type: EventProgress, Snapshot: snap}
	}
}

// Hub fans out snapshots of persisted operations to live subscriptions.
//
// Each operation with at least one subscription has a topic: a queue drained by a
// dedicated goroutine that offers every snapshot to the registered observers.
// The first event of a subscription is read from the store, so it always matches
// what a status poll returns at that instant.
type Hub struct {
	store  store.OperationStore
	buffer int

	mu     sync.Mutex
	topics map[uuid.UUID]*topic

	nextID atomic.Uint64
}

type topic struct {
	id    uuid.UUID
	orgID uuid.UUID // set by the first registered observer, guarded by mu
	queue chan models.Snapshot
	quit  chan struct{}

	pending int // subscribers loading their snapshot, guarded by Hub.mu

	mu        sync.Mutex
	observers map[uint64]*Subscription
}

// NewHub creates a hub reading snapshots from st.
func NewHub(st store.OperationStore, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		store:  st,
		buffer: buffer,
		topics: make(map[uuid.UUID]*topic),
	}
}

// Notify publishes the operation snapshot, satisfying Notifier for single process deployments.
func (h *Hub) Notify(ctx context.Context, op *models.BulkOperation) error {
	h.Publish(op.Snapshot())
	return nil
}

// Publish hands a snapshot to the topic of its operation. Snapshots of operations
// nobody observes are discarded.
func (h *Hub) Publish(snap models.Snapshot) {
	h.mu.Lock()
	t, ok := h.topics[snap.OperationID]
	h.mu.Unlock()
	if !ok {
		return
	}

	select {
	case t.queue <- snap:
	case <-t.quit:
	}
}

// OperationRef identifies an observed operation.
type OperationRef struct {
	OrgID uuid.UUID
	ID    uuid.UUID
}

// Tracked lists the operations with at least one registered observer.
func (h *Hub) Tracked() []OperationRef {
	h.mu.Lock()
	topics := make([]*topic, 0, len(h.topics))
	for _, t := range h.topics {
		topics = append(topics, t)
	}
	h.mu.Unlock()

	refs := make([]OperationRef, 0, len(topics))
	for _, t := range topics {
		t.mu.Lock()
		if len(t.observers) > 0 && t.orgID != uuid.Nil {
			refs = append(refs, OperationRef{OrgID: t.orgID, ID: t.id})
		}
		t.mu.Unlock()
	}
	return refs
}

// Resync re-reads every tracked operation and publishes its current snapshot.
// Observers ignore snapshots they have already seen, so this recovers changes whose
// notifications were missed without repeating events.
func (h *Hub) Resync(ctx context.Context) {
	for _, ref := range h.Tracked() {
		op, err := h.store.GetOperation(ctx, ref.OrgID, ref.ID)
		if err != nil {
			log.Warn().Err(err).Str("operation_id", ref.ID.String()).Msg("Failed to resync bulk operation")
			continue
		}
		h.Publish(op.Snapshot())
	}
}

// Subscribe registers an observer for an operation owned by orgID. The returned
// subscription starts with the current snapshot; it is closed after a terminal event,
// on Unsubscribe, or when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, orgID, id uuid.UUID) (*Subscription, error) {
	h.mu.Lock()
	t, ok := h.topics[id]
	if !ok {
		t = &topic{
			id:        id,
			queue:     make(chan models.Snapshot, topicQueueSize),
			quit:      make(chan struct{}),
			observers: make(map[uint64]*Subscription),
		}
		h.topics[id] = t
		go h.dispatch(t)
	}
	t.pending++
	h.mu.Unlock()

	sub := &Subscription{
		id:     h.nextID.Add(1),
		opID:   id,
		events: make(chan Event, h.buffer),
	}

	t.mu.Lock()
	op, err := h.store.GetOperation(ctx, orgID, id)
	if err == nil {
		sub.offer(op.Snapshot())
		if !sub.isClosed() {
			t.observers[sub.id] = sub
			t.orgID = orgID
		}
	}
	t.mu.Unlock()

	h.mu.Lock()
	t.pending--
	h.mu.Unlock()

	if err != nil {
		h.removeIfIdle(t)
		return nil, err
	}

	if sub.isClosed() {
		h.removeIfIdle(t)
		return sub, nil
	}

	telemetry.GetMetrics().ActiveSubscriptions.Add(ctx, 1)
	sub.stop = context.AfterFunc(ctx, func() { h.Unsubscribe(sub) })

	log.Debug().
		Str("operation_id", id.String()).
		Uint64("subscription_id", sub.id).
		Msg("Subscribed to bulk operation")

	return sub, nil
}

// Unsubscribe removes the observer from its topic and closes its channel.
// It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	if sub.stop != nil {
		sub.stop()
	}

	h.mu.Lock()
	t, ok := h.topics[sub.opID]
	h.mu.Unlock()

	if ok {
		t.mu.Lock()
		if _, registered := t.observers[sub.id]; registered {
			delete(t.observers, sub.id)
			telemetry.GetMetrics().ActiveSubscriptions.Add(context.Background(), -1)
		}
		t.mu.Unlock()
		h.removeIfIdle(t)
	}

	sub.close()
}

// dispatch drains the topic queue until the topic is removed.
func (h *Hub) dispatch(t *topic) {
	for {
		select {
		case snap := <-t.queue:
			t.fanout(snap)
			h.removeIfIdle(t)
		case <-t.quit:
			return
		}
	}
}

func (t *topic) fanout(snap models.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, sub := range t.observers {
		sub.offer(snap)
		if sub.isClosed() {
			delete(t.observers, id)
			telemetry.GetMetrics().ActiveSubscriptions.Add(context.Background(), -1)
		}
	}
}

// removeIfIdle drops a topic with no observers and no subscriber loading a snapshot.
func (h *Hub) removeIfIdle(t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[t.id] != t || t.pending > 0 {
		return
	}

	t.mu.Lock()
	idle := len(t.observers) == 0
	t.mu.Unlock()

	if idle {
		delete(h.topics, t.id)
		close(t.quit)
	}
}

// Subscription is one observer of an operation.
type Subscription struct {
	id     uint64
	opID   uuid.UUID
	events chan Event
	stop   func() bool

	mu        sync.Mutex
	delivered bool
	last      int
	lastRank  int
	closed    bool
	dropped   int
}

// Events returns the event channel. It is closed after the terminal event or on unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// OperationID returns the observed operation.
func (s *Subscription) OperationID() uuid.UUID {
	return s.opID
}

// Dropped returns how many stale buffered events were discarded for this slow observer.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// offer delivers a snapshot unless it would move the observer backwards.
// A full buffer sheds its oldest event, which is superseded by the newer snapshot.
func (s *Subscription) offer(snap models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	rank := statusRank(snap.Status)
	if s.delivered && (snap.ProcessedItems < s.last || (snap.ProcessedItems == s.last && rank <= s.lastRank)) {
		return
	}

	ev := eventFor(snap)
	select {
	case s.events <- ev:
	default:
		select {
		case <-s.events:
			s.dropped++
			telemetry.GetMetrics().EventsDroppedTotal.Add(context.Background(), 1)
		default:
		}
		s.events <- ev
	}

	s.delivered = true
	s.last = snap.ProcessedItems
	s.lastRank = rank

	if snap.Status.Terminal() {
		s.closed = true
		close(s.events)
	}
}

func statusRank(s models.Status) int {
	switch s {
	case models.StatusPending:
		return 0
	case models.StatusProcessing:
		return 1
	default:
		return 2
	}
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}
