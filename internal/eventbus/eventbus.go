// Package eventbus is the in-process publish/subscribe fan-out of §4.2: a
// single-process structure with a bounded per-subscriber buffer and two
// overflow policies, drop_oldest (default) and disconnect. Grounded on the
// teacher's internal/pubsub/memory.go (per-topic subscriber channel slices,
// non-blocking publish, sync.Once-guarded cleanup) generalized to per-
// deployment sequencing and a required synchronous audit write-through,
// which the teacher's MemoryPubSub does not need because it never persists.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"deployctl/internal/model"
)

// OverflowPolicy governs what happens when a subscriber's buffer is full.
type OverflowPolicy string

const (
	OverflowDropOldest OverflowPolicy = "drop_oldest"
	OverflowDisconnect OverflowPolicy = "disconnect"
)

// AuditWriter is the narrow seam the bus uses to satisfy §4.2's "every event
// published is also written to the store synchronously before the
// subscription fan-out returns control". Implemented by internal/audit.
type AuditWriter interface {
	WriteEvent(ctx context.Context, event model.DeploymentEvent) error
}

// Bus is the Event Bus (C2).
type Bus struct {
	mu          sync.RWMutex
	subs        []*subscription
	seqCounters sync.Map // deployment_id -> *uint64
	audit       AuditWriter
	bufferSize  int
}

// New creates a Bus with the given default per-subscriber buffer size
// (config Events.SubscriberBuffer, default 1024) and an audit writer. audit
// may be nil in tests that don't care about the durable trail.
func New(bufferSize int, audit AuditWriter) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Bus{bufferSize: bufferSize, audit: audit}
}

// Publisher adapts a Bus to internal/ports.EventSink: callers supply an event
// with everything but Seq filled in, and Publisher stamps the next seq for
// its DeploymentID before publishing. Every phase executor, Deployer, and the
// Coordinator itself publishes through one of these rather than calling
// Bus.Publish/NextSeq directly, so seq assignment can never be forgotten or
// raced across two goroutines publishing for the same deployment.
type Publisher struct {
	bus *Bus
}

func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) Publish(ctx context.Context, event model.DeploymentEvent) error {
	event.Seq = p.bus.NextSeq(event.DeploymentID)
	return p.bus.Publish(ctx, event)
}

type subscription struct {
	mu       sync.Mutex
	filter   string // deployment_id or "*"
	ch       chan model.DeploymentEvent
	policy   OverflowPolicy
	closed   bool
	closeOnce sync.Once
}

// Subscribe registers a handler for events matching filter ("*" for all
// deployments, or a specific deployment_id). It returns a receive channel and
// an unsubscribe func.
func (b *Bus) Subscribe(filter string, policy OverflowPolicy) (<-chan model.DeploymentEvent, func()) {
	// A disconnect subscriber gets one extra slot so its final Overflow event
	// always fits behind the events already buffered.
	capacity := b.bufferSize
	if policy == OverflowDisconnect {
		capacity++
	}
	sub := &subscription{
		filter: filter,
		ch:     make(chan model.DeploymentEvent, capacity),
		policy: policy,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.close()
	}

	return sub.ch, unsubscribe
}

func (s *subscription) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.closed = true
		close(s.ch)
	})
}

// NextSeq returns the next strictly-increasing seq for a deployment_id.
func (b *Bus) NextSeq(deploymentID string) uint64 {
	v, _ := b.seqCounters.LoadOrStore(deploymentID, new(uint64))
	counter := v.(*uint64)
	return atomic.AddUint64(counter, 1)
}

// Publish assigns nothing (the caller must have already set event.Seq via
// NextSeq), writes the event through to the audit store synchronously, and
// then fans it out to matching subscribers without blocking the caller
// beyond each subscriber's bounded buffer.
func (b *Bus) Publish(ctx context.Context, event model.DeploymentEvent) error {
	if b.audit != nil {
		if err := b.audit.WriteEvent(ctx, event); err != nil {
			return err
		}
	}

	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.filter == "*" || s.filter == event.DeploymentID {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.deliver(event)
	}
	return nil
}

// deliver applies the subscription's overflow policy. drop_oldest evicts the
// head of the buffered channel to make room for the new event; disconnect
// emits a final Overflow event and closes the subscription instead of
// blocking or dropping silently.
func (s *subscription) deliver(event model.DeploymentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.policy != OverflowDisconnect || len(s.ch) < cap(s.ch)-1 {
		select {
		case s.ch <- event:
			return
		default:
		}
	}

	switch s.policy {
	case OverflowDisconnect:
		overflow := model.DeploymentEvent{
			DeploymentID: event.DeploymentID,
			Seq:          event.Seq,
			Type:         model.EventOverflow,
			Timestamp:    event.Timestamp,
		}
		select {
		case s.ch <- overflow:
		default:
		}
		s.closed = true
		close(s.ch)
	default: // OverflowDropOldest
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- event:
		default:
		}
	}
}
