// Package event is the in-memory fan-out for downstream/upstream traffic
// and operational events, with pluggable sinks.
package event

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/domain"
)

// Sink consumes events. Implementations must not block; the hub feeds
// each sink from its own bounded queue.
type Sink interface {
	Name() string
	Consume(event domain.Event)
}

// Hub fans events out to sinks. Delivery is FIFO per sink; a full sink
// queue drops the newest event rather than stalling the hot path.
type Hub struct {
	mu    sync.RWMutex
	sinks []*sinkWorker
}

type sinkWorker struct {
	sink  Sink
	queue chan domain.Event
	done  chan struct{}
	once  sync.Once
}

const sinkQueueDepth = 256

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Attach registers a sink and starts its worker.
func (h *Hub) Attach(sink Sink) {
	worker := &sinkWorker{
		sink:  sink,
		queue: make(chan domain.Event, sinkQueueDepth),
		done:  make(chan struct{}),
	}
	go worker.run()
	h.mu.Lock()
	h.sinks = append(h.sinks, worker)
	h.mu.Unlock()
}

// Publish enqueues an event for every sink.
func (h *Hub) Publish(event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, worker := range h.sinks {
		select {
		case worker.queue <- event:
		default:
			log.WithField("sink", worker.sink.Name()).Warn("event sink queue full, dropping event")
		}
	}
}

// Downstream publishes a downstream traffic event.
func (h *Hub) Downstream(event domain.DownstreamEvent) {
	h.Publish(domain.Event{Downstream: &event})
}

// Upstream publishes an upstream traffic event.
func (h *Hub) Upstream(event domain.UpstreamEvent) {
	h.Publish(domain.Event{Upstream: &event})
}

// Operational publishes a credential availability transition.
func (h *Hub) Operational(event domain.OperationalEvent) {
	h.Publish(domain.Event{Operational: &event})
}

// Close drains and stops every sink worker.
func (h *Hub) Close() {
	h.mu.Lock()
	sinks := h.sinks
	h.sinks = nil
	h.mu.Unlock()
	for _, worker := range sinks {
		worker.stop()
	}
}

func (w *sinkWorker) run() {
	for {
		select {
		case event := <-w.queue:
			w.sink.Consume(event)
		case <-w.done:
			for {
				select {
				case event := <-w.queue:
					w.sink.Consume(event)
				default:
					return
				}
			}
		}
	}
}

func (w *sinkWorker) stop() {
	w.once.Do(func() { close(w.done) })
}
