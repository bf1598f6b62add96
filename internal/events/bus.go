package events

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"github.com/rs/zerolog/log"

	"expo-kiosk-service/internal/models"
)

// In-process topics.
const (
	TopicStateChanged = "kiosk:state_changed"
	TopicAnswer       = "kiosk:answer"
)

// DefaultQueueSize is the per-subscriber backlog before events are dropped.
const DefaultQueueSize = 256

// Bus fans interaction events out to observers (Kafka, the panel). Publish
// only enqueues: every subscriber has its own queue drained by one worker,
// so handlers see events in publish order and a slow handler delays nobody
// but itself. When a queue is full the event is dropped for that subscriber.
type Bus struct {
	bus       evbus.Bus
	queueSize int

	mu      sync.Mutex
	idle    *sync.Cond
	closed  bool
	queues  []chan func()
	pending int
	workers sync.WaitGroup
}

func NewBus() *Bus {
	return NewBusWithQueueSize(DefaultQueueSize)
}

// NewBusWithQueueSize creates a bus with the given per-subscriber backlog.
func NewBusWithQueueSize(size int) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	b := &Bus{bus: evbus.New(), queueSize: size}
	b.idle = sync.NewCond(&b.mu)
	return b
}

// PublishState notifies state observers.
func (b *Bus) PublishState(ev models.StateChanged) {
	b.bus.Publish(TopicStateChanged, ev)
}

// PublishAnswer notifies answer observers.
func (b *Bus) PublishAnswer(ev models.AnswerDispatched) {
	b.bus.Publish(TopicAnswer, ev)
}

// OnState registers a state observer.
func (b *Bus) OnState(fn func(models.StateChanged)) error {
	enqueue := b.newQueue(TopicStateChanged)
	return b.bus.Subscribe(TopicStateChanged, func(ev models.StateChanged) {
		enqueue(func() { fn(ev) })
	})
}

// OnAnswer registers an answer observer.
func (b *Bus) OnAnswer(fn func(models.AnswerDispatched)) error {
	enqueue := b.newQueue(TopicAnswer)
	return b.bus.Subscribe(TopicAnswer, func(ev models.AnswerDispatched) {
		enqueue(func() { fn(ev) })
	})
}

// newQueue starts a worker for one subscriber and returns its non-blocking
// enqueue function.
func (b *Bus) newQueue(topic string) func(func()) {
	q := make(chan func(), b.queueSize)

	b.mu.Lock()
	b.queues = append(b.queues, q)
	b.mu.Unlock()

	b.workers.Add(1)
	go func() {
		defer b.workers.Done()
		for job := range q {
			job()
			b.done()
		}
	}()

	return func(job func()) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return
		}
		select {
		case q <- job:
			b.pending++
		default:
			log.Warn().Str("topic", topic).Msg("Event queue full, event dropped")
		}
	}
}

func (b *Bus) done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending--
	if b.pending == 0 {
		b.idle.Broadcast()
	}
}

// Wait blocks until every queued event has been handled.
func (b *Bus) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.pending > 0 {
		b.idle.Wait()
	}
}

// Close drains the queues and stops the workers. Events published after
// Close are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	b.mu.Unlock()
	b.workers.Wait()
}
