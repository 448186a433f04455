// Package eventbus разносит события жизненного цикла мира (загрузка чанков,
// изменения блоков, входы игроков) подписчикам: логгеру, метрикам, внешним шинам.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Типы событий мира
const (
	TypeChunkLoaded   = "chunk.loaded"
	TypeChunkUnloaded = "chunk.unloaded"
	TypeBlockSet      = "block.set"
	TypePlayerJoined  = "player.joined"
	TypePlayerLeft    = "player.left"
)

// ErrClosed возвращается при публикации в закрытую шину
var ErrClosed = errors.New("event bus is closed")

// Envelope - контейнер события
type Envelope struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	EventType string            `json:"event_type"`
	Version   int               `json:"version"`
	Priority  int               `json:"priority"` // 0..9, ниже 5 можно отбросить при переполнении
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEnvelope создаёт событие с JSON-полезной нагрузкой
func NewEnvelope(source, eventType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   1,
		Payload:   data,
	}, nil
}

// Decode разбирает полезную нагрузку события
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Filter ограничивает подписку типами и источниками (пусто - все)
type Filter struct {
	Types   []string
	Sources []string
}

// Subscription позволяет отписаться
type Subscription interface {
	Unsubscribe()
}

// Handler обрабатывает событие
type Handler func(ctx context.Context, ev *Envelope)

// Stats - счётчики шины
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus - абстракция шины событий
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

// memoryBus - шина в памяти процесса. Одна горутина доставки вызывает
// подписчиков по порядку подписки, поэтому события приходят в порядке публикации.
type memoryBus struct {
	mu     sync.RWMutex // subs
	subs   []*subscriber
	nextID int

	closeMu sync.RWMutex // closed и отправка в queue
	closed  bool
	queue   chan *Envelope
	done    chan struct{}

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

type subscriber struct {
	id      int
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// DropBelowPriority - события ниже этого приоритета теряются при полной очереди
const DropBelowPriority = 5

// NewMemoryBus создаёт шину с очередью на capacity событий (<= 0 - 1024)
func NewMemoryBus(capacity int) EventBus {
	if capacity <= 0 {
		capacity = 1024
	}
	mb := &memoryBus{
		queue: make(chan *Envelope, capacity),
		done:  make(chan struct{}),
	}
	go mb.deliver()
	return mb
}

// Publish ставит событие в очередь. При полной очереди событие с приоритетом
// ниже DropBelowPriority отбрасывается, остальные ждут места или отмены ctx.
func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.closeMu.RLock()
	defer mb.closeMu.RUnlock()
	if mb.closed {
		return ErrClosed
	}

	select {
	case mb.queue <- ev:
		mb.published.Add(1)
		return nil
	default:
	}
	if ev.Priority < DropBelowPriority {
		mb.dropped.Add(1)
		return nil
	}
	select {
	case mb.queue <- ev:
		mb.published.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.closeMu.RLock()
	defer mb.closeMu.RUnlock()
	if mb.closed {
		return nil, ErrClosed
	}

	cctx, cancel := context.WithCancel(ctx)
	mb.mu.Lock()
	sub := &subscriber{id: mb.nextID, filter: f, handler: h, ctx: cctx, cancel: cancel}
	mb.nextID++
	mb.subs = append(mb.subs, sub)
	mb.mu.Unlock()
	return &memSub{bus: mb, id: sub.id}, nil
}

func (mb *memoryBus) Metrics() Stats {
	return Stats{
		Published: mb.published.Load(),
		Consumed:  mb.consumed.Load(),
		Dropped:   mb.dropped.Load(),
		InFlight:  len(mb.queue),
	}
}

// Close прекращает приём событий и дожидается доставки уже принятых
func (mb *memoryBus) Close() error {
	mb.closeMu.Lock()
	if mb.closed {
		mb.closeMu.Unlock()
		return nil
	}
	mb.closed = true
	close(mb.queue)
	mb.closeMu.Unlock()

	<-mb.done
	return nil
}

func (mb *memoryBus) deliver() {
	defer close(mb.done)

	for ev := range mb.queue {
		mb.mu.RLock()
		subs := slices.Clone(mb.subs)
		mb.mu.RUnlock()

		for _, sub := range subs {
			if sub.ctx.Err() != nil || !sub.filter.Matches(ev) {
				continue
			}
			sub.handler(sub.ctx, ev)
			mb.consumed.Add(1)
		}
	}
}

// Matches проверяет событие по фильтру
func (fl Filter) Matches(ev *Envelope) bool {
	return anyOrContains(fl.Types, ev.EventType) && anyOrContains(fl.Sources, ev.Source)
}

func anyOrContains(allowed []string, v string) bool {
	return len(allowed) == 0 || slices.Contains(allowed, v)
}

type memSub struct {
	bus *memoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.subs = slices.DeleteFunc(s.bus.subs, func(sub *subscriber) bool {
		if sub.id != s.id {
			return false
		}
		sub.cancel()
		return true
	})
}
