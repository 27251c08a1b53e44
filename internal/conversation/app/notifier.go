package app

import (
	"sync"
	"time"

	"conversation_sync_service/internal/conversation/domain"
)

// OutcomeNotifier receives the result of every mutation. Presentation
// (banners, toasts) subscribes here instead of living inside the data layer.
type OutcomeNotifier interface {
	Notify(outcome domain.MutationOutcome)
}

// OutcomeBus fan-out bus for mutation outcomes
type OutcomeBus struct {
	mu   sync.Mutex
	subs map[int]chan domain.MutationOutcome
	next int
}

// NewOutcomeBus create an OutcomeBus
func NewOutcomeBus() *OutcomeBus {
	return &OutcomeBus{subs: make(map[int]chan domain.MutationOutcome)}
}

// Notify deliver the outcome to every subscriber. Slow subscribers drop
// events rather than block the mutation path.
func (b *OutcomeBus) Notify(outcome domain.MutationOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- outcome:
		default:
		}
	}
}

// Subscribe register a subscriber; call the returned cancel to release it
func (b *OutcomeBus) Subscribe(buffer int) (<-chan domain.MutationOutcome, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan domain.MutationOutcome, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func outcome(op, entity, entityID string, err error) domain.MutationOutcome {
	o := domain.MutationOutcome{
		Op:       op,
		Entity:   entity,
		EntityID: entityID,
		At:       time.Now(),
	}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}
