package broadcast

import (
	"fmt"
	"sync"
	"sync/atomic"
)

type OverflowPolicy int

const (
	// DropOldest discards the oldest buffered message to make room
	DropOldest OverflowPolicy = iota
	// DropNewest discards the message being offered
	DropNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "drop-oldest":
		return DropOldest, nil
	case "drop-newest":
		return DropNewest, nil
	default:
		return DropOldest, fmt.Errorf("unknown overflow policy %q", s)
	}
}

const DefaultBufferSize = 64

// Subscription is a bounded, non-blocking mailbox of one receiver.
// Offer never blocks; when the buffer is full the overflow policy decides
// which message is dropped.
type Subscription[T any] struct {
	id     string
	ch     chan T
	policy OverflowPolicy
	accept func(T) bool
	mu     sync.Mutex
	closed bool
	numSnd atomic.Int64
	numSkp atomic.Int64
}

type SubscriptionOption[T any] func(s *Subscription[T])

func WithBufferSize[T any](size int) SubscriptionOption[T] {
	return func(s *Subscription[T]) {
		s.ch = make(chan T, max(size, 1))
	}
}

func WithOverflowPolicy[T any](p OverflowPolicy) SubscriptionOption[T] {
	return func(s *Subscription[T]) {
		s.policy = p
	}
}

// WithAccept installs a predicate evaluated for every offered message.
// It is called while the subscription is locked, so it may keep state.
func WithAccept[T any](accept func(T) bool) SubscriptionOption[T] {
	return func(s *Subscription[T]) {
		s.accept = accept
	}
}

func NewSubscription[T any](id string, opts ...SubscriptionOption[T]) *Subscription[T] {
	s := &Subscription[T]{id: id}
	for _, opt := range opts {
		opt(s)
	}
	if s.ch == nil {
		s.ch = make(chan T, DefaultBufferSize)
	}
	return s
}

func (s *Subscription[T]) ID() string { return s.id }

// C returns the receive channel. It is closed by Close.
func (s *Subscription[T]) C() <-chan T { return s.ch }

func (s *Subscription[T]) Sent() int64    { return s.numSnd.Load() }
func (s *Subscription[T]) Skipped() int64 { return s.numSkp.Load() }

// Offer queues msg without blocking. It returns false if the message was
// not queued (rejected, dropped or subscription closed).
func (s *Subscription[T]) Offer(msg T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.accept != nil && !s.accept(msg) {
		return false
	}
	for {
		select {
		case s.ch <- msg:
			s.numSnd.Add(1)
			return true
		default:
		}
		if s.policy == DropNewest {
			s.numSkp.Add(1)
			return false
		}
		// make room; the receiver may have drained the channel meanwhile
		select {
		case <-s.ch:
			s.numSkp.Add(1)
		default:
		}
	}
}

// Close closes the receive channel. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
