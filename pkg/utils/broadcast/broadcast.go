package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
)

// Server fans out messages to named groups of subscriptions.
// Publishing never blocks on a slow subscriber; see Subscription.Offer.
type Server[T any] struct {
	name    string
	mu      sync.RWMutex
	groups  map[string]map[*Subscription[T]]struct{}
	numRcv  atomic.Int64
	numSnd  atomic.Int64
	numSkip atomic.Int64
	closed  bool
	l       *log.Logger
}

type Option[T any] func(*Server[T])

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(b *Server[T]) {
		b.l = l
	}
}

func NewServer[T any](name string, opts ...Option[T]) *Server[T] {
	b := &Server[T]{
		name:   name,
		groups: make(map[string]map[*Subscription[T]]struct{}),
		l:      log.Default().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.setupMetrics()
	return b
}

// Join adds sub to group. Joining twice is a no-op.
func (b *Server[T]) Join(group string, sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	members, ok := b.groups[group]
	if !ok {
		members = make(map[*Subscription[T]]struct{})
		b.groups[group] = members
	}
	members[sub] = struct{}{}
}

// Leave removes sub from group. Empty groups are removed.
func (b *Server[T]) Leave(group string, sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leave(group, sub)
}

func (b *Server[T]) leave(group string, sub *Subscription[T]) {
	if members, ok := b.groups[group]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(b.groups, group)
		}
	}
}

// LeaveAll removes sub from every group it joined
func (b *Server[T]) LeaveAll(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for group := range b.groups {
		b.leave(group, sub)
	}
}

// Publish offers msg to every member of each of the given groups.
// A subscription joined to several of these groups receives msg once.
func (b *Server[T]) Publish(msg T, groups ...string) {
	b.numRcv.Add(1)
	b.mu.RLock()
	targets := make(map[*Subscription[T]]struct{})
	for _, g := range groups {
		for sub := range b.groups[g] {
			targets[sub] = struct{}{}
		}
	}
	b.mu.RUnlock()
	for sub := range targets {
		if sub.Offer(msg) {
			b.numSnd.Add(1)
		} else {
			b.numSkip.Add(1)
		}
	}
}

func (b *Server[T]) Groups() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.Keys(b.groups)
}

// Members returns the number of subscriptions per group
func (b *Server[T]) Members() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.MapValues(b.groups, func(m map[*Subscription[T]]struct{}, _ string) int {
		return len(m)
	})
}

// Listeners returns the number of distinct subscriptions
func (b *Server[T]) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	all := make(map[*Subscription[T]]struct{})
	for _, m := range b.groups {
		for sub := range m {
			all[sub] = struct{}{}
		}
	}
	return len(all)
}

// Close closes all subscriptions and rejects further joins
func (b *Server[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.l.Info("Closing broadcast server",
		log.String("name", b.name),
		log.Int64("rcv", b.numRcv.Load()),
		log.Int64("snd", b.numSnd.Load()),
		log.Int64("skip", b.numSkip.Load()))
	for _, members := range b.groups {
		for sub := range members {
			sub.Close()
		}
	}
	b.groups = make(map[string]map[*Subscription[T]]struct{})
}

//nolint:lll,funlen // readability
func (b *Server[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("ftg.broadcast.%s", b.name))
	register := func(metricName, desc, unit string, valueProvider func() int64) {
		if _, err := meter.Int64ObservableGauge(
			metricName,
			metric.WithDescription(desc),
			metric.WithUnit(unit),

			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(valueProvider(),
					metric.WithAttributes(
						attribute.String("name", b.name),
					),
				)
				return nil
			})); err != nil {
			b.l.Error("failed to register metric",
				log.String("metric", metricName),
				log.ErrorField(err))
		}
	}
	type data struct {
		name  string
		desc  string
		unit  string
		value func() int64
	}
	for _, d := range []*data{
		{
			"ftg.broadcast.rcv", "Number of received messages", "{count}",
			b.numRcv.Load,
		},
		{
			"ftg.broadcast.snd", "Number of sent messages", "{count}",
			b.numSnd.Load,
		},
		{
			"ftg.broadcast.skip", "Number of skipped messages", "{count}",
			b.numSkip.Load,
		},
		{
			"ftg.broadcast.listener", "Number of listeners", "{count}",
			func() int64 { return int64(b.Listeners()) },
		},
	} {
		register(d.name, d.desc, d.unit, d.value)
	}
}
