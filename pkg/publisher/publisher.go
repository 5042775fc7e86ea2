// Package publisher keeps the merged snapshot of every source and delivers
// it to subscribed viewers.
package publisher

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/model"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/utils/broadcast"
)

// GroupAll receives the updates of every source
const GroupAll = "all"

// Snapshot is the merged state of one source. Published snapshots are
// never modified afterwards.
type Snapshot struct {
	SourceID   string
	Seq        uint64
	LastUpdate time.Time
	Fields     model.Fields
}

type entry struct {
	mu     sync.Mutex
	fields model.Fields
	seq    uint64
	last   time.Time
}

func (e *entry) snapshot(sourceID string) *Snapshot {
	return &Snapshot{
		SourceID:   sourceID,
		Seq:        e.seq,
		LastUpdate: e.last,
		Fields:     e.fields.Clone(),
	}
}

type Publisher struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	bcst       *broadcast.Server[*Snapshot]
	bufferSize int
	policy     broadcast.OverflowPolicy
	now        func() time.Time
	l          *log.Logger
}

type Option func(p *Publisher)

func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) { p.l = l }
}

// WithBufferSize sets the per subscriber buffer size
func WithBufferSize(size int) Option {
	return func(p *Publisher) { p.bufferSize = size }
}

func WithOverflowPolicy(policy broadcast.OverflowPolicy) Option {
	return func(p *Publisher) { p.policy = policy }
}

// WithClock is used by tests
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

func New(opts ...Option) *Publisher {
	p := &Publisher{
		entries:    make(map[string]*entry),
		bufferSize: broadcast.DefaultBufferSize,
		policy:     broadcast.DropOldest,
		now:        time.Now,
		l:          log.Default().Named("publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bcst = broadcast.NewServer("publisher", broadcast.WithLogger[*Snapshot](p.l))
	return p
}

// Subscriber is one viewer connection. It may join several groups; each
// snapshot is delivered at most once and never older than one already
// delivered for the same source. Once a source is no longer covered by any
// joined group its delivery history is dropped, a later subscribe replays
// the current snapshot again.
type Subscriber struct {
	sub     *broadcast.Subscription[*Snapshot]
	mu      sync.Mutex
	lastSeq map[string]uint64
	groups  map[string]bool
}

func (s *Subscriber) ID() string          { return s.sub.ID() }
func (s *Subscriber) C() <-chan *Snapshot { return s.sub.C() }
func (s *Subscriber) Skipped() int64      { return s.sub.Skipped() }
func (s *Subscriber) Sent() int64         { return s.sub.Sent() }

// accept is called under the subscription lock
func (s *Subscriber) accept(snap *Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Seq <= s.lastSeq[snap.SourceID] {
		return false
	}
	s.lastSeq[snap.SourceID] = snap.Seq
	return true
}

func (s *Subscriber) join(group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group] = true
}

func (s *Subscriber) leave(group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, group)
	if s.groups[GroupAll] {
		return
	}
	if group != GroupAll {
		delete(s.lastSeq, group)
		return
	}
	for id := range s.lastSeq {
		if !s.groups[id] {
			delete(s.lastSeq, id)
		}
	}
}

func (p *Publisher) NewSubscriber() *Subscriber {
	s := &Subscriber{
		lastSeq: make(map[string]uint64),
		groups:  make(map[string]bool),
	}
	s.sub = broadcast.NewSubscription(uuid.NewString(),
		broadcast.WithBufferSize[*Snapshot](p.bufferSize),
		broadcast.WithOverflowPolicy[*Snapshot](p.policy),
		broadcast.WithAccept(s.accept))
	return s
}

func (p *Publisher) getOrCreate(sourceID string) *entry {
	p.mu.RLock()
	e, ok := p.entries[sourceID]
	p.mu.RUnlock()
	if ok {
		return e
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok = p.entries[sourceID]; !ok {
		e = &entry{fields: model.Fields{}}
		p.entries[sourceID] = e
	}
	return e
}

// OnEvent merges fields into the snapshot of sourceID and delivers the full
// snapshot to the source group and to GroupAll.
func (p *Publisher) OnEvent(sourceID string, fields model.Fields) {
	e := p.getOrCreate(sourceID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields.Merge(fields)
	e.seq++
	e.last = p.now()
	p.bcst.Publish(e.snapshot(sourceID), sourceID, GroupAll)
}

// Subscribe joins s to the group of sourceID and replays the current
// snapshot before any later update.
func (p *Publisher) Subscribe(s *Subscriber, sourceID string) {
	s.join(sourceID)
	p.bcst.Join(sourceID, s.sub)
	p.replay(s, sourceID)
}

// SubscribeAll joins s to GroupAll and replays the snapshots of all sources
func (p *Publisher) SubscribeAll(s *Subscriber) {
	s.join(GroupAll)
	p.bcst.Join(GroupAll, s.sub)
	p.mu.RLock()
	ids := lo.Keys(p.entries)
	p.mu.RUnlock()
	slices.Sort(ids)
	for _, id := range ids {
		p.replay(s, id)
	}
}

// replay runs after joining. An update published in between carries a
// higher sequence number, the replay is then rejected by the subscriber.
func (p *Publisher) replay(s *Subscriber, sourceID string) {
	p.mu.RLock()
	e, ok := p.entries[sourceID]
	p.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seq == 0 {
		return
	}
	s.sub.Offer(e.snapshot(sourceID))
}

// Unsubscribe leaves the group of sourceID (or GroupAll)
func (p *Publisher) Unsubscribe(s *Subscriber, sourceID string) {
	p.bcst.Leave(sourceID, s.sub)
	s.leave(sourceID)
}

// Close removes s from all groups and closes its channel
func (p *Publisher) Close(s *Subscriber) {
	p.bcst.LeaveAll(s.sub)
	s.sub.Close()
}

// Snapshot returns the current snapshot of sourceID
func (p *Publisher) Snapshot(sourceID string) (*Snapshot, bool) {
	p.mu.RLock()
	e, ok := p.entries[sourceID]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seq == 0 {
		return nil, false
	}
	return e.snapshot(sourceID), true
}

// Snapshots returns the snapshots of all sources ordered by source id
func (p *Publisher) Snapshots() []*Snapshot {
	p.mu.RLock()
	ids := lo.Keys(p.entries)
	p.mu.RUnlock()
	slices.Sort(ids)
	return lo.FilterMap(ids, func(id string, _ int) (*Snapshot, bool) {
		return p.Snapshot(id)
	})
}

// Stale returns the ids of sources without an update within maxAge
func (p *Publisher) Stale(maxAge time.Duration) []string {
	now := p.now()
	return lo.FilterMap(p.Snapshots(), func(s *Snapshot, _ int) (string, bool) {
		return s.SourceID, now.Sub(s.LastUpdate) > maxAge
	})
}

// Subscribers returns the number of subscribers per group
func (p *Publisher) Subscribers() map[string]int {
	return p.bcst.Members()
}

func (p *Publisher) Shutdown() {
	p.bcst.Close()
}
