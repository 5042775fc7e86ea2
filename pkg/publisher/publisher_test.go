//nolint:thelper,funlen // ok for tests
package publisher

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/model"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/packet"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/processing"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/simulator"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/utils/broadcast"
)

func receive(t *testing.T, s *Subscriber) *Snapshot {
	select {
	case snap := <-s.C():
		return snap
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
		return nil
	}
}

func assertEmpty(t *testing.T, s *Subscriber) {
	select {
	case snap := <-s.C():
		t.Fatalf("unexpected snapshot %+v", snap)
	default:
	}
}

func TestMergeIsAdditive(t *testing.T) {
	p := New()
	p.OnEvent("rig1", model.Fields{"speed": 200, "gear": 6})
	p.OnEvent("rig1", model.Fields{"gear": 7, "lapNumber": 3})

	snap, ok := p.Snapshot("rig1")
	require.True(t, ok)
	assert.Equal(t, model.Fields{"speed": 200, "gear": 7, "lapNumber": 3}, snap.Fields)
	assert.Equal(t, uint64(2), snap.Seq)

	_, ok = p.Snapshot("unknown")
	assert.False(t, ok)
}

func TestSubscribeReplaysSnapshotFirst(t *testing.T) {
	p := New()
	p.OnEvent("rig1", model.Fields{"speed": 200})

	s := p.NewSubscriber()
	p.Subscribe(s, "rig1")
	p.OnEvent("rig1", model.Fields{"gear": 7})

	first := receive(t, s)
	assert.Equal(t, model.Fields{"speed": 200}, first.Fields)
	second := receive(t, s)
	assert.Equal(t, model.Fields{"speed": 200, "gear": 7}, second.Fields)
}

func TestSubscribeWithoutData(t *testing.T) {
	p := New()
	s := p.NewSubscriber()
	p.Subscribe(s, "rig1")
	assertEmpty(t, s)

	p.OnEvent("rig1", model.Fields{"speed": 1})
	assert.Equal(t, uint64(1), receive(t, s).Seq)
}

func TestGroups(t *testing.T) {
	p := New()
	rig1 := p.NewSubscriber()
	all := p.NewSubscriber()
	p.Subscribe(rig1, "rig1")
	p.SubscribeAll(all)

	p.OnEvent("rig1", model.Fields{"a": 1})
	p.OnEvent("rig2", model.Fields{"b": 2})

	assert.Equal(t, "rig1", receive(t, rig1).SourceID)
	assertEmpty(t, rig1)
	assert.Equal(t, "rig1", receive(t, all).SourceID)
	assert.Equal(t, "rig2", receive(t, all).SourceID)

	p.Unsubscribe(rig1, "rig1")
	p.OnEvent("rig1", model.Fields{"a": 2})
	assertEmpty(t, rig1)
	assert.Equal(t, map[string]int{GroupAll: 1}, p.Subscribers())
}

func TestResubscribeReplaysSnapshot(t *testing.T) {
	p := New()
	p.OnEvent("rig1", model.Fields{"a": 1})
	p.OnEvent("rig2", model.Fields{"b": 1})

	tests := []struct {
		name   string
		join   func(s *Subscriber)
		leave  func(s *Subscriber)
		replay []string
	}{
		{
			name:   "source",
			join:   func(s *Subscriber) { p.Subscribe(s, "rig1") },
			leave:  func(s *Subscriber) { p.Unsubscribe(s, "rig1") },
			replay: []string{"rig1"},
		},
		{
			name:   "all",
			join:   func(s *Subscriber) { p.SubscribeAll(s) },
			leave:  func(s *Subscriber) { p.Unsubscribe(s, GroupAll) },
			replay: []string{"rig1", "rig2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := p.NewSubscriber()
			tt.join(s)
			for _, id := range tt.replay {
				assert.Equal(t, id, receive(t, s).SourceID)
			}
			tt.leave(s)
			tt.join(s)
			for _, id := range tt.replay {
				snap := receive(t, s)
				assert.Equal(t, id, snap.SourceID)
				assert.Equal(t, uint64(1), snap.Seq)
			}
			assertEmpty(t, s)
		})
	}
}

func TestLeaveKeepsHistoryOfCoveredSources(t *testing.T) {
	p := New()
	p.OnEvent("rig1", model.Fields{"a": 1})
	s := p.NewSubscriber()
	p.SubscribeAll(s)
	receive(t, s)

	// still covered by GroupAll, no second copy
	p.Subscribe(s, "rig1")
	p.Unsubscribe(s, "rig1")
	p.Subscribe(s, "rig1")
	assertEmpty(t, s)

	// rig1 stays covered by its own group
	p.Unsubscribe(s, GroupAll)
	p.SubscribeAll(s)
	assertEmpty(t, s)
}

func TestSubscribeAllReplaysEverySource(t *testing.T) {
	p := New()
	p.OnEvent("rig2", model.Fields{"b": 2})
	p.OnEvent("rig1", model.Fields{"a": 1})

	s := p.NewSubscriber()
	p.SubscribeAll(s)
	assert.Equal(t, "rig1", receive(t, s).SourceID)
	assert.Equal(t, "rig2", receive(t, s).SourceID)
}

func TestJoinedTwiceDeliversOnce(t *testing.T) {
	p := New()
	s := p.NewSubscriber()
	p.Subscribe(s, "rig1")
	p.SubscribeAll(s)
	p.OnEvent("rig1", model.Fields{"a": 1})
	receive(t, s)
	assertEmpty(t, s)
}

func TestPerSourceOrderUnderConcurrency(t *testing.T) {
	p := New(WithBufferSize(10_000))
	const n = 500
	sources := []string{"rig1", "rig2", "rig3"}

	s := p.NewSubscriber()
	p.OnEvent("rig1", model.Fields{"i": -1})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.SubscribeAll(s)
	}()
	for _, src := range sources {
		wg.Add(1)
		go func(src string) {
			defer wg.Done()
			for i := range n {
				p.OnEvent(src, model.Fields{"i": i})
			}
		}(src)
	}
	wg.Wait()

	last := map[string]uint64{}
	for {
		select {
		case snap := <-s.C():
			assert.Greater(t, snap.Seq, last[snap.SourceID],
				fmt.Sprintf("out of order for %s", snap.SourceID))
			last[snap.SourceID] = snap.Seq
			continue
		default:
		}
		break
	}
	for _, src := range sources {
		assert.NotZero(t, last[src])
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	p := New(WithBufferSize(2), WithOverflowPolicy(broadcast.DropOldest))
	s := p.NewSubscriber()
	p.Subscribe(s, "rig1")

	done := make(chan struct{})
	go func() {
		for i := range 1000 {
			p.OnEvent("rig1", model.Fields{"i": i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEvent blocked on slow subscriber")
	}
	assert.Equal(t, 998, receive(t, s).Fields["i"])
	assert.Equal(t, 999, receive(t, s).Fields["i"])
	assert.Equal(t, int64(998), s.Skipped())
}

func TestStale(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := New(WithClock(func() time.Time { return now }))
	p.OnEvent("rig1", model.Fields{"a": 1})
	now = now.Add(10 * time.Second)
	p.OnEvent("rig2", model.Fields{"a": 1})
	now = now.Add(time.Second)

	assert.Equal(t, []string{"rig1"}, p.Stale(5*time.Second))
	assert.Len(t, p.Snapshots(), 2)
}

func TestClose(t *testing.T) {
	p := New()
	s := p.NewSubscriber()
	p.SubscribeAll(s)
	p.Close(s)
	_, ok := <-s.C()
	assert.False(t, ok)
	assert.Empty(t, p.Subscribers())
}

func TestSnapshotDropsClearedLapValues(t *testing.T) {
	g := simulator.NewGenerator(simulator.WithSessionUID(1))
	proc := processing.NewProcessor()
	p := New()
	feed := func(lapNum uint8, lastLap uint32) model.Fields {
		g.SetLap(lapNum)
		out, err := proc.Process(g.LapDataWith(&packet.LapData{
			CarPosition:     2,
			CurrentLapNum:   lapNum,
			LastLapTimeInMS: lastLap,
		}))
		require.NoError(t, err)
		for _, r := range out.Records {
			p.OnEvent("rig1", r)
		}
		snap, ok := p.Snapshot("rig1")
		require.True(t, ok)
		return snap.Fields
	}

	for _, l := range []uint8{1, 2, 3} {
		feed(l, 90000)
	}
	f := feed(3, 90000)
	assert.Equal(t, 90000, f[model.FieldLastLapTime])
	assert.Equal(t, "1:30.000", f[model.FieldLastLapTimeText])
	assert.NotContains(t, f, model.FieldCompletedLapNumber)

	// rejected completion keeps the completed lap but drops the time
	f = feed(4, 100)
	assert.Equal(t, 3, f[model.FieldCompletedLapNumber])
	assert.NotContains(t, f, model.FieldLastLapTime)
	assert.NotContains(t, f, model.FieldLastLapTimeText)

	f = feed(5, 91000)
	assert.Equal(t, 91000, f[model.FieldLastLapTime])
	assert.Equal(t, 4, f[model.FieldCompletedLapNumber])

	g.NewSession(2)
	f = feed(1, 0)
	assert.Equal(t, 1, f[model.FieldLapNumber])
	assert.NotContains(t, f, model.FieldLastLapTime)
	assert.NotContains(t, f, model.FieldLastLapTimeText)
	assert.NotContains(t, f, model.FieldCompletedLapNumber)
}
