//nolint:thelper,funlen // ok for tests
package gateway

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/config"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/model"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/packet"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/simulator"
)

// collector records all events per source
type collector struct {
	mu     sync.Mutex
	events map[string][]model.Fields
}

func newCollector() *collector {
	return &collector{events: make(map[string][]model.Fields)}
}

func (c *collector) OnEvent(sourceID string, fields model.Fields) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[sourceID] = append(c.events[sourceID], fields.Clone())
}

func (c *collector) get(sourceID string) []model.Fields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Fields(nil), c.events[sourceID]...)
}

func testSources() []config.Source {
	return []config.Source{
		{ID: "rig1", Port: 0, DriverName: "Max", DeviceID: "dev-1"},
		{ID: "rig2", Port: 0, DriverName: "Lewis", DeviceID: "dev-2", IndividualID: "ind-2"},
	}
}

func startGateway(t *testing.T, sources []config.Source, opts ...Option) *Gateway {
	opts = append([]Option{
		WithBindAddr("127.0.0.1"),
		WithReadTimeout(100 * time.Millisecond),
	}, opts...)
	g := New(sources, opts...)
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(g.Stop)
	return g
}

func dial(t *testing.T, g *Gateway, sourceID string) net.Conn {
	addr, err := g.Addr(sourceID)
	require.NoError(t, err)
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func statusOf(g *Gateway, sourceID string) SourceStatus {
	for _, s := range g.Status() {
		if s.SourceID == sourceID {
			return s
		}
	}
	return SourceStatus{}
}

func TestTwoSourcesCountIndependently(t *testing.T) {
	g := startGateway(t, testSources())
	var wg sync.WaitGroup
	for _, id := range []string{"rig1", "rig2"} {
		conn := dial(t, g, id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen := simulator.NewGenerator()
			for range 100 {
				gen.Advance(50)
				_, _ = conn.Write(gen.Telemetry())
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()
	require.Eventually(t, func() bool {
		return statusOf(g, "rig1").Packets == 100 && statusOf(g, "rig2").Packets == 100
	}, 5*time.Second, 20*time.Millisecond)

	// nothing more arrives
	time.Sleep(100 * time.Millisecond)
	for _, s := range g.Status() {
		assert.Equal(t, int64(100), s.Packets, s.SourceID)
		assert.True(t, s.Alive)
		assert.True(t, s.Active)
		assert.Equal(t, "1", s.SessionID)
	}
}

func TestSourcesAreIsolated(t *testing.T) {
	c := newCollector()
	g := startGateway(t, testSources(), WithSinks(c))
	feeds := map[string][]uint8{
		"rig1": {2, 4, 6, 8},
		"rig2": {1, 3, 5, 7, 9},
	}
	for id, laps := range feeds {
		conn := dial(t, g, id)
		gen := simulator.NewGenerator()
		for _, l := range laps {
			gen.SetLap(l)
			_, err := conn.Write(gen.LapDataWith(&packet.LapData{
				CarPosition: 1, CurrentLapNum: l, LastLapTimeInMS: 90000,
			}))
			require.NoError(t, err)
			time.Sleep(5 * time.Millisecond)
		}
	}
	require.Eventually(t, func() bool {
		return len(c.get("rig1")) == 4 && len(c.get("rig2")) == 5
	}, 5*time.Second, 20*time.Millisecond)

	for id, laps := range feeds {
		for _, ev := range c.get(id) {
			assert.Equal(t, id, ev[model.FieldSourceID])
			lap := ev[model.FieldLapNumber].(int)
			assert.Contains(t, laps, uint8(lap), "source %s saw foreign lap %d", id, lap)
		}
		events := c.get(id)
		assert.Equal(t, int(laps[len(laps)-1]), events[len(events)-1][model.FieldLapNumber])
	}
	assert.Equal(t, int64(3), statusOf(g, "rig1").LapsCompleted)
	assert.Equal(t, int64(4), statusOf(g, "rig2").LapsCompleted)
}

func TestEnrichment(t *testing.T) {
	c := newCollector()
	now := time.Date(2024, 5, 1, 12, 30, 15, 123_000_000, time.UTC)
	g := startGateway(t, testSources(), WithSinks(c), WithClock(func() time.Time { return now }))
	conn := dial(t, g, "rig2")
	_, err := conn.Write(simulator.NewGenerator().Session())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.get("rig2")) == 1 },
		5*time.Second, 20*time.Millisecond)
	ev := c.get("rig2")[0]
	assert.Equal(t, "rig2", ev[model.FieldSourceID])
	assert.Equal(t, "Lewis", ev[model.FieldDriverName])
	assert.Equal(t, "dev-2", ev[model.FieldDeviceID])
	assert.Equal(t, "ind-2", ev[model.FieldIndividualID])
	assert.Equal(t, int(now.UnixMilli()), ev[model.FieldGatewayTimestamp])
	assert.Equal(t, "2024-05-01T12:30:15.123Z", ev[model.FieldGatewayTimestampISO])
	assert.Equal(t, int(packet.IDSession), ev[model.FieldPacketID])
}

func TestDiscardAndDecodeErrors(t *testing.T) {
	c := newCollector()
	g := startGateway(t, testSources()[:1], WithSinks(c))
	conn := dial(t, g, "rig1")
	old := simulator.NewGenerator(simulator.WithFormat(2023))
	_, _ = conn.Write(old.Telemetry())
	_, _ = conn.Write([]byte{1, 2, 3})
	_, _ = conn.Write(simulator.NewGenerator().Telemetry())

	require.Eventually(t, func() bool { return statusOf(g, "rig1").Packets == 3 },
		5*time.Second, 20*time.Millisecond)
	s := statusOf(g, "rig1")
	assert.Equal(t, int64(1), s.Discarded)
	assert.Equal(t, int64(1), s.DecodeErrors)
	require.Eventually(t, func() bool { return len(c.get("rig1")) == 1 },
		time.Second, 20*time.Millisecond)
}

func TestBindFailureIsolated(t *testing.T) {
	blocker, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer blocker.Close()
	busy := blocker.LocalAddr().(*net.UDPAddr).Port

	sources := []config.Source{
		{ID: "broken", Port: busy},
		{ID: "ok", Port: 0},
	}
	g := startGateway(t, sources)
	broken := statusOf(g, "broken")
	assert.False(t, broken.Alive)
	assert.NotEmpty(t, broken.BindError)

	conn := dial(t, g, "ok")
	_, err = conn.Write(simulator.NewGenerator().Telemetry())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return statusOf(g, "ok").Packets == 1 },
		5*time.Second, 20*time.Millisecond)
	assert.True(t, statusOf(g, "ok").Alive)
}

func TestActiveWindow(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	g := startGateway(t, testSources()[:1], WithClock(clock))
	s := statusOf(g, "rig1")
	assert.False(t, s.Active)
	assert.Equal(t, -1.0, s.SecondsSinceLastPacket)

	conn := dial(t, g, "rig1")
	_, _ = conn.Write(simulator.NewGenerator().Telemetry())
	require.Eventually(t, func() bool { return statusOf(g, "rig1").Packets == 1 },
		5*time.Second, 20*time.Millisecond)
	assert.True(t, statusOf(g, "rig1").Active)
	assert.Equal(t, []string{"rig1"}, g.ActiveSources())

	mu.Lock()
	now = now.Add(6 * time.Second)
	mu.Unlock()
	assert.False(t, statusOf(g, "rig1").Active)
}

func TestStartStop(t *testing.T) {
	assert.ErrorIs(t, New(nil).Start(context.Background()), config.ErrNoSources)

	g := New(testSources(), WithBindAddr("127.0.0.1"), WithReadTimeout(50*time.Millisecond))
	require.NoError(t, g.Start(context.Background()))
	assert.ErrorIs(t, g.Start(context.Background()), ErrAlreadyStarted)

	start := time.Now()
	g.Stop()
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, g.Status())
	g.Stop()
}
