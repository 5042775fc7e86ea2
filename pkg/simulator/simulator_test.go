package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/packet"
)

type recorder struct {
	mu        sync.Mutex
	datagrams [][]byte
}

func (r *recorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datagrams = append(r.datagrams, append([]byte(nil), b...))
	return len(b), nil
}

func TestAdvanceCompletesLap(t *testing.T) {
	g := NewGenerator(WithLapTime(1000))
	g.Advance(600)
	assert.Equal(t, uint8(1), g.Lap())
	g.Advance(600)
	assert.Equal(t, uint8(2), g.Lap())

	p, err := packet.Decode(g.LapData())
	require.NoError(t, err)
	lap := p.(*packet.LapDataPacket).Cars[0]
	assert.Equal(t, uint32(1000), lap.LastLapTimeInMS)
	assert.Equal(t, uint32(200), lap.CurrentLapTimeInMS)
	assert.Equal(t, uint8(2), lap.CurrentLapNum)

	g.NewSession(42)
	assert.Equal(t, uint64(42), g.SessionUID())
	assert.Equal(t, uint8(1), g.Lap())
}

func TestLayouts(t *testing.T) {
	for _, l := range packet.LapLayouts {
		t.Run(l.Name, func(t *testing.T) {
			g := NewGenerator(WithLapLayout(l), WithCarIndex(3))
			p, err := packet.Decode(g.LapData())
			require.NoError(t, err)
			ld := p.(*packet.LapDataPacket)
			assert.Equal(t, l.Name, ld.Layout.Name)
			assert.Equal(t, uint8(4), ld.Cars[3].CarPosition)
		})
	}
}

func TestSenderRunsToLapLimit(t *testing.T) {
	rec := &recorder{}
	g := NewGenerator(WithLapTime(1000))
	s := NewSender(g, rec,
		WithInterval(time.Millisecond),
		WithTimeScale(100),
		WithMaxLaps(2))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, len(rec.datagrams), s.Sent())

	decoded := make([]packet.Packet, 0, len(rec.datagrams))
	for _, d := range rec.datagrams {
		p, err := packet.Decode(d)
		require.NoError(t, err)
		decoded = append(decoded, p)
	}
	first, ok := decoded[0].(*packet.EventPacket)
	require.True(t, ok)
	assert.Equal(t, packet.EventSessionStarted, first.Code)
	last, ok := decoded[len(decoded)-1].(*packet.EventPacket)
	require.True(t, ok)
	assert.Equal(t, packet.EventSessionEnded, last.Code)

	counts := map[packet.ID]int{}
	for _, p := range decoded {
		counts[p.PacketHeader().PacketID]++
	}
	// lap 3 is reached on tick 20, which only sends the session end
	assert.Equal(t, 19, counts[packet.IDLapData])
	assert.Equal(t, 19, counts[packet.IDCarTelemetry])
	assert.Equal(t, 1, counts[packet.IDCarStatus])
	assert.Equal(t, 1, counts[packet.IDCarDamage])
	assert.Equal(t, 2, counts[packet.IDSession])
}
