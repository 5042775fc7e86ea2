// Package simulator produces well formed F1 datagrams for a single rig.
// It is used by the simulate command and by tests.
package simulator

import (
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/packet"
)

// Generator keeps the state of one simulated car. It is not safe for
// concurrent use.
type Generator struct {
	format      uint16
	sessionUID  uint64
	carIdx      uint8
	trackID     int8
	sessionType uint8
	lap         uint8
	lapTimeMS   uint32
	lastLapMS   uint32
	lapElapsed  uint32
	sessionTime float32
	frame       uint32
	layout      packet.LapLayout
}

type Option func(g *Generator)

func WithFormat(format uint16) Option {
	return func(g *Generator) { g.format = format }
}

func WithSessionUID(uid uint64) Option {
	return func(g *Generator) { g.sessionUID = uid }
}

func WithCarIndex(idx uint8) Option {
	return func(g *Generator) { g.carIdx = idx }
}

func WithTrack(id int8) Option {
	return func(g *Generator) { g.trackID = id }
}

// WithLapTime sets the duration of each simulated lap
func WithLapTime(ms uint32) Option {
	return func(g *Generator) { g.lapTimeMS = ms }
}

// WithLapLayout selects the lap data entry layout put on the wire
func WithLapLayout(l packet.LapLayout) Option {
	return func(g *Generator) { g.layout = l }
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		format:      packet.Format2025,
		sessionUID:  1,
		trackID:     7,
		sessionType: 17,
		lap:         1,
		lapTimeMS:   90_000,
		layout:      packet.LapLayoutExact,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) SessionUID() uint64 { return g.sessionUID }
func (g *Generator) Lap() uint8         { return g.lap }

// NewSession switches to another session id and restarts at lap 1
func (g *Generator) NewSession(uid uint64) {
	g.sessionUID = uid
	g.lap = 1
	g.lastLapMS = 0
	g.lapElapsed = 0
	g.sessionTime = 0
}

// SetLap forces the current lap number
func (g *Generator) SetLap(lap uint8) {
	g.lap = lap
}

// Advance moves the simulation by ms milliseconds. A lap is completed when
// the lap time is reached.
func (g *Generator) Advance(ms uint32) {
	g.frame++
	g.sessionTime += float32(ms) / 1000
	g.lapElapsed += ms
	if g.lapElapsed >= g.lapTimeMS {
		g.lapElapsed -= g.lapTimeMS
		g.lastLapMS = g.lapTimeMS
		g.lap++
	}
}

func (g *Generator) Header(id packet.ID) packet.Header {
	return packet.Header{
		PacketFormat:            g.format,
		GameYear:                uint8(g.format % 100),
		GameMajorVersion:        1,
		GameMinorVersion:        5,
		PacketVersion:           1,
		PacketID:                id,
		SessionUID:              g.sessionUID,
		SessionTime:             g.sessionTime,
		FrameIdentifier:         g.frame,
		OverallFrameIdentifier:  g.frame,
		PlayerCarIndex:          g.carIdx,
		SecondaryPlayerCarIndex: packet.NoSecondaryCar,
	}
}

// LapData returns a lap data datagram with the current state
func (g *Generator) LapData() []byte {
	return g.LapDataWith(g.lapRecord())
}

// LapDataWith returns a lap data datagram carrying d for the simulated car
func (g *Generator) LapDataWith(d *packet.LapData) []byte {
	p := &packet.LapDataPacket{Header: g.Header(packet.IDLapData)}
	for i := range p.Cars {
		p.Cars[i] = &packet.LapData{CarPosition: uint8(i + 1), CurrentLapNum: g.lap}
	}
	p.Cars[g.carIdx] = d
	return packet.EncodeLapData(p, g.layout)
}

func (g *Generator) lapRecord() *packet.LapData {
	cur := g.lapElapsed
	return &packet.LapData{
		LastLapTimeInMS:    g.lastLapMS,
		CurrentLapTimeInMS: cur,
		CarPosition:        g.carIdx + 1,
		CurrentLapNum:      g.lap,
		Sector:             uint8(min(cur*3/max(g.lapTimeMS, 1), 2)),
		LapDistance:        float32(cur) / float32(max(g.lapTimeMS, 1)) * 5891,
		GridPosition:       g.carIdx + 1,
		DriverStatus:       1,
	}
}

func (g *Generator) Session() []byte {
	return packet.EncodeSession(&packet.SessionData{
		Header:           g.Header(packet.IDSession),
		Weather:          0,
		TrackTemperature: 32,
		AirTemperature:   24,
		TotalLaps:        5,
		TrackLength:      5891,
		SessionType:      g.sessionType,
		TrackID:          g.trackID,
	})
}

func (g *Generator) Telemetry() []byte {
	p := &packet.CarTelemetryPacket{Header: g.Header(packet.IDCarTelemetry)}
	rpm := uint16(9000 + g.frame%3000)
	p.Cars[g.carIdx] = &packet.CarTelemetry{
		Speed:                   uint16(180 + g.frame%120),
		Throttle:                0.8,
		Brake:                   0,
		Gear:                    int8(5 + g.frame%3),
		EngineRPM:               rpm,
		BrakesTemperature:       [packet.NumWheels]uint16{410, 410, 450, 450},
		TyresSurfaceTemperature: [packet.NumWheels]uint8{92, 92, 95, 95},
		TyresInnerTemperature:   [packet.NumWheels]uint8{100, 100, 102, 102},
		EngineTemperature:       105,
		TyresPressure:           [packet.NumWheels]float32{21.5, 21.5, 23, 23},
	}
	p.HasMFD = true
	p.MFDPanelIndex = 255
	p.MFDPanelIndexSecondaryPlayer = 255
	return packet.EncodeCarTelemetry(p)
}

func (g *Generator) Status() []byte {
	p := &packet.CarStatusPacket{Header: g.Header(packet.IDCarStatus)}
	p.Cars[g.carIdx] = &packet.CarStatus{
		FuelMix:            1,
		FrontBrakeBias:     56,
		FuelInTank:         50 - float32(g.lap),
		FuelCapacity:       110,
		FuelRemainingLaps:  float32(20 - int(g.lap)),
		MaxRPM:             12000,
		IdleRPM:            4000,
		MaxGears:           8,
		ActualTyreCompound: 18,
		VisualTyreCompound: 17,
		TyresAgeLaps:       g.lap,
		ErsStoreEnergy:     2_000_000,
		ErsDeployMode:      1,
	}
	return packet.EncodeCarStatus(p)
}

func (g *Generator) Damage() []byte {
	p := &packet.CarDamagePacket{Header: g.Header(packet.IDCarDamage)}
	wear := float32(g.lap) * 1.5
	p.Cars[g.carIdx] = &packet.CarDamage{
		TyresWear: [packet.NumWheels]float32{wear, wear, wear + 0.5, wear + 0.5},
	}
	return packet.EncodeCarDamage(p)
}

func (g *Generator) Event(code string) []byte {
	return packet.EncodeEvent(&packet.EventPacket{
		Header: g.Header(packet.IDEvent),
		Code:   code,
	})
}
