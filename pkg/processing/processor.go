package processing

import (
	"math"
	"strconv"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/model"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/packet"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/processing/lap"
)

// Processor turns the datagrams of one source into event records.
// Each source owns exactly one Processor; it is not safe for concurrent use.
type Processor struct {
	lapProcessor *lap.LapProcessor
	l            *log.Logger
}

type ProcessorOption func(proc *Processor)

func WithLogger(l *log.Logger) ProcessorOption {
	return func(proc *Processor) {
		proc.l = l
	}
}

// WithLapProcessor is used by tests to inspect the lap state
func WithLapProcessor(lp *lap.LapProcessor) ProcessorOption {
	return func(proc *Processor) {
		proc.lapProcessor = lp
	}
}

func NewProcessor(opts ...ProcessorOption) *Processor {
	ret := &Processor{
		l: log.Default().Named("proc"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.lapProcessor == nil {
		ret.lapProcessor = lap.NewLapProcessor(lap.WithLogger(ret.l.Named("lap")))
	}
	return ret
}

// Output is the result of processing one datagram
type Output struct {
	Header *packet.Header
	// Records are the emitted field maps in emission order
	Records []model.Fields
	// SessionChanged is set when the datagram caused a lap state reset
	SessionChanged bool
	// LapCompleted is set when one of the records carries a lap completion
	LapCompleted bool
	// Dropped holds the validation error of a dropped lap poll
	Dropped error
	// Layout is the lap data layout in use, empty for other packets
	Layout string
	// CarErrors holds per car decode errors (holes)
	CarErrors []error
}

func (p *Processor) LapProcessor() *lap.LapProcessor {
	return p.lapProcessor
}

// Process decodes the datagram b and advances the lap state.
// Packet level decode errors are returned; the caller logs and skips them.
// A datagram with an unsupported format returns the header together with
// packet.ErrUnsupportedFormat.
func (p *Processor) Process(b []byte) (*Output, error) {
	pkt, err := packet.Decode(b)
	if err != nil {
		return nil, err
	}
	h := pkt.PacketHeader()
	out := &Output{Header: h}
	out.SessionChanged = p.lapProcessor.ObserveSession(h.SessionUID)

	switch v := pkt.(type) {
	case *packet.LapDataPacket:
		p.processLapData(out, v)
	case *packet.SessionData:
		p.lapProcessor.Activate(h.SessionUID)
		out.add(commonFields(h).With(sessionFields(v)))
	case *packet.EventPacket:
		p.processEvent(out, v)
	case *packet.CarTelemetryPacket:
		out.CarErrors = v.CarErrors()
		if c := trackedEntry(h, &v.Cars); c != nil {
			f := telemetryFields(c)
			if v.HasMFD {
				f["suggestedGear"] = int(v.SuggestedGear)
				f["mfdPanelIndex"] = int(v.MFDPanelIndex)
			}
			out.add(commonFields(h).With(f))
		}
	case *packet.CarStatusPacket:
		out.CarErrors = v.CarErrors()
		if c := trackedEntry(h, &v.Cars); c != nil {
			out.add(commonFields(h).With(statusFields(c)))
		}
	case *packet.CarDamagePacket:
		out.CarErrors = v.CarErrors()
		if c := trackedEntry(h, &v.Cars); c != nil {
			out.add(commonFields(h).With(damageFields(c)))
		}
	case *packet.MotionPacket:
		out.CarErrors = v.CarErrors()
		if c := trackedEntry(h, &v.Cars); c != nil {
			out.add(commonFields(h).With(model.Fields{
				"worldPositionX": float64(c.X),
				"worldPositionY": float64(c.Y),
				"worldPositionZ": float64(c.Z),
			}))
		}
	default:
		// acknowledged only
		out.add(commonFields(h))
	}
	for _, e := range out.CarErrors {
		p.l.Debug("car entry skipped", log.ErrorField(e))
	}
	return out, nil
}

func (p *Processor) processLapData(out *Output, v *packet.LapDataPacket) {
	h := &v.Header
	out.CarErrors = v.CarErrors()
	out.Layout = v.Layout.Name
	if v.Layout.Fallback() {
		p.l.Debug("lap data fallback layout",
			log.String("layout", v.Layout.String()),
			log.Int("delta", v.Layout.Delta()))
	}
	d := trackedEntry(h, &v.Cars)
	if d == nil {
		return
	}
	r, err := p.lapProcessor.Process(h.SessionUID, d)
	if err != nil {
		p.l.Debug("lap data dropped", log.ErrorField(err))
		out.Dropped = err
		return
	}
	out.LapCompleted = r.LapCompleted
	f := commonFields(h).With(r.Fields()).With(lapExtraFields(d))
	if v.HasTimeTrial {
		f["timeTrialPBCarIdx"] = int(v.TimeTrialPBCarIdx)
		f["timeTrialRivalCarIdx"] = int(v.TimeTrialRivalCarIdx)
	}
	out.add(f)
}

func (p *Processor) processEvent(out *Output, v *packet.EventPacket) {
	h := &v.Header
	f := commonFields(h)
	f[model.FieldEventCode] = v.Code
	switch v.Code {
	case packet.EventSessionStarted:
		p.lapProcessor.Activate(h.SessionUID)
		p.lapProcessor.Reset()
		f[model.FieldSessionEnded] = false
	case packet.EventSessionEnded:
		f[model.FieldSessionEnded] = true
	case packet.EventFastestLap:
		if v.HasFastestLap {
			f[model.FieldFastestLapCarIdx] = int(v.VehicleIdx)
			f[model.FieldFastestLapTimeMS] = int(math.Round(float64(v.LapTime) * 1000))
		}
	}
	out.add(f)
}

func (o *Output) add(f model.Fields) {
	o.Records = append(o.Records, f)
}

// trackedEntry returns the entry of the tracked car or nil if there is none
// (spectator, hole)
func trackedEntry[T any](h *packet.Header, cars *[packet.NumCars]*T) *T {
	idx, ok := h.TrackedCar()
	if !ok {
		return nil
	}
	return cars[idx]
}

func commonFields(h *packet.Header) model.Fields {
	idx, _ := h.TrackedCar()
	return model.Fields{
		model.FieldPacketID:    int(h.PacketID),
		model.FieldPacketName:  h.PacketID.String(),
		model.FieldSessionID:   SessionIDString(h.SessionUID),
		model.FieldSessionTime: float64(h.SessionTime),
		model.FieldFrameID:     int(h.FrameIdentifier),
		model.FieldCarIndex:    idx,
	}
}

// SessionIDString renders the 64 bit session id. It is kept as text since
// json numbers lose precision beyond 2^53.
func SessionIDString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
