package packet

const (
	sessionLeadSize   = 8
	carMotionSize     = 60
	eventCodeSize     = 4
	fastestLapDetails = 5
)

// SessionData holds the leading block of the session packet. The remainder
// (marshal zones, forecast samples, assists, ...) is not decoded.
type SessionData struct {
	Header
	Weather          uint8
	TrackTemperature int8
	AirTemperature   int8
	TotalLaps        uint8
	TrackLength      uint16
	SessionType      uint8
	TrackID          int8
}

func DecodeSession(h *Header, payload []byte) (*SessionData, error) {
	if len(payload) < sessionLeadSize {
		return nil, packetError(IDSession, ErrTooShort, "payload needs %d bytes, got %d",
			sessionLeadSize, len(payload))
	}
	r := newReader(payload)
	return &SessionData{
		Header:           *h,
		Weather:          r.u8(),
		TrackTemperature: r.i8(),
		AirTemperature:   r.i8(),
		TotalLaps:        r.u8(),
		TrackLength:      r.u16(),
		SessionType:      r.u8(),
		TrackID:          r.i8(),
	}, nil
}

// EncodeSession writes the header and the leading session block only
func EncodeSession(s *SessionData) []byte {
	h := s.Header
	h.PacketID = IDSession
	w := &writer{}
	h.appendTo(w)
	w.u8(s.Weather)
	w.i8(s.TrackTemperature)
	w.i8(s.AirTemperature)
	w.u8(s.TotalLaps)
	w.u16(s.TrackLength)
	w.u8(s.SessionType)
	w.i8(s.TrackID)
	return w.b
}

type WorldPosition struct {
	X, Y, Z float32
}

// MotionPacket carries the world position of each car; velocities,
// directions and g-forces are skipped.
type MotionPacket struct {
	Header
	Cars   [NumCars]*WorldPosition
	Errors []error
}

func (p *MotionPacket) CarErrors() []error {
	return p.Errors
}

func DecodeMotion(h *Header, payload []byte) (*MotionPacket, error) {
	if len(payload) < carMotionSize {
		return nil, packetError(IDMotion, ErrTooShort,
			"payload needs at least %d bytes, got %d", carMotionSize, len(payload))
	}
	p := &MotionPacket{Header: *h}
	p.Cars, p.Errors = decodeCars(IDMotion, payload, carMotionSize,
		func(r *reader) *WorldPosition {
			pos := &WorldPosition{X: r.f32(), Y: r.f32(), Z: r.f32()}
			r.take(carMotionSize - 12)
			return pos
		})
	return p, nil
}

func EncodeMotion(p *MotionPacket) []byte {
	h := p.Header
	h.PacketID = IDMotion
	w := &writer{}
	h.appendTo(w)
	encodeCars(w, &p.Cars, carMotionSize, func(w *writer, pos *WorldPosition) {
		w.f32(pos.X)
		w.f32(pos.Y)
		w.f32(pos.Z)
		w.zeros(carMotionSize - 12)
	})
	return w.b
}

const (
	EventSessionStarted = "SSTA"
	EventSessionEnded   = "SEND"
	EventFastestLap     = "FTLP"
	EventRetirement     = "RTMT"
	EventChequeredFlag  = "CHQF"
	EventRaceWinner     = "RCWN"
	EventButtonStatus   = "BUTN"
)

// EventPacket carries the 4 character event code. Details are only decoded
// for the fastest lap event.
type EventPacket struct {
	Header
	Code          string
	HasFastestLap bool
	VehicleIdx    uint8
	LapTime       float32 // seconds
}

func DecodeEvent(h *Header, payload []byte) (*EventPacket, error) {
	if len(payload) < eventCodeSize {
		return nil, packetError(IDEvent, ErrTooShort, "payload needs %d bytes, got %d",
			eventCodeSize, len(payload))
	}
	r := newReader(payload)
	e := &EventPacket{Header: *h, Code: string(r.take(eventCodeSize))}
	if e.Code == EventFastestLap && r.remaining() >= fastestLapDetails {
		e.VehicleIdx = r.u8()
		e.LapTime = r.f32()
		e.HasFastestLap = true
	}
	return e, nil
}

func EncodeEvent(e *EventPacket) []byte {
	h := e.Header
	h.PacketID = IDEvent
	w := &writer{}
	h.appendTo(w)
	code := []byte(e.Code)
	for i := range eventCodeSize {
		if i < len(code) {
			w.u8(code[i])
		} else {
			w.u8(' ')
		}
	}
	if e.HasFastestLap {
		w.u8(e.VehicleIdx)
		w.f32(e.LapTime)
	}
	return w.b
}
