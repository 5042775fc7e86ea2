package packet

const (
	carTelemetrySize    = 60
	telemetryTrailerLen = 3
)

// wheel arrays are ordered RL, RR, FL, FR
const (
	WheelRearLeft = iota
	WheelRearRight
	WheelFrontLeft
	WheelFrontRight
	NumWheels
)

type CarTelemetry struct {
	Speed                   uint16
	Throttle                float32
	Steer                   float32
	Brake                   float32
	Clutch                  uint8
	Gear                    int8
	EngineRPM               uint16
	DRS                     uint8
	RevLightsPercent        uint8
	RevLightsBitValue       uint16
	BrakesTemperature       [NumWheels]uint16
	TyresSurfaceTemperature [NumWheels]uint8
	TyresInnerTemperature   [NumWheels]uint8
	EngineTemperature       uint16
	TyresPressure           [NumWheels]float32
	SurfaceType             [NumWheels]uint8
}

type CarTelemetryPacket struct {
	Header
	Cars                         [NumCars]*CarTelemetry
	HasMFD                       bool
	MFDPanelIndex                uint8
	MFDPanelIndexSecondaryPlayer uint8
	SuggestedGear                int8
	Errors                       []error
}

func (p *CarTelemetryPacket) CarErrors() []error {
	return p.Errors
}

func DecodeCarTelemetry(h *Header, payload []byte) (*CarTelemetryPacket, error) {
	if len(payload) < carTelemetrySize {
		return nil, packetError(IDCarTelemetry, ErrTooShort,
			"payload needs at least %d bytes, got %d", carTelemetrySize, len(payload))
	}
	p := &CarTelemetryPacket{Header: *h}
	p.Cars, p.Errors = decodeCars(IDCarTelemetry, payload, carTelemetrySize, readCarTelemetry)
	if rest := len(payload) - NumCars*carTelemetrySize; rest >= telemetryTrailerLen {
		r := newReader(payload[NumCars*carTelemetrySize:])
		p.MFDPanelIndex = r.u8()
		p.MFDPanelIndexSecondaryPlayer = r.u8()
		p.SuggestedGear = r.i8()
		p.HasMFD = true
	}
	return p, nil
}

func readCarTelemetry(r *reader) *CarTelemetry {
	t := &CarTelemetry{
		Speed:             r.u16(),
		Throttle:          r.f32(),
		Steer:             r.f32(),
		Brake:             r.f32(),
		Clutch:            r.u8(),
		Gear:              r.i8(),
		EngineRPM:         r.u16(),
		DRS:               r.u8(),
		RevLightsPercent:  r.u8(),
		RevLightsBitValue: r.u16(),
	}
	for i := range t.BrakesTemperature {
		t.BrakesTemperature[i] = r.u16()
	}
	for i := range t.TyresSurfaceTemperature {
		t.TyresSurfaceTemperature[i] = r.u8()
	}
	for i := range t.TyresInnerTemperature {
		t.TyresInnerTemperature[i] = r.u8()
	}
	t.EngineTemperature = r.u16()
	for i := range t.TyresPressure {
		t.TyresPressure[i] = r.f32()
	}
	for i := range t.SurfaceType {
		t.SurfaceType[i] = r.u8()
	}
	return t
}

func writeCarTelemetry(w *writer, t *CarTelemetry) {
	w.u16(t.Speed)
	w.f32(t.Throttle)
	w.f32(t.Steer)
	w.f32(t.Brake)
	w.u8(t.Clutch)
	w.i8(t.Gear)
	w.u16(t.EngineRPM)
	w.u8(t.DRS)
	w.u8(t.RevLightsPercent)
	w.u16(t.RevLightsBitValue)
	for _, v := range t.BrakesTemperature {
		w.u16(v)
	}
	for _, v := range t.TyresSurfaceTemperature {
		w.u8(v)
	}
	for _, v := range t.TyresInnerTemperature {
		w.u8(v)
	}
	w.u16(t.EngineTemperature)
	for _, v := range t.TyresPressure {
		w.f32(v)
	}
	for _, v := range t.SurfaceType {
		w.u8(v)
	}
}

func EncodeCarTelemetry(p *CarTelemetryPacket) []byte {
	h := p.Header
	h.PacketID = IDCarTelemetry
	w := &writer{}
	h.appendTo(w)
	encodeCars(w, &p.Cars, carTelemetrySize, writeCarTelemetry)
	if p.HasMFD {
		w.u8(p.MFDPanelIndex)
		w.u8(p.MFDPanelIndexSecondaryPlayer)
		w.i8(p.SuggestedGear)
	}
	return w.b
}
