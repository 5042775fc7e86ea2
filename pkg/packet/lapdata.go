package packet

import "fmt"

type LapData struct {
	LastLapTimeInMS              uint32
	CurrentLapTimeInMS           uint32
	Sector1TimeMSPart            uint16
	Sector1TimeMinutesPart       uint8
	Sector2TimeMSPart            uint16
	Sector2TimeMinutesPart       uint8
	DeltaToCarInFrontMSPart      uint16
	DeltaToCarInFrontMinutesPart uint8
	DeltaToRaceLeaderMSPart      uint16
	DeltaToRaceLeaderMinutesPart uint8
	LapDistance                  float32
	TotalDistance                float32
	SafetyCarDelta               float32
	CarPosition                  uint8
	CurrentLapNum                uint8
	PitStatus                    uint8
	NumPitStops                  uint8
	Sector                       uint8
	CurrentLapInvalid            uint8
	Penalties                    uint8
	TotalWarnings                uint8
	CornerCuttingWarnings        uint8
	NumUnservedDriveThroughPens  uint8
	NumUnservedStopGoPens        uint8
	GridPosition                 uint8
	DriverStatus                 uint8
	ResultStatus                 uint8
	PitLaneTimerActive           uint8
	PitLaneTimeInLaneInMS        uint16
	PitStopTimerInMS             uint16
	PitStopShouldServePen        uint8
	SpeedTrapFastestSpeed        float32
	SpeedTrapFastestLap          uint8
}

// Sector1TimeMS returns the sector 1 time including the minutes part
func (d *LapData) Sector1TimeMS() uint32 {
	return uint32(d.Sector1TimeMinutesPart)*60_000 + uint32(d.Sector1TimeMSPart)
}

func (d *LapData) Sector2TimeMS() uint32 {
	return uint32(d.Sector2TimeMinutesPart)*60_000 + uint32(d.Sector2TimeMSPart)
}

func (d *LapData) DeltaToCarInFrontMS() uint32 {
	return uint32(d.DeltaToCarInFrontMinutesPart)*60_000 + uint32(d.DeltaToCarInFrontMSPart)
}

func (d *LapData) DeltaToRaceLeaderMS() uint32 {
	return uint32(d.DeltaToRaceLeaderMinutesPart)*60_000 + uint32(d.DeltaToRaceLeaderMSPart)
}

type lapField struct {
	width int
	read  func(r *reader, d *LapData)
	write func(w *writer, d *LapData)
}

// lapFields is the wire order of a single lap data entry
//
//nolint:lll // table
var lapFields = []lapField{
	{4, func(r *reader, d *LapData) { d.LastLapTimeInMS = r.u32() }, func(w *writer, d *LapData) { w.u32(d.LastLapTimeInMS) }},
	{4, func(r *reader, d *LapData) { d.CurrentLapTimeInMS = r.u32() }, func(w *writer, d *LapData) { w.u32(d.CurrentLapTimeInMS) }},
	{2, func(r *reader, d *LapData) { d.Sector1TimeMSPart = r.u16() }, func(w *writer, d *LapData) { w.u16(d.Sector1TimeMSPart) }},
	{1, func(r *reader, d *LapData) { d.Sector1TimeMinutesPart = r.u8() }, func(w *writer, d *LapData) { w.u8(d.Sector1TimeMinutesPart) }},
	{2, func(r *reader, d *LapData) { d.Sector2TimeMSPart = r.u16() }, func(w *writer, d *LapData) { w.u16(d.Sector2TimeMSPart) }},
	{1, func(r *reader, d *LapData) { d.Sector2TimeMinutesPart = r.u8() }, func(w *writer, d *LapData) { w.u8(d.Sector2TimeMinutesPart) }},
	{2, func(r *reader, d *LapData) { d.DeltaToCarInFrontMSPart = r.u16() }, func(w *writer, d *LapData) { w.u16(d.DeltaToCarInFrontMSPart) }},
	{1, func(r *reader, d *LapData) { d.DeltaToCarInFrontMinutesPart = r.u8() }, func(w *writer, d *LapData) { w.u8(d.DeltaToCarInFrontMinutesPart) }},
	{2, func(r *reader, d *LapData) { d.DeltaToRaceLeaderMSPart = r.u16() }, func(w *writer, d *LapData) { w.u16(d.DeltaToRaceLeaderMSPart) }},
	{1, func(r *reader, d *LapData) { d.DeltaToRaceLeaderMinutesPart = r.u8() }, func(w *writer, d *LapData) { w.u8(d.DeltaToRaceLeaderMinutesPart) }},
	{4, func(r *reader, d *LapData) { d.LapDistance = r.f32() }, func(w *writer, d *LapData) { w.f32(d.LapDistance) }},
	{4, func(r *reader, d *LapData) { d.TotalDistance = r.f32() }, func(w *writer, d *LapData) { w.f32(d.TotalDistance) }},
	{4, func(r *reader, d *LapData) { d.SafetyCarDelta = r.f32() }, func(w *writer, d *LapData) { w.f32(d.SafetyCarDelta) }},
	{1, func(r *reader, d *LapData) { d.CarPosition = r.u8() }, func(w *writer, d *LapData) { w.u8(d.CarPosition) }},
	{1, func(r *reader, d *LapData) { d.CurrentLapNum = r.u8() }, func(w *writer, d *LapData) { w.u8(d.CurrentLapNum) }},
	{1, func(r *reader, d *LapData) { d.PitStatus = r.u8() }, func(w *writer, d *LapData) { w.u8(d.PitStatus) }},
	{1, func(r *reader, d *LapData) { d.NumPitStops = r.u8() }, func(w *writer, d *LapData) { w.u8(d.NumPitStops) }},
	{1, func(r *reader, d *LapData) { d.Sector = r.u8() }, func(w *writer, d *LapData) { w.u8(d.Sector) }},
	{1, func(r *reader, d *LapData) { d.CurrentLapInvalid = r.u8() }, func(w *writer, d *LapData) { w.u8(d.CurrentLapInvalid) }},
	{1, func(r *reader, d *LapData) { d.Penalties = r.u8() }, func(w *writer, d *LapData) { w.u8(d.Penalties) }},
	{1, func(r *reader, d *LapData) { d.TotalWarnings = r.u8() }, func(w *writer, d *LapData) { w.u8(d.TotalWarnings) }},
	{1, func(r *reader, d *LapData) { d.CornerCuttingWarnings = r.u8() }, func(w *writer, d *LapData) { w.u8(d.CornerCuttingWarnings) }},
	{1, func(r *reader, d *LapData) { d.NumUnservedDriveThroughPens = r.u8() }, func(w *writer, d *LapData) { w.u8(d.NumUnservedDriveThroughPens) }},
	{1, func(r *reader, d *LapData) { d.NumUnservedStopGoPens = r.u8() }, func(w *writer, d *LapData) { w.u8(d.NumUnservedStopGoPens) }},
	{1, func(r *reader, d *LapData) { d.GridPosition = r.u8() }, func(w *writer, d *LapData) { w.u8(d.GridPosition) }},
	{1, func(r *reader, d *LapData) { d.DriverStatus = r.u8() }, func(w *writer, d *LapData) { w.u8(d.DriverStatus) }},
	{1, func(r *reader, d *LapData) { d.ResultStatus = r.u8() }, func(w *writer, d *LapData) { w.u8(d.ResultStatus) }},
	{1, func(r *reader, d *LapData) { d.PitLaneTimerActive = r.u8() }, func(w *writer, d *LapData) { w.u8(d.PitLaneTimerActive) }},
	{2, func(r *reader, d *LapData) { d.PitLaneTimeInLaneInMS = r.u16() }, func(w *writer, d *LapData) { w.u16(d.PitLaneTimeInLaneInMS) }},
	{2, func(r *reader, d *LapData) { d.PitStopTimerInMS = r.u16() }, func(w *writer, d *LapData) { w.u16(d.PitStopTimerInMS) }},
	{1, func(r *reader, d *LapData) { d.PitStopShouldServePen = r.u8() }, func(w *writer, d *LapData) { w.u8(d.PitStopShouldServePen) }},
	{4, func(r *reader, d *LapData) { d.SpeedTrapFastestSpeed = r.f32() }, func(w *writer, d *LapData) { w.f32(d.SpeedTrapFastestSpeed) }},
	{1, func(r *reader, d *LapData) { d.SpeedTrapFastestLap = r.u8() }, func(w *writer, d *LapData) { w.u8(d.SpeedTrapFastestLap) }},
}

// LapLayout describes one known on-wire variant of a lap data entry.
// Fields beyond the known ones are single bytes and are skipped.
type LapLayout struct {
	Name   string
	Fields int
}

var (
	LapLayoutExact  = LapLayout{Name: "exact", Fields: len(lapFields)}
	LapLayoutShort1 = LapLayout{Name: "short1", Fields: len(lapFields) - 1}
	LapLayoutShort2 = LapLayout{Name: "short2", Fields: len(lapFields) - 2}
	LapLayoutLong1  = LapLayout{Name: "long1", Fields: len(lapFields) + 1}
	LapLayoutLong2  = LapLayout{Name: "long2", Fields: len(lapFields) + 2}

	// exact layout first
	LapLayouts = []LapLayout{
		LapLayoutExact, LapLayoutShort1, LapLayoutShort2, LapLayoutLong1, LapLayoutLong2,
	}
)

const lapTrailerSize = 2

// Size returns the number of bytes of one entry in this layout
func (l LapLayout) Size() int {
	size := 0
	for i := range min(l.Fields, len(lapFields)) {
		size += lapFields[i].width
	}
	if l.Fields > len(lapFields) {
		size += l.Fields - len(lapFields)
	}
	return size
}

// Fallback reports whether this layout deviates from the exact layout
func (l LapLayout) Fallback() bool {
	return l.Fields != len(lapFields)
}

// Delta is the number of fields this layout has more (or less) than the
// exact layout
func (l LapLayout) Delta() int {
	return l.Fields - len(lapFields)
}

func (l LapLayout) String() string {
	return fmt.Sprintf("%s(%d fields, %d bytes)", l.Name, l.Fields, l.Size())
}

func lapLayoutForSize(size int) (LapLayout, bool) {
	for _, l := range LapLayouts {
		if l.Size() == size {
			return l, true
		}
	}
	return LapLayout{}, false
}

// MinLapDataPayload is the smallest payload accepted for a lap data packet
func MinLapDataPayload() int {
	return NumCars * LapLayoutShort2.Size()
}

type LapDataPacket struct {
	Header
	Cars                 [NumCars]*LapData
	Layout               LapLayout
	HasTimeTrial         bool
	TimeTrialPBCarIdx    uint8
	TimeTrialRivalCarIdx uint8
	Errors               []error
}

func (p *LapDataPacket) CarErrors() []error {
	return p.Errors
}

// lapStride determines the entry size from the payload length. A payload
// carrying the 2 byte trailer is preferred; if neither interpretation divides
// evenly, the exact layout is assumed and trailing entries may be truncated.
func lapStride(n int) (stride int, trailer bool) {
	switch {
	case n >= lapTrailerSize && (n-lapTrailerSize)%NumCars == 0:
		return (n - lapTrailerSize) / NumCars, true
	case n%NumCars == 0:
		return n / NumCars, false
	default:
		stride = LapLayoutExact.Size()
		return stride, n >= NumCars*stride+lapTrailerSize
	}
}

// DecodeLapData decodes the lap data payload (without header).
// The entry layout is derived from the payload size: the exact layout is
// tried first, then the enumerated ±1/±2 field variants. Missing trailing
// fields are zero, additional ones are ignored. A size matching no layout
// leaves all entries empty with ErrFieldCount.
func DecodeLapData(h *Header, payload []byte) (*LapDataPacket, error) {
	if len(payload) < MinLapDataPayload() {
		return nil, packetError(IDLapData, ErrTooShort, "payload needs %d bytes, got %d",
			MinLapDataPayload(), len(payload))
	}
	stride, trailer := lapStride(len(payload))
	p := &LapDataPacket{Header: *h}

	layout, ok := lapLayoutForSize(stride)
	if !ok {
		for i := range NumCars {
			p.Errors = append(p.Errors, carError(IDLapData, i, ErrFieldCount,
				"entry size %d matches no known layout (exact %d)", stride,
				LapLayoutExact.Size()))
		}
		return p, nil
	}
	p.Layout = layout
	p.Cars, p.Errors = decodeCars(IDLapData, payload, stride, func(r *reader) *LapData {
		return readLapData(r, layout)
	})
	if trailer {
		r := newReader(payload[NumCars*stride:])
		p.TimeTrialPBCarIdx = r.u8()
		p.TimeTrialRivalCarIdx = r.u8()
		p.HasTimeTrial = r.ok()
	}
	return p, nil
}

func readLapData(r *reader, layout LapLayout) *LapData {
	d := &LapData{}
	for i := range min(layout.Fields, len(lapFields)) {
		lapFields[i].read(r, d)
	}
	for range layout.Fields - len(lapFields) {
		r.u8()
	}
	return d
}

// EncodeLapData encodes p using the given layout. Nil entries are written
// as zero bytes.
func EncodeLapData(p *LapDataPacket, layout LapLayout) []byte {
	h := p.Header
	h.PacketID = IDLapData
	w := &writer{}
	h.appendTo(w)
	for _, c := range p.Cars {
		if c == nil {
			w.zeros(layout.Size())
			continue
		}
		for i := range min(layout.Fields, len(lapFields)) {
			lapFields[i].write(w, c)
		}
		w.zeros(max(layout.Fields-len(lapFields), 0))
	}
	if p.HasTimeTrial {
		w.u8(p.TimeTrialPBCarIdx)
		w.u8(p.TimeTrialRivalCarIdx)
	}
	return w.b
}
