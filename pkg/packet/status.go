package packet

const carStatusSize = 55

// ErsMaxStoreEnergy is the capacity of the ERS store in Joules
const ErsMaxStoreEnergy = 4_000_000.0

type CarStatus struct {
	TractionControl         uint8
	AntiLockBrakes          uint8
	FuelMix                 uint8
	FrontBrakeBias          uint8
	PitLimiterStatus        uint8
	FuelInTank              float32
	FuelCapacity            float32
	FuelRemainingLaps       float32
	MaxRPM                  uint16
	IdleRPM                 uint16
	MaxGears                uint8
	DRSAllowed              uint8
	DRSActivationDistance   uint16
	ActualTyreCompound      uint8
	VisualTyreCompound      uint8
	TyresAgeLaps            uint8
	VehicleFiaFlags         int8
	EnginePowerICE          float32
	EnginePowerMGUK         float32
	ErsStoreEnergy          float32
	ErsDeployMode           uint8
	ErsHarvestedThisLapMGUK float32
	ErsHarvestedThisLapMGUH float32
	ErsDeployedThisLap      float32
	NetworkPaused           uint8
}

type CarStatusPacket struct {
	Header
	Cars   [NumCars]*CarStatus
	Errors []error
}

func (p *CarStatusPacket) CarErrors() []error {
	return p.Errors
}

func DecodeCarStatus(h *Header, payload []byte) (*CarStatusPacket, error) {
	if len(payload) < carStatusSize {
		return nil, packetError(IDCarStatus, ErrTooShort,
			"payload needs at least %d bytes, got %d", carStatusSize, len(payload))
	}
	p := &CarStatusPacket{Header: *h}
	p.Cars, p.Errors = decodeCars(IDCarStatus, payload, carStatusSize, readCarStatus)
	return p, nil
}

func readCarStatus(r *reader) *CarStatus {
	return &CarStatus{
		TractionControl:         r.u8(),
		AntiLockBrakes:          r.u8(),
		FuelMix:                 r.u8(),
		FrontBrakeBias:          r.u8(),
		PitLimiterStatus:        r.u8(),
		FuelInTank:              r.f32(),
		FuelCapacity:            r.f32(),
		FuelRemainingLaps:       r.f32(),
		MaxRPM:                  r.u16(),
		IdleRPM:                 r.u16(),
		MaxGears:                r.u8(),
		DRSAllowed:              r.u8(),
		DRSActivationDistance:   r.u16(),
		ActualTyreCompound:      r.u8(),
		VisualTyreCompound:      r.u8(),
		TyresAgeLaps:            r.u8(),
		VehicleFiaFlags:         r.i8(),
		EnginePowerICE:          r.f32(),
		EnginePowerMGUK:         r.f32(),
		ErsStoreEnergy:          r.f32(),
		ErsDeployMode:           r.u8(),
		ErsHarvestedThisLapMGUK: r.f32(),
		ErsHarvestedThisLapMGUH: r.f32(),
		ErsDeployedThisLap:      r.f32(),
		NetworkPaused:           r.u8(),
	}
}

func writeCarStatus(w *writer, s *CarStatus) {
	w.u8(s.TractionControl)
	w.u8(s.AntiLockBrakes)
	w.u8(s.FuelMix)
	w.u8(s.FrontBrakeBias)
	w.u8(s.PitLimiterStatus)
	w.f32(s.FuelInTank)
	w.f32(s.FuelCapacity)
	w.f32(s.FuelRemainingLaps)
	w.u16(s.MaxRPM)
	w.u16(s.IdleRPM)
	w.u8(s.MaxGears)
	w.u8(s.DRSAllowed)
	w.u16(s.DRSActivationDistance)
	w.u8(s.ActualTyreCompound)
	w.u8(s.VisualTyreCompound)
	w.u8(s.TyresAgeLaps)
	w.i8(s.VehicleFiaFlags)
	w.f32(s.EnginePowerICE)
	w.f32(s.EnginePowerMGUK)
	w.f32(s.ErsStoreEnergy)
	w.u8(s.ErsDeployMode)
	w.f32(s.ErsHarvestedThisLapMGUK)
	w.f32(s.ErsHarvestedThisLapMGUH)
	w.f32(s.ErsDeployedThisLap)
	w.u8(s.NetworkPaused)
}

func EncodeCarStatus(p *CarStatusPacket) []byte {
	h := p.Header
	h.PacketID = IDCarStatus
	w := &writer{}
	h.appendTo(w)
	encodeCars(w, &p.Cars, carStatusSize, writeCarStatus)
	return w.b
}
