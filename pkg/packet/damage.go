package packet

const carDamageSize = 42

type CarDamage struct {
	TyresWear            [NumWheels]float32
	TyresDamage          [NumWheels]uint8
	BrakesDamage         [NumWheels]uint8
	FrontLeftWingDamage  uint8
	FrontRightWingDamage uint8
	RearWingDamage       uint8
	FloorDamage          uint8
	DiffuserDamage       uint8
	SidepodDamage        uint8
	DRSFault             uint8
	ERSFault             uint8
	GearBoxDamage        uint8
	EngineDamage         uint8
	EngineMGUHWear       uint8
	EngineESWear         uint8
	EngineCEWear         uint8
	EngineICEWear        uint8
	EngineMGUKWear       uint8
	EngineTCWear         uint8
	EngineBlown          uint8
	EngineSeized         uint8
}

type CarDamagePacket struct {
	Header
	Cars   [NumCars]*CarDamage
	Errors []error
}

func (p *CarDamagePacket) CarErrors() []error {
	return p.Errors
}

func DecodeCarDamage(h *Header, payload []byte) (*CarDamagePacket, error) {
	if len(payload) < carDamageSize {
		return nil, packetError(IDCarDamage, ErrTooShort,
			"payload needs at least %d bytes, got %d", carDamageSize, len(payload))
	}
	p := &CarDamagePacket{Header: *h}
	p.Cars, p.Errors = decodeCars(IDCarDamage, payload, carDamageSize, readCarDamage)
	return p, nil
}

func readCarDamage(r *reader) *CarDamage {
	d := &CarDamage{}
	for i := range d.TyresWear {
		d.TyresWear[i] = r.f32()
	}
	for i := range d.TyresDamage {
		d.TyresDamage[i] = r.u8()
	}
	for i := range d.BrakesDamage {
		d.BrakesDamage[i] = r.u8()
	}
	for _, f := range d.byteFields() {
		*f = r.u8()
	}
	return d
}

// byteFields lists the single byte fields following the wheel arrays in
// wire order
func (d *CarDamage) byteFields() []*uint8 {
	return []*uint8{
		&d.FrontLeftWingDamage, &d.FrontRightWingDamage, &d.RearWingDamage,
		&d.FloorDamage, &d.DiffuserDamage, &d.SidepodDamage,
		&d.DRSFault, &d.ERSFault, &d.GearBoxDamage, &d.EngineDamage,
		&d.EngineMGUHWear, &d.EngineESWear, &d.EngineCEWear, &d.EngineICEWear,
		&d.EngineMGUKWear, &d.EngineTCWear, &d.EngineBlown, &d.EngineSeized,
	}
}

func writeCarDamage(w *writer, d *CarDamage) {
	for _, v := range d.TyresWear {
		w.f32(v)
	}
	for _, v := range d.TyresDamage {
		w.u8(v)
	}
	for _, v := range d.BrakesDamage {
		w.u8(v)
	}
	for _, f := range d.byteFields() {
		w.u8(*f)
	}
}

func EncodeCarDamage(p *CarDamagePacket) []byte {
	h := p.Header
	h.PacketID = IDCarDamage
	w := &writer{}
	h.appendTo(w)
	encodeCars(w, &p.Cars, carDamageSize, writeCarDamage)
	return w.b
}
