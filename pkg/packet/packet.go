package packet

// Packet is implemented by all decoded packet types
type Packet interface {
	PacketHeader() *Header
}

// UndecodedPacket is returned for packet types which are part of the protocol
// but whose payload is not decoded.
type UndecodedPacket struct {
	Header
	PayloadSize int
}

// Decode decodes a complete datagram. The header is decoded first; datagrams
// with an unsupported format are rejected before the payload is looked at.
// For per-car packets individual car errors are reported by the packet
// (see CarErrors) and do not fail the whole decode.
func Decode(b []byte) (Packet, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	payload := b[HeaderSize:]
	switch h.PacketID {
	case IDMotion:
		return DecodeMotion(h, payload)
	case IDSession:
		return DecodeSession(h, payload)
	case IDLapData:
		return DecodeLapData(h, payload)
	case IDEvent:
		return DecodeEvent(h, payload)
	case IDCarTelemetry:
		return DecodeCarTelemetry(h, payload)
	case IDCarStatus:
		return DecodeCarStatus(h, payload)
	case IDCarDamage:
		return DecodeCarDamage(h, payload)
	default:
		if !h.PacketID.Known() {
			return nil, packetError(h.PacketID, ErrUnknownPacket, "id %d", uint8(h.PacketID))
		}
		return &UndecodedPacket{Header: *h, PayloadSize: len(payload)}, nil
	}
}

// decodeCars decodes up to NumCars fixed size entries. Entries which do not
// fit into the payload stay nil and are reported in the returned errors.
//
//nolint:whitespace // editor/linter issue
func decodeCars[T any](
	id ID, payload []byte, stride int, dec func(r *reader) *T,
) (cars [NumCars]*T, errs []error) {
	for i := range NumCars {
		start := i * stride
		if start+stride > len(payload) {
			errs = append(errs, carError(id, i, ErrTooShort, "entry needs %d bytes, %d left",
				stride, max(len(payload)-start, 0)))
			continue
		}
		r := newReader(payload[start : start+stride])
		v := dec(r)
		if !r.ok() {
			errs = append(errs, carError(id, i, ErrTooShort, "entry truncated"))
			continue
		}
		cars[i] = v
	}
	return cars, errs
}

func encodeCars[T any](w *writer, cars *[NumCars]*T, stride int, enc func(w *writer, v *T)) {
	for _, c := range cars {
		if c == nil {
			w.zeros(stride)
			continue
		}
		enc(w, c)
	}
}
