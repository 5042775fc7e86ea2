package packet

import (
	"fmt"
	"slices"
)

const (
	HeaderSize     = 29
	NumCars        = 22
	Format2024     = 2024
	Format2025     = 2025
	NoSecondaryCar = 255
)

var SupportedFormats = []uint16{Format2024, Format2025}

type ID uint8

const (
	IDMotion ID = iota
	IDSession
	IDLapData
	IDEvent
	IDParticipants
	IDCarSetups
	IDCarTelemetry
	IDCarStatus
	IDFinalClassification
	IDLobbyInfo
	IDCarDamage
	IDSessionHistory
	IDTyreSets
	IDMotionEx
	IDTimeTrial
	IDLapPositions
)

var idNames = [...]string{
	"motion", "session", "lapData", "event", "participants", "carSetups",
	"carTelemetry", "carStatus", "finalClassification", "lobbyInfo",
	"carDamage", "sessionHistory", "tyreSets", "motionEx", "timeTrial",
	"lapPositions",
}

func (id ID) String() string {
	if int(id) < len(idNames) {
		return idNames[id]
	}
	return fmt.Sprintf("unknown(%d)", uint8(id))
}

// Known reports whether id is part of the protocol
func (id ID) Known() bool {
	return int(id) < len(idNames)
}

// Decoded reports whether the payload of this packet type is decoded
func (id ID) Decoded() bool {
	switch id {
	case IDMotion, IDSession, IDLapData, IDEvent, IDCarTelemetry, IDCarStatus, IDCarDamage:
		return true
	default:
		return false
	}
}

type Header struct {
	PacketFormat            uint16
	GameYear                uint8
	GameMajorVersion        uint8
	GameMinorVersion        uint8
	PacketVersion           uint8
	PacketID                ID
	SessionUID              uint64
	SessionTime             float32
	FrameIdentifier         uint32
	OverallFrameIdentifier  uint32
	PlayerCarIndex          uint8
	SecondaryPlayerCarIndex uint8
}

func (h *Header) PacketHeader() *Header {
	return h
}

// GameVersion returns the game version in semver notation, e.g. v1.12.0
func (h *Header) GameVersion() string {
	return fmt.Sprintf("v%d.%d.0", h.GameMajorVersion, h.GameMinorVersion)
}

// TrackedCar returns the index of the car the state machine follows.
// The secondary player is used when the primary index is out of range.
func (h *Header) TrackedCar() (int, bool) {
	if int(h.PlayerCarIndex) < NumCars {
		return int(h.PlayerCarIndex), true
	}
	if h.SecondaryPlayerCarIndex != NoSecondaryCar &&
		int(h.SecondaryPlayerCarIndex) < NumCars {
		return int(h.SecondaryPlayerCarIndex), true
	}
	return 0, false
}

// DecodeHeader decodes the common packet header. The packet format is
// checked against SupportedFormats; the header is still returned on
// ErrUnsupportedFormat so callers may count the datagram.
func DecodeHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, packetError(ID(0xff), ErrTooShort, "header needs %d bytes, got %d",
			HeaderSize, len(b))
	}
	r := newReader(b)
	h := &Header{
		PacketFormat:            r.u16(),
		GameYear:                r.u8(),
		GameMajorVersion:        r.u8(),
		GameMinorVersion:        r.u8(),
		PacketVersion:           r.u8(),
		PacketID:                ID(r.u8()),
		SessionUID:              r.u64(),
		SessionTime:             r.f32(),
		FrameIdentifier:         r.u32(),
		OverallFrameIdentifier:  r.u32(),
		PlayerCarIndex:          r.u8(),
		SecondaryPlayerCarIndex: r.u8(),
	}
	if !slices.Contains(SupportedFormats, h.PacketFormat) {
		return h, packetError(h.PacketID, ErrUnsupportedFormat, "format %d", h.PacketFormat)
	}
	return h, nil
}

func (h *Header) appendTo(w *writer) {
	w.u16(h.PacketFormat)
	w.u8(h.GameYear)
	w.u8(h.GameMajorVersion)
	w.u8(h.GameMinorVersion)
	w.u8(h.PacketVersion)
	w.u8(uint8(h.PacketID))
	w.u64(h.SessionUID)
	w.f32(h.SessionTime)
	w.u32(h.FrameIdentifier)
	w.u32(h.OverallFrameIdentifier)
	w.u8(h.PlayerCarIndex)
	w.u8(h.SecondaryPlayerCarIndex)
}

// EncodeHeader returns the wire representation of h
func EncodeHeader(h *Header) []byte {
	w := &writer{b: make([]byte, 0, HeaderSize)}
	h.appendTo(w)
	return w.b
}
