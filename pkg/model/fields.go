package model

import "maps"

// Fields is the flat key/value representation of a decoded record as it is
// passed from the gateway to the publisher and the exporters
type Fields map[string]any

// keys shared by all emitted records
const (
	FieldSourceID            = "sourceId"
	FieldPacketID            = "packetId"
	FieldPacketName          = "packetName"
	FieldSessionID           = "sessionId"
	FieldSessionTime         = "sessionTime"
	FieldFrameID             = "frameId"
	FieldCarIndex            = "playerCarIndex"
	FieldDriverName          = "driverName"
	FieldDeviceID            = "deviceId"
	FieldIndividualID        = "individualId"
	FieldGatewayTimestamp    = "gatewayTimestamp"
	FieldGatewayTimestampISO = "gatewayTimestampIso"
)

// keys produced by the lap state machine
const (
	FieldLapCompleted       = "lapCompleted"
	FieldLastLapTime        = "lastLapTimeInMS"
	FieldLastLapTimeText    = "lastLapTime"
	FieldCompletedLapNumber = "completedLapNumber"
	FieldCurrentLapTime     = "currentLapTimeInMS"
	FieldLapNumber          = "lapNumber"
	FieldPosition           = "position"
	FieldSector             = "sector"
	FieldLapValid           = "lapValid"
	FieldPitStatus          = "pitStatus"
)

// keys produced by event packets
const (
	FieldEventCode        = "eventCode"
	FieldSessionEnded     = "sessionEnded"
	FieldFastestLapCarIdx = "fastestLapCarIdx"
	FieldFastestLapTimeMS = "fastestLapTimeMS"
)

// Clone returns a shallow copy
func (f Fields) Clone() Fields {
	return maps.Clone(f)
}

// Merge overlays other onto f, keys of other win. A nil value removes the
// key from f.
func (f Fields) Merge(other Fields) {
	for k, v := range other {
		if v == nil {
			delete(f, k)
			continue
		}
		f[k] = v
	}
}

// With merges other into f and returns f
func (f Fields) With(other Fields) Fields {
	maps.Copy(f, other)
	return f
}

func (f Fields) String(key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return ""
}
