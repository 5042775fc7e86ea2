//nolint:thelper,funlen,lll,dupl // ok for tests
package packet

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHeader(id ID) Header {
	return Header{
		PacketFormat:            Format2024,
		GameYear:                24,
		GameMajorVersion:        1,
		GameMinorVersion:        12,
		PacketVersion:           1,
		PacketID:                id,
		SessionUID:              0xdeadbeefcafe,
		SessionTime:             123.5,
		FrameIdentifier:         4711,
		OverallFrameIdentifier:  4712,
		PlayerCarIndex:          3,
		SecondaryPlayerCarIndex: NoSecondaryCar,
	}
}

func sampleLapData(car int) *LapData {
	b := uint8(car)
	return &LapData{
		LastLapTimeInMS:              91234,
		CurrentLapTimeInMS:           45000 + uint32(car),
		Sector1TimeMSPart:            28123,
		Sector1TimeMinutesPart:       0,
		Sector2TimeMSPart:            31456,
		Sector2TimeMinutesPart:       1,
		DeltaToCarInFrontMSPart:      812,
		DeltaToCarInFrontMinutesPart: 0,
		DeltaToRaceLeaderMSPart:      9123,
		DeltaToRaceLeaderMinutesPart: 2,
		LapDistance:                  1234.5,
		TotalDistance:                15234.25,
		SafetyCarDelta:               -1.5,
		CarPosition:                  b + 1,
		CurrentLapNum:                4,
		PitStatus:                    1,
		NumPitStops:                  2,
		Sector:                       1,
		CurrentLapInvalid:            1,
		Penalties:                    5,
		TotalWarnings:                3,
		CornerCuttingWarnings:        2,
		NumUnservedDriveThroughPens:  1,
		NumUnservedStopGoPens:        1,
		GridPosition:                 b + 2,
		DriverStatus:                 4,
		ResultStatus:                 2,
		PitLaneTimerActive:           1,
		PitLaneTimeInLaneInMS:        21000,
		PitStopTimerInMS:             2400,
		PitStopShouldServePen:        1,
		SpeedTrapFastestSpeed:        321.75,
		SpeedTrapFastestLap:          3,
	}
}

func sampleLapPacket() *LapDataPacket {
	p := &LapDataPacket{Header: sampleHeader(IDLapData)}
	for i := range p.Cars {
		p.Cars[i] = sampleLapData(i)
	}
	return p
}

func TestDecodeHeader(t *testing.T) {
	h := sampleHeader(IDLapData)
	data := EncodeHeader(&h)
	require.Len(t, data, HeaderSize)

	got, err := DecodeHeader(data)
	require.NoError(t, err)
	assert.Equal(t, IDLapData, got.PacketID)
	if diff := cmp.Diff(&h, got); diff != "" {
		t.Errorf("DecodeHeader() mismatch (-want +got):\n%s", diff)
	}

	h.PacketFormat = 2023
	got, err = DecodeHeader(EncodeHeader(&h))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	require.NotNil(t, got)
	assert.Equal(t, uint16(2023), got.PacketFormat)

	_, err = DecodeHeader(data[:HeaderSize-1])
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestHeaderTrackedCar(t *testing.T) {
	tests := []struct {
		name   string
		player uint8
		second uint8
		want   int
		wantOk bool
	}{
		{"player", 5, NoSecondaryCar, 5, true},
		{"spectator uses secondary", 255, 7, 7, true},
		{"nothing", 255, NoSecondaryCar, 0, false},
		{"secondary out of range", 30, 25, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Header{PlayerCarIndex: tt.player, SecondaryPlayerCarIndex: tt.second}
			got, ok := h.TrackedCar()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOk, ok)
		})
	}
}

func TestLapLayoutSizes(t *testing.T) {
	assert.Equal(t, 57, LapLayoutExact.Size())
	assert.Equal(t, 56, LapLayoutShort1.Size())
	assert.Equal(t, 52, LapLayoutShort2.Size())
	assert.Equal(t, 58, LapLayoutLong1.Size())
	assert.Equal(t, 59, LapLayoutLong2.Size())
	assert.False(t, LapLayoutExact.Fallback())
	assert.True(t, LapLayoutShort2.Fallback())
	assert.Equal(t, -2, LapLayoutShort2.Delta())
}

func TestDecodeLapDataLayouts(t *testing.T) {
	tests := []struct {
		name    string
		layout  LapLayout
		trailer bool
		adjust  func(d *LapData)
	}{
		{"exact", LapLayoutExact, true, func(d *LapData) {}},
		{"exact without trailer", LapLayoutExact, false, func(d *LapData) {}},
		{"one field short", LapLayoutShort1, true, func(d *LapData) {
			d.SpeedTrapFastestLap = 0
		}},
		{"two fields short", LapLayoutShort2, false, func(d *LapData) {
			d.SpeedTrapFastestLap = 0
			d.SpeedTrapFastestSpeed = 0
		}},
		{"one field long", LapLayoutLong1, true, func(d *LapData) {}},
		{"two fields long", LapLayoutLong2, false, func(d *LapData) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sampleLapPacket()
			p.HasTimeTrial = tt.trailer
			if tt.trailer {
				p.TimeTrialPBCarIdx = 3
				p.TimeTrialRivalCarIdx = 7
			}
			data := EncodeLapData(p, tt.layout)

			got, err := Decode(data)
			require.NoError(t, err)
			lp, ok := got.(*LapDataPacket)
			require.True(t, ok)
			assert.Equal(t, tt.layout, lp.Layout)
			assert.Empty(t, lp.Errors)
			assert.Equal(t, tt.trailer, lp.HasTimeTrial)
			if tt.trailer {
				assert.Equal(t, uint8(3), lp.TimeTrialPBCarIdx)
				assert.Equal(t, uint8(7), lp.TimeTrialRivalCarIdx)
			}
			for i := range NumCars {
				want := sampleLapData(i)
				tt.adjust(want)
				if diff := cmp.Diff(want, lp.Cars[i]); diff != "" {
					t.Errorf("car %d mismatch (-want +got):\n%s", i, diff)
				}
			}
		})
	}
}

func TestDecodeLapDataUnknownLayout(t *testing.T) {
	h := sampleHeader(IDLapData)
	data := EncodeHeader(&h)
	// 54 bytes per entry is neither exact nor a known variant
	data = append(data, make([]byte, NumCars*54)...)

	got, err := Decode(data)
	require.NoError(t, err)
	lp := got.(*LapDataPacket)
	assert.Len(t, lp.Errors, NumCars)
	for i := range NumCars {
		assert.Nil(t, lp.Cars[i])
	}
	assert.ErrorIs(t, lp.Errors[0], ErrFieldCount)
	var de *DecodeError
	require.True(t, errors.As(lp.Errors[5], &de))
	assert.Equal(t, 5, de.Car)
}

func TestDecodeLapDataTruncated(t *testing.T) {
	data := EncodeLapData(sampleLapPacket(), LapLayoutExact)
	// cut into the last entry
	data = data[:len(data)-10]

	got, err := Decode(data)
	require.NoError(t, err)
	lp := got.(*LapDataPacket)
	assert.Equal(t, LapLayoutExact, lp.Layout)
	for i := range NumCars - 1 {
		assert.NotNil(t, lp.Cars[i], "car %d", i)
	}
	assert.Nil(t, lp.Cars[NumCars-1])
	require.Len(t, lp.Errors, 1)
	assert.ErrorIs(t, lp.Errors[0], ErrTooShort)
	assert.False(t, lp.HasTimeTrial)
}

func TestDecodeLapDataHoleKeepsIndex(t *testing.T) {
	p := sampleLapPacket()
	p.Cars[4] = nil
	data := EncodeLapData(p, LapLayoutExact)
	got, err := Decode(data)
	require.NoError(t, err)
	lp := got.(*LapDataPacket)
	// nil entries are written as zero bytes, they decode as zero values
	assert.Equal(t, &LapData{}, lp.Cars[4])
	assert.Equal(t, uint8(6), lp.Cars[5].CarPosition)
}

func sampleTelemetry(car int) *CarTelemetry {
	return &CarTelemetry{
		Speed:                   uint16(280 + car),
		Throttle:                0.75,
		Steer:                   -0.125,
		Brake:                   0.5,
		Clutch:                  10,
		Gear:                    -1,
		EngineRPM:               11500,
		DRS:                     1,
		RevLightsPercent:        80,
		RevLightsBitValue:       0x3ff,
		BrakesTemperature:       [NumWheels]uint16{500, 510, 620, 630},
		TyresSurfaceTemperature: [NumWheels]uint8{90, 91, 95, 96},
		TyresInnerTemperature:   [NumWheels]uint8{100, 101, 102, 103},
		EngineTemperature:       110,
		TyresPressure:           [NumWheels]float32{22.5, 22.75, 23, 23.25},
		SurfaceType:             [NumWheels]uint8{0, 0, 1, 7},
	}
}

func TestDecodeCarTelemetry(t *testing.T) {
	p := &CarTelemetryPacket{
		Header:                       sampleHeader(IDCarTelemetry),
		HasMFD:                       true,
		MFDPanelIndex:                2,
		MFDPanelIndexSecondaryPlayer: 255,
		SuggestedGear:                -1,
	}
	for i := range p.Cars {
		p.Cars[i] = sampleTelemetry(i)
	}
	data := EncodeCarTelemetry(p)
	assert.Len(t, data, HeaderSize+NumCars*60+3)

	got, err := Decode(data)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got.(*CarTelemetryPacket)); diff != "" {
		t.Errorf("DecodeCarTelemetry() mismatch (-want +got):\n%s", diff)
	}

	// trailer is optional
	got, err = Decode(data[:len(data)-3])
	require.NoError(t, err)
	assert.False(t, got.(*CarTelemetryPacket).HasMFD)
}

func TestDecodeCarStatus(t *testing.T) {
	p := &CarStatusPacket{Header: sampleHeader(IDCarStatus)}
	for i := range p.Cars {
		p.Cars[i] = &CarStatus{
			TractionControl: 2, AntiLockBrakes: 1, FuelMix: 1, FrontBrakeBias: 56,
			PitLimiterStatus: 0, FuelInTank: 12.5, FuelCapacity: 110, FuelRemainingLaps: 3.25,
			MaxRPM: 13000, IdleRPM: 4000, MaxGears: 8, DRSAllowed: 1, DRSActivationDistance: 120,
			ActualTyreCompound: 18, VisualTyreCompound: 17, TyresAgeLaps: uint8(i), VehicleFiaFlags: -1,
			EnginePowerICE: 560000, EnginePowerMGUK: 120000, ErsStoreEnergy: 2_000_000,
			ErsDeployMode: 3, ErsHarvestedThisLapMGUK: 1000, ErsHarvestedThisLapMGUH: 2000,
			ErsDeployedThisLap: 3000, NetworkPaused: 0,
		}
	}
	data := EncodeCarStatus(p)
	assert.Len(t, data, HeaderSize+NumCars*55)
	got, err := Decode(data)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got.(*CarStatusPacket)); diff != "" {
		t.Errorf("DecodeCarStatus() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeCarDamage(t *testing.T) {
	p := &CarDamagePacket{Header: sampleHeader(IDCarDamage)}
	for i := range p.Cars {
		p.Cars[i] = &CarDamage{
			TyresWear:           [NumWheels]float32{10.5, 11.5, 12.5, 13.5},
			TyresDamage:         [NumWheels]uint8{1, 2, 3, 4},
			BrakesDamage:        [NumWheels]uint8{5, 6, 7, 8},
			FrontLeftWingDamage: 10, FrontRightWingDamage: 11, RearWingDamage: 12,
			FloorDamage: 13, DiffuserDamage: 14, SidepodDamage: 15,
			DRSFault: 1, ERSFault: 0, GearBoxDamage: 20, EngineDamage: uint8(i),
			EngineMGUHWear: 30, EngineESWear: 31, EngineCEWear: 32, EngineICEWear: 33,
			EngineMGUKWear: 34, EngineTCWear: 35, EngineBlown: 0, EngineSeized: 1,
		}
	}
	data := EncodeCarDamage(p)
	assert.Len(t, data, HeaderSize+NumCars*42)
	got, err := Decode(data)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got.(*CarDamagePacket)); diff != "" {
		t.Errorf("DecodeCarDamage() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeSessionAndMotion(t *testing.T) {
	s := &SessionData{
		Header: sampleHeader(IDSession), Weather: 3, TrackTemperature: -2, AirTemperature: 18,
		TotalLaps: 57, TrackLength: 5412, SessionType: 17, TrackID: 3,
	}
	got, err := Decode(EncodeSession(s))
	require.NoError(t, err)
	if diff := cmp.Diff(s, got.(*SessionData)); diff != "" {
		t.Errorf("DecodeSession() mismatch (-want +got):\n%s", diff)
	}

	m := &MotionPacket{Header: sampleHeader(IDMotion)}
	for i := range m.Cars {
		m.Cars[i] = &WorldPosition{X: float32(i), Y: 1.5, Z: -float32(i)}
	}
	got, err = Decode(EncodeMotion(m))
	require.NoError(t, err)
	if diff := cmp.Diff(m, got.(*MotionPacket)); diff != "" {
		t.Errorf("DecodeMotion() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEvent(t *testing.T) {
	e := &EventPacket{
		Header: sampleHeader(IDEvent), Code: EventFastestLap,
		HasFastestLap: true, VehicleIdx: 3, LapTime: 91.25,
	}
	got, err := Decode(EncodeEvent(e))
	require.NoError(t, err)
	if diff := cmp.Diff(e, got.(*EventPacket)); diff != "" {
		t.Errorf("DecodeEvent() mismatch (-want +got):\n%s", diff)
	}

	start := &EventPacket{Header: sampleHeader(IDEvent), Code: EventSessionStarted}
	got, err = Decode(EncodeEvent(start))
	require.NoError(t, err)
	assert.Equal(t, EventSessionStarted, got.(*EventPacket).Code)
	assert.False(t, got.(*EventPacket).HasFastestLap)
}

func TestDecodeUndecodedAndUnknown(t *testing.T) {
	h := sampleHeader(IDParticipants)
	data := append(EncodeHeader(&h), make([]byte, 100)...)
	got, err := Decode(data)
	require.NoError(t, err)
	u, ok := got.(*UndecodedPacket)
	require.True(t, ok)
	assert.Equal(t, 100, u.PayloadSize)
	assert.False(t, IDParticipants.Decoded())

	h.PacketID = 42
	_, err = Decode(EncodeHeader(&h))
	assert.ErrorIs(t, err, ErrUnknownPacket)
}

// every prefix of a valid datagram must decode without panicking
func TestDecodeNeverPanicsOnTruncation(t *testing.T) {
	tel := &CarTelemetryPacket{Header: sampleHeader(IDCarTelemetry)}
	tel.Cars[0] = sampleTelemetry(0)
	datagrams := [][]byte{
		EncodeLapData(sampleLapPacket(), LapLayoutExact),
		EncodeCarTelemetry(tel),
		EncodeCarStatus(&CarStatusPacket{Header: sampleHeader(IDCarStatus)}),
		EncodeCarDamage(&CarDamagePacket{Header: sampleHeader(IDCarDamage)}),
		EncodeMotion(&MotionPacket{Header: sampleHeader(IDMotion)}),
		EncodeSession(&SessionData{Header: sampleHeader(IDSession)}),
		EncodeEvent(&EventPacket{Header: sampleHeader(IDEvent), Code: EventFastestLap, HasFastestLap: true}),
	}
	for _, d := range datagrams {
		for n := 0; n <= len(d); n++ {
			assert.NotPanics(t, func() {
				p, err := Decode(d[:n])
				if err == nil {
					assert.NotNil(t, p)
				}
			})
		}
	}
}

func TestDecodeTooShortPayloads(t *testing.T) {
	tests := []struct {
		name string
		id   ID
		size int
	}{
		{"lap data", IDLapData, MinLapDataPayload() - 1},
		{"telemetry", IDCarTelemetry, 59},
		{"status", IDCarStatus, 54},
		{"damage", IDCarDamage, 41},
		{"motion", IDMotion, 59},
		{"session", IDSession, 7},
		{"event", IDEvent, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := sampleHeader(tt.id)
			data := append(EncodeHeader(&h), make([]byte, tt.size)...)
			_, err := Decode(data)
			assert.ErrorIs(t, err, ErrTooShort)
		})
	}
}

func TestFormatLapTime(t *testing.T) {
	tests := []struct {
		ms   uint32
		want string
	}{
		{91234, "1:31.234"},
		{5000, "0:05.000"},
		{600000, "10:00.000"},
		{59999, "0:59.999"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatLapTime(tt.ms))
		})
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "Silverstone", TrackName(7))
	assert.Equal(t, "Unknown", TrackName(-1))
	assert.Equal(t, "Race", SessionTypeName(17))
	assert.Equal(t, "C3", ActualTyreCompoundName(18))
	assert.Equal(t, "Medium", VisualTyreCompoundName(17))
	assert.Equal(t, "Overtake", ErsDeployModeName(3))
	assert.Equal(t, "Unknown", ErsDeployModeName(9))
	assert.Equal(t, "lapData", IDLapData.String())
}
