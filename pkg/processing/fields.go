package processing

import (
	"github.com/samber/lo"

	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/model"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/packet"
)

// wheel arrays are emitted in wire order RL, RR, FL, FR

func intWheels[T ~uint8 | ~uint16](a [packet.NumWheels]T) []any {
	return lo.Map(a[:], func(v T, _ int) any { return int(v) })
}

func floatWheels(a [packet.NumWheels]float32) []any {
	return lo.Map(a[:], func(v float32, _ int) any { return float64(v) })
}

func boolFlag(v uint8) bool {
	return v == 1
}

func telemetryFields(t *packet.CarTelemetry) model.Fields {
	return model.Fields{
		"speed":                   int(t.Speed),
		"throttle":                float64(t.Throttle),
		"steer":                   float64(t.Steer),
		"brake":                   float64(t.Brake),
		"clutch":                  int(t.Clutch),
		"gear":                    int(t.Gear),
		"engineRPM":               int(t.EngineRPM),
		"drs":                     int(t.DRS),
		"drsActive":               boolFlag(t.DRS),
		"revLightsPercent":        int(t.RevLightsPercent),
		"engineTemperature":       int(t.EngineTemperature),
		"brakesTemperature":       intWheels(t.BrakesTemperature),
		"tyresSurfaceTemperature": intWheels(t.TyresSurfaceTemperature),
		"tyresInnerTemperature":   intWheels(t.TyresInnerTemperature),
		"tyresPressure":           floatWheels(t.TyresPressure),
		"surfaceType":             intWheels(t.SurfaceType),
	}
}

func statusFields(s *packet.CarStatus) model.Fields {
	return model.Fields{
		"tractionControl":         int(s.TractionControl),
		"antiLockBrakes":          boolFlag(s.AntiLockBrakes),
		"fuelMix":                 int(s.FuelMix),
		"frontBrakeBias":          int(s.FrontBrakeBias),
		"pitLimiterStatus":        boolFlag(s.PitLimiterStatus),
		"fuelInTank":              float64(s.FuelInTank),
		"fuelCapacity":            float64(s.FuelCapacity),
		"fuelRemainingLaps":       float64(s.FuelRemainingLaps),
		"maxRPM":                  int(s.MaxRPM),
		"idleRPM":                 int(s.IdleRPM),
		"maxGears":                int(s.MaxGears),
		"drsAllowed":              boolFlag(s.DRSAllowed),
		"drsActivationDistance":   int(s.DRSActivationDistance),
		"actualTyreCompound":      int(s.ActualTyreCompound),
		"actualTyreCompoundName":  packet.ActualTyreCompoundName(s.ActualTyreCompound),
		"visualTyreCompound":      int(s.VisualTyreCompound),
		"visualTyreCompoundName":  packet.VisualTyreCompoundName(s.VisualTyreCompound),
		"tyresAgeLaps":            int(s.TyresAgeLaps),
		"vehicleFiaFlags":         int(s.VehicleFiaFlags),
		"vehicleFiaFlagsName":     packet.FiaFlagName(s.VehicleFiaFlags),
		"enginePowerICE":          float64(s.EnginePowerICE),
		"enginePowerMGUK":         float64(s.EnginePowerMGUK),
		"ersStoreEnergy":          float64(s.ErsStoreEnergy),
		"ersStorePercent":         ersPercent(s.ErsStoreEnergy),
		"ersDeployMode":           int(s.ErsDeployMode),
		"ersDeployModeName":       packet.ErsDeployModeName(s.ErsDeployMode),
		"ersHarvestedThisLapMGUK": float64(s.ErsHarvestedThisLapMGUK),
		"ersHarvestedThisLapMGUH": float64(s.ErsHarvestedThisLapMGUH),
		"ersDeployedThisLap":      float64(s.ErsDeployedThisLap),
		"networkPaused":           boolFlag(s.NetworkPaused),
	}
}

// ersPercent returns the store level relative to the maximum store energy,
// clamped to 0..100
func ersPercent(energy float32) float64 {
	return min(max(float64(energy)/packet.ErsMaxStoreEnergy*100, 0), 100)
}

func damageFields(d *packet.CarDamage) model.Fields {
	return model.Fields{
		"tyresWear":            floatWheels(d.TyresWear),
		"tyresDamage":          intWheels(d.TyresDamage),
		"brakesDamage":         intWheels(d.BrakesDamage),
		"frontLeftWingDamage":  int(d.FrontLeftWingDamage),
		"frontRightWingDamage": int(d.FrontRightWingDamage),
		"rearWingDamage":       int(d.RearWingDamage),
		"floorDamage":          int(d.FloorDamage),
		"diffuserDamage":       int(d.DiffuserDamage),
		"sidepodDamage":        int(d.SidepodDamage),
		"drsFault":             boolFlag(d.DRSFault),
		"ersFault":             boolFlag(d.ERSFault),
		"gearBoxDamage":        int(d.GearBoxDamage),
		"engineDamage":         int(d.EngineDamage),
		"engineMGUHWear":       int(d.EngineMGUHWear),
		"engineESWear":         int(d.EngineESWear),
		"engineCEWear":         int(d.EngineCEWear),
		"engineICEWear":        int(d.EngineICEWear),
		"engineMGUKWear":       int(d.EngineMGUKWear),
		"engineTCWear":         int(d.EngineTCWear),
		"engineBlown":          boolFlag(d.EngineBlown),
		"engineSeized":         boolFlag(d.EngineSeized),
	}
}

func sessionFields(s *packet.SessionData) model.Fields {
	return model.Fields{
		"weather":          int(s.Weather),
		"weatherName":      packet.WeatherName(s.Weather),
		"trackTemperature": int(s.TrackTemperature),
		"airTemperature":   int(s.AirTemperature),
		"totalLaps":        int(s.TotalLaps),
		"trackLength":      int(s.TrackLength),
		"sessionType":      int(s.SessionType),
		"sessionTypeName":  packet.SessionTypeName(s.SessionType),
		"trackId":          int(s.TrackID),
		"trackName":        packet.TrackName(s.TrackID),
	}
}

// lapExtraFields are the lap record values not interpreted by the lap state
// machine
func lapExtraFields(d *packet.LapData) model.Fields {
	return model.Fields{
		"sector1TimeInMS":       int(d.Sector1TimeMS()),
		"sector2TimeInMS":       int(d.Sector2TimeMS()),
		"deltaToCarInFrontInMS": int(d.DeltaToCarInFrontMS()),
		"deltaToRaceLeaderInMS": int(d.DeltaToRaceLeaderMS()),
		"lapDistance":           float64(d.LapDistance),
		"totalDistance":         float64(d.TotalDistance),
		"numPitStops":           int(d.NumPitStops),
		"penalties":             int(d.Penalties),
		"totalWarnings":         int(d.TotalWarnings),
		"cornerCuttingWarnings": int(d.CornerCuttingWarnings),
		"gridPosition":          int(d.GridPosition),
		"driverStatus":          int(d.DriverStatus),
		"driverStatusName":      packet.DriverStatusName(d.DriverStatus),
		"resultStatus":          int(d.ResultStatus),
		"speedTrapFastestSpeed": float64(d.SpeedTrapFastestSpeed),
	}
}
