package packet

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const unknownName = "Unknown"

var trackNames = map[int8]string{
	0: "Melbourne", 1: "Paul Ricard", 2: "Shanghai", 3: "Sakhir (Bahrain)",
	4: "Catalunya", 5: "Monaco", 6: "Montreal", 7: "Silverstone",
	8: "Hockenheim", 9: "Hungaroring", 10: "Spa", 11: "Monza",
	12: "Singapore", 13: "Suzuka", 14: "Abu Dhabi", 15: "Texas",
	16: "Brazil", 17: "Austria", 18: "Sochi", 19: "Mexico",
	20: "Baku", 21: "Sakhir Short", 22: "Silverstone Short",
	23: "Texas Short", 24: "Suzuka Short", 25: "Hanoi",
	26: "Zandvoort", 27: "Imola", 28: "Portimão", 29: "Jeddah",
	30: "Miami", 31: "Las Vegas", 32: "Losail",
	39: "Silverstone (Reverse)", 40: "Austria (Reverse)", 41: "Zandvoort (Reverse)",
}

var sessionTypeNames = map[uint8]string{
	0: "Unknown", 1: "Practice 1", 2: "Practice 2", 3: "Practice 3",
	4: "Short Practice", 5: "Q1", 6: "Q2", 7: "Q3",
	8: "Short Qualifying", 9: "One-Shot Q", 10: "Sprint Shootout 1",
	11: "Sprint Shootout 2", 12: "Sprint Shootout 3", 13: "Short Sprint Shootout",
	14: "One-Shot Sprint Shootout", 15: "Sprint", 16: "Sprint 2",
	17: "Race", 18: "Race 2", 19: "Race 3", 20: "Time Trial",
}

var weatherNames = map[uint8]string{
	0: "Clear", 1: "Light Cloud", 2: "Overcast", 3: "Light Rain", 4: "Heavy Rain", 5: "Storm",
}

var actualTyreCompoundNames = map[uint8]string{
	16: "C5", 17: "C4", 18: "C3", 19: "C2", 20: "C1", 21: "C0", 22: "C6",
	7: "Inter", 8: "Wet",
	9: "Classic Dry", 10: "Classic Wet",
	11: "F2 Super Soft", 12: "F2 Soft", 13: "F2 Medium", 14: "F2 Hard", 15: "F2 Wet",
}

var visualTyreCompoundNames = map[uint8]string{
	16: "Soft", 17: "Medium", 18: "Hard", 7: "Inter", 8: "Wet",
	15: "F2 Wet", 19: "F2 Super Soft", 20: "F2 Soft", 21: "F2 Medium", 22: "F2 Hard",
}

var ersDeployModeNames = map[uint8]string{
	0: "None", 1: "Medium", 2: "Hotlap", 3: "Overtake",
}

var pitStatusNames = map[uint8]string{
	0: "None", 1: "Pitting", 2: "In Pit Area",
}

var driverStatusNames = map[uint8]string{
	0: "In Garage", 1: "Flying Lap", 2: "In Lap", 3: "Out Lap", 4: "On Track",
}

var fiaFlagNames = map[int8]string{
	-1: "Invalid", 0: "None", 1: "Green", 2: "Blue", 3: "Yellow",
}

func lookup[K comparable](m map[K]string, k K) string {
	if v, ok := m[k]; ok {
		return v
	}
	return unknownName
}

func TrackName(id int8) string              { return lookup(trackNames, id) }
func SessionTypeName(t uint8) string        { return lookup(sessionTypeNames, t) }
func WeatherName(w uint8) string            { return lookup(weatherNames, w) }
func ActualTyreCompoundName(c uint8) string { return lookup(actualTyreCompoundNames, c) }
func VisualTyreCompoundName(c uint8) string { return lookup(visualTyreCompoundNames, c) }
func ErsDeployModeName(m uint8) string      { return lookup(ersDeployModeNames, m) }
func PitStatusName(s uint8) string          { return lookup(pitStatusNames, s) }
func DriverStatusName(s uint8) string       { return lookup(driverStatusNames, s) }
func FiaFlagName(f int8) string             { return lookup(fiaFlagNames, f) }

// FormatLapTime renders a lap time given in milliseconds as m:ss.SSS
func FormatLapTime(ms uint32) string {
	d := decimal.New(int64(ms), -3)
	minutes := d.Div(decimal.NewFromInt(60)).Floor()
	seconds := d.Sub(minutes.Mul(decimal.NewFromInt(60)))
	secStr := seconds.StringFixed(3)
	if seconds.LessThan(decimal.NewFromInt(10)) {
		secStr = "0" + secStr
	}
	return fmt.Sprintf("%s:%s", minutes.String(), secStr)
}
