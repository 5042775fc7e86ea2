package lap

import (
	"errors"
	"fmt"

	"github.com/aarondl/opt/omit"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/model"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/packet"
)

const (
	StateNoSession     = "NO_SESSION"
	StateSessionActive = "SESSION_ACTIVE"
)

const (
	MaxPosition   = packet.NumCars
	MaxLapNumber  = 200
	MaxLapTimeMS  = 7_200_000
	MinValidLapMS = 30_000
	MaxValidLapMS = 600_000
	numSectors    = 3
)

var (
	ErrInvalidPosition  = errors.New("position out of range")
	ErrInvalidLapNumber = errors.New("lap number out of range")
	ErrInvalidLapTime   = errors.New("lap time out of range")
)

// LapProcessor derives lap completion events from the lap records of the
// tracked car of one source. It is not safe for concurrent use; each source
// owns exactly one instance.
type LapProcessor struct {
	state         string
	sessionID     uint64
	currentLap    int
	lastValidated omit.Val[uint32]
	lapCompleted  bool
	completedLap  int
	l             *log.Logger
}

type LapProcessorOption func(p *LapProcessor)

func WithLogger(l *log.Logger) LapProcessorOption {
	return func(p *LapProcessor) {
		p.l = l
	}
}

func NewLapProcessor(opts ...LapProcessorOption) *LapProcessor {
	p := &LapProcessor{
		state: StateNoSession,
		l:     log.Default().Named("lap"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is the normalized view of one accepted lap record
type Result struct {
	LapCompleted       bool
	CompletedLapNumber int
	LastLapTimeMS      omit.Val[uint32]
	CurrentLapTimeMS   uint32
	LapNumber          int
	Position           int
	Sector             int
	LapValid           bool
	PitStatus          uint8
}

func (p *LapProcessor) State() string     { return p.state }
func (p *LapProcessor) SessionID() uint64 { return p.sessionID }
func (p *LapProcessor) CurrentLap() int   { return p.currentLap }

func (p *LapProcessor) LastLapTime() omit.Val[uint32] {
	return p.lastValidated
}

// ObserveSession checks the session id of an incoming packet. A change while
// a session is active resets the lap state; it returns true in that case.
func (p *LapProcessor) ObserveSession(sessionID uint64) bool {
	if p.state != StateSessionActive || sessionID == p.sessionID {
		return false
	}
	p.l.Debug("session changed, resetting lap state",
		log.Uint64("old", p.sessionID), log.Uint64("new", sessionID))
	p.Reset()
	p.sessionID = sessionID
	return true
}

// Activate marks the session as active (used for session records)
func (p *LapProcessor) Activate(sessionID uint64) {
	p.ObserveSession(sessionID)
	if p.state == StateNoSession {
		p.state = StateSessionActive
		p.sessionID = sessionID
	}
}

// Reset clears lap number, completion flag and validated lap time. The state
// stays active.
func (p *LapProcessor) Reset() {
	p.currentLap = 0
	p.lapCompleted = false
	p.completedLap = 0
	p.lastValidated = omit.Val[uint32]{}
}

// Process validates d and advances the lap state. Validation errors leave the
// stored state untouched and no result is produced.
func (p *LapProcessor) Process(sessionID uint64, d *packet.LapData) (*Result, error) {
	if err := validate(d); err != nil {
		return nil, err
	}
	p.Activate(sessionID)

	lap := int(d.CurrentLapNum)
	if lap > p.currentLap && p.currentLap > 0 {
		p.lapCompleted = true
		p.completedLap = p.currentLap
		candidate := d.LastLapTimeInMS
		if candidate >= MinValidLapMS && candidate <= MaxValidLapMS {
			p.lastValidated = omit.From(candidate)
		} else {
			p.l.Warn("completed lap time rejected",
				log.Int("lap", p.completedLap),
				log.Uint32("lapTimeMS", candidate))
			p.lastValidated = omit.Val[uint32]{}
		}
	}
	p.currentLap = lap
	return p.emit(d), nil
}

// emit builds the result and clears the one-shot completion flag
func (p *LapProcessor) emit(d *packet.LapData) *Result {
	r := &Result{
		LapCompleted:     p.lapCompleted,
		LastLapTimeMS:    p.lastValidated,
		CurrentLapTimeMS: d.CurrentLapTimeInMS,
		LapNumber:        p.currentLap,
		Position:         int(d.CarPosition),
		Sector:           sector(d.Sector),
		LapValid:         d.CurrentLapInvalid == 0,
		PitStatus:        d.PitStatus,
	}
	if p.lapCompleted {
		r.CompletedLapNumber = p.completedLap
	}
	p.lapCompleted = false
	p.completedLap = 0
	return r
}

func validate(d *packet.LapData) error {
	if d.CarPosition < 1 || int(d.CarPosition) > MaxPosition {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, d.CarPosition)
	}
	if int(d.CurrentLapNum) > MaxLapNumber {
		return fmt.Errorf("%w: %d", ErrInvalidLapNumber, d.CurrentLapNum)
	}
	if d.LastLapTimeInMS > MaxLapTimeMS || d.CurrentLapTimeInMS > MaxLapTimeMS {
		return fmt.Errorf("%w: last=%d current=%d", ErrInvalidLapTime,
			d.LastLapTimeInMS, d.CurrentLapTimeInMS)
	}
	return nil
}

// sector converts the 0-based wire sector to 1..3
func sector(s uint8) int {
	if int(s) < numSectors {
		return int(s) + 1
	}
	return 1
}

// Fields converts the result into event fields. The last lap time and the
// completed lap number are nil unless a validated time resp. a completion
// exists, which clears them in merged snapshots.
func (r *Result) Fields() model.Fields {
	f := model.Fields{
		model.FieldLapCompleted:       r.LapCompleted,
		model.FieldCurrentLapTime:     int(r.CurrentLapTimeMS),
		model.FieldLapNumber:          r.LapNumber,
		model.FieldPosition:           r.Position,
		model.FieldSector:             r.Sector,
		model.FieldLapValid:           r.LapValid,
		model.FieldPitStatus:          int(r.PitStatus),
		"pitStatusName":               packet.PitStatusName(r.PitStatus),
		model.FieldLastLapTime:        nil,
		model.FieldLastLapTimeText:    nil,
		model.FieldCompletedLapNumber: nil,
	}
	if v, ok := r.LastLapTimeMS.Get(); ok {
		f[model.FieldLastLapTime] = int(v)
		f[model.FieldLastLapTimeText] = packet.FormatLapTime(v)
	}
	if r.LapCompleted {
		f[model.FieldCompletedLapNumber] = r.CompletedLapNumber
	}
	return f
}
