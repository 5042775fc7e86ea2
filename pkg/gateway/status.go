package gateway

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/config"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/processing"
)

// listener holds the socket and statistics of one source. Counters are
// written by the listener goroutine only and read by Status.
type listener struct {
	src  config.Source
	conn *net.UDPConn
	proc *processing.Processor
	done chan struct{}

	alive         atomic.Bool
	packets       atomic.Int64
	lastPacket    atomic.Int64 // unix nanos, 0 = never
	discarded     atomic.Int64
	decodeErrors  atomic.Int64
	carErrors     atomic.Int64
	droppedPolls  atomic.Int64
	lapsCompleted atomic.Int64
	fallbacks     atomic.Int64

	mu              sync.Mutex
	sessionID       uint64
	hasSession      bool
	firstSessionID  uint64
	hasFirstSession bool
	gameVersion     string
	versionWarned   bool
	bindErr         string
}

func newListener(src config.Source, proc *processing.Processor) *listener {
	return &listener{
		src:  src,
		proc: proc,
		done: make(chan struct{}),
	}
}

func (ls *listener) setBindError(err error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.bindErr = err.Error()
}

type SourceStatus struct {
	SourceID               string  `json:"sourceId"`
	Port                   int     `json:"port"`
	DriverName             string  `json:"driverName"`
	Packets                int64   `json:"packets"`
	SecondsSinceLastPacket float64 `json:"secondsSinceLastPacket"` // -1: never
	Alive                  bool    `json:"alive"`
	Active                 bool    `json:"active"`
	SessionID              string  `json:"sessionId,omitempty"`
	FirstSessionID         string  `json:"firstSessionId,omitempty"`
	GameVersion            string  `json:"gameVersion,omitempty"`
	Discarded              int64   `json:"discarded"`
	DecodeErrors           int64   `json:"decodeErrors"`
	CarErrors              int64   `json:"carErrors"`
	DroppedPolls           int64   `json:"droppedPolls"`
	LapsCompleted          int64   `json:"lapsCompleted"`
	FallbackLayouts        int64   `json:"fallbackLayouts"`
	BindError              string  `json:"bindError,omitempty"`
}

func (ls *listener) status(now time.Time) SourceStatus {
	s := SourceStatus{
		SourceID:               ls.src.ID,
		Port:                   ls.src.Port,
		DriverName:             ls.src.DriverName,
		Packets:                ls.packets.Load(),
		SecondsSinceLastPacket: -1,
		Alive:                  ls.alive.Load(),
		Discarded:              ls.discarded.Load(),
		DecodeErrors:           ls.decodeErrors.Load(),
		CarErrors:              ls.carErrors.Load(),
		DroppedPolls:           ls.droppedPolls.Load(),
		LapsCompleted:          ls.lapsCompleted.Load(),
		FallbackLayouts:        ls.fallbacks.Load(),
	}
	if last := ls.lastPacket.Load(); last != 0 {
		since := now.Sub(time.Unix(0, last))
		s.SecondsSinceLastPacket = since.Seconds()
		s.Active = since <= ActiveWindow
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.hasSession {
		s.SessionID = processing.SessionIDString(ls.sessionID)
	}
	if ls.hasFirstSession {
		s.FirstSessionID = processing.SessionIDString(ls.firstSessionID)
	}
	s.GameVersion = ls.gameVersion
	s.BindError = ls.bindErr
	return s
}

// Status returns the statistics of all sources in configuration order.
// Sources are only listed while the gateway is started.
func (g *Gateway) Status() []SourceStatus {
	now := g.now()
	g.mu.RLock()
	defer g.mu.RUnlock()
	return lo.FilterMap(g.sources, func(src config.Source, _ int) (SourceStatus, bool) {
		ls, ok := g.listeners[src.ID]
		if !ok {
			return SourceStatus{}, false
		}
		return ls.status(now), true
	})
}

// ActiveSources returns the ids of sources with a packet within ActiveWindow
func (g *Gateway) ActiveSources() []string {
	return lo.FilterMap(g.Status(), func(s SourceStatus, _ int) (string, bool) {
		return s.SourceID, s.Active
	})
}
