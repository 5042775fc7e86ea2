// Package gateway runs one UDP listener per configured source and forwards
// the enriched records to the registered sinks.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/config"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/model"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/packet"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/processing"
)

const (
	DefaultReadTimeout = time.Second
	ActiveWindow       = 5 * time.Second
	maxDatagramSize    = 4096
	isoMillis          = "2006-01-02T15:04:05.000Z07:00"
)

var (
	ErrAlreadyStarted = errors.New("gateway already started")
	ErrUnknownSource  = errors.New("unknown source")
)

// Sink receives every enriched record. Implementations must not block for
// long; they are called from the listener goroutine of the source.
type Sink interface {
	OnEvent(sourceID string, fields model.Fields)
}

type SinkFunc func(sourceID string, fields model.Fields)

func (f SinkFunc) OnEvent(sourceID string, fields model.Fields) {
	f(sourceID, fields)
}

type Gateway struct {
	sources     []config.Source
	sinks       []Sink
	bindAddr    string
	readTimeout time.Duration
	minVersion  string
	now         func() time.Time
	l           *log.Logger

	mu        sync.RWMutex
	listeners map[string]*listener
	cancel    context.CancelFunc
	started   bool
}

type Option func(g *Gateway)

func WithSinks(sinks ...Sink) Option {
	return func(g *Gateway) { g.sinks = append(g.sinks, sinks...) }
}

// WithBindAddr sets the host the listeners bind to (default: all interfaces)
func WithBindAddr(addr string) Option {
	return func(g *Gateway) { g.bindAddr = addr }
}

func WithReadTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.readTimeout = d }
}

// WithMinGameVersion enables a warning for sources reporting an older game
// version. The version is given in semver notation, e.g. v1.10.0
func WithMinGameVersion(v string) Option {
	return func(g *Gateway) { g.minVersion = v }
}

func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) { g.l = l }
}

// WithClock is used by tests
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func New(sources []config.Source, opts ...Option) *Gateway {
	g := &Gateway{
		sources:     sources,
		readTimeout: DefaultReadTimeout,
		now:         time.Now,
		l:           log.Default().Named("gateway"),
		listeners:   make(map[string]*listener),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.minVersion != "" && !semver.IsValid(g.minVersion) {
		g.l.Warn("ignoring invalid minimum game version", log.String("version", g.minVersion))
		g.minVersion = ""
	}
	g.setupMetrics()
	return g
}

// Start binds one socket per source and starts its listener goroutine.
// A bind failure only affects that source; it is reported via Status.
func (g *Gateway) Start(ctx context.Context) error {
	if len(g.sources) == 0 {
		return config.ErrNoSources
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return ErrAlreadyStarted
	}
	g.started = true
	ctx, g.cancel = context.WithCancel(ctx)

	for _, src := range g.sources {
		ls := newListener(src, processing.NewProcessor(
			processing.WithLogger(g.l.Named("proc").With(log.String("source", src.ID)))))
		g.listeners[src.ID] = ls

		addr := &net.UDPAddr{IP: net.ParseIP(g.bindAddr), Port: src.Port}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			g.l.Error("could not bind listener",
				log.String("source", src.ID), log.Int("port", src.Port), log.ErrorField(err))
			ls.setBindError(err)
			close(ls.done)
			continue
		}
		ls.conn = conn
		ls.alive.Store(true)
		g.l.Info("listening",
			log.String("source", src.ID), log.String("addr", conn.LocalAddr().String()))
		go g.readLoop(ctx, ls)
	}
	return nil
}

// Addr returns the local address of the source's socket
func (g *Gateway) Addr(sourceID string) (net.Addr, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ls, ok := g.listeners[sourceID]
	if !ok || ls.conn == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	return ls.conn.LocalAddr(), nil
}

func (g *Gateway) readLoop(ctx context.Context, ls *listener) {
	defer close(ls.done)
	defer ls.alive.Store(false)
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = ls.conn.SetReadDeadline(time.Now().Add(g.readTimeout))
		n, _, err := ls.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			g.l.Error("receive failed, listener stopped",
				log.String("source", ls.src.ID), log.ErrorField(err))
			return
		}
		g.handle(ls, buf[:n])
	}
}

// handle is only called from the listener goroutine of ls
func (g *Gateway) handle(ls *listener, datagram []byte) {
	now := g.now()
	ls.packets.Add(1)
	ls.lastPacket.Store(now.UnixNano())

	out, err := ls.proc.Process(datagram)
	if err != nil {
		if errors.Is(err, packet.ErrUnsupportedFormat) {
			ls.discarded.Add(1)
		} else {
			ls.decodeErrors.Add(1)
		}
		g.l.Debug("datagram skipped",
			log.String("source", ls.src.ID), log.Int("size", len(datagram)), log.ErrorField(err))
		return
	}
	if len(out.CarErrors) > 0 {
		ls.carErrors.Add(int64(len(out.CarErrors)))
	}
	if out.Dropped != nil {
		ls.droppedPolls.Add(1)
	}
	if out.LapCompleted {
		ls.lapsCompleted.Add(1)
	}
	if out.Layout != "" && out.Layout != packet.LapLayoutExact.Name {
		ls.fallbacks.Add(1)
	}
	if out.SessionChanged {
		g.l.Info("session changed", log.String("source", ls.src.ID),
			log.Uint64("session", out.Header.SessionUID))
	}
	g.observeHeader(ls, out.Header)
	for _, rec := range out.Records {
		g.onEvent(ls, rec, now)
	}
}

func (g *Gateway) observeHeader(ls *listener, h *packet.Header) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.sessionID = h.SessionUID
	ls.hasSession = true
	if !ls.hasFirstSession {
		ls.firstSessionID = h.SessionUID
		ls.hasFirstSession = true
		g.l.Info("first session seen", log.String("source", ls.src.ID),
			log.Uint64("session", h.SessionUID))
	}
	ls.gameVersion = h.GameVersion()
	if g.minVersion != "" && !ls.versionWarned &&
		semver.Compare(ls.gameVersion, g.minVersion) < 0 {

		ls.versionWarned = true
		g.l.Warn("game version below minimum",
			log.String("source", ls.src.ID),
			log.String("version", ls.gameVersion),
			log.String("minimum", g.minVersion))
	}
}

// onEvent stamps the source identity and the gateway time onto fields and
// forwards them to all sinks.
func (g *Gateway) onEvent(ls *listener, fields model.Fields, now time.Time) {
	fields[model.FieldSourceID] = ls.src.ID
	fields[model.FieldDriverName] = ls.src.DriverName
	fields[model.FieldDeviceID] = ls.src.DeviceID
	if ls.src.IndividualID != "" {
		fields[model.FieldIndividualID] = ls.src.IndividualID
	}
	fields[model.FieldGatewayTimestamp] = int(now.UnixMilli())
	fields[model.FieldGatewayTimestampISO] = now.UTC().Format(isoMillis)
	for _, s := range g.sinks {
		s.OnEvent(ls.src.ID, fields)
	}
}

// Stop signals all listeners, waits at most one read timeout for each of
// them and closes the sockets. Calling Stop more than once is safe.
func (g *Gateway) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return
	}
	g.started = false
	g.cancel()
	for id, ls := range g.listeners {
		select {
		case <-ls.done:
		case <-time.After(g.readTimeout):
			g.l.Warn("listener did not stop in time", log.String("source", id))
		}
		if ls.conn != nil {
			if err := ls.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				g.l.Debug("error closing socket", log.String("source", id), log.ErrorField(err))
			}
		}
	}
	clear(g.listeners)
	g.l.Info("gateway stopped")
}
