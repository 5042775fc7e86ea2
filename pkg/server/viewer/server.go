// Package viewer serves the merged source snapshots to websocket viewers.
//
// Endpoints:
//
//	/ws         websocket, see Request for the accepted messages
//	/status     gateway status and subscriber counts
//	/snapshots  current snapshots of all sources
package viewer

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/netutil"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/gateway"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/publisher"
)

const (
	writeTimeout    = 5 * time.Second
	pongTimeout     = 60 * time.Second
	pingInterval    = 25 * time.Second
	shutdownTimeout = 5 * time.Second
	maxRequestSize  = 4096
)

// StatusProvider is implemented by gateway.Gateway
type StatusProvider interface {
	Status() []gateway.SourceStatus
}

type Server struct {
	pub            *publisher.Publisher
	gw             StatusProvider
	maxConns       int
	allowedOrigins []string
	staleAfter     time.Duration
	tlsConfig      *tls.Config
	tracer         trace.Tracer
	upgrader       websocket.Upgrader
	l              *log.Logger

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
	wg     sync.WaitGroup
}

type Option func(s *Server)

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.l = l }
}

func WithStatusProvider(gw StatusProvider) Option {
	return func(s *Server) { s.gw = gw }
}

// WithMaxConnections limits the number of concurrent connections (0: no limit)
func WithMaxConnections(n int) Option {
	return func(s *Server) { s.maxConns = n }
}

// WithAllowedOrigins restricts CORS and websocket origins. Empty or "*"
// allows all origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

func WithStaleDuration(d time.Duration) Option {
	return func(s *Server) { s.staleAfter = d }
}

func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = cfg }
}

func NewServer(pub *publisher.Publisher, opts ...Option) *Server {
	s := &Server{
		pub:        pub,
		staleAfter: time.Minute,
		tracer:     otel.Tracer("ftg.viewer"),
		l:          log.Default().Named("viewer"),
		conns:      make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	return s
}

func (s *Server) allowAllOrigins() bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	for _, o := range s.allowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (s *Server) originAllowed(origin string) bool {
	if s.allowAllOrigins() {
		return true
	}
	for _, o := range s.allowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// Handler returns the http handler for all endpoints
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /snapshots", s.handleSnapshots)
	return s.newCORS().Handler(mux)
}

func (s *Server) newCORS() *cors.Cors {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedHeaders: []string{"*"},
		MaxAge:         int(2 * time.Hour / time.Second),
	}
	if s.allowAllOrigins() {
		opts.AllowOriginFunc = func(origin string) bool { return true }
	} else {
		opts.AllowedOrigins = s.allowedOrigins
	}
	return cors.New(opts)
}

// Serve accepts connections on ln until ctx is done. Open websocket
// connections are closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		//nolint:contextcheck // ctx is already done
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.l.Warn("error shutting down server", log.ErrorField(err))
		}
	}()
	s.l.Info("viewer server started", log.String("addr", ln.Addr().String()),
		log.Bool("tls", s.tlsConfig != nil))
	err := server.Serve(ln)
	s.closeConns()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.status())
}

func (s *Server) handleSnapshots(w http.ResponseWriter, _ *http.Request) {
	ret := []map[string]any{}
	for _, snap := range s.pub.Snapshots() {
		ret = append(ret, snapshotMessage(snap))
	}
	s.writeJSON(w, ret)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(encode(v)); err != nil {
		s.l.Debug("could not write response", log.ErrorField(err))
	}
}

func (s *Server) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) register(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	return true
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c.id]; ok {
		delete(s.conns, c.id)
		s.wg.Done()
	}
}

// closeConns closes all websocket connections and waits for their handlers
func (s *Server) closeConns() {
	s.mu.Lock()
	s.closed = true
	for _, c := range s.conns {
		c.ws.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
