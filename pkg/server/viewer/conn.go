package viewer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/publisher"
)

// conn is one viewer connection. The read loop runs in the http handler,
// all writes are done by writeLoop.
type conn struct {
	id   string
	ws   *websocket.Conn
	sub  *publisher.Subscriber
	ctrl chan []byte // acks, errors and status replies
	done chan struct{}
	l    *log.Logger
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.l.Debug("websocket upgrade failed", log.ErrorField(err))
		return
	}
	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		sub:  s.pub.NewSubscriber(),
		ctrl: make(chan []byte, 16),
		done: make(chan struct{}),
	}
	c.l = s.l.With(log.String("conn", c.id), log.String("remote", r.RemoteAddr))
	if !s.register(c) {
		s.pub.Close(c.sub)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeTimeout))
		ws.Close()
		return
	}
	c.l.Info("viewer connected")
	defer func() {
		s.pub.Close(c.sub)
		close(c.done)
		ws.Close()
		s.unregister(c)
		c.l.Info("viewer disconnected",
			log.Int64("sent", c.sub.Sent()), log.Int64("skipped", c.sub.Skipped()))
	}()

	go c.writeLoop()
	s.readLoop(r.Context(), c)
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	c.ws.SetReadLimit(maxRequestSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {

				c.l.Debug("read failed", log.ErrorField(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
		req, err := parseRequest(data)
		if err != nil {
			c.send(errorMessage(err))
			continue
		}
		s.handleRequest(ctx, c, req)
	}
}

func (s *Server) handleRequest(ctx context.Context, c *conn, req *Request) {
	_, span := s.tracer.Start(ctx, "viewer."+req.Type,
		trace.WithAttributes(
			attribute.String("conn", c.id),
			attribute.String("source", req.SourceID)))
	defer span.End()

	c.l.Debug("request", log.String("type", req.Type), log.String("source", req.SourceID))
	switch req.Type {
	case ReqSubscribe:
		c.send(ackMessage(req))
		s.pub.Subscribe(c.sub, req.SourceID)
	case ReqSubscribeAll:
		c.send(ackMessage(req))
		s.pub.SubscribeAll(c.sub)
	case ReqUnsubscribe:
		s.pub.Unsubscribe(c.sub, req.SourceID)
		c.send(ackMessage(req))
	case ReqStatus:
		c.send(statusMessage(s.status()))
	default:
		err := errors.New("unhandled request")
		span.SetStatus(codes.Error, err.Error())
		c.send(errorMessage(err))
	}
}

// send queues a control message. It is dropped if the viewer does not keep up.
func (c *conn) send(msg map[string]any) {
	select {
	case c.ctrl <- encode(msg):
	case <-c.done:
	default:
		c.l.Warn("control message dropped")
	}
}

func (c *conn) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		var data []byte
		// pending control messages go first, a subscribe ack is queued
		// before the replayed snapshot
		select {
		case data = <-c.ctrl:
		default:
		}
		if data == nil {
			select {
			case <-c.done:
				return
			case <-ping.C:
				if err := c.ws.WriteControl(websocket.PingMessage, nil,
					time.Now().Add(writeTimeout)); err != nil {

					c.ws.Close()
					return
				}
				continue
			case data = <-c.ctrl:
			case snap, ok := <-c.sub.C():
				if !ok {
					return
				}
				data = encode(snapshotMessage(snap))
			}
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			c.l.Debug("write failed", log.ErrorField(err))
			// unblocks the read loop
			c.ws.Close()
			return
		}
	}
}
