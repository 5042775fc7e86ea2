package viewer

import (
	"errors"
	"fmt"
	"time"

	"github.com/ohler55/ojg/oj"

	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/gateway"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/model"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/publisher"
)

// request types sent by viewers
const (
	ReqSubscribe    = "subscribe"
	ReqUnsubscribe  = "unsubscribe"
	ReqSubscribeAll = "subscribeAll"
	ReqStatus       = "status"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnknownRequest = errors.New("unknown request type")
)

// Request is a message sent by a viewer, e.g.
//
//	{"type":"subscribe","sourceId":"rig1"}
type Request struct {
	Type     string `json:"type"`
	SourceID string `json:"sourceId"`
}

func parseRequest(data []byte) (*Request, error) {
	req := &Request{}
	if err := oj.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	switch req.Type {
	case ReqSubscribe, ReqUnsubscribe:
		if req.SourceID == "" {
			return nil, fmt.Errorf("%w: sourceId missing", ErrInvalidRequest)
		}
	case ReqSubscribeAll, ReqStatus:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, req.Type)
	}
	return req, nil
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func snapshotMessage(s *publisher.Snapshot) map[string]any {
	return map[string]any{
		"type":       string(model.MTSnapshot),
		"sourceId":   s.SourceID,
		"seq":        s.Seq,
		"lastUpdate": s.LastUpdate.UTC().Format(isoMillis),
		"data":       map[string]any(s.Fields),
	}
}

func ackMessage(req *Request) map[string]any {
	ret := map[string]any{
		"type":    string(model.MTAck),
		"request": req.Type,
	}
	if req.SourceID != "" {
		ret["sourceId"] = req.SourceID
	}
	return ret
}

func errorMessage(err error) map[string]any {
	return map[string]any{
		"type":  string(model.MTError),
		"error": err.Error(),
	}
}

func statusMessage(st *Status) map[string]any {
	return map[string]any{
		"type": string(model.MTStatus),
		"data": st,
	}
}

func encode(v any) []byte {
	return []byte(oj.JSON(v, &oj.Options{Sort: true, UseTags: true}))
}

// Status is served at /status and sent on a status request
type Status struct {
	Timestamp   string                 `json:"timestamp"`
	Sources     []gateway.SourceStatus `json:"sources"`
	Subscribers map[string]int         `json:"subscribers"`
	Stale       []string               `json:"stale"`
	Connections int                    `json:"connections"`
}

func (s *Server) status() *Status {
	ret := &Status{
		Timestamp:   time.Now().UTC().Format(isoMillis),
		Sources:     []gateway.SourceStatus{},
		Subscribers: s.pub.Subscribers(),
		Stale:       s.pub.Stale(s.staleAfter),
		Connections: s.connections(),
	}
	if s.gw != nil {
		ret.Sources = append(ret.Sources, s.gw.Status()...)
	}
	return ret
}
