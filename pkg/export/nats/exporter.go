// Package nats forwards enriched records to NATS subjects and keeps the
// merged state of every source in a JetStream key value bucket.
package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/model"
)

const (
	DefaultSubjectPrefix = "f1"
	DefaultBucket        = "f1-snapshots"
	DefaultFlushInterval = time.Second
	lapSubject           = "lap"
	closeTimeout         = 5 * time.Second
)

type Exporter struct {
	ctx           context.Context
	conn          *nats.Conn
	kv            jetstream.KeyValue
	enc           model.Encoding
	prefix        string
	bucket        string
	ttl           time.Duration
	flushInterval time.Duration
	l             *log.Logger

	mu        sync.Mutex
	snapshots map[string]model.Fields
	dirty     map[string]bool
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(e *Exporter)

func WithContext(ctx context.Context) Option {
	return func(e *Exporter) { e.ctx = ctx }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Exporter) { e.l = l }
}

func WithEncoding(enc model.Encoding) Option {
	return func(e *Exporter) { e.enc = enc }
}

func WithSubjectPrefix(prefix string) Option {
	return func(e *Exporter) { e.prefix = prefix }
}

func WithBucket(bucket string) Option {
	return func(e *Exporter) { e.bucket = bucket }
}

// WithTTL sets the max age of the bucket entries (default: 24h)
func WithTTL(ttl time.Duration) Option {
	return func(e *Exporter) { e.ttl = ttl }
}

// WithFlushInterval controls how often changed snapshots are written to the
// bucket.
func WithFlushInterval(d time.Duration) Option {
	return func(e *Exporter) { e.flushInterval = d }
}

func NewExporter(conn *nats.Conn, opts ...Option) (*Exporter, error) {
	ret := &Exporter{
		ctx:           context.Background(),
		conn:          conn,
		enc:           model.EncodingJSON,
		prefix:        DefaultSubjectPrefix,
		bucket:        DefaultBucket,
		ttl:           24 * time.Hour,
		flushInterval: DefaultFlushInterval,
		l:             log.Default().Named("nats"),
		snapshots:     make(map[string]model.Fields),
		dirty:         make(map[string]bool),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if err := ret.setupKV(); err != nil {
		return nil, err
	}
	go ret.flushLoop()
	return ret, nil
}

// Subject returns the subject records of sourceID with the given suffix
// are published to.
func (e *Exporter) Subject(sourceID, suffix string) string {
	return fmt.Sprintf("%s.%s.%s", e.prefix, sourceID, suffix)
}

// OnEvent publishes fields to <prefix>.<sourceId>.<packetName>. Completed
// laps are additionally published to <prefix>.<sourceId>.lap.
func (e *Exporter) OnEvent(sourceID string, fields model.Fields) {
	data, err := model.Marshal(e.enc, fields)
	if err != nil {
		e.l.Error("could not encode record",
			log.String("source", sourceID), log.ErrorField(err))
		return
	}
	packetName := fields.String(model.FieldPacketName)
	if packetName == "" {
		packetName = "unknown"
	}
	e.publish(e.Subject(sourceID, packetName), data)
	if completed, ok := fields[model.FieldLapCompleted].(bool); ok && completed {
		e.publish(e.Subject(sourceID, lapSubject), data)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.snapshots[sourceID]
	if !ok {
		snap = model.Fields{}
		e.snapshots[sourceID] = snap
	}
	snap.Merge(fields)
	e.dirty[sourceID] = true
}

func (e *Exporter) publish(subject string, data []byte) {
	if err := e.conn.Publish(subject, data); err != nil {
		e.l.Warn("could not publish",
			log.String("subject", subject), log.ErrorField(err))
	}
}

func (e *Exporter) flushLoop() {
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.Flush()
		}
	}
}

// Flush writes all changed snapshots to the bucket
func (e *Exporter) Flush() {
	e.flush(e.ctx)
}

func (e *Exporter) flush(ctx context.Context) {
	e.mu.Lock()
	pending := make(map[string][]byte, len(e.dirty))
	for id := range e.dirty {
		data, err := model.Marshal(e.enc, e.snapshots[id])
		if err != nil {
			e.l.Error("could not encode snapshot",
				log.String("source", id), log.ErrorField(err))
			continue
		}
		pending[id] = data
	}
	clear(e.dirty)
	e.mu.Unlock()

	for id, data := range pending {
		if _, err := e.kv.Put(ctx, id, data); err != nil {
			e.l.Warn("could not store snapshot",
				log.String("source", id), log.ErrorField(err))
		}
	}
}

// Close writes the pending snapshots and flushes the connection. The
// connection itself is owned by the caller. The final write is done even if
// the exporter context is already cancelled.
func (e *Exporter) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), closeTimeout)
		defer cancel()
		e.flush(ctx)
		if err := e.conn.Flush(); err != nil {
			e.l.Debug("error flushing connection", log.ErrorField(err))
		}
	})
}

func (e *Exporter) setupKV() error {
	var js jetstream.JetStream
	var err error
	if js, err = jetstream.New(e.conn); err != nil {
		return err
	}
	e.kv, err = js.CreateOrUpdateKeyValue(e.ctx, jetstream.KeyValueConfig{
		Bucket: e.bucket,
		TTL:    e.ttl,
	})
	if err != nil {
		return fmt.Errorf("could not setup bucket %s: %w", e.bucket, err)
	}
	return nil
}
