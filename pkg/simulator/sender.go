package simulator

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/packet"
)

// Sender writes the datagrams of a Generator to w at a fixed rate
type Sender struct {
	g         *Generator
	w         io.Writer
	interval  time.Duration
	timeScale uint32
	maxLaps   uint8
	sent      int
	l         *log.Logger
}

type SenderOption func(s *Sender)

func WithInterval(d time.Duration) SenderOption {
	return func(s *Sender) { s.interval = d }
}

// WithTimeScale speeds up the simulated clock relative to the send interval
func WithTimeScale(scale uint32) SenderOption {
	return func(s *Sender) { s.timeScale = scale }
}

// WithMaxLaps stops the sender when this lap number is reached (0 = endless)
func WithMaxLaps(laps uint8) SenderOption {
	return func(s *Sender) { s.maxLaps = laps }
}

func WithSenderLogger(l *log.Logger) SenderOption {
	return func(s *Sender) { s.l = l }
}

func NewSender(g *Generator, w io.Writer, opts ...SenderOption) *Sender {
	s := &Sender{
		g:         g,
		w:         w,
		interval:  50 * time.Millisecond,
		timeScale: 1,
		l:         log.Default().Named("sim"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) Sent() int { return s.sent }

// Run sends a session start followed by lap, telemetry, status and damage
// datagrams until ctx is done or the lap limit is reached.
func (s *Sender) Run(ctx context.Context) error {
	if err := s.send(s.g.Event(packet.EventSessionStarted), s.g.Session()); err != nil {
		return err
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	step := uint32(s.interval.Milliseconds()) * s.timeScale
	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			s.l.Info("sender stopped", log.Int("sent", s.sent))
			return nil
		case <-ticker.C:
		}
		before := s.g.Lap()
		s.g.Advance(step)
		if s.g.Lap() != before {
			s.l.Info("lap completed", log.Uint8("lap", before))
		}
		if s.maxLaps > 0 && s.g.Lap() > s.maxLaps {
			err := s.send(s.g.Event(packet.EventSessionEnded))
			s.l.Info("lap limit reached", log.Int("sent", s.sent))
			return err
		}
		batch := [][]byte{s.g.LapData(), s.g.Telemetry()}
		if tick%10 == 0 {
			batch = append(batch, s.g.Status(), s.g.Damage(), s.g.Session())
		}
		if err := s.send(batch...); err != nil {
			return err
		}
	}
}

func (s *Sender) send(datagrams ...[]byte) error {
	for _, d := range datagrams {
		if _, err := s.w.Write(d); err != nil {
			return fmt.Errorf("error sending datagram: %w", err)
		}
		s.sent++
	}
	return nil
}
