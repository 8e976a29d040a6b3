// tapas
// Copyright (c) 2025 The tapas Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of tapas.
//
// tapas is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// tapas is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with tapas; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package station wires the track encoder, the command organizer, the
// programmer, the run mode supervisor and the host link into one command
// station and runs its main loop.
//
// Everything except the encoder driver and the host receiver runs on the
// loop goroutine. Other goroutines reach the components through Exec.
package station

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/config"
	"github.com/stefaandesmet2003/tapas/encoder"
	"github.com/stefaandesmet2003/tapas/lenz"
	"github.com/stefaandesmet2003/tapas/monitor"
	"github.com/stefaandesmet2003/tapas/organizer"
	"github.com/stefaandesmet2003/tapas/programmer"
	"github.com/stefaandesmet2003/tapas/status"
	"github.com/stefaandesmet2003/tapas/store"
)

// ErrStopped is returned by Exec once the loop has ended
var ErrStopped = errors.New("station stopped")

// Hardware holds the track side of the station
type Hardware struct {
	Sink         encoder.BitSink
	Power        status.Power
	Ack          programmer.AckSource
	MainShort    status.Input
	ProgShort    status.Input
	ExternalStop status.Input
}

// Metrics counts loop activity
type Metrics struct {
	LoopCycles   int64 `json:"loopCycles"`
	MessagesSent int64 `json:"messagesSent"`
	QueueDrops   int64 `json:"queueDrops"`
	ProgRuns     int64 `json:"progRuns"`
	BitsSent     int64 `json:"bitsSent"`
}

// Option configures a Station
type Option func(*Station)

// WithLogger sets the logger
func WithLogger(log *logrus.Entry) Option {
	return func(s *Station) {
		s.log = log
	}
}

// WithClock replaces the wall clock of every component
func WithClock(c tapas.Clock) Option {
	return func(s *Station) {
		s.clock = c
	}
}

// WithHost attaches a host link speaking the LI101 protocol
func WithHost(t tapas.Transport) Option {
	return func(s *Station) {
		s.host = t
	}
}

// WithStore persists loco formats in st
func WithStore(st *store.Store) Option {
	return func(s *Station) {
		s.store = st
	}
}

// WithPublisher receives a snapshot every interval
func WithPublisher(interval time.Duration, fn func(monitor.Snapshot)) Option {
	return func(s *Station) {
		s.publish = fn
		s.snapEvery = interval
	}
}

// WithLoopDelay pauses the loop between cycles. Zero only yields.
func WithLoopDelay(d time.Duration) Option {
	return func(s *Station) {
		s.delay = d
	}
}

// WithStartMode sets the run mode entered when Run starts
func WithStartMode(m tapas.RunMode) Option {
	return func(s *Station) {
		s.startMode = m
	}
}

// WithProgrammerOptions passes extra options to the programmer
func WithProgrammerOptions(opts ...programmer.Option) Option {
	return func(s *Station) {
		s.progOpts = append(s.progOpts, opts...)
	}
}

// links breaks the construction cycle: the organizer reads the mode owned
// by status, and status resets the programmer built after it.
type links struct {
	status *status.Status
	prog   *programmer.Programmer
}

func (l *links) Mode() tapas.RunMode {
	return l.status.Mode()
}

func (l *links) Reset() {
	if l.prog != nil {
		l.prog.Reset()
	}
}

// Station is a complete command station
type Station struct {
	enc    *encoder.Encoder
	driver *encoder.Driver
	org    *organizer.Organizer
	prog   *programmer.Programmer
	status *status.Status
	parser *lenz.Parser

	host      tapas.Transport
	store     *store.Store
	clock     tapas.Clock
	log       *logrus.Entry
	progOpts  []programmer.Option
	publish   func(monitor.Snapshot)
	snapEvery time.Duration
	lastSnap  time.Time
	delay     time.Duration
	startMode tapas.RunMode
	flush     time.Duration

	requests chan func()
	done     chan struct{}
	snapshot atomic.Pointer[monitor.Snapshot]

	loopCycles atomic.Int64
	sent       atomic.Int64
	drops      atomic.Int64
	progRuns   atomic.Int64
	running    atomic.Bool
}

// New builds a station from cfg driving hw
func New(cfg *config.Config, hw Hardware, opts ...Option) (*Station, error) {
	if hw.Sink == nil || hw.Power == nil || hw.Ack == nil {
		return nil, errors.New("station needs a track sink, power outputs and an ack source")
	}
	s := &Station{
		clock:     tapas.SystemClock(),
		log:       logrus.WithField("component", "station"),
		delay:     50 * time.Microsecond,
		startMode: tapas.RunOkay,
		flush:     5 * time.Second,
		requests:  make(chan func(), 32),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.enc = encoder.New()
	if cfg.Cutout {
		s.enc.EnableCutout()
	}
	s.driver = encoder.NewDriver(s.enc, hw.Sink, encoder.WithLogger(s.log.WithField("component", "encoder")))

	l := &links{}
	orgOpts := []organizer.Option{organizer.WithLogger(s.log.WithField("component", "organizer"))}
	if s.store != nil {
		orgOpts = append(orgOpts, organizer.WithFormatStore(s.store))
	}
	s.org = organizer.New(s.enc, l, cfg.Organizer, orgOpts...)

	statusOpts := []status.Option{
		status.WithLogger(s.log.WithField("component", "status")),
		status.WithClock(s.clock),
		status.WithProgrammer(l),
	}
	if hw.MainShort != nil || hw.ProgShort != nil {
		statusOpts = append(statusOpts, status.WithShortInputs(hw.MainShort, hw.ProgShort))
	}
	if hw.ExternalStop != nil {
		statusOpts = append(statusOpts, status.WithExternalStop(hw.ExternalStop))
	}
	s.status = status.New(hw.Power, s.org, cfg.Status, statusOpts...)
	l.status = s.status

	progOpts := append([]programmer.Option{
		programmer.WithLogger(s.log.WithField("component", "programmer")),
		programmer.WithClock(s.clock),
		programmer.WithResultHandler(s.onResult),
	}, s.progOpts...)
	s.prog = programmer.New(s.org, s.enc, s.status, hw.Ack, cfg.Programmer, progOpts...)
	l.prog = s.prog
	s.org.SetProgBusy(s.prog.Busy)

	s.status.Subscribe(func(_, mode tapas.RunMode) {
		s.enc.SetServiceMode(mode.IsProg())
	})

	if s.host != nil {
		s.parser = lenz.New(s.host, s.org, s.prog, s.status, s.status, cfg.Lenz,
			lenz.WithLogger(s.log.WithField("component", "lenz")),
			lenz.WithClock(s.clock))
		s.status.Subscribe(s.parser.OnModeChange)
	}
	return s, nil
}

func (s *Station) onResult(out programmer.Outcome) {
	s.progRuns.Add(1)
	s.log.Infof("programming %s cv %d data %d", out.Code, out.CV, out.Data)
}

// Encoder returns the track encoder
func (s *Station) Encoder() *encoder.Encoder {
	return s.enc
}

// Organizer returns the command organizer. It belongs to the loop.
func (s *Station) Organizer() *organizer.Organizer {
	return s.org
}

// Programmer returns the service mode programmer. It belongs to the loop.
func (s *Station) Programmer() *programmer.Programmer {
	return s.prog
}

// Status returns the run mode owner. Mode and Subscribe are safe anywhere.
func (s *Station) Status() *status.Status {
	return s.status
}

// Metrics returns the loop counters
func (s *Station) Metrics() Metrics {
	return Metrics{
		LoopCycles:   s.loopCycles.Load(),
		MessagesSent: s.sent.Load(),
		QueueDrops:   s.drops.Load(),
		ProgRuns:     s.progRuns.Load(),
		BitsSent:     int64(s.driver.Bits()),
	}
}

// Snapshot returns the last published state, nil before the first one
func (s *Station) Snapshot() *monitor.Snapshot {
	return s.snapshot.Load()
}

// Exec runs fn on the loop goroutine and waits for it
func (s *Station) Exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case s.requests <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run operates the station until ctx is done or the track output fails.
// The tracks are switched off on return.
func (s *Station) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("station already running")
	}
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 3)
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}
	start("encoder", s.driver.Run)
	if s.parser != nil {
		start("host link", func(ctx context.Context) error {
			err := s.parser.Receive(ctx)
			if errors.Is(err, tapas.ErrTransportClosed) && ctx.Err() != nil {
				return nil
			}
			return err
		})
	}
	if s.store != nil {
		start("store", s.flushLoop)
	}

	s.status.SetMode(s.startMode)
	s.log.Infof("station running in %s", s.startMode)
	s.loop(ctx)

	s.status.SetMode(tapas.RunOff)
	cancel()
	wg.Wait()

	var err error
	if s.store != nil {
		err = s.store.Flush()
	}
	close(errs)
	for e := range errs {
		err = errors.Join(err, e)
	}
	s.log.Info("station stopped")
	return err
}

func (s *Station) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.requests:
			fn()
		default:
		}
		s.Step()
		if s.delay > 0 {
			time.Sleep(s.delay)
		} else {
			runtime.Gosched()
		}
	}
}

// Step runs one cycle of the cooperative loop. Run calls it; tests may
// drive a station without Run.
func (s *Station) Step() {
	s.status.Run()
	s.org.Run()
	s.prog.Run()
	if s.parser != nil {
		s.parser.Run()
	}

	s.loopCycles.Add(1)
	st := s.org.Stats()
	s.sent.Store(int64(st.Sent))
	s.drops.Store(int64(st.Dropped))

	if s.publish == nil {
		return
	}
	now := s.clock.Now()
	if now.Sub(s.lastSnap) < s.snapEvery {
		return
	}
	s.lastSnap = now
	snap := s.buildSnapshot(now)
	s.snapshot.Store(&snap)
	s.publish(snap)
}

func (s *Station) buildSnapshot(now time.Time) monitor.Snapshot {
	hp, lp, pq := s.org.QueueLengths()
	out := s.prog.Result()
	clk := s.status.Clock()
	m := s.Metrics()
	return monitor.Snapshot{
		Stamp:  now.UnixMilli(),
		Mode:   s.status.Mode().String(),
		Halted: s.org.Halted(),
		Locos:  s.org.Locos(),
		Programmer: monitor.ProgrammerState{
			Busy:   s.prog.Busy(),
			Result: out.Code.String(),
			CV:     out.CV,
			Data:   out.Data,
		},
		Clock: monitor.ClockState{
			Hour:      clk.Hour,
			Minute:    clk.Minute,
			DayOfWeek: clk.DayOfWeek,
			Ratio:     clk.Ratio,
		},
		Queues: monitor.QueueState{High: hp, Low: lp, Prog: pq},
		Counters: map[string]int64{
			"loopCycles":   m.LoopCycles,
			"messagesSent": m.MessagesSent,
			"queueDrops":   m.QueueDrops,
			"progRuns":     m.ProgRuns,
			"bitsSent":     m.BitsSent,
		},
	}
}

func (s *Station) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.flush)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.store.Flush(); err != nil {
				s.log.WithError(err).Warn("saving store")
			}
		}
	}
}
