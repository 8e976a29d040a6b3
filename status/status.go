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

// Package status owns the station run mode.
//
// SetMode applies the track power side effects of every transition and
// notifies subscribers. Run is polled from the station loop: it watches
// both short inputs and the external stop input, and drives the fast clock.
package status

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
	"github.com/stefaandesmet2003/tapas/organizer"
)

// Power switches the track outputs
type Power interface {
	SetMain(on bool)
	SetProg(on bool)
}

// Input is a digital input such as a short sense line or the external stop
type Input interface {
	Active() bool
}

// Organizer is the part of the command organizer status drives
type Organizer interface {
	OnModeChange(old, mode tapas.RunMode)
	FastClock(c frame.Clock) organizer.Result
}

// Resetter clears the programmer when the programming track is left
type Resetter interface {
	Reset()
}

// Event is a hardware event reported to the event handler
type Event int

const (
	EventMainShort Event = iota
	EventProgShort
	EventExternalStop
)

func (e Event) String() string {
	switch e {
	case EventMainShort:
		return "main short"
	case EventProgShort:
		return "programming short"
	case EventExternalStop:
		return "external stop"
	default:
		return "unknown event"
	}
}

// Config holds the supervision timing
type Config struct {
	MainIgnore       time.Duration `yaml:"main_ignore" json:"mainIgnore"`
	ProgIgnore       time.Duration `yaml:"prog_ignore" json:"progIgnore"`
	FastRecoverOff   time.Duration `yaml:"fast_recover_off" json:"fastRecoverOff"`
	FastRecoverOn    time.Duration `yaml:"fast_recover_on" json:"fastRecoverOn"`
	RecoverAttempts  int           `yaml:"recover_attempts" json:"recoverAttempts"`
	SlowRecover      time.Duration `yaml:"slow_recover" json:"slowRecover"`
	ExternalStop     bool          `yaml:"external_stop" json:"externalStop"`
	ExternalStopDead time.Duration `yaml:"external_stop_dead" json:"externalStopDead"`
	// ClockRatio is the fast clock speed-up, 0 stops the clock
	ClockRatio uint8 `yaml:"clock_ratio" json:"clockRatio"`
}

// DefaultConfig returns the standard timing
func DefaultConfig() Config {
	return Config{
		MainIgnore:       8 * time.Millisecond,
		ProgIgnore:       40 * time.Millisecond,
		FastRecoverOff:   4 * time.Millisecond,
		FastRecoverOn:    1 * time.Millisecond,
		RecoverAttempts:  3,
		SlowRecover:      time.Second,
		ExternalStopDead: 30 * time.Millisecond,
		ClockRatio:       8,
	}
}

// Option configures a Status
type Option func(*Status)

// WithLogger sets the logger
func WithLogger(log *logrus.Entry) Option {
	return func(s *Status) {
		s.log = log
	}
}

// WithClock replaces the wall clock
func WithClock(c tapas.Clock) Option {
	return func(s *Status) {
		s.clock = c
	}
}

// WithShortInputs connects the short sense lines. A nil input is never short.
func WithShortInputs(main, prog Input) Option {
	return func(s *Status) {
		s.mainShort.input = main
		s.progShort.input = prog
	}
}

// WithExternalStop connects the external stop input
func WithExternalStop(in Input) Option {
	return func(s *Status) {
		s.extStop = in
	}
}

// WithProgrammer sets the programmer reset when leaving the programming track
func WithProgrammer(p Resetter) Option {
	return func(s *Status) {
		s.prog = p
	}
}

// WithEventHandler registers a callback for shorts and external stops
func WithEventHandler(fn func(Event)) Option {
	return func(s *Status) {
		s.onEvent = fn
	}
}

// Subscriber is told about every mode change
type Subscriber func(old, mode tapas.RunMode)

// Status is the run mode owner. Mode and Subscribe are safe for concurrent
// use; SetMode and Run belong to the station loop.
type Status struct {
	power   Power
	org     Organizer
	prog    Resetter
	extStop Input
	clock   tapas.Clock
	log     *logrus.Entry
	onEvent func(Event)

	cfg       Config
	mainShort detector
	progShort detector
	extOkAt   time.Time

	fast    fastClock
	onClock []func(frame.Clock)

	subs []Subscriber
	mode tapas.RunMode
	mu   sync.RWMutex
}

// New creates a Status with both tracks off
func New(power Power, org Organizer, cfg Config, opts ...Option) *Status {
	s := &Status{
		power: power,
		org:   org,
		clock: tapas.SystemClock(),
		log:   logrus.WithField("component", "status"),
		cfg:   cfg,
		mode:  tapas.RunOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mainShort.init("main", cfg.MainIgnore, &s.cfg, func(on bool) { s.power.SetMain(on) })
	s.progShort.init("programming", cfg.ProgIgnore, &s.cfg, func(on bool) { s.power.SetProg(on) })
	now := s.clock.Now()
	s.extOkAt = now
	s.fast = fastClock{
		time: frame.Clock{Hour: 8, Ratio: cfg.ClockRatio},
		tick: now,
	}
	s.power.SetMain(false)
	s.power.SetProg(false)
	return s
}

// Mode returns the current run mode
func (s *Status) Mode() tapas.RunMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Subscribe registers fn for mode changes
func (s *Status) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// OnClock registers fn for every fast clock minute
func (s *Status) OnClock(fn func(frame.Clock)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClock = append(s.onClock, fn)
}

// SetMode switches to next and applies the track side effects
func (s *Status) SetMode(next tapas.RunMode) {
	s.mu.Lock()
	old := s.mode
	if next == old {
		s.mu.Unlock()
		return
	}
	s.mode = next
	subs := append([]Subscriber(nil), s.subs...)
	s.mu.Unlock()

	s.log.Infof("run mode %s -> %s", old, next)

	if old.IsProg() && !next.IsProg() && s.prog != nil {
		s.prog.Reset()
	}

	switch next {
	case tapas.RunOkay, tapas.RunStop, tapas.RunPause:
		s.power.SetProg(false)
		s.power.SetMain(true)
	case tapas.RunOff, tapas.RunShort, tapas.ProgShort, tapas.ProgOff:
		s.power.SetProg(false)
		s.power.SetMain(false)
	case tapas.ProgOkay, tapas.ProgError:
		s.power.SetMain(false)
		s.power.SetProg(true)
	}
	s.org.OnModeChange(old, next)

	for _, fn := range subs {
		fn(old, next)
	}
}

// Run polls the inputs and the fast clock
func (s *Status) Run() {
	now := s.clock.Now()
	s.stepClock(now)

	mode := s.Mode()
	if mode != tapas.RunShort && mode != tapas.ProgShort {
		if s.mainShort.check(now) {
			s.SetMode(tapas.RunShort)
			s.event(EventMainShort)
		}
		if s.progShort.check(now) {
			s.SetMode(tapas.ProgShort)
			s.event(EventProgShort)
		}
	}

	if s.cfg.ExternalStop && s.extStop != nil && s.Mode() != tapas.RunOff {
		switch {
		case !s.extStop.Active():
			s.extOkAt = now
		case now.Sub(s.extOkAt) > s.cfg.ExternalStopDead:
			s.SetMode(tapas.RunOff)
			s.event(EventExternalStop)
		}
	}
}

func (s *Status) event(e Event) {
	s.log.Warnf("hardware event: %s", e)
	if s.onEvent != nil {
		s.onEvent(e)
	}
}
