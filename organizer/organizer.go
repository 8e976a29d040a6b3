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

// Package organizer decides which DCC message goes to the track next.
//
// New commands enter a high or low priority queue, are copied into a repeat
// buffer after their first transmission and, for locomotives, are kept in a
// refresh table (the locobuffer) that is cycled whenever nothing else is
// pending. While the station is in a programming mode only the service mode
// queue is served.
//
// An Organizer is not safe for concurrent use. The station calls Run and the
// command methods from a single loop goroutine.
package organizer

import (
	"github.com/sirupsen/logrus"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
	"github.com/stefaandesmet2003/tapas/internal/ring"
)

// Transmitter is the encoder mailbox
type Transmitter interface {
	// Load hands a message to the encoder. It returns false while the
	// previous message is still being repeated.
	Load(m frame.Message, count int) bool
	// Count returns the number of transmissions still pending
	Count() int
}

// FormatStore keeps the speed step format of each decoder address
type FormatStore interface {
	Format(addr uint16) tapas.Format
	SetFormat(addr uint16, f tapas.Format) error
}

// ModeReader returns the current run mode
type ModeReader interface {
	Mode() tapas.RunMode
}

// Result is the bitmask returned by the command methods
type Result uint8

const (
	// SlowDown is set when the speed decreased or the direction changed.
	// The command was also put in the high priority queue.
	SlowDown Result = 1 << 0
	// Stolen is reserved for handing a locomotive over between controllers
	Stolen Result = 1 << 1
	// NewEntry is set when a refresh table slot was (re)allocated
	NewEntry Result = 1 << 2
	// Full is set when a queue has at most one free slot left, or when the
	// command had to be dropped
	Full Result = 1 << 7
)

// Has reports whether all bits of flag are set
func (r Result) Has(flag Result) bool {
	return r&flag == flag
}

// Config holds the organizer dimensions and repeat counts
type Config struct {
	Repeats           frame.Repeats `yaml:"repeats" json:"repeats"`
	ProgQueue         int           `yaml:"prog_queue" json:"progQueue"`
	HighQueue         int           `yaml:"high_queue" json:"highQueue"`
	LowQueue          int           `yaml:"low_queue" json:"lowQueue"`
	RepeatBuffer      int           `yaml:"repeat_buffer" json:"repeatBuffer"`
	Locos             int           `yaml:"locos" json:"locos"`
	ExtendedFunctions bool          `yaml:"extended_functions" json:"extendedFunctions"`
	// StopRepeat is the repeat count of the broadcast brake sent by AllStop
	StopRepeat uint8 `yaml:"stop_repeat" json:"stopRepeat"`
}

// DefaultConfig returns the standard dimensions
func DefaultConfig() Config {
	return Config{
		Repeats:           frame.DefaultRepeats(),
		ProgQueue:         6,
		HighQueue:         8,
		LowQueue:          16,
		RepeatBuffer:      32,
		Locos:             5,
		ExtendedFunctions: true,
		StopRepeat:        10,
	}
}

// Stats counts organizer activity
type Stats struct {
	Sent      uint64
	FromHigh  uint64
	FromLow   uint64
	FromProg  uint64
	Repeated  uint64
	Refreshed uint64
	Idle      uint64
	Dropped   uint64
}

// Option configures an Organizer
type Option func(*Organizer)

// WithLogger sets the logger
func WithLogger(log *logrus.Entry) Option {
	return func(o *Organizer) {
		o.log = log
	}
}

// WithFormatStore sets the decoder format database
func WithFormatStore(db FormatStore) Option {
	return func(o *Organizer) {
		o.db = db
	}
}

// WithProgBusy sets the predicate telling whether the service mode
// programmer owns the programming queue
func WithProgBusy(busy func() bool) Option {
	return func(o *Organizer) {
		o.progBusy = busy
	}
}

// Organizer is the command scheduler
type Organizer struct {
	tx       Transmitter
	mode     ModeReader
	db       FormatStore
	progBusy func() bool
	log      *logrus.Entry

	build frame.Builder
	cfg   Config

	hp   *ring.Ring[frame.Message]
	lp   *ring.Ring[frame.Message]
	prog *ring.Ring[frame.Message]

	repeat   []frame.Message
	locos    []Loco
	turnouts map[uint16]uint8

	refresh refreshCursor

	last    frame.Message
	hasLast bool
	halted  bool

	stats Stats
}

// New creates an organizer feeding tx. The run mode is read from mode on
// every scheduling decision.
func New(tx Transmitter, mode ModeReader, cfg Config, opts ...Option) *Organizer {
	def := DefaultConfig()
	if cfg.ProgQueue < 3 {
		cfg.ProgQueue = def.ProgQueue
	}
	if cfg.HighQueue < 3 {
		cfg.HighQueue = def.HighQueue
	}
	if cfg.LowQueue < 3 {
		cfg.LowQueue = def.LowQueue
	}
	if cfg.RepeatBuffer < 1 {
		cfg.RepeatBuffer = def.RepeatBuffer
	}
	if cfg.Locos < 1 {
		cfg.Locos = def.Locos
	}

	o := &Organizer{
		tx:       tx,
		mode:     mode,
		db:       defaultFormats{format: tapas.DCC28},
		progBusy: func() bool { return false },
		log:      logrus.WithField("component", "organizer"),
		build:    frame.NewBuilder(cfg.Repeats),
		cfg:      cfg,
		hp:       ring.New[frame.Message](cfg.HighQueue),
		lp:       ring.New[frame.Message](cfg.LowQueue),
		prog:     ring.New[frame.Message](cfg.ProgQueue),
		repeat:   make([]frame.Message, cfg.RepeatBuffer),
		locos:    make([]Loco, cfg.Locos),
		turnouts: make(map[uint16]uint8),
	}
	o.refresh.init(len(o.locos), cfg.ExtendedFunctions)

	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetProgBusy replaces the programmer busy predicate.
// The programmer is created after the organizer, so the station wires it late.
func (o *Organizer) SetProgBusy(busy func() bool) {
	o.progBusy = busy
}

// Builder returns the message builder using the configured repeat counts
func (o *Organizer) Builder() frame.Builder {
	return o.build
}

// Stats returns a copy of the activity counters
func (o *Organizer) Stats() Stats {
	return o.stats
}

// Halted reports whether speed commands are currently forced to stop
func (o *Organizer) Halted() bool {
	return o.halted
}

// Ready reports whether a new command can be accepted without risking a drop
func (o *Organizer) Ready() bool {
	return !o.hp.NearlyFull() && !o.lp.NearlyFull()
}

// OnModeChange applies the organizer side of a run mode transition
func (o *Organizer) OnModeChange(_, mode tapas.RunMode) {
	switch mode {
	case tapas.RunStop:
		o.AllStop()
	case tapas.RunOkay, tapas.ProgOkay:
		o.halted = false
	}
}

// AllStop puts a repeated broadcast brake at the head of the high priority
// path and holds all speed commands at zero until the next RUN_OKAY
func (o *Organizer) AllStop() Result {
	o.halted = true
	m := frame.BroadcastBrake
	m.Repeat = o.cfg.StopRepeat
	return o.putHigh(m)
}

// Run loads the next message into the encoder when its mailbox is free.
// It must be called often, at least once per transmitted packet.
func (o *Organizer) Run() {
	if o.tx.Count() != 0 {
		return
	}

	switch o.mode.Mode() {
	case tapas.RunOkay, tapas.RunPause, tapas.RunStop:
		o.runMain()
	case tapas.ProgOkay, tapas.ProgShort, tapas.ProgOff, tapas.ProgError:
		o.runProg()
	default:
		// outputs are off; the encoder keeps sending ones
	}
}

func (o *Organizer) sameAsLast(m *frame.Message) bool {
	return o.hasLast && m.Data[0] == o.last.Data[0]
}

func (o *Organizer) runMain() {
	if m, ok := o.hp.Peek(); ok && !o.sameAsLast(m) {
		msg := *m
		o.hp.Pop()
		o.stats.FromHigh++
		o.send(msg, false)
		o.updateRepeat(&msg)
		return
	}

	if m, ok := o.lp.Peek(); ok && !o.sameAsLast(m) {
		msg := *m
		o.lp.Pop()
		o.stats.FromLow++
		o.send(msg, false)
		o.updateRepeat(&msg)
		return
	}

	if msg, ok := o.nextRepeat(); ok && !o.sameAsLast(&msg) {
		o.stats.Repeated++
		o.send(msg, false)
		return
	}

	msg, idle := o.nextRefresh()
	if idle {
		o.stats.Idle++
	} else {
		o.stats.Refreshed++
	}
	o.send(msg, false)
}

func (o *Organizer) runProg() {
	if m, ok := o.prog.Peek(); ok {
		msg := *m
		o.prog.Pop()
		o.stats.FromProg++
		o.send(msg, true)
		return
	}
	o.stats.Idle++
	o.send(frame.Idle, false)
}

// send hands m to the encoder. Service mode packets keep their own repeat
// count; everything else goes out once and is repeated from the repeat buffer.
func (o *Organizer) send(m frame.Message, keepRepeat bool) {
	if o.halted {
		maskSpeed(&m)
	}

	count := 1
	if keepRepeat || m.Type == frame.TypeProg {
		count = int(m.Repeat)
		if count == 0 {
			count = 1
		}
	}

	if !o.tx.Load(m, count) {
		return
	}
	o.last = m
	o.hasLast = true
	o.stats.Sent++
	if o.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		o.log.Debugf("tx: %s x%d", m, count)
	}
}

// maskSpeed forces the speed of a loco speed command to stop, keeping the direction
func maskSpeed(m *frame.Message) {
	at, ok := instrOffset(m)
	if !ok {
		return
	}
	switch kindAt(m, at) {
	case kindSpeed128:
		m.Data[at+1] &= frame.SpeedDirection
	case kindSpeed:
		m.Data[at] &= 0xF0
	}
}

// defaultFormats answers a fixed format when no database is wired
type defaultFormats struct {
	format tapas.Format
}

func (d defaultFormats) Format(uint16) tapas.Format { return d.format }

func (defaultFormats) SetFormat(uint16, tapas.Format) error { return nil }
