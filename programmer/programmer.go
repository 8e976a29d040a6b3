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

// Package programmer runs the service mode protocols on the programming track.
//
// Work is split over three cooperative layers polled by Run. The inner layer
// sends one service mode packet framed by reset packets and watches the ACK
// line, the byte layer combines inner steps into byte reads and writes, and
// the sequence layer implements the public operations. Each layer has its own
// state and only advances when the layer below it is idle.
package programmer

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
	"github.com/stefaandesmet2003/tapas/internal/retry"
	"github.com/stefaandesmet2003/tapas/organizer"
)

// Code is the outcome of a programming operation
type Code uint8

// Outcome codes
const (
	OK            Code = 0x00
	Timeout       Code = 0xFF
	NoAck         Code = 0xFE
	Short         Code = 0xFD
	NoDecoder     Code = 0xFC
	Err           Code = 0xFB
	BitErr        Code = 0xFA
	PageErr       Code = 0xF9
	SelectrixErr  Code = 0xF8
	BitCapable    Code = 0xF7
	NotBitCapable Code = 0xF6
	Terminated    Code = 0xF4
	NoTask        Code = 0xF3
	NoTerminate   Code = 0xF2
)

var codeNames = map[Code]string{
	OK:            "ok",
	Timeout:       "timeout",
	NoAck:         "no acknowledge",
	Short:         "short on programming track",
	NoDecoder:     "no decoder",
	Err:           "error",
	BitErr:        "bit operation error",
	PageErr:       "page error",
	SelectrixErr:  "selectrix error",
	BitCapable:    "bit operations supported",
	NotBitCapable: "bit operations not supported",
	Terminated:    "terminated",
	NoTask:        "no task",
	NoTerminate:   "cannot terminate",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(0x%02X)", uint8(c))
}

// Reply is the immediate answer to a request
type Reply uint8

const (
	// Accepted means the operation was started
	Accepted Reply = 0x00
	// BadParameter means an argument was out of range
	BadParameter Reply = 0x02
	// Busy means another operation is still running
	Busy Reply = 0x80
	// NoTaskReply answers Terminate when nothing runs
	NoTaskReply Reply = Reply(NoTask)
)

// Qualifier tells which addressing mode produced an outcome
type Qualifier uint8

const (
	QualifierRegister Qualifier = 0x10
	QualifierDirect   Qualifier = 0x14
)

// Outcome is the latched result of the last operation
type Outcome struct {
	Code      Code      `json:"code"`
	Qualifier Qualifier `json:"qualifier"`
	// CV is the 1-based CV, or the register number in register mode
	CV   uint16 `json:"cv"`
	Data uint8  `json:"data"`
	// Size is the number of valid result bytes: 1 for reads, 2 for the long address
	Size    int    `json:"size"`
	Address uint16 `json:"address,omitempty"`
}

// Queue is the service mode side of the organizer
type Queue interface {
	PutProg(m frame.Message) organizer.Result
	ProgEmpty() bool
	FlushProg() int
}

// Mailbox is the encoder repeat counter
type Mailbox interface {
	Count() int
	TruncateRepeat()
}

// AckSource reports the decoder acknowledge pulse on the programming track
type AckSource interface {
	Ack() bool
}

// Config holds the timing extensions
type Config struct {
	// ExtraResets is added to the leading reset count, at most 10
	ExtraResets uint8 `yaml:"extra_resets" json:"extraResets"`
	// ExtraCommands is added to the command repeat count, at most 10
	ExtraCommands uint8 `yaml:"extra_commands" json:"extraCommands"`
	// AutoLeave returns to the previous run mode after an operation
	AutoLeave    bool          `yaml:"auto_leave" json:"autoLeave"`
	DrainTimeout time.Duration `yaml:"drain_timeout" json:"drainTimeout"`
	// BitOpMemory is how long a bit capability probe is trusted
	BitOpMemory time.Duration `yaml:"bit_op_memory" json:"bitOpMemory"`
	// PageMemory is how long the decoder is assumed to keep its page register
	PageMemory time.Duration `yaml:"page_memory" json:"pageMemory"`
}

// DefaultConfig returns the standard programming track timing
func DefaultConfig() Config {
	return Config{
		ExtraResets:   3,
		ExtraCommands: 3,
		AutoLeave:     true,
		DrainTimeout:  250 * time.Millisecond,
		BitOpMemory:   500 * time.Millisecond,
		PageMemory:    500 * time.Millisecond,
	}
}

// ACK debounce: windows of samples, every window needs a quorum
const (
	ackWindows        = 5
	ackSamples        = 20
	ackQuorum         = 17
	ackSampleInterval = 10 * time.Microsecond
)

// Option configures a Programmer
type Option func(*Programmer)

// WithLogger sets the logger
func WithLogger(log *logrus.Entry) Option {
	return func(p *Programmer) {
		p.log = log
	}
}

// WithClock sets the clock used for the capability and page caches
func WithClock(c tapas.Clock) Option {
	return func(p *Programmer) {
		p.clock = c
	}
}

// WithSampleDelay replaces the busy wait between ACK samples
func WithSampleDelay(delay func(time.Duration)) Option {
	return func(p *Programmer) {
		p.delay = delay
	}
}

// WithDrainWait replaces the wait for the encoder mailbox to drain.
// The function polls done until it returns true and errors out on timeout.
func WithDrainWait(wait func(done func() bool) error) Option {
	return func(p *Programmer) {
		p.drainWait = wait
	}
}

// WithResultHandler registers a callback for every latched outcome
func WithResultHandler(fn func(Outcome)) Option {
	return func(p *Programmer) {
		p.onResult = fn
	}
}

// Programmer is the service mode state machine.
// It is not safe for concurrent use; call it from the station loop.
type Programmer struct {
	queue Queue
	enc   Mailbox
	mode  tapas.ModeController
	ack   AckSource
	clock tapas.Clock
	log   *logrus.Entry

	delay     func(time.Duration)
	drainWait func(done func() bool) error
	onResult  func(Outcome)

	direct   cycles
	register cycles
	cfg      Config

	in  inner
	by  byteOp
	seq sequence

	out          Outcome
	busy         bool
	leavePending bool
	saved        tapas.RunMode

	bitOps   bool
	bitCheck time.Time
	page     int
	pageAt   time.Time
}

// New creates a programmer feeding queue
func New(queue Queue, enc Mailbox, mode tapas.ModeController, ack AckSource, cfg Config, opts ...Option) *Programmer {
	p := &Programmer{
		queue:    queue,
		enc:      enc,
		mode:     mode,
		ack:      ack,
		clock:    tapas.SystemClock(),
		log:      logrus.WithField("component", "programmer"),
		delay:    spin,
		cfg:      cfg,
		direct:   directCycles.extend(cfg.ExtraResets, cfg.ExtraCommands),
		register: registerCycles.extend(cfg.ExtraResets, cfg.ExtraCommands),
		saved:    tapas.RunOff,
		page:     -1,
	}
	p.drainWait = p.pollDrain
	for _, opt := range opts {
		opt(p)
	}
	now := p.clock.Now()
	p.bitCheck = now
	p.pageAt = now
	return p
}

func spin(d time.Duration) {
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}

func (p *Programmer) pollDrain(done func() bool) error {
	_, err := retry.Until(p.cfg.DrainTimeout, 100*time.Microsecond, func() (struct{}, bool, error) {
		return struct{}{}, !done(), nil
	})
	return err
}

func (p *Programmer) waitDrain() {
	if err := p.drainWait(func() bool { return p.enc.Count() == 0 }); err != nil {
		p.log.WithError(err).Warn("encoder mailbox did not drain")
	}
}

// Busy reports whether an operation is running
func (p *Programmer) Busy() bool {
	return p.busy
}

// Result returns the outcome of the last operation
func (p *Programmer) Result() Outcome {
	return p.out
}

// Reset stops any running operation without touching the latched outcome.
// The station calls it when the run mode leaves the programming group. The
// programming track is unpowered by then, so queued service mode packets
// are dropped instead of waiting for the next operation.
func (p *Programmer) Reset() {
	p.stop()
	if n := p.queue.FlushProg(); n > 0 {
		p.log.Debugf("dropped %d queued service mode packets", n)
	}
}

func (p *Programmer) stop() {
	p.busy = false
	p.leavePending = false
	p.in.state = innerIdle
	p.by.state = byteIdle
	p.seq.state = seqIdle
}

// enter switches the station to the programming track and sends the
// power-on reset burst. The mode it came from is restored by leave.
func (p *Programmer) enter() {
	mode := p.mode.Mode()
	if mode == tapas.ProgOkay {
		return
	}
	if !mode.IsProg() {
		p.saved = mode
	}
	p.waitDrain()
	p.mode.SetMode(tapas.ProgOkay)
	p.putReset(20)
}

func (p *Programmer) leave() {
	p.waitDrain()
	target := p.saved
	if target.IsProg() {
		target = tapas.RunOff
	}
	p.log.Infof("leaving programming mode to %s", target)
	p.mode.SetMode(target)
}

func (p *Programmer) putReset(n uint8) {
	if n == 0 {
		return
	}
	m := frame.Reset
	m.Repeat = n
	p.queue.PutProg(m)
}

// Run advances the running operation by one step. It must be polled from
// the station loop as often as the organizer.
func (p *Programmer) Run() {
	now := p.clock.Now()
	if now.Sub(p.bitCheck) > p.cfg.BitOpMemory {
		p.bitOps = false
		p.bitCheck = now
	}
	if now.Sub(p.pageAt) > p.cfg.PageMemory {
		p.page = -1
		p.pageAt = now
	}

	if p.busy && p.mode.Mode() == tapas.ProgShort {
		p.abort(Short)
		return
	}

	if p.leavePending && !p.busy {
		// packets of an aborted operation still go out on the programming track
		if !p.queue.ProgEmpty() {
			return
		}
		p.leavePending = false
		p.leave()
		return
	}

	p.stepSequence()
}

// abort drops all layers. Packets already queued still drain while the
// station stays in programming mode.
func (p *Programmer) abort(code Code) {
	p.stop()
	p.out = Outcome{Code: code, Qualifier: p.out.Qualifier, CV: p.out.CV}
	p.log.Warnf("programming aborted: %s", code)
	if p.onResult != nil {
		p.onResult(p.out)
	}
	if code == Terminated && p.cfg.AutoLeave {
		p.leavePending = true
	}
}

// Terminate aborts the running operation
func (p *Programmer) Terminate() Reply {
	if !p.busy {
		return NoTaskReply
	}
	p.abort(Terminated)
	return Accepted
}

// debounce requires the ACK line to stay active over every sample window
func (p *Programmer) debounce() bool {
	for w := 0; w < ackWindows; w++ {
		n := 0
		for i := 0; i < ackSamples; i++ {
			p.delay(ackSampleInterval)
			if p.ack.Ack() {
				n++
			}
		}
		if n < ackQuorum {
			return false
		}
	}
	return true
}
