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

// Package lenz implements the host side of the LI101 serial protocol.
//
// A frame is a header byte whose low nibble is the number of data bytes,
// the data bytes and an XOR of everything before it. Receive moves bytes
// from the transport into the parser; Run is polled from the station loop,
// decodes complete frames and answers them.
package lenz

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
	"github.com/stefaandesmet2003/tapas/organizer"
	"github.com/stefaandesmet2003/tapas/programmer"
)

// Organizer is the command side used by the parser
type Organizer interface {
	Ready() bool
	LocoSpeedFormat(addr uint16, speed uint8, f tapas.Format) organizer.Result
	LocoFunction(addr uint16, group int, funcs uint8) (organizer.Result, error)
	EmergencyStop(addr uint16) organizer.Result
	Accessory(addr uint16, coil uint8, activate bool) organizer.Result
	ExtendedAccessory(addr uint16, aspect uint8) organizer.Result
	Turnout(addr uint16) (uint8, bool)
	PomLoco(addr, cv uint16, data uint8) organizer.Result
	PomLocoRead(addr, cv uint16) organizer.Result
	PomAccessory(addr, cv uint16, data uint8) organizer.Result
	PomAccessoryRead(addr, cv uint16) organizer.Result
	PomExtAccessory(addr, cv uint16, data uint8) organizer.Result
	PomExtAccessoryRead(addr, cv uint16) organizer.Result
	Loco(addr uint16) (organizer.Loco, bool)
	FormatOf(addr uint16) tapas.Format
	AddrInquiry(addr uint16, forward bool) uint16
	Delete(addr uint16)
}

// Programmer is the service mode side used by the parser
type Programmer interface {
	RegisterRead(reg uint8) programmer.Reply
	RegisterWrite(reg, data uint8) programmer.Reply
	PagedRead(cv uint16) programmer.Reply
	PagedWrite(cv uint16, data uint8) programmer.Reply
	DirectRead(cv uint16) programmer.Reply
	DirectWrite(cv uint16, data uint8) programmer.Reply
	Busy() bool
	Result() programmer.Outcome
}

// FastClock gives access to the model time
type FastClock interface {
	Clock() frame.Clock
	SetClock(c frame.Clock)
}

// Config holds the parser options
type Config struct {
	// InvertAccessory swaps the two outputs of every turnout
	InvertAccessory bool `yaml:"invert_accessory" json:"invertAccessory"`
	// ByteTimeout is the longest gap allowed inside a frame
	ByteTimeout time.Duration `yaml:"byte_timeout" json:"byteTimeout"`
}

// DefaultConfig returns the LI101 defaults
func DefaultConfig() Config {
	return Config{ByteTimeout: 250 * time.Millisecond}
}

// Fixed replies
var (
	replyTimeout  = []byte{0x01, 0x01}
	replyAck      = []byte{0x01, 0x04}
	replyXorError = []byte{0x61, 0x80}
	replyBusy     = []byte{0x61, 0x81}
	replyUnknown  = []byte{0x61, 0x82}
	bcTrackOff    = []byte{0x61, 0x00}
	bcTrackOn     = []byte{0x61, 0x01}
	bcProgMode    = []byte{0x61, 0x02}
	bcLocosOff    = []byte{0x81, 0x00}
	replyVersion  = []byte{0x63, 0x21, 0x36, 0x00}
	replyLIVer    = []byte{0x02, 0x10, 0x01}
)

type parseState uint8

const (
	stateIdle parseState = iota
	stateMessage
	stateXor
)

// maxFrame is a header plus 15 data bytes
const maxFrame = 16

// Option configures a Parser
type Option func(*Parser)

// WithLogger sets the logger
func WithLogger(log *logrus.Entry) Option {
	return func(p *Parser) {
		p.log = log
	}
}

// WithClock replaces the wall clock used for the byte timeout
func WithClock(c tapas.Clock) Option {
	return func(p *Parser) {
		p.clock = c
	}
}

// Parser decodes host frames. Receive may run in its own goroutine, every
// other method belongs to the station loop.
type Parser struct {
	transport tapas.Transport
	org       Organizer
	prog      Programmer
	modes     tapas.ModeController
	fast      FastClock
	clock     tapas.Clock
	log       *logrus.Entry
	cfg       Config

	rx chan byte

	state    parseState
	buf      [maxFrame]byte
	size     int
	index    int
	deadline time.Time

	pending []tapas.RunMode
	mu      sync.Mutex
}

// New creates a parser on transport
func New(transport tapas.Transport, org Organizer, prog Programmer, modes tapas.ModeController, fast FastClock, cfg Config, opts ...Option) *Parser {
	p := &Parser{
		transport: transport,
		org:       org,
		prog:      prog,
		modes:     modes,
		fast:      fast,
		clock:     tapas.SystemClock(),
		log:       logrus.WithField("component", "lenz"),
		cfg:       cfg,
		rx:        make(chan byte, 256),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnModeChange queues the broadcast for mode. It can be registered as a
// status subscriber.
func (p *Parser) OnModeChange(_, mode tapas.RunMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, mode)
}

// ReadOnce moves whatever the transport has into the parser
func (p *Parser) ReadOnce() (int, error) {
	var chunk [64]byte
	n, err := p.transport.Read(chunk[:])
	for _, b := range chunk[:n] {
		p.rx <- b
	}
	if err != nil {
		return n, tapas.NewTransportError("read", "", err, tapas.GetErrorType(err))
	}
	return n, nil
}

// idlePoll spaces reads on transports that return at once when empty
const idlePoll = time.Millisecond

// Receive reads the transport until ctx is done or it closes
func (p *Parser) Receive(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := p.ReadOnce()
		if err != nil {
			if errors.Is(err, tapas.ErrTransportClosed) {
				return err
			}
			if !tapas.IsRetryable(err) {
				p.log.WithError(err).Error("host link read failed")
				return err
			}
			p.log.WithError(err).Debug("host link read")
		}
		if n == 0 {
			time.Sleep(idlePoll)
		}
	}
}

func (p *Parser) next() (byte, bool) {
	select {
	case b := <-p.rx:
		return b, true
	default:
		return 0, false
	}
}

// send frames msg with its XOR and writes it to the host
func (p *Parser) send(msg []byte) {
	out := make([]byte, 0, len(msg)+1)
	var x byte
	for _, b := range msg {
		x ^= b
		out = append(out, b)
	}
	out = append(out, x)
	p.log.Debugf("tx: % X", out)
	if _, err := p.transport.Write(out); err != nil {
		p.log.WithError(err).Error("host link write failed")
	}
}

func (p *Parser) broadcast() {
	p.mu.Lock()
	modes := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, m := range modes {
		var msg []byte
		switch m {
		case tapas.RunOkay:
			msg = bcTrackOn
		case tapas.RunStop, tapas.RunPause:
			msg = bcLocosOff
		case tapas.RunOff, tapas.RunShort:
			msg = bcTrackOff
		case tapas.ProgOkay:
			msg = bcProgMode
		default:
			continue
		}
		p.send(msg)
		p.send(msg)
	}
}

// Run sends pending broadcasts and advances the frame decoder
func (p *Parser) Run() {
	p.broadcast()

	switch p.state {
	case stateIdle:
		b, ok := p.next()
		if !ok {
			return
		}
		p.buf[0] = b
		p.size = int(b & 0x0F)
		p.index = 0
		p.deadline = p.clock.Now().Add(p.cfg.ByteTimeout)
		p.state = stateMessage

	case stateMessage:
		if p.index == p.size {
			p.state = stateXor
			return
		}
		b, ok := p.next()
		if !ok {
			p.checkTimeout()
			return
		}
		p.index++
		p.buf[p.index] = b

	case stateXor:
		b, ok := p.next()
		if !ok {
			p.checkTimeout()
			return
		}
		p.state = stateIdle
		var x byte
		for _, c := range p.buf[:p.size+1] {
			x ^= c
		}
		if x != b {
			p.log.Warnf("xor mismatch in % X", p.buf[:p.size+1])
			p.send(replyXorError)
			return
		}
		p.log.Debugf("rx: % X", p.buf[:p.size+1])
		p.dispatch(p.buf[:p.size+1])
	}
}

func (p *Parser) checkTimeout() {
	if p.clock.Now().After(p.deadline) {
		p.state = stateIdle
		p.send(replyTimeout)
	}
}
