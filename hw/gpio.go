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

// Package hw connects the station to GPIO lines through periph.io: the
// H-bridge inputs carrying the track signal, the track enables, the ACK
// detector and the short and external stop inputs.
package hw

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/encoder"
)

// Pins names the GPIO lines as known to gpioreg. An empty name leaves the
// function unconnected.
type Pins struct {
	TrackA       string `yaml:"track_a" json:"trackA"`
	TrackB       string `yaml:"track_b" json:"trackB"`
	MainEnable   string `yaml:"main_enable" json:"mainEnable"`
	ProgEnable   string `yaml:"prog_enable" json:"progEnable"`
	Ack          string `yaml:"ack" json:"ack"`
	MainShort    string `yaml:"main_short" json:"mainShort"`
	ProgShort    string `yaml:"prog_short" json:"progShort"`
	ExternalStop string `yaml:"external_stop" json:"externalStop"`
	// ShortActiveLow is set when the short comparators pull their line low
	ShortActiveLow bool `yaml:"short_active_low" json:"shortActiveLow"`
}

// DefaultPins is the Raspberry Pi wiring of the reference board
func DefaultPins() Pins {
	return Pins{
		TrackA:       "GPIO17",
		TrackB:       "GPIO27",
		MainEnable:   "GPIO22",
		ProgEnable:   "GPIO23",
		Ack:          "GPIO24",
		MainShort:    "GPIO5",
		ProgShort:    "GPIO6",
		ExternalStop: "GPIO13",
	}
}

// Init loads the periph.io host drivers
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("%w: %w", tapas.ErrHardwareUnavailable, err)
	}
	return nil
}

type outPin interface {
	Out(l gpio.Level) error
}

type inPin interface {
	Read() gpio.Level
}

// Board holds the opened lines
type Board struct {
	trackA, trackB gpio.PinIO
	mainEn, progEn gpio.PinIO
	ack            gpio.PinIO
	mainShort      gpio.PinIO
	progShort      gpio.PinIO
	stop           gpio.PinIO
	pins           Pins
	log            *logrus.Entry
}

func lookup(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", tapas.ErrPinNotFound, name)
	}
	return p, nil
}

// Open looks up and configures every named line. Outputs start low, so
// both tracks are off.
func Open(pins Pins, log *logrus.Entry) (*Board, error) {
	if log == nil {
		log = logrus.WithField("component", "hw")
	}
	b := &Board{pins: pins, log: log}

	outputs := []struct {
		name string
		dst  *gpio.PinIO
	}{
		{pins.TrackA, &b.trackA},
		{pins.TrackB, &b.trackB},
		{pins.MainEnable, &b.mainEn},
		{pins.ProgEnable, &b.progEn},
	}
	for _, o := range outputs {
		p, err := lookup(o.name)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("configuring %s as output: %w", o.name, err)
		}
		*o.dst = p
	}

	shortPull := gpio.PullDown
	if pins.ShortActiveLow {
		shortPull = gpio.PullUp
	}
	inputs := []struct {
		name string
		pull gpio.Pull
		dst  *gpio.PinIO
	}{
		{pins.Ack, gpio.PullDown, &b.ack},
		{pins.MainShort, shortPull, &b.mainShort},
		{pins.ProgShort, shortPull, &b.progShort},
		{pins.ExternalStop, gpio.PullUp, &b.stop},
	}
	for _, in := range inputs {
		p, err := lookup(in.name)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		if err := p.In(in.pull, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("configuring %s as input: %w", in.name, err)
		}
		*in.dst = p
	}

	log.WithField("pins", fmt.Sprintf("%+v", pins)).Info("gpio lines configured")
	return b, nil
}

// Sink returns the track signal output. It needs both H-bridge lines.
func (b *Board) Sink() (*TrackSink, error) {
	if b.trackA == nil || b.trackB == nil {
		return nil, fmt.Errorf("%w: track output needs both H-bridge lines", tapas.ErrPinNotFound)
	}
	return NewTrackSink(b.trackA, b.trackB), nil
}

// Power returns the track enable outputs
func (b *Board) Power() *Power {
	return &Power{main: b.mainEn, prog: b.progEn, log: b.log}
}

// AckLine returns the ACK detector input, nil when not wired
func (b *Board) AckLine() *Input {
	return newInput(b.ack, gpio.High)
}

// ShortInputs returns the short comparator inputs of both tracks
func (b *Board) ShortInputs() (main, prog *Input) {
	active := gpio.High
	if b.pins.ShortActiveLow {
		active = gpio.Low
	}
	return newInput(b.mainShort, active), newInput(b.progShort, active)
}

// ExternalStop returns the stop button input, active low
func (b *Board) ExternalStop() *Input {
	return newInput(b.stop, gpio.Low)
}

// Halt drives every output low
func (b *Board) Halt() {
	for _, p := range []gpio.PinIO{b.trackA, b.trackB, b.mainEn, b.progEn} {
		if p != nil {
			_ = p.Out(gpio.Low)
		}
	}
}

// Power switches the track enables. It implements status.Power.
type Power struct {
	main outPin
	prog outPin
	log  *logrus.Entry
}

func (p *Power) set(pin outPin, track string, on bool) {
	if pin == nil {
		return
	}
	if err := pin.Out(gpio.Level(on)); err != nil {
		p.log.WithError(err).Errorf("switching %s track", track)
	}
}

// SetMain switches the main track output
func (p *Power) SetMain(on bool) {
	p.set(p.main, "main", on)
}

// SetProg switches the programming track output
func (p *Power) SetProg(on bool) {
	p.set(p.prog, "programming", on)
}

// Input is a digital input with a configurable active level. A nil Input is
// never active. It implements status.Input and programmer.AckSource.
type Input struct {
	pin    inPin
	active gpio.Level
}

func newInput(p gpio.PinIO, active gpio.Level) *Input {
	if p == nil {
		return nil
	}
	return &Input{pin: p, active: active}
}

// Active reports whether the line is at its active level
func (in *Input) Active() bool {
	if in == nil || in.pin == nil {
		return false
	}
	return in.pin.Read() == in.active
}

// Ack reports whether a decoder acknowledge pulse is present
func (in *Input) Ack() bool {
	return in.Active()
}

// TrackSink drives the two H-bridge inputs in opposite phase. It
// implements encoder.BitSink.
type TrackSink struct {
	a, b outPin
	wait func(time.Duration)
}

// NewTrackSink creates a sink on the two bridge lines
func NewTrackSink(a, b outPin) *TrackSink {
	return &TrackSink{a: a, b: b, wait: spin}
}

// spin busy-waits; sleeping cannot hold a 58 µs half period
func spin(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

func (s *TrackSink) drive(aLevel, bLevel gpio.Level) error {
	if err := s.a.Out(aLevel); err != nil {
		return err
	}
	return s.b.Out(bLevel)
}

// Emit puts one symbol on the track
func (s *TrackSink) Emit(bit encoder.Bit) error {
	half := bit.HalfPeriod()
	switch bit {
	case encoder.CutoutStart:
		if err := s.drive(gpio.High, gpio.Low); err != nil {
			return err
		}
		s.wait(encoder.CutoutGap)
		if err := s.drive(gpio.Low, gpio.Low); err != nil {
			return err
		}
		s.wait(2*half - encoder.CutoutGap)
		return nil
	case encoder.CutoutEnd:
		if err := s.drive(gpio.Low, gpio.Low); err != nil {
			return err
		}
		s.wait(2 * half)
		return nil
	default:
		if err := s.drive(gpio.High, gpio.Low); err != nil {
			return err
		}
		s.wait(half)
		if err := s.drive(gpio.Low, gpio.High); err != nil {
			return err
		}
		s.wait(half)
		return nil
	}
}

var _ encoder.BitSink = (*TrackSink)(nil)
