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

// Package i2c reads an INA219 current monitor on the programming track and
// reports decoder acknowledge pulses from the current rise.
package i2c

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"

	"github.com/stefaandesmet2003/tapas"
)

const (
	// DefaultAddress is the INA219 address with A0 and A1 grounded
	DefaultAddress = 0x40

	regConfig = 0x00
	regShunt  = 0x01

	// configDefault is 32 V range, 320 mV shunt range, 12 bit, continuous
	configDefault = 0x399F

	// shuntLSB is the shunt voltage resolution in microvolts
	shuntLSB = 10

	maxClockFreq = 400 * physic.KiloHertz
)

// Config sets the shunt and the ACK threshold
type Config struct {
	ShuntOhms    float64 `yaml:"shunt_ohms" json:"shuntOhms"`
	AckMilliamps float64 `yaml:"ack_milliamps" json:"ackMilliamps"`
}

// DefaultConfig is a 0.1 Ω shunt and the 60 mA ACK pulse of the standard
func DefaultConfig() Config {
	return Config{ShuntOhms: 0.1, AckMilliamps: 60}
}

// Sensor is an INA219 on an I2C bus. It implements programmer.AckSource.
type Sensor struct {
	dev       *i2c.Dev
	closer    io.Closer
	log       *logrus.Entry
	name      string
	threshold int
	baseline  int
	primed    bool
	failed    bool
	mu        sync.Mutex
}

// Open opens busName through i2creg and configures the sensor at addr
func Open(busName string, addr uint16, cfg Config) (*Sensor, error) {
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("%w: i2c bus %s: %w", tapas.ErrHardwareUnavailable, busName, err)
	}
	_ = bus.SetSpeed(maxClockFreq)
	s, err := New(bus, busName, addr, cfg)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	s.closer = bus
	return s, nil
}

// Close releases a bus opened by Open
func (s *Sensor) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// New configures the sensor at addr on bus
func New(bus i2c.Bus, busName string, addr uint16, cfg Config) (*Sensor, error) {
	if cfg.ShuntOhms <= 0 {
		cfg = DefaultConfig()
	}
	s := &Sensor{
		dev:       &i2c.Dev{Addr: addr, Bus: bus},
		name:      fmt.Sprintf("%s:0x%02X", busName, addr),
		log:       logrus.WithField("component", "ina219"),
		threshold: int(cfg.AckMilliamps * cfg.ShuntOhms * 1000),
	}
	if err := s.dev.Tx([]byte{regConfig, configDefault >> 8, configDefault & 0xFF}, nil); err != nil {
		return nil, tapas.NewTransportError("configure", s.name, err, tapas.ErrorTypePermanent)
	}
	return s, nil
}

// ShuntMicrovolts reads the shunt voltage
func (s *Sensor) ShuntMicrovolts() (int, error) {
	var r [2]byte
	if err := s.dev.Tx([]byte{regShunt}, r[:]); err != nil {
		return 0, tapas.NewTransportError("read shunt", s.name, err, tapas.ErrorTypeTransient)
	}
	return int(int16(uint16(r[0])<<8|uint16(r[1]))) * shuntLSB, nil
}

// Ack reports whether the current is at least the ACK threshold above the
// quiescent level. The quiescent level follows the readings below threshold.
func (s *Sensor) Ack() bool {
	v, err := s.ShuntMicrovolts()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if !s.failed {
			s.log.WithError(err).Warn("current sensor read failed")
			s.failed = true
		}
		return false
	}
	s.failed = false
	if !s.primed {
		s.baseline = v
		s.primed = true
		return false
	}
	if v-s.baseline >= s.threshold {
		return true
	}
	s.baseline = (s.baseline*7 + v) / 8
	return false
}

// Rebase forgets the quiescent level, for a new decoder on the track
func (s *Sensor) Rebase() {
	s.mu.Lock()
	s.primed = false
	s.mu.Unlock()
}

// Probe reports whether an INA219 with its power-on configuration answers at
// addr, and whether anything answered at all
func Probe(bus i2c.Bus, addr uint16) (confirmed, present bool) {
	var r [2]byte
	dev := &i2c.Dev{Addr: addr, Bus: bus}
	if err := dev.Tx([]byte{regConfig}, r[:]); err != nil {
		return false, false
	}
	return uint16(r[0])<<8|uint16(r[1]) == configDefault, true
}
