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

package programmer

import (
	"errors"
	"sync"

	"github.com/stefaandesmet2003/tapas/internal/frame"
)

// SimTrack is an encoder mailbox that hands every started packet to a
// FakeDecoder. Tick starts one packet.
type SimTrack struct {
	Decoder *FakeDecoder
	cur     frame.Message
	count   int
	mu      sync.Mutex
}

// Load accepts a message when the mailbox is empty
func (s *SimTrack) Load(m frame.Message, count int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count != 0 {
		return false
	}
	if count < 1 {
		count = 1
	}
	s.cur = m
	s.count = count
	return true
}

// Count returns the copies left in the mailbox
func (s *SimTrack) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// TruncateRepeat leaves a single copy to send
func (s *SimTrack) TruncateRepeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count > 1 {
		s.count = 1
	}
}

// Tick starts the next packet
func (s *SimTrack) Tick() {
	s.mu.Lock()
	if s.count == 0 {
		s.mu.Unlock()
		return
	}
	s.count--
	m := s.cur
	s.mu.Unlock()
	if s.Decoder != nil {
		s.Decoder.Receive(m)
	}
}

// DrainWait ticks the track until done reports true
func (s *SimTrack) DrainWait(done func() bool) error {
	for i := 0; i < 1000; i++ {
		if done() {
			return nil
		}
		s.Tick()
	}
	return errors.New("sim track did not drain")
}

// FakeDecoder answers service mode packets like a multifunction decoder
// sitting on the programming track
type FakeDecoder struct {
	CV map[uint16]uint8
	// BitOps enables bit manipulation packets
	BitOps bool
	// Absent makes the decoder ignore everything
	Absent bool
	Page   uint8

	ack      bool
	received [][]byte
	mu       sync.Mutex
}

// NewFakeDecoder creates a decoder with an empty CV table on page 1
func NewFakeDecoder() *FakeDecoder {
	return &FakeDecoder{CV: make(map[uint16]uint8), Page: 1}
}

// Ack implements AckSource
func (d *FakeDecoder) Ack() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ack
}

// Received returns the payloads seen so far
func (d *FakeDecoder) Received() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.received...)
}

// Receive processes one packet. The acknowledge stays active until a
// packet arrives that is not acknowledged.
func (d *FakeDecoder) Receive(m frame.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := append([]byte(nil), m.Payload()...)
	d.received = append(d.received, p)
	d.ack = !d.Absent && d.accept(p)
}

// registerCV maps a 0-based physical register onto a CV
func (d *FakeDecoder) registerCV(reg uint8) uint16 {
	switch reg {
	case 4:
		return 29
	case 6:
		return 7
	case 7:
		return 8
	default:
		return uint16(d.Page-1)*4 + uint16(reg) + 1
	}
}

func (d *FakeDecoder) accept(p []byte) bool {
	if len(p) == 0 || p[0]&0xF0 != 0x70 {
		return false
	}
	switch len(p) {
	case 2:
		reg := p[0] & 0x07
		write := p[0]&0x08 != 0
		if reg == 5 {
			if write {
				d.Page = p[1]
				return true
			}
			return d.Page == p[1]
		}
		cv := d.registerCV(reg)
		if write {
			d.CV[cv] = p[1]
			return true
		}
		return d.CV[cv] == p[1]
	case 3:
		cv := (uint16(p[0]&0x03)<<8 | uint16(p[1])) + 1
		switch p[0] & 0x0C {
		case 0x0C:
			d.CV[cv] = p[2]
			return true
		case 0x04:
			return d.CV[cv] == p[2]
		case 0x08:
			if !d.BitOps {
				return false
			}
			pos := p[2] & 0x07
			val := (p[2] >> 3) & 0x01
			if p[2]&0x10 != 0 {
				d.CV[cv] = d.CV[cv]&^(1<<pos) | val<<pos
				return true
			}
			return (d.CV[cv]>>pos)&0x01 == val
		}
	}
	return false
}
