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

package encoder

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// BitSink puts symbols on the track. Emit returns once the symbol is on the wire.
type BitSink interface {
	Emit(b Bit) error
}

// DriverOption configures a Driver
type DriverOption func(*Driver)

// WithLogger sets the logger used for sink failures
func WithLogger(log *logrus.Entry) DriverOption {
	return func(d *Driver) {
		d.log = log
	}
}

// WithMaxSinkErrors sets how many consecutive sink errors end Run
func WithMaxSinkErrors(n int) DriverOption {
	return func(d *Driver) {
		d.maxErrors = n
	}
}

// Driver is the real-time loop feeding an Encoder into a BitSink
type Driver struct {
	enc       *Encoder
	sink      BitSink
	log       *logrus.Entry
	bits      atomic.Uint64
	maxErrors int
}

// NewDriver creates a driver for enc writing to sink
func NewDriver(enc *Encoder, sink BitSink, opts ...DriverOption) *Driver {
	d := &Driver{
		enc:       enc,
		sink:      sink,
		log:       logrus.WithField("component", "encoder"),
		maxErrors: 100,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Bits returns the number of symbols emitted
func (d *Driver) Bits() uint64 {
	return d.bits.Load()
}

// Run steps the encoder until ctx is cancelled. A slow sink stretches the
// current bit; it never drops one.
func (d *Driver) Run(ctx context.Context) error {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := d.sink.Emit(d.enc.Step()); err != nil {
			failures++
			if failures == 1 {
				d.log.WithError(err).Warn("track output failed")
			}
			if failures >= d.maxErrors {
				return fmt.Errorf("track output: %w", err)
			}
			continue
		}
		failures = 0
		d.bits.Add(1)
	}
}

// Paced wraps a sink that returns immediately and sleeps in coarse steps so the
// average symbol rate matches the track. Used for simulated tracks.
type Paced struct {
	Sink  BitSink
	owed  time.Duration
	start time.Time
}

// Emit forwards b and accounts for its duration
func (p *Paced) Emit(b Bit) error {
	if p.Sink != nil {
		if err := p.Sink.Emit(b); err != nil {
			return err
		}
	}
	if p.start.IsZero() {
		p.start = time.Now()
	}
	p.owed += 2 * b.HalfPeriod()
	if p.owed >= time.Millisecond {
		elapsed := time.Since(p.start)
		if ahead := p.owed - elapsed; ahead > 0 {
			time.Sleep(ahead)
		}
		p.owed = 0
		p.start = time.Now()
	}
	return nil
}
