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

package status

import "time"

type shortState uint8

const (
	noShort shortState = iota
	ignoreShort
	fastRecoverOff
	fastRecoverOn
	shorted
)

// detector supervises one track output. A short shorter than the ignore
// time is tolerated, then the output is cycled a few times before the
// track is declared shorted.
type detector struct {
	name     string
	input    Input
	state    shortState
	since    time.Time
	attempts int
	ignore   time.Duration
	cfg      *Config
	power    func(on bool)
}

func (d *detector) init(name string, ignore time.Duration, cfg *Config, power func(bool)) {
	d.name = name
	d.ignore = ignore
	d.cfg = cfg
	d.power = power
	d.state = noShort
}

func (d *detector) short() bool {
	return d.input != nil && d.input.Active()
}

// check advances the detector and reports whether the track is shorted
func (d *detector) check(now time.Time) bool {
	switch d.state {
	case noShort:
		if d.short() {
			d.state = ignoreShort
			d.since = now
		}

	case ignoreShort:
		if !d.short() {
			d.state = noShort
			return false
		}
		if now.Sub(d.since) > d.ignore {
			d.state = fastRecoverOff
			d.attempts = d.cfg.RecoverAttempts
			d.power(false)
			d.since = now
		}

	case fastRecoverOff:
		if now.Sub(d.since) > d.cfg.FastRecoverOff {
			d.power(true)
			d.state = fastRecoverOn
			d.since = now
		}

	case fastRecoverOn:
		if now.Sub(d.since) <= d.cfg.FastRecoverOn {
			return false
		}
		if !d.short() {
			d.state = noShort
			return false
		}
		d.power(false)
		d.since = now
		d.attempts--
		if d.attempts <= 0 {
			d.state = shorted
			return true
		}
		d.state = fastRecoverOff

	case shorted:
		if d.short() {
			d.since = now
			return true
		}
		if now.Sub(d.since) > d.cfg.SlowRecover {
			d.state = noShort
		}
	}
	return false
}
