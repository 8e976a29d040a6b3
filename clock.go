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

package tapas

import (
	"time"

	"github.com/bangzek/clock"
)

// Clock is the wall clock used for the millisecond timers of the station.
// Components default to SystemClock and tests substitute a FakeClock.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the real clock
func SystemClock() Clock {
	return clock.New()
}
