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

package frame

import (
	"testing"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stretchr/testify/assert"
)

func TestSpeedToRail(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		speed  uint8
		format tapas.Format
		want   uint8
	}{
		{name: "stop kept", speed: 0x00, format: tapas.DCC28, want: 0x00},
		{name: "emergency kept", speed: 0x81, format: tapas.DCC14, want: 0x81},
		{name: "128 unchanged", speed: 0xC2, format: tapas.DCC128, want: 0xC2},
		{name: "28 lowest running", speed: 0x02, format: tapas.DCC28, want: 0x02},
		{name: "28 top", speed: 0x7F, format: tapas.DCC28, want: 29},
		{name: "28 keeps direction", speed: 0xFF, format: tapas.DCC28, want: 0x80 | 29},
		{name: "27 as 28", speed: 0x7F, format: tapas.DCC27, want: 29},
		{name: "14 top", speed: 0x7F, format: tapas.DCC14, want: 15},
		{name: "14 middle", speed: 66, format: tapas.DCC14, want: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SpeedToRail(tt.speed, tt.format))
		})
	}
}

func TestSpeedRoundTrip(t *testing.T) {
	t.Parallel()

	resolution := map[tapas.Format]int{
		tapas.DCC14:  9,
		tapas.DCC28:  5,
		tapas.DCC128: 0,
	}

	for format, tolerance := range resolution {
		for v := 2; v <= 127; v++ {
			for _, dir := range []uint8{0, 0x80} {
				in := uint8(v) | dir
				out := SpeedFromRail(SpeedToRail(in, format), format)
				assert.Equal(t, dir, out&SpeedDirection, "direction for %v speed %d", format, v)
				diff := int(in&SpeedMask) - int(out&SpeedMask)
				if diff < 0 {
					diff = -diff
				}
				assert.LessOrEqual(t, diff, tolerance, "%v speed %d came back as %d", format, v, out&SpeedMask)
				assert.GreaterOrEqual(t, int(out&SpeedMask), 2, "running speed must not turn into stop")
			}
		}
	}
}

func TestSpeedFromRail_ClampsOutOfRange(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SpeedFromRail(15, tapas.DCC14), SpeedFromRail(31, tapas.DCC14))
	assert.Equal(t, SpeedFromRail(29, tapas.DCC28), SpeedFromRail(31, tapas.DCC28))
	assert.Equal(t, uint8(0), SpeedFromRail(31, tapas.DCC28)&SpeedDirection)
}
