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

package i2c

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/stefaandesmet2003/tapas"
)

var configure = i2ctest.IO{Addr: DefaultAddress, W: []byte{regConfig, 0x39, 0x9F}}

func shunt(microvolts int) i2ctest.IO {
	raw := uint16(int16(microvolts / shuntLSB))
	return i2ctest.IO{Addr: DefaultAddress, W: []byte{regShunt}, R: []byte{byte(raw >> 8), byte(raw)}}
}

func TestShuntReading(t *testing.T) {
	t.Parallel()
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{configure, shunt(1230), shunt(-500)}}

	s, err := New(bus, "test", DefaultAddress, DefaultConfig())
	require.NoError(t, err)

	v, err := s.ShuntMicrovolts()
	require.NoError(t, err)
	assert.Equal(t, 1230, v)

	v, err = s.ShuntMicrovolts()
	require.NoError(t, err)
	assert.Equal(t, -500, v)
	require.NoError(t, bus.Close())
}

func TestAckAboveBaseline(t *testing.T) {
	t.Parallel()
	// 0.1 Ω and 60 mA need a 6000 µV rise
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		configure,
		shunt(2000),
		shunt(2100),
		shunt(7000),
		shunt(9000),
		shunt(2000),
	}}

	s, err := New(bus, "test", DefaultAddress, DefaultConfig())
	require.NoError(t, err)

	var got []bool
	for i := 0; i < 5; i++ {
		got = append(got, s.Ack())
	}
	assert.Equal(t, []bool{false, false, false, true, false}, got)
	require.NoError(t, bus.Close())
}

func TestReadFailureIsNoAck(t *testing.T) {
	t.Parallel()
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{configure}, DontPanic: true}

	s, err := New(bus, "test", DefaultAddress, DefaultConfig())
	require.NoError(t, err)
	assert.False(t, s.Ack())

	_, err = s.ShuntMicrovolts()
	require.Error(t, err)
	assert.True(t, tapas.IsRetryable(err))
}

func TestProbe(t *testing.T) {
	t.Parallel()
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x40, W: []byte{regConfig}, R: []byte{0x39, 0x9F}},
		{Addr: 0x41, W: []byte{regConfig}, R: []byte{0x12, 0x34}},
	}, DontPanic: true}

	confirmed, present := Probe(bus, 0x40)
	assert.True(t, confirmed)
	assert.True(t, present)

	confirmed, present = Probe(bus, 0x41)
	assert.False(t, confirmed)
	assert.True(t, present)

	_, present = Probe(bus, 0x42)
	assert.False(t, present)
}
