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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/stefaandesmet2003/tapas/detection"
)

func playbackBus(name string, ops ...i2ctest.IO) busRef {
	return busRef{name: name, open: func() (i2c.BusCloser, error) {
		return &i2ctest.Playback{Ops: ops, DontPanic: true}, nil
	}}
}

func TestPassiveListsDefaultAddress(t *testing.T) {
	t.Parallel()
	d := &detector{buses: func() []busRef {
		return []busRef{playbackBus("I2C1"), playbackBus("I2C2")}
	}}
	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{"I2C2:0x40"}

	got, err := d.detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "I2C1:0x40", got[0].Path)
	assert.Equal(t, detection.Low, got[0].Confidence)
}

func TestProbeFindsSensors(t *testing.T) {
	t.Parallel()
	d := &detector{buses: func() []busRef {
		return []busRef{playbackBus("I2C1",
			i2ctest.IO{Addr: 0x40, W: []byte{0x00}, R: []byte{0x39, 0x9F}},
		)}
	}}
	opts := detection.DefaultOptions()
	opts.Mode = detection.Probe

	got, err := d.detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, detection.High, got[0].Confidence)
	assert.Equal(t, "0x40", got[0].Metadata["address"])
}

func TestNoBuses(t *testing.T) {
	t.Parallel()
	d := &detector{buses: func() []busRef { return nil }}
	opts := detection.DefaultOptions()

	_, err := d.detect(context.Background(), &opts)
	assert.ErrorIs(t, err, detection.ErrNoDevicesFound)
}
