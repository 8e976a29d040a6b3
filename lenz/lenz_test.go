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

package lenz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
	"github.com/stefaandesmet2003/tapas/organizer"
	"github.com/stefaandesmet2003/tapas/programmer"
)

type host struct {
	p     *Parser
	tr    *tapas.MockTransport
	org   *organizer.Organizer
	prog  *FakeProgrammer
	fast  *FakeFastClock
	modes *organizer.StaticMode
	clock *tapas.FakeClock
}

func newHost(t *testing.T, cfg Config) *host {
	t.Helper()
	h := &host{
		tr:    tapas.NewMockTransport(),
		prog:  &FakeProgrammer{},
		fast:  &FakeFastClock{},
		modes: &organizer.StaticMode{M: tapas.RunOkay},
		clock: tapas.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	h.org = organizer.New(&organizer.FakeTransmitter{}, h.modes, organizer.DefaultConfig(),
		organizer.WithFormatStore(organizer.NewMemFormats(tapas.DCC28)))
	h.p = New(h.tr, h.org, h.prog, h.modes, h.fast, cfg, WithClock(h.clock))
	return h
}

// framed appends the XOR byte
func framed(b ...byte) []byte {
	var x byte
	for _, c := range b {
		x ^= c
	}
	return append(append([]byte(nil), b...), x)
}

// exchange sends one frame and returns everything the parser answered
func (h *host) exchange(t *testing.T, b ...byte) []byte {
	t.Helper()
	h.tr.Feed(framed(b...)...)
	_, err := h.p.ReadOnce()
	require.NoError(t, err)
	for i := 0; i < 2*maxFrame+4; i++ {
		h.p.Run()
	}
	return h.tr.Written()
}

func TestVersionRequests(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())

	assert.Equal(t, framed(0x63, 0x21, 0x36, 0x00), h.exchange(t, 0x21, 0x21))
	assert.Equal(t, framed(0x02, 0x10, 0x01), h.exchange(t, 0xF0))
}

func TestXorMismatch(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())

	h.tr.Feed(0x21, 0x21, 0x01)
	_, err := h.p.ReadOnce()
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		h.p.Run()
	}
	assert.Equal(t, framed(0x61, 0x80), h.tr.Written())
	assert.Equal(t, tapas.RunOkay, h.modes.Mode())
}

func TestByteTimeout(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())

	h.tr.Feed(0x23)
	_, err := h.p.ReadOnce()
	require.NoError(t, err)
	h.p.Run()
	h.p.Run()
	assert.Empty(t, h.tr.Written())

	h.clock.Advance(300 * time.Millisecond)
	h.p.Run()
	assert.Equal(t, framed(0x01, 0x01), h.tr.Written())

	// the parser is back in sync
	assert.Equal(t, framed(0x63, 0x21, 0x36, 0x00), h.exchange(t, 0x21, 0x21))
}

func TestBroadcastSentTwice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode tapas.RunMode
		want []byte
	}{
		{tapas.RunOkay, framed(0x61, 0x01)},
		{tapas.RunOff, framed(0x61, 0x00)},
		{tapas.RunShort, framed(0x61, 0x00)},
		{tapas.RunStop, framed(0x81, 0x00)},
		{tapas.ProgOkay, framed(0x61, 0x02)},
		{tapas.ProgError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			t.Parallel()
			h := newHost(t, DefaultConfig())
			h.p.OnModeChange(tapas.RunPause, tt.mode)
			h.p.Run()
			assert.Equal(t, append(append([]byte(nil), tt.want...), tt.want...), h.tr.Written())
		})
	}
}

func TestTrackPower(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())

	assert.Equal(t, framed(0x01, 0x04), h.exchange(t, 0x21, 0x80))
	assert.Equal(t, tapas.RunOff, h.modes.Mode())
	assert.Equal(t, framed(0x62, 0x22, 0x01), h.exchange(t, 0x21, 0x24))

	assert.Equal(t, framed(0x01, 0x04), h.exchange(t, 0x21, 0x81))
	assert.Equal(t, tapas.RunOkay, h.modes.Mode())

	assert.Equal(t, framed(0x01, 0x04), h.exchange(t, 0x80))
	assert.Equal(t, tapas.RunStop, h.modes.Mode())
	assert.Equal(t, framed(0x62, 0x22, 0x02), h.exchange(t, 0x21, 0x24))
}

func TestLocoSpeedRoundTrip(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())

	assert.Equal(t, framed(0x01, 0x04), h.exchange(t, 0xE4, 0x12, 0x00, 0x03, 0x9F))
	l, ok := h.org.Loco(3)
	require.True(t, ok)
	assert.Equal(t, tapas.DCC28, l.Format)
	assert.Equal(t, uint8(frame.SpeedDirection|124), l.Speed)

	assert.Equal(t, framed(0xE4, 0x02, 0x9F, 0x00, 0x00), h.exchange(t, 0xE3, 0x00, 0x00, 0x03))
}

func TestSpeedConversion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		b    byte
		f    tapas.Format
		rail uint8
	}{
		{"stop 28", 0x00, tapas.DCC28, 0x00},
		{"emergency 28", 0x81, tapas.DCC28, 0x81},
		{"step 1 of 28", 0x02, tapas.DCC28, 0x02},
		{"step 2 of 28", 0x12, tapas.DCC28, 0x03},
		{"step 28 reverse", 0x1F, tapas.DCC28, 0x1D},
		{"step 7 of 14", 0x88, tapas.DCC14, 0x88},
		{"128 untouched", 0xC5, tapas.DCC128, 0xC5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rail := lenzToRail(tt.b, tt.f)
			assert.Equal(t, tt.rail, rail)
			assert.Equal(t, tt.b, railToLenz(rail, tt.f))
		})
	}
}

func TestLocoFunctions(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())

	ack := framed(0x01, 0x04)
	assert.Equal(t, ack, h.exchange(t, 0xE4, 0x20, 0x00, 0x03, 0x13))
	assert.Equal(t, ack, h.exchange(t, 0xE4, 0x21, 0x00, 0x03, 0x05))
	assert.Equal(t, ack, h.exchange(t, 0xE4, 0x22, 0x00, 0x03, 0x0C))
	assert.Equal(t, ack, h.exchange(t, 0xE4, 0x23, 0x00, 0x03, 0xAA))
	assert.Equal(t, ack, h.exchange(t, 0xE4, 0x28, 0x00, 0x03, 0x55))
	assert.Equal(t, ack, h.exchange(t, 0xE4, 0x24, 0x00, 0x03, 0x0F))

	l, ok := h.org.Loco(3)
	require.True(t, ok)
	assert.True(t, l.Light)
	assert.Equal(t, uint8(0x03), l.F1F4)

	info := h.exchange(t, 0xE3, 0x00, 0x00, 0x03)
	require.Len(t, info, 6)
	assert.Equal(t, byte(0x13), info[3])
	assert.Equal(t, byte(0xC5), info[4])

	assert.Equal(t, framed(0xE3, 0x52, 0xAA, 0x55), h.exchange(t, 0xE3, 0x09, 0x00, 0x03))
	assert.Equal(t, framed(0xE3, 0x51, 0x00, 0x00), h.exchange(t, 0xE3, 0x08, 0x00, 0x03))
}

func TestUnknownLocoInfo(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())

	assert.Equal(t, framed(0xE4, 0x02, 0x00, 0x00, 0x00), h.exchange(t, 0xE3, 0x00, 0x00, 0x07))
}

func TestAddressInquiry(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())
	h.org.LocoSpeed(3, frame.SpeedDirection)
	h.org.LocoSpeed(200, frame.SpeedDirection)

	assert.Equal(t, framed(0xE3, 0x30, 0xC0, 0xC8), h.exchange(t, 0xE3, 0x05, 0x00, 0x03))
	assert.Equal(t, framed(0xE3, 0x30, 0x00, 0x03), h.exchange(t, 0xE3, 0x06, 0xC0, 0xC8))
	assert.Equal(t, framed(0xE3, 0x34, 0x00, 0x00), h.exchange(t, 0xE3, 0x05, 0xC0, 0xC8))

	assert.Equal(t, framed(0x01, 0x04), h.exchange(t, 0xE3, 0x44, 0x00, 0x03))
	_, ok := h.org.Loco(3)
	assert.False(t, ok)
}

func TestAccessoryWithFeedback(t *testing.T) {
	t.Parallel()

	for _, invert := range []bool{false, true} {
		cfg := DefaultConfig()
		cfg.InvertAccessory = invert
		h := newHost(t, cfg)

		// output 1 of the first turnout of group 1
		got := h.exchange(t, 0x52, 0x01, 0x89)
		want := append(framed(0x01, 0x04), framed(0x42, 0x01, 0x02)...)
		assert.Equal(t, want, got, "invert=%v", invert)

		coil, ok := h.org.Turnout(4)
		require.True(t, ok)
		if invert {
			assert.Equal(t, uint8(0), coil)
		} else {
			assert.Equal(t, uint8(1), coil)
		}
	}
}

func TestFeedbackRequest(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())
	h.org.Accessory(6, 0, true)

	assert.Equal(t, framed(0x42, 0x01, 0x11), h.exchange(t, 0x42, 0x01, 0x81))
	assert.Equal(t, framed(0x42, 0x50, 0x40), h.exchange(t, 0x42, 0x50, 0x80))
}

func TestExtendedAccessoryAndStops(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())
	ack := framed(0x01, 0x04)

	assert.Equal(t, ack, h.exchange(t, 0x13, 0x01, 0x29, 0x10))
	assert.Equal(t, ack, h.exchange(t, 0x92, 0x00, 0x03))
	assert.Equal(t, ack, h.exchange(t, 0x91, 0x05))
}

func TestPom(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())

	assert.Equal(t, framed(0x01, 0x04), h.exchange(t, 0xE6, 0x30, 0x00, 0x03, 0xEC, 0x00, 0x05))
	assert.Equal(t, framed(0x01, 0x04), h.exchange(t, 0xE5, 0x30, 0x00, 0x03, 0xE4, 0x07))
	assert.Equal(t, framed(0x61, 0x82), h.exchange(t, 0xE6, 0x30, 0x00, 0x03, 0xE8, 0x00, 0x05))
}

func TestProgrammingRequests(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())
	h.modes.M = tapas.ProgOkay
	ack := framed(0x01, 0x04)

	assert.Equal(t, ack, h.exchange(t, 0x22, 0x11, 0x02))
	assert.Equal(t, ack, h.exchange(t, 0x23, 0x12, 0x05, 0x03))
	assert.Equal(t, ack, h.exchange(t, 0x22, 0x14, 0x00))
	assert.Equal(t, ack, h.exchange(t, 0x22, 0x15, 0x08))
	assert.Equal(t, ack, h.exchange(t, 0x23, 0x16, 0x01, 0x2A))
	assert.Equal(t, ack, h.exchange(t, 0x23, 0x17, 0x1D, 0x06))
	assert.Equal(t, ack, h.exchange(t, 0x22, 0x19, 0x2C))
	assert.Equal(t, ack, h.exchange(t, 0x22, 0x18, 0x00))
	assert.Equal(t, ack, h.exchange(t, 0x23, 0x1F, 0xFF, 0x01))

	assert.Equal(t, []string{
		"RR 2", "WR 5 3", "RP 256", "RD 8", "WD 1 42", "WP 29 6",
		"RD 300", "RD 1024", "WD 1023 1",
	}, h.prog.Calls)

	h.prog.Reply = programmer.Busy
	assert.Equal(t, framed(0x61, 0x81), h.exchange(t, 0x22, 0x15, 0x08))

	h.prog.Reply = programmer.Accepted
	h.modes.M = tapas.RunOkay
	assert.Empty(t, h.exchange(t, 0x22, 0x15, 0x08))
}

func TestProgResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		busy    bool
		outcome programmer.Outcome
		want    []byte
	}{
		{"busy", true, programmer.Outcome{}, framed(0x61, 0x1F)},
		{"register", false, programmer.Outcome{Code: programmer.OK, Qualifier: programmer.QualifierRegister, CV: 2, Data: 9}, framed(0x63, 0x10, 0x02, 0x09)},
		{"direct", false, programmer.Outcome{Code: programmer.OK, Qualifier: programmer.QualifierDirect, CV: 300, Data: 7}, framed(0x63, 0x15, 0x2C, 0x07)},
		{"short", false, programmer.Outcome{Code: programmer.Short}, framed(0x61, 0x12)},
		{"no ack", false, programmer.Outcome{Code: programmer.NoAck}, framed(0x61, 0x13)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHost(t, DefaultConfig())
			h.prog.Working = tt.busy
			h.prog.Outcome = tt.outcome
			assert.Equal(t, tt.want, h.exchange(t, 0x21, 0x10))
		})
	}
}

func TestFastClockCommands(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())
	h.fast.Time = frame.Clock{Minute: 1, Hour: 2, DayOfWeek: 3, Ratio: 8}

	assert.Equal(t, framed(0x05, 0x01, 0x0A, 0x88, 0x42, 0xC4), h.exchange(t, 0x05, 0xF1, 0x0A, 0x88, 0x42, 0xC4))
	assert.Equal(t, frame.Clock{Minute: 10, Hour: 8, DayOfWeek: 2, Ratio: 4}, h.fast.Time)

	// out of range fields are ignored
	h.exchange(t, 0x02, 0xF1, 0x3F)
	assert.Equal(t, uint8(10), h.fast.Time.Minute)

	assert.Equal(t, framed(0x05, 0x01, 0x0A, 0x88, 0x42, 0xC4), h.exchange(t, 0x01, 0xF2))
}

func TestInterfaceSettings(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())

	assert.Equal(t, framed(0xF2, 0x01, 0x07), h.exchange(t, 0xF2, 0x01, 0x07))
	assert.Equal(t, framed(0xF2, 0x01, 0x01), h.exchange(t, 0xF2, 0x01, 0x40))

	assert.Equal(t, framed(0xF2, 0x02, 0x03), h.exchange(t, 0xF2, 0x02, 0x03))
	assert.Equal(t, framed(0xF2, 0x02, 0x01), h.exchange(t, 0xF2, 0x02, 0x09))
	assert.Equal(t, []int{57600, 19200}, h.tr.BaudRates())
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())

	assert.Equal(t, framed(0x61, 0x82), h.exchange(t, 0x70))
	assert.Equal(t, framed(0x61, 0x82), h.exchange(t, 0x21, 0x55))
}

func TestReadErrorWrapped(t *testing.T) {
	t.Parallel()
	h := newHost(t, DefaultConfig())
	h.tr.ReadErr = tapas.ErrTransportTimeout

	_, err := h.p.ReadOnce()
	require.Error(t, err)
	assert.ErrorIs(t, err, tapas.ErrTransportTimeout)

	require.NoError(t, h.tr.Close())
	ctx := t.Context()
	assert.ErrorIs(t, h.p.Receive(ctx), tapas.ErrTransportClosed)
}
