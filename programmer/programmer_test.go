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
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/organizer"
)

type bench struct {
	prog    *Programmer
	org     *organizer.Organizer
	track   *SimTrack
	decoder *FakeDecoder
	mode    *organizer.StaticMode
	clock   *tapas.FakeClock
	results []Outcome
}

func newBench(t *testing.T, mode tapas.RunMode, cfg Config) *bench {
	t.Helper()
	b := &bench{
		decoder: NewFakeDecoder(),
		mode:    &organizer.StaticMode{M: mode},
		clock:   tapas.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	b.track = &SimTrack{Decoder: b.decoder}
	b.org = organizer.New(b.track, b.mode, organizer.DefaultConfig())
	b.prog = New(b.org, b.track, b.mode, b.decoder, cfg,
		WithClock(b.clock),
		WithSampleDelay(func(time.Duration) {}),
		WithDrainWait(b.track.DrainWait),
		WithResultHandler(func(o Outcome) { b.results = append(b.results, o) }),
	)
	b.org.SetProgBusy(b.prog.Busy)
	return b
}

// settle polls the loop until the programmer is idle and nothing is pending
func (b *bench) settle(t *testing.T) Outcome {
	t.Helper()
	for i := 0; i < 200000; i++ {
		b.org.Run()
		b.prog.Run()
		b.track.Tick()
		if !b.prog.Busy() && !b.prog.leavePending {
			return b.prog.Result()
		}
	}
	require.FailNow(t, "programmer did not finish")
	return Outcome{}
}

func TestDirectWriteFromRunOkay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		absent bool
		want   Code
	}{
		{name: "acknowledged", want: OK},
		{name: "no decoder", absent: true, want: NoAck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := newBench(t, tapas.RunOkay, DefaultConfig())
			b.decoder.Absent = tt.absent

			require.Equal(t, Accepted, b.prog.DirectWrite(29, 0x22))
			assert.Equal(t, tapas.ProgOkay, b.mode.Mode())
			assert.True(t, b.prog.Busy())

			out := b.settle(t)
			assert.Equal(t, tt.want, out.Code)
			assert.Equal(t, QualifierDirect, out.Qualifier)
			assert.Equal(t, uint16(29), out.CV)
			assert.Equal(t, 0, out.Size)
			assert.Equal(t, tapas.RunOkay, b.mode.Mode())
			require.Len(t, b.results, 1)
			if !tt.absent {
				assert.Equal(t, uint8(0x22), b.decoder.CV[29])
			}
		})
	}
}

func TestWithoutAutoLeaveStaysInProgramming(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.AutoLeave = false
	b := newBench(t, tapas.RunOkay, cfg)
	b.decoder.Absent = true

	require.Equal(t, Accepted, b.prog.DirectWrite(1, 3))
	out := b.settle(t)
	assert.Equal(t, NoAck, out.Code)
	assert.Equal(t, tapas.ProgError, b.mode.Mode())
}

func TestEnterSendsResetBurst(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOff, DefaultConfig())

	require.Equal(t, Accepted, b.prog.DirectWrite(1, 3))
	b.settle(t)

	got := b.decoder.Received()
	require.NotEmpty(t, got)
	resets := 0
	for _, p := range got {
		if !bytes.Equal(p, []byte{0x00, 0x00}) {
			break
		}
		resets++
	}
	assert.GreaterOrEqual(t, resets, 20)
	assert.Equal(t, tapas.RunOff, b.mode.Mode())
}

func TestRegisterMode(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.ProgOff, DefaultConfig())

	require.Equal(t, Accepted, b.prog.RegisterWrite(2, 0x05))
	out := b.settle(t)
	require.Equal(t, OK, out.Code)
	assert.Equal(t, QualifierRegister, out.Qualifier)
	assert.Equal(t, uint8(0x05), b.decoder.CV[2])

	require.Equal(t, Accepted, b.prog.RegisterRead(2))
	out = b.settle(t)
	require.Equal(t, OK, out.Code)
	assert.Equal(t, uint16(2), out.CV)
	assert.Equal(t, uint8(0x05), out.Data)
	assert.Equal(t, 1, out.Size)
}

func TestRegisterReadTimeout(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())
	b.decoder.Absent = true

	require.Equal(t, Accepted, b.prog.RegisterRead(1))
	out := b.settle(t)
	assert.Equal(t, Timeout, out.Code)
	assert.Equal(t, 0, out.Size)
	assert.Equal(t, tapas.RunOkay, b.mode.Mode())
}

func countPayload(got [][]byte, want []byte) int {
	n := 0
	for _, p := range got {
		if bytes.Equal(p, want) {
			n++
		}
	}
	return n
}

func TestPagedModeCachesPage(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())
	b.decoder.CV[6] = 0x11
	b.decoder.CV[7] = 0x22
	selectPage2 := []byte{0x7D, 0x02}

	require.Equal(t, Accepted, b.prog.PagedRead(6))
	out := b.settle(t)
	require.Equal(t, OK, out.Code)
	assert.Equal(t, uint8(0x11), out.Data)
	sent := countPayload(b.decoder.Received(), selectPage2)
	assert.Positive(t, sent)

	require.Equal(t, Accepted, b.prog.PagedRead(7))
	out = b.settle(t)
	require.Equal(t, OK, out.Code)
	assert.Equal(t, uint8(0x22), out.Data)
	assert.Equal(t, sent, countPayload(b.decoder.Received(), selectPage2))

	b.clock.Advance(time.Second)
	require.Equal(t, Accepted, b.prog.PagedWrite(8, 0x33))
	out = b.settle(t)
	require.Equal(t, OK, out.Code)
	assert.Equal(t, uint8(0x33), b.decoder.CV[8])
	assert.Greater(t, countPayload(b.decoder.Received(), selectPage2), sent)
}

func TestDirectRead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		bitOps bool
	}{
		{name: "bitwise", bitOps: true},
		{name: "scan", bitOps: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := newBench(t, tapas.RunOkay, DefaultConfig())
			b.decoder.BitOps = tt.bitOps
			b.decoder.CV[1] = 0x03

			require.Equal(t, Accepted, b.prog.DirectRead(1))
			out := b.settle(t)
			require.Equal(t, OK, out.Code)
			assert.Equal(t, uint8(0x03), out.Data)
			assert.Equal(t, 1, out.Size)
			assert.Equal(t, tt.bitOps, b.prog.bitOps)
		})
	}
}

func TestDirectBitReadAndWrite(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())
	b.decoder.BitOps = true
	b.decoder.CV[5] = 0xA5

	require.Equal(t, Accepted, b.prog.DirectBitRead(5))
	out := b.settle(t)
	require.Equal(t, OK, out.Code)
	assert.Equal(t, uint8(0xA5), out.Data)

	require.Equal(t, Accepted, b.prog.DirectBitWrite(5, 1, 1))
	out = b.settle(t)
	require.Equal(t, OK, out.Code)
	assert.Equal(t, uint8(0xA7), b.decoder.CV[5])
}

func TestBitReadWithoutBitOps(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())
	b.decoder.CV[5] = 0xA5

	require.Equal(t, Accepted, b.prog.DirectBitRead(5))
	out := b.settle(t)
	assert.Equal(t, BitErr, out.Code)
	assert.Equal(t, 0, out.Size)
}

func TestQueryBitOps(t *testing.T) {
	t.Parallel()

	for _, capable := range []bool{true, false} {
		b := newBench(t, tapas.RunOkay, DefaultConfig())
		b.decoder.BitOps = capable

		require.Equal(t, Accepted, b.prog.QueryBitOps())
		out := b.settle(t)
		if capable {
			assert.Equal(t, BitCapable, out.Code)
		} else {
			assert.Equal(t, NotBitCapable, out.Code)
		}
		assert.Equal(t, tapas.RunOkay, b.mode.Mode())
	}
}

func TestBitCapabilityExpires(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())
	b.decoder.BitOps = true

	require.Equal(t, Accepted, b.prog.QueryBitOps())
	b.settle(t)
	assert.True(t, b.prog.bitOps)

	b.clock.Advance(600 * time.Millisecond)
	b.prog.Run()
	assert.False(t, b.prog.bitOps)
}

func TestNegativeProbeRefreshesCapabilityCheck(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())

	b.clock.Advance(300 * time.Millisecond)
	require.Equal(t, Accepted, b.prog.QueryBitOps())
	out := b.settle(t)
	assert.Equal(t, NotBitCapable, out.Code)
	assert.False(t, b.prog.bitOps)
	assert.Equal(t, b.clock.Now(), b.prog.bitCheck)
}

func TestLongAddress(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())
	b.decoder.BitOps = true

	require.Equal(t, Accepted, b.prog.LongAddressWrite(1040))
	out := b.settle(t)
	require.Equal(t, OK, out.Code)
	assert.Equal(t, uint8(0xC4), b.decoder.CV[17])
	assert.Equal(t, uint8(0x10), b.decoder.CV[18])
	assert.Equal(t, uint8(0x20), b.decoder.CV[29]&0x20)

	require.Equal(t, Accepted, b.prog.LongAddressRead())
	out = b.settle(t)
	require.Equal(t, OK, out.Code)
	assert.Equal(t, 2, out.Size)
	assert.Equal(t, uint16(1040), out.Address)
}

func TestLongAddressReadFails(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())
	b.decoder.Absent = true

	require.Equal(t, Accepted, b.prog.LongAddressRead())
	out := b.settle(t)
	assert.Equal(t, Err, out.Code)
	assert.Zero(t, out.Address)
}

func TestBadParameters(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())

	assert.Equal(t, BadParameter, b.prog.RegisterRead(0))
	assert.Equal(t, BadParameter, b.prog.RegisterWrite(9, 1))
	assert.Equal(t, BadParameter, b.prog.PagedRead(0))
	assert.Equal(t, BadParameter, b.prog.PagedWrite(1025, 1))
	assert.Equal(t, BadParameter, b.prog.DirectRead(0))
	assert.Equal(t, BadParameter, b.prog.DirectWrite(1025, 1))
	assert.Equal(t, BadParameter, b.prog.DirectBitRead(0))
	assert.Equal(t, BadParameter, b.prog.DirectBitWrite(1, 8, 1))
	assert.Equal(t, BadParameter, b.prog.LongAddressWrite(0))
	assert.Equal(t, BadParameter, b.prog.LongAddressWrite(10240))
	assert.Equal(t, tapas.RunOkay, b.mode.Mode())
	assert.False(t, b.prog.Busy())
}

func TestBusyAndTerminate(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())

	assert.Equal(t, NoTaskReply, b.prog.Terminate())

	require.Equal(t, Accepted, b.prog.DirectRead(1))
	assert.Equal(t, Busy, b.prog.DirectWrite(1, 3))

	assert.Equal(t, Accepted, b.prog.Terminate())
	assert.False(t, b.prog.Busy())
	assert.Equal(t, Terminated, b.prog.Result().Code)

	b.settle(t)
	assert.Equal(t, tapas.RunOkay, b.mode.Mode())
	assert.Equal(t, NoTaskReply, b.prog.Terminate())
}

// stepUntil polls the loop until the inner layer reaches state
func (b *bench) stepUntil(t *testing.T, state innerState) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		b.org.Run()
		b.prog.Run()
		if b.prog.in.state == state {
			return
		}
		b.track.Tick()
	}
	require.FailNow(t, "inner layer never reached the state")
}

// sentSince reports whether payload reached the decoder after the first n packets
func (b *bench) sentSince(n int, payload []byte) bool {
	for _, p := range b.decoder.Received()[n:] {
		if bytes.Equal(p, payload) {
			return true
		}
	}
	return false
}

func TestTerminateDrainsQueueBeforeLeaving(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())
	write := []byte{0x7C, 0x00, 0x03}

	require.Equal(t, Accepted, b.prog.DirectWrite(1, 3))
	b.stepUntil(t, innerCommand)
	_, _, queued := b.org.QueueLengths()
	require.Equal(t, 1, queued)

	require.Equal(t, Accepted, b.prog.Terminate())
	b.settle(t)
	assert.Equal(t, tapas.RunOkay, b.mode.Mode())
	_, _, queued = b.org.QueueLengths()
	assert.Zero(t, queued)

	seen := len(b.decoder.Received())
	require.Equal(t, Accepted, b.prog.QueryBitOps())
	b.settle(t)
	assert.False(t, b.sentSince(seen, write), "terminated write sent during a later operation")
}

func TestResetDropsQueuedPackets(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())
	write := []byte{0x7C, 0x00, 0x03}

	require.Equal(t, Accepted, b.prog.DirectWrite(1, 3))
	b.stepUntil(t, innerCommand)

	// a short on the main track forces the station out of programming
	b.mode.SetMode(tapas.RunShort)
	b.prog.Reset()
	assert.False(t, b.prog.Busy())
	_, _, queued := b.org.QueueLengths()
	assert.Zero(t, queued)

	b.mode.SetMode(tapas.RunOkay)
	require.Equal(t, Accepted, b.prog.DirectRead(1))
	out := b.settle(t)
	assert.Equal(t, OK, out.Code)
	assert.Equal(t, uint8(0), out.Data)
	assert.False(t, b.sentSince(0, write))
	assert.Zero(t, b.decoder.CV[1])
}

// windowAck is active on the first high samples of every ackSamples
type windowAck struct {
	high int
	// weak gives window weakWindow only weakHigh active samples; -1 disables it
	weakWindow int
	weakHigh   int
	n          int
}

func (a *windowAck) Ack() bool {
	pos := a.n % ackSamples
	window := a.n / ackSamples
	a.n++
	if window == a.weakWindow {
		return pos < a.weakHigh
	}
	return pos < a.high
}

func TestAckDebounce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ack  windowAck
		want bool
	}{
		{name: "steady", ack: windowAck{high: ackSamples, weakWindow: -1}, want: true},
		{name: "quorum in every window", ack: windowAck{high: ackQuorum, weakWindow: -1}, want: true},
		{name: "one short of quorum", ack: windowAck{high: ackQuorum - 1, weakWindow: -1}, want: false},
		{name: "last window weak", ack: windowAck{high: ackSamples, weakWindow: ackWindows - 1, weakHigh: ackQuorum - 1}, want: false},
		{name: "idle line", ack: windowAck{weakWindow: -1}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := newBench(t, tapas.ProgOkay, DefaultConfig())
			ack := tt.ack
			b.prog.ack = &ack
			assert.Equal(t, tt.want, b.prog.debounce())
		})
	}
}

// flakyAck passes the decoder acknowledge through on high of every ackSamples samples
type flakyAck struct {
	decoder *FakeDecoder
	high    int
	n       int
}

func (a *flakyAck) Ack() bool {
	pos := a.n % ackSamples
	a.n++
	return a.decoder.Ack() && pos < a.high
}

func TestAckQuorumDecidesOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		high int
		want Code
	}{
		{name: "quorum reached", high: ackQuorum, want: OK},
		{name: "quorum missed", high: ackQuorum - 1, want: NoAck},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := newBench(t, tapas.RunOkay, DefaultConfig())
			b.prog.ack = &flakyAck{decoder: b.decoder, high: tt.high}

			require.Equal(t, Accepted, b.prog.DirectWrite(29, 0x22))
			out := b.settle(t)
			assert.Equal(t, tt.want, out.Code)
		})
	}
}

func TestShortAbortsOperation(t *testing.T) {
	t.Parallel()
	b := newBench(t, tapas.RunOkay, DefaultConfig())

	require.Equal(t, Accepted, b.prog.DirectWrite(1, 3))
	b.mode.SetMode(tapas.ProgShort)
	b.prog.Run()

	assert.False(t, b.prog.Busy())
	assert.Equal(t, Short, b.prog.Result().Code)
	assert.Equal(t, tapas.ProgShort, b.mode.Mode())
}

func TestCycleExtension(t *testing.T) {
	t.Parallel()
	assert.Equal(t, cycles{6, 0, 0, 8, 6}, directCycles.extend(3, 3))
	assert.Equal(t, cycles{13, 5, 9, 17, 10}, registerCycles.extend(20, 10))
}

func TestCodeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "no acknowledge", NoAck.String())
	assert.Equal(t, "Code(0x01)", Code(1).String())
}
