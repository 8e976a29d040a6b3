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

package station

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/config"
	"github.com/stefaandesmet2003/tapas/encoder"
	"github.com/stefaandesmet2003/tapas/monitor"
	"github.com/stefaandesmet2003/tapas/organizer"
	"github.com/stefaandesmet2003/tapas/programmer"
	"github.com/stefaandesmet2003/tapas/status"
	"github.com/stefaandesmet2003/tapas/store"
)

type noAck struct{}

func (noAck) Ack() bool { return false }

// rig drives a station without Run: each pump runs the loop once and
// then steps the encoder by hand.
type rig struct {
	st    *Station
	power *status.FakePower
	bits  []encoder.Bit
}

func newRig(t *testing.T, opts ...Option) *rig {
	t.Helper()
	r := &rig{power: &status.FakePower{}}
	opts = append(opts,
		WithProgrammerOptions(
			programmer.WithSampleDelay(func(time.Duration) {}),
			programmer.WithDrainWait(func(done func() bool) error {
				for i := 0; i < 100000; i++ {
					if done() {
						return nil
					}
					r.bits = append(r.bits, r.st.Encoder().Step())
				}
				return errors.New("encoder did not drain")
			}),
		),
	)
	st, err := New(config.DefaultConfig(), Hardware{
		Sink:  encoder.NewRecorder(),
		Power: r.power,
		Ack:   noAck{},
	}, opts...)
	require.NoError(t, err)
	r.st = st
	return r
}

func (r *rig) pump(cycles int) {
	for i := 0; i < cycles; i++ {
		r.st.Step()
		for b := 0; b < 64; b++ {
			r.bits = append(r.bits, r.st.Encoder().Step())
		}
	}
}

func (r *rig) packets() []encoder.Packet {
	return encoder.Decode(r.bits)
}

func hasPacket(packets []encoder.Packet, match func(p []byte) bool) bool {
	for _, p := range packets {
		if p.Valid() && match(p.Payload) {
			return true
		}
	}
	return false
}

func TestNewRequiresHardware(t *testing.T) {
	t.Parallel()

	_, err := New(config.DefaultConfig(), Hardware{Power: &status.FakePower{}})
	assert.Error(t, err)
}

func TestSpeedCommandReachesTrack(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	r.st.Status().SetMode(tapas.RunOkay)
	main, prog := r.power.State()
	assert.True(t, main)
	assert.False(t, prog)

	res := r.st.Organizer().LocoSpeed(3, 0x80|40)
	assert.False(t, res.Has(organizer.Full))
	r.pump(40)

	assert.True(t, hasPacket(r.packets(), func(p []byte) bool {
		return len(p) == 2 && p[0] == 0x03 && p[1]&0x40 != 0
	}), "no speed packet for loco 3")

	loco, ok := r.st.Organizer().Loco(3)
	require.True(t, ok)
	assert.Equal(t, uint8(0x80|40), loco.Speed)
	assert.Positive(t, r.st.Metrics().MessagesSent)
	assert.Equal(t, int64(40), r.st.Metrics().LoopCycles)
}

func TestTrackOffSendsOnlyIdle(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	r.st.Organizer().LocoSpeed(3, 0x80|40)
	r.pump(20)
	assert.False(t, hasPacket(r.packets(), func(p []byte) bool { return p[0] == 0x03 }))
}

func TestProgrammingFailureReturnsToMain(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	r.st.Status().SetMode(tapas.RunOkay)

	modes := make(chan tapas.RunMode, 16)
	r.st.Status().Subscribe(func(_, m tapas.RunMode) { modes <- m })

	require.Equal(t, programmer.Accepted, r.st.Programmer().DirectWrite(1, 7))
	assert.Equal(t, tapas.ProgOkay, r.st.Status().Mode())
	_, prog := r.power.State()
	assert.True(t, prog)

	for i := 0; i < 2000 && (r.st.Programmer().Busy() || r.st.Status().Mode() != tapas.RunOkay); i++ {
		r.pump(1)
	}
	assert.False(t, r.st.Programmer().Busy())
	assert.NotEqual(t, programmer.OK, r.st.Programmer().Result().Code)
	assert.Equal(t, tapas.RunOkay, r.st.Status().Mode())
	assert.Equal(t, int64(1), r.st.Metrics().ProgRuns)

	assert.True(t, hasPacket(r.packets(), func(p []byte) bool {
		return len(p) == 3 && p[0] == 0x7C && p[1] == 0x00 && p[2] == 7
	}), "no direct write packet")

	close(modes)
	var seen []tapas.RunMode
	for m := range modes {
		seen = append(seen, m)
	}
	assert.Contains(t, seen, tapas.ProgError)
}

func TestServiceModePreamble(t *testing.T) {
	t.Parallel()

	r := newRig(t)
	r.st.Status().SetMode(tapas.ProgOkay)
	r.bits = nil
	r.pump(10)

	var longest int
	for _, p := range r.packets() {
		longest = max(longest, p.Preamble)
	}
	assert.GreaterOrEqual(t, longest, encoder.PreambleProg)
}

func TestSnapshotsPublished(t *testing.T) {
	t.Parallel()

	clock := tapas.NewFakeClock(time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC))
	var got []monitor.Snapshot
	r := newRig(t,
		WithClock(clock),
		WithPublisher(time.Second, func(s monitor.Snapshot) { got = append(got, s) }),
	)
	r.st.Status().SetMode(tapas.RunOkay)
	r.st.Organizer().LocoSpeed(7, 0x80|10)

	r.pump(3)
	require.Len(t, got, 1)
	clock.Advance(time.Second)
	r.pump(1)
	require.Len(t, got, 2)

	last := r.st.Snapshot()
	require.NotNil(t, last)
	assert.Equal(t, "RUN_OKAY", last.Mode)
	require.Len(t, last.Locos, 1)
	assert.Equal(t, uint16(7), last.Locos[0].Address)
	assert.Equal(t, uint8(8), last.Clock.Hour)
	assert.Contains(t, last.Counters, "loopCycles")
}

func TestStoreKeepsFormats(t *testing.T) {
	t.Parallel()

	db, err := store.Open("")
	require.NoError(t, err)
	r := newRig(t, WithStore(db))
	r.st.Status().SetMode(tapas.RunOkay)

	r.st.Organizer().LocoSpeedFormat(1234, 0x80|5, tapas.DCC128)
	assert.Equal(t, tapas.DCC128, db.Format(1234))
}

func TestRunWithHostLink(t *testing.T) {
	t.Parallel()

	rec := encoder.NewRecorder()
	power := &status.FakePower{}
	host := tapas.NewMockTransport()
	st, err := New(config.DefaultConfig(), Hardware{
		Sink:  &encoder.Paced{Sink: rec},
		Power: power,
		Ack:   noAck{},
	}, WithHost(host), WithLoopDelay(100*time.Microsecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	var wg sync.WaitGroup
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = st.Run(ctx)
	}()

	require.Eventually(t, func() bool { return st.Status().Mode() == tapas.RunOkay }, 2*time.Second, time.Millisecond)
	require.NoError(t, st.Exec(ctx, func() { st.Organizer().LocoSpeed(3, 0x80|20) }))

	require.Eventually(t, func() bool {
		return hasPacket(rec.Packets(), func(p []byte) bool { return len(p) == 2 && p[0] == 0x03 })
	}, 3*time.Second, 10*time.Millisecond)

	var written []byte
	host.Feed(0x21, 0x21, 0x00)
	require.Eventually(t, func() bool {
		written = append(written, host.Written()...)
		return bytes.Contains(written, []byte{0x63, 0x21, 0x36, 0x00})
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, bytes.Contains(written, []byte{0x61, 0x01, 0x60}), "track on broadcast")

	cancel()
	wg.Wait()
	require.NoError(t, runErr)

	main, prog := power.State()
	assert.False(t, main)
	assert.False(t, prog)
	assert.ErrorIs(t, st.Exec(context.Background(), func() {}), ErrStopped)
	assert.Positive(t, st.Metrics().BitsSent)
	assert.Error(t, st.Run(context.Background()), "second run")
}
