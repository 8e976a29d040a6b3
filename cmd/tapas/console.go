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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/monitor"
	"github.com/stefaandesmet2003/tapas/station"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Drive locos from the keyboard on a simulated track",
	Long: `Start a station on a simulated track and control it from the keyboard.

Keys:
  up/down     speed          r      reverse
  left/right  select loco    0-4    toggle F0..F4
  space       emergency stop o/f/s  track on / off / stop all
  q           quit`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// throttle is what the console needs from a station
type throttle interface {
	Speed(addr uint16, speed uint8) error
	Functions(addr uint16, light bool, f1f4 uint8) error
	EmergencyStop(addr uint16) error
	SetMode(m tapas.RunMode) error
	Snapshot() *monitor.Snapshot
}

// stationThrottle runs the console commands on the station loop
type stationThrottle struct {
	ctx context.Context
	st  *station.Station
}

func (t stationThrottle) exec(fn func()) error {
	ctx, cancel := context.WithTimeout(t.ctx, time.Second)
	defer cancel()
	return t.st.Exec(ctx, fn)
}

func (t stationThrottle) Speed(addr uint16, speed uint8) error {
	return t.exec(func() { t.st.Organizer().LocoSpeed(addr, speed) })
}

func (t stationThrottle) Functions(addr uint16, light bool, f1f4 uint8) error {
	var err error
	if execErr := t.exec(func() {
		var lightBits uint8
		if light {
			lightBits = 1
		}
		if _, err = t.st.Organizer().LocoFunction(addr, 0, lightBits); err != nil {
			return
		}
		_, err = t.st.Organizer().LocoFunction(addr, 1, f1f4)
	}); execErr != nil {
		return execErr
	}
	return err
}

func (t stationThrottle) EmergencyStop(addr uint16) error {
	return t.exec(func() { t.st.Organizer().EmergencyStop(addr) })
}

func (t stationThrottle) SetMode(m tapas.RunMode) error {
	return t.exec(func() { t.st.Status().SetMode(m) })
}

func (t stationThrottle) Snapshot() *monitor.Snapshot {
	return t.st.Snapshot()
}

func runConsole(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("console needs a terminal")
	}
	cfg, db, err := loadSettings()
	if err != nil {
		return err
	}
	// log lines would tear the screen
	logrus.SetOutput(discardWriter{})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	st, err := station.New(cfg, simulatedHardware(),
		station.WithStore(db),
		station.WithPublisher(200*time.Millisecond, func(monitor.Snapshot) {}))
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- st.Run(ctx) }()

	p := tea.NewProgram(newConsoleModel(stationThrottle{ctx: ctx, st: st}), tea.WithAltScreen())
	_, uiErr := p.Run()
	cancel()
	runErr := <-done
	if uiErr != nil {
		return fmt.Errorf("console: %w", uiErr)
	}
	return runErr
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
