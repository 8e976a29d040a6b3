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
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/config"
	"github.com/stefaandesmet2003/tapas/encoder"
	"github.com/stefaandesmet2003/tapas/hw"
	ina219 "github.com/stefaandesmet2003/tapas/hw/i2c"
	"github.com/stefaandesmet2003/tapas/monitor"
	"github.com/stefaandesmet2003/tapas/station"
	"github.com/stefaandesmet2003/tapas/transport/uart"
)

var (
	runSimulate bool
	runNoHost   bool
	runMonitor  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the command station",
	Long: `Run the command station: drive the track, answer the host on the serial
port and optionally stream the station state to websocket clients.

With --simulate the track is simulated, so the station runs on any machine.`,
	RunE: runStation,
}

func init() {
	runCmd.Flags().BoolVar(&runSimulate, "simulate", false, "Simulate the track instead of using GPIO")
	runCmd.Flags().BoolVar(&runNoHost, "no-host", false, "Do not open a host serial port")
	runCmd.Flags().StringVar(&runMonitor, "monitor", "", "Monitor listen address, e.g. :8080")
	rootCmd.AddCommand(runCmd)
}

// simPower records the track enables of a simulated track
type simPower struct {
	main, prog bool
	mu         sync.Mutex
}

func (p *simPower) SetMain(on bool) {
	p.mu.Lock()
	p.main = on
	p.mu.Unlock()
}

func (p *simPower) SetProg(on bool) {
	p.mu.Lock()
	p.prog = on
	p.mu.Unlock()
}

// noDecoder never acknowledges
type noDecoder struct{}

func (noDecoder) Ack() bool { return false }

func simulatedHardware() station.Hardware {
	return station.Hardware{
		Sink:  &encoder.Paced{},
		Power: &simPower{},
		Ack:   noDecoder{},
	}
}

// boardHardware opens the GPIO lines and the optional I2C ACK sensor.
// The returned function releases them.
func boardHardware(cfg *config.Config) (station.Hardware, func(), error) {
	if err := hw.Init(); err != nil {
		return station.Hardware{}, nil, err
	}
	board, err := hw.Open(cfg.Pins, logrus.WithField("component", "hw"))
	if err != nil {
		return station.Hardware{}, nil, err
	}
	sink, err := board.Sink()
	if err != nil {
		return station.Hardware{}, nil, err
	}
	mainShort, progShort := board.ShortInputs()
	hwr := station.Hardware{
		Sink:         sink,
		Power:        board.Power(),
		Ack:          board.AckLine(),
		MainShort:    mainShort,
		ProgShort:    progShort,
		ExternalStop: board.ExternalStop(),
	}
	release := board.Halt

	if cfg.Sensor.Enabled {
		sensor, err := ina219.Open(cfg.Sensor.Bus, cfg.Sensor.Address, cfg.Sensor.INA219)
		if err != nil {
			board.Halt()
			return station.Hardware{}, nil, fmt.Errorf("opening ack sensor: %w", err)
		}
		hwr.Ack = sensor
		release = func() {
			board.Halt()
			_ = sensor.Close()
		}
	}
	return hwr, release, nil
}

func openHost(ctx context.Context, cfg *config.Config) (tapas.Transport, error) {
	name := cfg.Serial.Port
	if name == "" {
		var err error
		if name, err = pickPort(ctx, cfg); err != nil {
			return nil, err
		}
	}
	t, err := uart.New(name, cfg.Serial.BaudRate)
	if err != nil {
		return nil, err
	}
	logrus.Infof("host link on %s at %d baud", t.PortName(), t.BaudRate())
	return t, nil
}

func runStation(cmd *cobra.Command, _ []string) error {
	cfg, db, err := loadSettings()
	if err != nil {
		return err
	}
	if runMonitor != "" {
		cfg.Monitor.ListenAddr = runMonitor
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hwr := simulatedHardware()
	if !runSimulate {
		board, release, err := boardHardware(cfg)
		if err != nil {
			return err
		}
		defer release()
		hwr = board
	}

	opts := []station.Option{station.WithStore(db)}
	if !runNoHost {
		host, err := openHost(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = host.Close() }()
		opts = append(opts, station.WithHost(host))
	}

	var monErr chan error
	if cfg.Monitor.ListenAddr != "" {
		srv := monitor.New()
		opts = append(opts, station.WithPublisher(cfg.Monitor.Interval, srv.Publish))
		monErr = make(chan error, 1)
		go func() { monErr <- srv.ListenAndServe(ctx, cfg.Monitor.ListenAddr) }()
	}

	st, err := station.New(cfg, hwr, opts...)
	if err != nil {
		return err
	}
	err = st.Run(ctx)
	m := st.Metrics()
	logrus.Infof("%d loop cycles, %d messages, %d dropped, %d programming runs",
		m.LoopCycles, m.MessagesSent, m.QueueDrops, m.ProgRuns)
	if monErr != nil {
		stop()
		if merr := <-monErr; merr != nil && err == nil {
			err = fmt.Errorf("monitor: %w", merr)
		}
	}
	return err
}
