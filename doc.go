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

/*
Package tapas is a DCC (Digital Command Control) command station for model railways.

The station turns host commands (locomotive speed and functions, accessories,
programming on the main, service mode CV access) into a continuous DCC bitstream.
The work is split over a few packages:

  - encoder: the bit-level track encoder with its single-slot mailbox
  - organizer: the queues, repeat buffer and locomotive refresh table that pick
    the next message whenever the encoder drained its mailbox
  - programmer: the service mode programmer (register, paged and direct mode)
  - status: owner of the RunMode, short circuit detection and the fast clock
  - lenz: host protocol parser speaking the LI101 dialect
  - station: wiring and the cooperative main loop

This package holds the shared vocabulary: RunMode, Format, the Transport
interface used by host links and the error types.

Basic Usage:

	cfg := config.DefaultConfig()
	host, err := uart.New("/dev/ttyUSB0", cfg.Serial.BaudRate)
	if err != nil {
	    log.Fatal(err)
	}
	defer host.Close()

	if err := hw.Init(); err != nil {
	    log.Fatal(err)
	}
	board, err := hw.Open(cfg.Pins, logrus.WithField("component", "hw"))
	if err != nil {
	    log.Fatal(err)
	}
	defer board.Halt()
	sink, err := board.Sink()
	if err != nil {
	    log.Fatal(err)
	}

	st, err := station.New(cfg, station.Hardware{
	    Sink:  sink,
	    Power: board.Power(),
	    Ack:   board.AckLine(),
	}, station.WithHost(host))
	if err != nil {
	    log.Fatal(err)
	}
	if err := st.Run(ctx); err != nil {
	    log.Fatal(err)
	}
*/
package tapas
