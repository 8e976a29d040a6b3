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
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
	"github.com/stefaandesmet2003/tapas/monitor"
	"github.com/stefaandesmet2003/tapas/organizer"
)

const (
	maxStep    = 126
	maxAddress = 10239
)

// cab is the throttle state of the selected loco
type cab struct {
	address uint16
	step    int
	reverse bool
	light   bool
	f1f4    uint8
}

// speed returns the 128 step speed byte: 0 is stop, 1 emergency stop
func (c cab) speed() uint8 {
	var s uint8
	if c.step > 0 {
		s = uint8(c.step + 1)
	}
	if !c.reverse {
		s |= frame.SpeedDirection
	}
	return s
}

type consoleTickMsg time.Time

type consoleErrMsg struct{ err error }

type consoleModel struct {
	thr    throttle
	cab    cab
	cabs   map[uint16]cab
	snap   *monitor.Snapshot
	status string
	width  int
}

func newConsoleModel(thr throttle) consoleModel {
	return consoleModel{
		thr:   thr,
		cab:   cab{address: 3},
		cabs:  make(map[uint16]cab),
		width: 80,
	}
}

func consoleTick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (m consoleModel) Init() tea.Cmd {
	return consoleTick()
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case consoleTickMsg:
		m.snap = m.thr.Snapshot()
		return m, consoleTick()
	case consoleErrMsg:
		m.status = msg.err.Error()
	}
	return m, nil
}

func (m consoleModel) send(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return consoleErrMsg{err: err}
		}
		return nil
	}
}

func (m consoleModel) sendSpeed() tea.Cmd {
	c := m.cab
	return m.send(func() error { return m.thr.Speed(c.address, c.speed()) })
}

func (m consoleModel) sendFunctions() tea.Cmd {
	c := m.cab
	return m.send(func() error { return m.thr.Functions(c.address, c.light, c.f1f4) })
}

func (m consoleModel) selectLoco(delta int) consoleModel {
	m.cabs[m.cab.address] = m.cab
	next := int(m.cab.address) + delta
	if next < 1 {
		next = maxAddress
	} else if next > maxAddress {
		next = 1
	}
	c, ok := m.cabs[uint16(next)]
	if !ok {
		c = cab{address: uint16(next)}
	}
	m.cab = c
	m.status = ""
	return m
}

func (m consoleModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cab.step < maxStep {
			m.cab.step++
		}
		return m, m.sendSpeed()
	case "down", "j":
		if m.cab.step > 0 {
			m.cab.step--
		}
		return m, m.sendSpeed()
	case "r":
		m.cab.reverse = !m.cab.reverse
		return m, m.sendSpeed()
	case " ":
		m.cab.step = 0
		addr := m.cab.address
		return m, m.send(func() error { return m.thr.EmergencyStop(addr) })
	case "left", "h":
		return m.selectLoco(-1), nil
	case "right", "l":
		return m.selectLoco(1), nil
	case "0":
		m.cab.light = !m.cab.light
		return m, m.sendFunctions()
	case "1", "2", "3", "4":
		bit := msg.String()[0] - '1'
		m.cab.f1f4 ^= 1 << bit
		return m, m.sendFunctions()
	case "o":
		return m, m.send(func() error { return m.thr.SetMode(tapas.RunOkay) })
	case "f":
		return m, m.send(func() error { return m.thr.SetMode(tapas.RunOff) })
	case "s":
		return m, m.send(func() error { return m.thr.SetMode(tapas.RunStop) })
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func functionFlags(light bool, f1f4 uint8) string {
	var sb strings.Builder
	flag := func(name string, on bool) {
		if on {
			sb.WriteString(valueStyle.Render(name))
		} else {
			sb.WriteString(dimStyle.Render(name))
		}
		sb.WriteByte(' ')
	}
	flag("F0", light)
	for i := 0; i < 4; i++ {
		flag(fmt.Sprintf("F%d", i+1), f1f4&(1<<i) != 0)
	}
	return strings.TrimSpace(sb.String())
}

func (m consoleModel) renderCab() string {
	dir := "forward"
	if m.cab.reverse {
		dir = "reverse"
	}
	lines := []string{
		labelStyle.Render("Loco   ") + valueStyle.Render(fmt.Sprintf("%d", m.cab.address)),
		labelStyle.Render("Speed  ") + valueStyle.Render(fmt.Sprintf("%d/%d %s", m.cab.step, maxStep, dir)),
		labelStyle.Render("Funcs  ") + functionFlags(m.cab.light, m.cab.f1f4),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderLoco(l organizer.Loco) string {
	dir := ">"
	if l.Speed&frame.SpeedDirection == 0 {
		dir = "<"
	}
	return fmt.Sprintf("%5d  %-8s %s %3d  %s", l.Address, l.Format, dir, l.Speed&frame.SpeedMask,
		functionFlags(l.Light, l.F1F4))
}

func (m consoleModel) renderStation() string {
	if m.snap == nil {
		return boxStyle.Render(dimStyle.Render("waiting for station..."))
	}
	s := m.snap
	lines := []string{
		labelStyle.Render("Mode   ") + valueStyle.Render(s.Mode),
		labelStyle.Render("Clock  ") + valueStyle.Render(fmt.Sprintf("%02d:%02d x%d", s.Clock.Hour, s.Clock.Minute, s.Clock.Ratio)),
		labelStyle.Render("Queues ") + valueStyle.Render(fmt.Sprintf("hp %d  lp %d  prog %d", s.Queues.High, s.Queues.Low, s.Queues.Prog)),
		labelStyle.Render("Sent   ") + valueStyle.Render(fmt.Sprintf("%d", s.Counters["messagesSent"])),
		"",
		dimStyle.Render(" addr  format   dir spd  functions"),
	}
	if len(s.Locos) == 0 {
		lines = append(lines, dimStyle.Render("   no locos"))
	}
	for _, l := range s.Locos {
		lines = append(lines, renderLoco(l))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func (m consoleModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("tapas console"))
	sb.WriteString("\n\n")
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.renderCab(), " ", m.renderStation()))
	sb.WriteString("\n")
	if m.status != "" {
		sb.WriteString(errorStyle.Render(m.status))
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render("up/down speed  r reverse  left/right loco  0-4 functions  space stop  o/f/s track  q quit"))
	sb.WriteString("\n")
	return sb.String()
}
