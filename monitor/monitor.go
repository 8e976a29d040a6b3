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

// Package monitor streams station snapshots to websocket clients.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stefaandesmet2003/tapas/organizer"
)

// Snapshot is the JSON document sent to every client
type Snapshot struct {
	Stamp      int64            `json:"stamp"`
	Mode       string           `json:"mode"`
	Halted     bool             `json:"halted"`
	Locos      []organizer.Loco `json:"locos"`
	Programmer ProgrammerState  `json:"programmer"`
	Clock      ClockState       `json:"clock"`
	Queues     QueueState       `json:"queues"`
	Counters   map[string]int64 `json:"counters,omitempty"`
}

// ProgrammerState is the service mode part of a snapshot
type ProgrammerState struct {
	Busy   bool   `json:"busy"`
	Result string `json:"result"`
	CV     uint16 `json:"cv"`
	Data   uint8  `json:"data"`
}

// ClockState is the model time
type ClockState struct {
	Hour      uint8 `json:"hour"`
	Minute    uint8 `json:"minute"`
	DayOfWeek uint8 `json:"dayOfWeek"`
	Ratio     uint8 `json:"ratio"`
}

// QueueState holds the organizer queue fill levels
type QueueState struct {
	High int `json:"high"`
	Low  int `json:"low"`
	Prog int `json:"prog"`
}

const (
	sendBuffer   = 16
	writeTimeout = time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(log *logrus.Entry) Option {
	return func(s *Server) {
		s.log = log
	}
}

// Server holds the websocket clients and the last snapshot
type Server struct {
	log      *logrus.Entry
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	last     []byte
	dropped  int64
	mu       sync.RWMutex
}

// New creates a server without clients
func New(opts ...Option) *Server {
	s := &Server{
		log:     logrus.WithField("component", "monitor"),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler serves /ws for the stream and /snapshot for the last document
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	return mux
}

// ListenAndServe serves Handler on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		s.closeAll()
	}()

	s.log.Infof("monitor listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Publish sends snap to every connected client. Slow clients miss it.
func (s *Server) Publish(snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.WithError(err).Error("encoding snapshot")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = data
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.dropped++
		}
	}
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Dropped returns the number of snapshots not delivered to slow clients
func (s *Server) Dropped() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	data := s.last
	s.mu.RUnlock()
	if data == nil {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	if s.last != nil {
		c.send <- s.last
	}
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Debugf("client connected (%d total)", n)

	go s.writer(c)
	go s.reader(c)
}

func (*Server) writer(c *client) {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) reader(c *client) {
	defer s.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
	s.log.Debugf("client disconnected (%d total)", len(s.clients))
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}
