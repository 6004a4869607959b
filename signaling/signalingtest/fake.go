// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package signalingtest provides an in-process fake signaling
// transport so orchestrator- and dispatcher-level tests can exercise
// the full connect/send/receive/close lifecycle without a network
// socket.
package signalingtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Hamza-Labs-Core/zajel-sub007/signaling"
)

// FakeConn is an in-process substitute for a *websocket.Conn. Frames
// written by the code under test land on Outbound; frames queued by
// the test via Push are delivered to the next ReadJSON call.
type FakeConn struct {
	mu       sync.Mutex
	inbound  chan []byte
	closed   bool
	Outbound chan []byte
}

func NewFakeConn() *FakeConn {
	return &FakeConn{
		inbound:  make(chan []byte, 64),
		Outbound: make(chan []byte, 64),
	}
}

// Push queues a server->client frame for the next ReadJSON call.
func (c *FakeConn) Push(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("signalingtest: connection closed")
	}
	c.inbound <- data
	return nil
}

func (c *FakeConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("signalingtest: connection closed")
	}
	c.Outbound <- data
	return nil
}

func (c *FakeConn) ReadJSON(v interface{}) error {
	data, ok := <-c.inbound
	if !ok {
		return errors.New("signalingtest: connection closed")
	}
	return json.Unmarshal(data, v)
}

func (c *FakeConn) SetWriteDeadline(t time.Time) error { return nil }
func (c *FakeConn) SetReadDeadline(t time.Time) error  { return nil }

func (c *FakeConn) WriteMessage(messageType int, data []byte) error {
	return nil
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.inbound)
	return nil
}

// FakeDialer hands back a single pre-built FakeConn, recording the
// url and header it was dialed with for assertions.
type FakeDialer struct {
	Conn *FakeConn

	DialErr error

	mu       sync.Mutex
	DialedURL string
}

func NewFakeDialer(conn *FakeConn) *FakeDialer {
	return &FakeDialer{Conn: conn}
}

func (d *FakeDialer) DialContext(ctx context.Context, url string, header map[string][]string) (signaling.Conn, error) {
	d.mu.Lock()
	d.DialedURL = url
	d.mu.Unlock()
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	return d.Conn, nil
}

var (
	_ signaling.Conn   = (*FakeConn)(nil)
	_ signaling.Dialer = (*FakeDialer)(nil)
)
