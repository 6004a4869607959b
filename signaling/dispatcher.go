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

package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hamza-Labs-Core/zajel-sub007/internal/logger"
	"github.com/Hamza-Labs-Core/zajel-sub007/internal/metrics"
	"github.com/Hamza-Labs-Core/zajel-sub007/pkg/version"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultReadTimeout      = 60 * time.Second
	heartbeatInterval       = 30 * time.Second
	eventBufferSize         = 64
)

// Conn is the subset of *websocket.Conn the dispatcher exercises, so
// tests can substitute an in-process fake (see signalingtest.FakeConn).
type Conn interface {
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn against url. *websocket.Dialer satisfies it
// directly via NewGorillaDialer; tests substitute a fake that hands
// back an in-process pipe instead of dialing a real socket.
type Dialer interface {
	DialContext(ctx context.Context, url string, header map[string][]string) (Conn, error)
}

// gorillaDialer adapts *websocket.Dialer to the Dialer seam.
type gorillaDialer struct {
	inner *websocket.Dialer
}

func NewGorillaDialer() Dialer {
	return &gorillaDialer{inner: &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}}
}

func (d *gorillaDialer) DialContext(ctx context.Context, url string, header map[string][]string) (Conn, error) {
	conn, _, err := d.inner.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Dispatcher owns one connection to a signaling server: registering
// the local peer identity, sending outbound frames, and fanning
// inbound frames out onto a single ordered Event channel. One
// Dispatcher instance corresponds to one signaling server connection;
// the orchestrator holds one per federated redirect it has followed.
type Dispatcher struct {
	dialer Dialer
	log    *logger.StructuredLogger

	mu        sync.Mutex
	conn      Conn
	connected bool
	closed    bool

	writeTimeout time.Duration
	readTimeout  time.Duration

	events chan Event

	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
	readDone      chan struct{}
}

// NewDispatcher constructs a Dispatcher that will dial through d. Pass
// NewGorillaDialer() in production; tests pass a fake.
func NewDispatcher(d Dialer, log *logger.StructuredLogger) *Dispatcher {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Dispatcher{
		dialer:       d,
		log:          log,
		writeTimeout: defaultWriteTimeout,
		readTimeout:  defaultReadTimeout,
		events:       make(chan Event, eventBufferSize),
	}
}

// Events returns the channel inbound events are delivered on, in
// receipt order. The channel is never closed while the Dispatcher is
// connected; it closes only after Close() tears the read loop down.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// Connect dials the signaling server at url, sends the register
// frame identifying this peer, and starts the read loop and
// heartbeat ticker. peerID is the identity announced to the server;
// it is opaque to the dispatcher.
func (d *Dispatcher) Connect(ctx context.Context, url string, peerID string) error {
	header := map[string][]string{"User-Agent": {version.UserAgent()}}
	conn, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		metrics.SignalingConnects.WithLabelValues("dial_error").Inc()
		return fmt.Errorf("signaling: dial %s: %w", url, err)
	}

	d.mu.Lock()
	d.conn = conn
	d.connected = true
	d.closed = false
	d.heartbeatStop = make(chan struct{})
	d.heartbeatDone = make(chan struct{})
	d.readDone = make(chan struct{})
	d.mu.Unlock()

	if err := d.writeFrame(wireFrame{Type: frameRegister, PeerID: peerID}); err != nil {
		metrics.SignalingConnects.WithLabelValues("register_failed").Inc()
		d.setConnected(false)
		return fmt.Errorf("signaling: register: %w", err)
	}

	metrics.SignalingConnects.WithLabelValues("ok").Inc()
	metrics.SignalingConnectionState.Set(1)

	go d.readLoop()
	go d.heartbeatLoop()

	return nil
}

// IsConnected reports whether the dispatcher currently believes it
// has a live connection. It does not itself detect a half-open
// socket; that surfaces as a write or read error, which flips this
// to false.
func (d *Dispatcher) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *Dispatcher) setConnected(v bool) {
	d.mu.Lock()
	d.connected = v
	d.mu.Unlock()
	if v {
		metrics.SignalingConnectionState.Set(1)
	} else {
		metrics.SignalingConnectionState.Set(0)
	}
}

// Close sends a graceful close frame and tears the connection down.
// It is safe to call more than once.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	conn := d.conn
	stop := d.heartbeatStop
	d.connected = false
	d.mu.Unlock()

	metrics.SignalingConnectionState.Set(0)

	if stop != nil {
		close(stop)
	}
	if conn == nil {
		close(d.events)
		return nil
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := conn.Close()

	<-d.readDone
	close(d.events)
	return err
}

func (d *Dispatcher) heartbeatLoop() {
	defer close(d.heartbeatDone)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.heartbeatStop:
			return
		case <-ticker.C:
			if err := d.writeFrame(wireFrame{Type: frameHeartbeat}); err != nil {
				d.log.Warn("signaling heartbeat failed", logger.Field{Key: "error", Value: err.Error()})
				d.setConnected(false)
				return
			}
		}
	}
}

func (d *Dispatcher) readLoop() {
	defer close(d.readDone)

	for {
		d.mu.Lock()
		conn := d.conn
		closed := d.closed
		d.mu.Unlock()
		if closed || conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(d.readTimeout))
		var frame wireFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				d.log.Error("signaling connection lost", logger.Field{Key: "error", Value: err.Error()})
			}
			d.setConnected(false)
			return
		}

		ev, ok := toEvent(frame)
		if !ok {
			metrics.SignalingMalformedFrames.Inc()
			d.log.Warn("dropping malformed signaling frame", logger.Field{Key: "type", Value: string(frame.Type)})
			continue
		}

		metrics.SignalingFramesReceived.WithLabelValues(string(frame.Type)).Inc()

		select {
		case d.events <- ev:
		default:
			d.log.Warn("signaling event channel full, dropping event", logger.Field{Key: "type", Value: string(frame.Type)})
		}
	}
}

func (d *Dispatcher) writeFrame(f wireFrame) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("signaling: not connected")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
	return conn.WriteJSON(f)
}

// toEvent converts a wire frame into its sealed Event variant. It
// returns ok=false for a frame type this dispatcher doesn't
// recognize, so readLoop can warn-and-drop rather than deliver a
// malformed event.
func toEvent(f wireFrame) (Event, bool) {
	switch f.Type {
	case frameOffer:
		return OfferEvent{PeerID: f.PeerID, SDP: f.SDP}, true
	case frameAnswer:
		return AnswerEvent{PeerID: f.PeerID, SDP: f.SDP}, true
	case frameIceCandidate:
		return IceCandidateEvent{PeerID: f.PeerID, Candidate: f.Candidate}, true
	case framePeerJoined:
		return PeerJoinedEvent{PeerID: f.PeerID}, true
	case framePeerLeft:
		return PeerLeftEvent{PeerID: f.PeerID}, true
	case framePairIncoming:
		return PairIncomingEvent{PeerID: f.PeerID, Code: f.Code, PublicKey: f.PublicKey}, true
	case framePairMatched:
		return PairMatchedEvent{PeerID: f.PeerID, Code: f.Code, PublicKey: f.PublicKey}, true
	case framePairRejected:
		return PairRejectedEvent{PeerID: f.PeerID, Reason: f.Reason}, true
	case framePairTimeout:
		return PairTimeoutEvent{PeerID: f.PeerID}, true
	case framePairError:
		return PairErrorEvent{Reason: f.Reason}, true
	case frameError:
		return ErrorEvent{Message: f.Message}, true
	case frameLinkRequest:
		return LinkRequestEvent{Code: f.Code, WebClientID: f.WebClientID, PublicKey: f.PublicKey, DeviceName: f.DeviceName}, true
	case frameLinkMatched:
		return LinkMatchedEvent{WebClientID: f.WebClientID}, true
	case frameLinkRejected:
		return LinkRejectedEvent{WebClientID: f.WebClientID, Reason: f.Reason}, true
	case frameLinkTimeout:
		return LinkTimeoutEvent{WebClientID: f.WebClientID}, true
	case frameRendezvousResult:
		return toRendezvousResultEvent(f), true
	case frameChunkMessage:
		return ChunkMessageEvent{
			PeerID:     f.PeerID,
			ChunkIndex: f.ChunkIndex,
			ChunkTotal: f.ChunkTotal,
			ChunkData:  f.ChunkData,
		}, true
	default:
		return nil, false
	}
}

func toRendezvousResultEvent(f wireFrame) Event {
	ev := RendezvousResultEvent{}
	if f.MatchedToken != "" && f.PeerID != "" {
		ev.Matches = append(ev.Matches, RendezvousMatch{Token: f.MatchedToken, PeerID: f.PeerID})
	}
	if f.RedirectURL != "" {
		ev.Redirects = append(ev.Redirects, RendezvousRedirect{Token: f.MatchedToken, RedirectURL: f.RedirectURL})
	}
	return ev
}

// SendOffer sends a WebRTC SDP offer to peerID.
func (d *Dispatcher) SendOffer(peerID, sdp string) error {
	return d.writeFrame(wireFrame{Type: frameOffer, PeerID: peerID, SDP: sdp})
}

// SendAnswer sends a WebRTC SDP answer to peerID.
func (d *Dispatcher) SendAnswer(peerID, sdp string) error {
	return d.writeFrame(wireFrame{Type: frameAnswer, PeerID: peerID, SDP: sdp})
}

// SendIceCandidate forwards one ICE candidate to peerID.
func (d *Dispatcher) SendIceCandidate(peerID, candidate string) error {
	return d.writeFrame(wireFrame{Type: frameIceCandidate, PeerID: peerID, Candidate: candidate})
}

// SendPairRequest asks the server to pair this peer with the node
// that holds pairingCode.
func (d *Dispatcher) SendPairRequest(pairingCode, publicKey string) error {
	return d.writeFrame(wireFrame{Type: framePairRequest, Code: pairingCode, PublicKey: publicKey})
}

// SendPairAccept accepts an incoming pairing request from peerID.
func (d *Dispatcher) SendPairAccept(peerID string) error {
	return d.writeFrame(wireFrame{Type: framePairAccept, PeerID: peerID})
}

// SendPairReject declines an incoming pairing request from peerID.
func (d *Dispatcher) SendPairReject(peerID, reason string) error {
	return d.writeFrame(wireFrame{Type: framePairReject, PeerID: peerID, Reason: reason})
}

// SendLinkRequest registers a linked-device proxy request carrying a
// QR-issued pairing code, the requesting web client's HPKE-encapsulated
// key, and its display name.
func (d *Dispatcher) SendLinkRequest(code, webClientID, publicKey, deviceName string) error {
	return d.writeFrame(wireFrame{Type: frameLinkRequest, Code: code, WebClientID: webClientID, PublicKey: publicKey, DeviceName: deviceName})
}

// SendRegisterRendezvous registers dailyTokens and hourlyTokens with
// the signaling server, asking it to resolve each to a live peer or a
// federated redirect. The server only emits live-match push
// notifications for hourlyTokens matches, so callers must duplicate
// every daily token into hourlyTokens as well — the Coordinator's
// bundle merge already guarantees this.
func (d *Dispatcher) SendRegisterRendezvous(dailyTokens, hourlyTokens []string) error {
	return d.writeFrame(wireFrame{Type: frameRegisterRendez, Tokens: dailyTokens, HourlyTokens: hourlyTokens})
}

// SendChunkMessage sends one chunk of a larger message frame to
// peerID, used when the payload exceeds what fits in a single signaling
// frame.
func (d *Dispatcher) SendChunkMessage(peerID string, chunkIndex, chunkTotal int, chunkData string) error {
	return d.writeFrame(wireFrame{
		Type:       frameChunkMessage,
		PeerID:     peerID,
		ChunkIndex: chunkIndex,
		ChunkTotal: chunkTotal,
		ChunkData:  chunkData,
	})
}
