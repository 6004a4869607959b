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

package orchestrator

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"

	"github.com/Hamza-Labs-Core/zajel-sub007/internal/broadcast"
	"github.com/Hamza-Labs-Core/zajel-sub007/internal/logger"
	"github.com/Hamza-Labs-Core/zajel-sub007/link"
	"github.com/Hamza-Labs-Core/zajel-sub007/paircode"
	"github.com/Hamza-Labs-Core/zajel-sub007/pairing"
	"github.com/Hamza-Labs-Core/zajel-sub007/peer"
	"github.com/Hamza-Labs-Core/zajel-sub007/rendezvous"
	"github.com/Hamza-Labs-Core/zajel-sub007/securechannel"
	"github.com/Hamza-Labs-Core/zajel-sub007/signaling"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
	"github.com/Hamza-Labs-Core/zajel-sub007/webrtc"
)

const linkPeerPrefix = "link_"

// connState is the orchestrator's own signaling-state sum type,
// deliberately narrower than signaling.State: Connecting collapses
// into Disconnected from the caller's point of view until Connect
// returns, matching §4.9's two externally-observable states.
type connState int

const (
	stateDisconnected connState = iota
	stateConnected
)

// Config wires an Orchestrator's collaborators. Engine and Crypto are
// long-lived across connect-cycles; Dial produces a fresh Dispatcher
// for each one (and for every federated-redirect auxiliary
// connection the rendezvous coordinator opens).
type Config struct {
	Dial          DialFunc
	Engine        webrtc.Engine
	Crypto        securechannel.Service
	TrustedPeers  storage.TrustedPeerStore
	Messages      storage.MessageStore
	LinkedDevices storage.LinkedDeviceStore
	IsBlocked     pairing.BlockPredicate
	IsE2ETest     bool
	Logger        *logger.StructuredLogger
}

// Orchestrator is the composition root from spec.md §4.9: it owns the
// peer table, the signaling-state sum type, the federated-redirect
// map (delegated to the rendezvous.Coordinator it constructs at
// Connect time), and every subscription a connect-cycle opens.
type Orchestrator struct {
	dial          DialFunc
	engine        webrtc.Engine
	crypto        securechannel.Service
	trustedPeers  storage.TrustedPeerStore
	messages      storage.MessageStore
	linkedDevices storage.LinkedDeviceStore
	isBlocked     pairing.BlockPredicate
	isE2ETest     bool
	log           *logger.StructuredLogger

	registry     *peer.Registry
	migrator     *peer.Migrator
	rotator      *securechannel.Rotator
	linkSessions *link.Manager
	linkProxy    *link.Proxy

	messageStream      *broadcast.Broadcaster[MessageEvent]
	fileStartStream    *broadcast.Broadcaster[FileStartEvent]
	fileChunkStream    *broadcast.Broadcaster[FileChunkEvent]
	fileCompleteStream *broadcast.Broadcaster[FileCompleteEvent]
	linkRequestStream  *broadcast.Broadcaster[LinkRequestNotice]

	mu         sync.Mutex
	generation uint64
	state      connState
	ownCode    string
	dispatcher Dispatcher
	pairingCtl *pairing.Controller
	coordinator *rendezvous.Coordinator
	runCancel  context.CancelFunc
	runDone    chan struct{}

	initMu     sync.Mutex
	initiating map[string]bool

	chunksMu sync.Mutex
	chunks   map[string]*chunkAssembly

	disposed bool
}

type chunkAssembly struct {
	data  [][]byte
	total int
}

// New constructs an Orchestrator. Initialize must be called before
// Connect to prime the crypto service and seed the peer table.
func New(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefaultLogger()
	}

	registry := peer.NewRegistry(cfg.TrustedPeers, log)
	rotator := securechannel.NewRotator(cfg.Crypto)
	linkSessions := link.NewManager()

	return &Orchestrator{
		dial:          cfg.Dial,
		engine:        cfg.Engine,
		crypto:        cfg.Crypto,
		trustedPeers:  cfg.TrustedPeers,
		messages:      cfg.Messages,
		linkedDevices: cfg.LinkedDevices,
		isBlocked:     cfg.IsBlocked,
		isE2ETest:     cfg.IsE2ETest,
		log:           log,

		registry:     registry,
		migrator:     peer.NewMigrator(registry, cfg.TrustedPeers, cfg.Messages, rotator, log),
		rotator:      rotator,
		linkSessions: linkSessions,
		linkProxy:    link.NewProxy(linkSessions, cfg.Crypto, cfg.Engine, cfg.LinkedDevices, log),

		messageStream:      broadcast.New[MessageEvent](),
		fileStartStream:    broadcast.New[FileStartEvent](),
		fileChunkStream:    broadcast.New[FileChunkEvent](),
		fileCompleteStream: broadcast.New[FileCompleteEvent](),
		linkRequestStream:  broadcast.New[LinkRequestNotice](),

		initiating: make(map[string]bool),
		chunks:     make(map[string]*chunkAssembly),
	}
}

// Initialize primes the crypto service and seeds the peer table from
// trusted storage, per §4.9.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if err := o.crypto.Initialize(); err != nil {
		return logger.NewZajelError(logger.ErrCodeInternal, "failed to initialize crypto service", err)
	}
	return o.registry.Seed(ctx)
}

// Connect cancels any prior connect-cycle, generates or reuses a
// pairing code, dials a fresh Dispatcher, and opens the link: the
// pairing controller and rendezvous coordinator are (re)built against
// it, the event-processing loop is started, and every trusted peer is
// re-registered at the meeting point. Safe to call multiple times.
func (o *Orchestrator) Connect(ctx context.Context, serverURL, pairingCode string) (string, error) {
	o.Disconnect()

	code, err := resolveCode(pairingCode)
	if err != nil {
		return "", logger.NewZajelError(logger.ErrCodeInvalidPairingCode, "invalid pairing code", err)
	}

	o.mu.Lock()
	o.generation++
	myGen := o.generation
	o.mu.Unlock()

	dispatcher := o.dial()
	if err := dispatcher.Connect(ctx, serverURL, string(code)); err != nil {
		return "", logger.NewZajelError(logger.ErrCodeSignalingTransient, "failed to connect to signaling", err)
	}

	o.mu.Lock()
	if o.generation != myGen {
		o.mu.Unlock()
		_ = dispatcher.Close()
		return "", logger.NewZajelError(logger.ErrCodeSignalingTransient, "connect superseded by a concurrent reconnect", nil)
	}

	pairingCtl := pairing.NewController(pairing.Config{
		Dispatcher: dispatcher,
		Registry:   o.registry,
		Migrator:   o.migrator,
		Engine:     o.engine,
		Crypto:     o.crypto,
		Trusted:    o.trustedPeers,
		Logger:     o.log,
		IsBlocked:  o.isBlocked,
		IsE2ETest:  o.isE2ETest,
	})

	coordinator := rendezvous.NewCoordinator(rendezvous.Config{
		Primary:      dispatcher,
		Dial:         func() rendezvous.Dispatcher { return o.dial() },
		OwnCode:      string(code),
		OwnPublicKey: o.crypto.PublicKeyBytes(),
		Peers:        o.trustedPeers,
		Secrets:      o.sessionSecret,
		PeerState:    o.peerState,
		Pairing:      pairingCtl,
		Logger:       o.log,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	o.ownCode = string(code)
	o.dispatcher = dispatcher
	o.pairingCtl = pairingCtl
	o.coordinator = coordinator
	o.runCancel = cancel
	o.runDone = done
	o.state = stateConnected
	o.mu.Unlock()

	go o.runEventLoop(runCtx, done, dispatcher, pairingCtl, coordinator, myGen)

	if err := coordinator.ReconnectAllTrusted(ctx); err != nil {
		o.log.Warn("orchestrator: reconnect_all_trusted failed", logger.Field{Key: "error", Value: err.Error()})
	}

	return string(code), nil
}

func resolveCode(pairingCode string) (paircode.Code, error) {
	if pairingCode == "" {
		return paircode.Generate()
	}
	return paircode.Normalize(pairingCode)
}

// Disconnect tears down the current connect-cycle in the order
// mandated by §5: redirects and the rendezvous coordinator's resend
// timer (both owned by Coordinator.Shutdown), then the event loop
// draining WebRTC and signaling events, then the dispatcher itself.
// Idempotent.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	if o.state == stateDisconnected && o.dispatcher == nil {
		o.mu.Unlock()
		return
	}
	coordinator := o.coordinator
	runCancel := o.runCancel
	done := o.runDone
	dispatcher := o.dispatcher

	o.generation++
	o.state = stateDisconnected
	o.ownCode = ""
	o.dispatcher = nil
	o.pairingCtl = nil
	o.coordinator = nil
	o.runCancel = nil
	o.runDone = nil
	o.mu.Unlock()

	if coordinator != nil {
		if err := coordinator.Shutdown(); err != nil {
			o.log.Warn("orchestrator: rendezvous shutdown failed", logger.Field{Key: "error", Value: err.Error()})
		}
	}
	if runCancel != nil {
		runCancel()
	}
	if done != nil {
		<-done
	}
	if dispatcher != nil {
		_ = dispatcher.Close()
	}
}

// Dispose performs a full shutdown: Disconnect, then closes every
// broadcast stream so lingering subscribers observe closure rather
// than hanging forever.
func (o *Orchestrator) Dispose() {
	o.Disconnect()

	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.disposed = true
	o.mu.Unlock()

	o.messageStream.Close()
	o.fileStartStream.Close()
	o.fileChunkStream.Close()
	o.fileCompleteStream.Close()
	o.linkRequestStream.Close()
}

// ConnectToPeer begins the §4.6 initiator path.
func (o *Orchestrator) ConnectToPeer(code, proposedName string) error {
	ctl := o.currentPairingController()
	if ctl == nil {
		return logger.NewZajelError(logger.ErrCodeNotConnected, "signaling is not connected", nil)
	}
	normalized, err := paircode.Normalize(code)
	if err != nil {
		return logger.NewZajelError(logger.ErrCodeInvalidPairingCode, "invalid pairing code", err)
	}
	o.setInitiating(string(normalized))
	return ctl.ConnectToPeer(code, proposedName)
}

// RespondToPairRequest is the UI callback answering an
// IncomingPairRequest surfaced on PairRequests().
func (o *Orchestrator) RespondToPairRequest(code string, accept bool) error {
	ctl := o.currentPairingController()
	if ctl == nil {
		return logger.NewZajelError(logger.ErrCodeNotConnected, "signaling is not connected", nil)
	}
	return ctl.RespondToPairRequest(code, accept)
}

// RespondToLinkRequest is the UI callback for a LinkRequestNotice.
// Admission itself already happened automatically per §4.8 once the
// code and session matched; accept is therefore a no-op confirmation,
// while reject evicts the already-admitted device identified by
// deviceID (the linked device's webClientId).
func (o *Orchestrator) RespondToLinkRequest(ctx context.Context, code string, accept bool, deviceID string) error {
	if accept {
		return nil
	}
	if deviceID == "" {
		return logger.NewZajelError(logger.ErrCodeInvalidInput, "device id required to reject a linked device", nil)
	}
	o.linkProxy.RemoveDevice(deviceID)
	if o.linkedDevices != nil {
		if err := o.linkedDevices.Delete(ctx, deviceID); err != nil {
			o.log.Warn("orchestrator: failed to delete rejected linked device", logger.Field{Key: "device_id", Value: deviceID}, logger.Field{Key: "error", Value: err.Error()})
		}
	}
	return nil
}

// SendMessage delegates to the WebRTC engine, per §4.9.
func (o *Orchestrator) SendMessage(peerCode string, plaintext []byte) error {
	if o.registry.Get(peerCode) == nil {
		return logger.NewZajelError(logger.ErrCodePeerNotFound, "unknown peer", nil)
	}
	return o.engine.SendMessage(peerCode, plaintext)
}

// SendFile delegates to the WebRTC engine, per §4.9.
func (o *Orchestrator) SendFile(peerCode, name string, data []byte) error {
	if o.registry.Get(peerCode) == nil {
		return logger.NewZajelError(logger.ErrCodePeerNotFound, "unknown peer", nil)
	}
	return o.engine.SendFile(peerCode, name, data)
}

// DisconnectPeer closes the WebRTC peer and transitions it to
// Disconnected, per §4.9.
func (o *Orchestrator) DisconnectPeer(code string) error {
	if err := o.engine.ClosePeer(code); err != nil {
		o.log.Warn("orchestrator: close peer failed", logger.Field{Key: "code", Value: code}, logger.Field{Key: "error", Value: err.Error()})
	}
	o.registry.Close(code)
	o.linkProxy.NotifyPeerState(code, peer.Disconnected.String())
	return nil
}

// CancelConnection is DisconnectPeer under another name, per §4.9's
// operation list (both close the WebRTC peer and transition to
// Disconnected).
func (o *Orchestrator) CancelConnection(code string) error {
	return o.DisconnectPeer(code)
}

// CreateLinkSession generates a fresh ephemeral key pair and link
// code for a browser/desktop device to scan, per §4.8.
func (o *Orchestrator) CreateLinkSession(serverURL string) (*link.Session, error) {
	return o.linkSessions.CreateSession(serverURL)
}

// Peers exposes the peer-table snapshot stream.
func (o *Orchestrator) Peers() (<-chan []*peer.Peer, func()) { return o.registry.Subscribe() }

// Messages exposes the (peer, plaintext) stream.
func (o *Orchestrator) Messages() (<-chan MessageEvent, func()) { return o.messageStream.Subscribe() }

// FileStarts exposes the inbound file-transfer-start stream.
func (o *Orchestrator) FileStarts() (<-chan FileStartEvent, func()) {
	return o.fileStartStream.Subscribe()
}

// FileChunks exposes the inbound file-chunk stream.
func (o *Orchestrator) FileChunks() (<-chan FileChunkEvent, func()) {
	return o.fileChunkStream.Subscribe()
}

// FileCompletes exposes the inbound file-transfer-complete stream.
func (o *Orchestrator) FileCompletes() (<-chan FileCompleteEvent, func()) {
	return o.fileCompleteStream.Subscribe()
}

// PairRequests exposes the responder-side admission stream. Before a
// connect-cycle exists it returns an already-closed channel.
func (o *Orchestrator) PairRequests() (<-chan pairing.IncomingPairRequest, func()) {
	if ctl := o.currentPairingController(); ctl != nil {
		return ctl.IncomingPairRequests()
	}
	ch := make(chan pairing.IncomingPairRequest)
	close(ch)
	return ch, func() {}
}

// LinkRequests exposes the linked-device admission-notice stream.
func (o *Orchestrator) LinkRequests() (<-chan LinkRequestNotice, func()) {
	return o.linkRequestStream.Subscribe()
}

// IsConnected reports whether the current connect-cycle's dispatcher
// is connected to the signaling server. Both the signaling and
// rendezvous health checks key off this: rendezvous registration and
// meeting-point resolution both ride the same primary connection.
func (o *Orchestrator) IsConnected() bool {
	o.mu.Lock()
	dispatcher := o.dispatcher
	o.mu.Unlock()
	return dispatcher != nil && dispatcher.IsConnected()
}

func (o *Orchestrator) currentPairingController() *pairing.Controller {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pairingCtl
}

func (o *Orchestrator) currentGeneration() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

func (o *Orchestrator) stillCurrent(gen uint64) bool {
	return o.currentGeneration() == gen
}

func (o *Orchestrator) sessionSecret(peerCode string) []byte {
	key, err := o.crypto.SessionKeyBytes(peerCode)
	if err != nil {
		return nil
	}
	return key
}

func (o *Orchestrator) peerState(code string) (string, bool) {
	p := o.registry.Get(code)
	if p == nil {
		return "", false
	}
	return p.State.String(), true
}

func (o *Orchestrator) setInitiating(code string) {
	o.initMu.Lock()
	o.initiating[code] = true
	o.initMu.Unlock()
}

func (o *Orchestrator) popInitiating(code string) bool {
	o.initMu.Lock()
	defer o.initMu.Unlock()
	v := o.initiating[code]
	delete(o.initiating, code)
	return v
}

// runEventLoop is the single goroutine that serially drains the
// currently-captured dispatcher's signaling events and the engine's
// WebRTC events, per §5's "one logical executor" scheduling model.
// dispatcher, pairingCtl, coordinator, and gen are all captured at
// Connect time for this specific connect-cycle; every suspending
// handler re-validates gen (via stillCurrent) and dispatcher.IsConnected()
// after it resumes, per the capture-rule discipline.
func (o *Orchestrator) runEventLoop(ctx context.Context, done chan struct{}, dispatcher Dispatcher, pairingCtl *pairing.Controller, coordinator *rendezvous.Coordinator, gen uint64) {
	defer close(done)

	sigEvents := dispatcher.Events()
	engineEvents := o.engine.SignalingEvents()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sigEvents:
			if !ok {
				return
			}
			o.handleSignalingEvent(ctx, ev, dispatcher, pairingCtl, coordinator, gen)
		case pe, ok := <-engineEvents:
			if !ok {
				return
			}
			o.handlePeerEvent(ctx, pe, dispatcher, gen)
		}
	}
}

func (o *Orchestrator) handleSignalingEvent(ctx context.Context, ev signaling.Event, dispatcher Dispatcher, pairingCtl *pairing.Controller, coordinator *rendezvous.Coordinator, gen uint64) {
	switch e := ev.(type) {
	case signaling.OfferEvent:
		if err := pairingCtl.HandleOffer(e.PeerID, e.SDP); err != nil {
			o.log.Warn("orchestrator: handle offer failed", logger.Field{Key: "code", Value: e.PeerID}, logger.Field{Key: "error", Value: err.Error()})
		}

	case signaling.AnswerEvent:
		if err := o.engine.HandleAnswer(e.PeerID, e.SDP); err != nil {
			o.log.Warn("orchestrator: handle answer failed", logger.Field{Key: "code", Value: e.PeerID}, logger.Field{Key: "error", Value: err.Error()})
			o.registry.ApplyPairRejected(e.PeerID)
		}

	case signaling.IceCandidateEvent:
		if err := o.engine.HandleICECandidate(e.PeerID, e.Candidate); err != nil {
			o.log.Warn("orchestrator: handle ice candidate failed", logger.Field{Key: "code", Value: e.PeerID}, logger.Field{Key: "error", Value: err.Error()})
		}

	case signaling.PeerLeftEvent:
		o.registry.ApplyPeerLeft(e.PeerID)
		o.linkProxy.NotifyPeerState(e.PeerID, peer.Disconnected.String())

	case signaling.PeerJoinedEvent:
		o.log.Debug("orchestrator: peer joined", logger.Field{Key: "peer_id", Value: e.PeerID})

	case signaling.PairIncomingEvent:
		publicKey := decodeKey(e.PublicKey)
		pairingCtl.HandlePairIncoming(ctx, e.Code, publicKey, "")

	case signaling.PairMatchedEvent:
		isInitiator := o.popInitiating(e.Code)
		publicKey := decodeKey(e.PublicKey)
		pairingCtl.HandlePairMatched(ctx, e.Code, publicKey, isInitiator)

	case signaling.PairRejectedEvent:
		pairingCtl.HandlePairRejected(e.PeerID)

	case signaling.PairTimeoutEvent:
		pairingCtl.HandlePairTimeout(e.PeerID)

	case signaling.PairErrorEvent:
		pairingCtl.HandlePairError()

	case signaling.ErrorEvent:
		o.log.Warn("orchestrator: signaling server error", logger.Field{Key: "message", Value: e.Message})

	case signaling.LinkRequestEvent:
		o.handleLinkRequest(ctx, e, dispatcher, gen)

	case signaling.LinkMatchedEvent:
		o.linkProxy.MarkDeviceOpen(e.WebClientID)

	case signaling.LinkRejectedEvent:
		o.linkProxy.RemoveDevice(e.WebClientID)

	case signaling.LinkTimeoutEvent:
		o.linkProxy.RemoveDevice(e.WebClientID)

	case signaling.RendezvousResultEvent:
		coordinator.HandleResult(ctx, e)

	case signaling.ChunkMessageEvent:
		o.handleChunkMessage(e)

	default:
		o.log.Warn("orchestrator: unrecognized signaling event")
	}
}

// handleLinkRequest admits an inbound LinkRequest per §4.8. Admit
// itself performs the suspending crypto/storage/engine work; the
// capture-rule discipline requires re-checking the captured
// dispatcher is still connected, and this connect-cycle is still
// current, before sending the resulting offer back to the device.
func (o *Orchestrator) handleLinkRequest(ctx context.Context, e signaling.LinkRequestEvent, dispatcher Dispatcher, gen uint64) {
	offer, err := o.linkProxy.Admit(ctx, e)
	if err != nil {
		o.log.Warn("orchestrator: link admission failed", logger.Field{Key: "code", Value: e.Code}, logger.Field{Key: "error", Value: err.Error()})
		return
	}

	if !o.stillCurrent(gen) || !dispatcher.IsConnected() {
		return
	}
	if err := dispatcher.SendOffer(e.WebClientID, offer); err != nil {
		o.log.Warn("orchestrator: failed to send link offer", logger.Field{Key: "web_client_id", Value: e.WebClientID}, logger.Field{Key: "error", Value: err.Error()})
		return
	}

	o.linkRequestStream.Publish(LinkRequestNotice{
		Code:        e.Code,
		PublicKey:   e.PublicKey,
		WebClientID: e.WebClientID,
		DeviceName:  e.DeviceName,
	})
}

// handleChunkMessage reassembles a dead-drop ciphertext delivered over
// signaling (rather than an open WebRTC channel) in ChunkTotal pieces,
// then decrypts it under the inferred peer session. A decrypt failure
// is the DeadDropDecryptFail error kind from §7: logged, dropped.
func (o *Orchestrator) handleChunkMessage(e signaling.ChunkMessageEvent) {
	o.chunksMu.Lock()
	asm, ok := o.chunks[e.PeerID]
	if !ok {
		asm = &chunkAssembly{data: make([][]byte, e.ChunkTotal), total: e.ChunkTotal}
		o.chunks[e.PeerID] = asm
	}
	if e.ChunkIndex < 0 || e.ChunkIndex >= len(asm.data) {
		o.chunksMu.Unlock()
		return
	}
	asm.data[e.ChunkIndex] = []byte(e.ChunkData)

	complete := true
	for _, chunk := range asm.data {
		if chunk == nil {
			complete = false
			break
		}
	}
	if !complete {
		o.chunksMu.Unlock()
		return
	}
	delete(o.chunks, e.PeerID)
	o.chunksMu.Unlock()

	var assembled []byte
	for _, chunk := range asm.data {
		assembled = append(assembled, chunk...)
	}

	plaintext, err := o.crypto.DecryptFromPeer(e.PeerID, assembled)
	if err != nil {
		o.log.Warn("orchestrator: dead drop decrypt failed", logger.Field{Key: "code", Value: e.PeerID}, logger.Field{Key: "error", Value: err.Error()})
		return
	}
	o.messageStream.Publish(MessageEvent{PeerCode: e.PeerID, Plaintext: plaintext})
}

func (o *Orchestrator) handlePeerEvent(ctx context.Context, pe webrtc.PeerEvent, dispatcher Dispatcher, gen uint64) {
	if strings.HasPrefix(pe.PeerID, linkPeerPrefix) {
		o.handleLinkPeerEvent(ctx, pe)
		return
	}

	switch pe.Kind {
	case webrtc.PeerEventOpen:
		o.onPeerOpen(ctx, pe.PeerID)

	case webrtc.PeerEventMessage:
		o.messageStream.Publish(MessageEvent{PeerCode: pe.PeerID, Plaintext: pe.Data})
		o.linkProxy.ForwardFromPeer(ctx, pe.PeerID, pe.Data)

	case webrtc.PeerEventFileStart:
		o.fileStartStream.Publish(FileStartEvent{PeerCode: pe.PeerID, FileID: pe.FileID, Name: pe.Name, TotalSize: pe.Size, TotalChunks: pe.Total})

	case webrtc.PeerEventFileChunk:
		o.fileChunkStream.Publish(FileChunkEvent{PeerCode: pe.PeerID, FileID: pe.FileID, Data: pe.Data, Index: pe.Index, Total: pe.Total})

	case webrtc.PeerEventFileComplete:
		o.fileCompleteStream.Publish(FileCompleteEvent{PeerCode: pe.PeerID, FileID: pe.FileID})

	case webrtc.PeerEventClosed:
		o.registry.ApplyPeerLeft(pe.PeerID)
		o.linkProxy.NotifyPeerState(pe.PeerID, peer.Disconnected.String())

	case webrtc.PeerEventICECandidate:
		if !o.stillCurrent(gen) || !dispatcher.IsConnected() {
			return
		}
		if err := dispatcher.SendIceCandidate(pe.PeerID, pe.ICE); err != nil {
			o.log.Warn("orchestrator: failed to forward ice candidate", logger.Field{Key: "code", Value: pe.PeerID}, logger.Field{Key: "error", Value: err.Error()})
		}

	case webrtc.PeerEventError:
		o.log.Warn("orchestrator: webrtc peer error", logger.Field{Key: "code", Value: pe.PeerID}, logger.Field{Key: "error", Value: errString(pe.Err)})
		o.registry.ApplyPairRejected(pe.PeerID)
	}
}

func (o *Orchestrator) handleLinkPeerEvent(ctx context.Context, pe webrtc.PeerEvent) {
	switch pe.Kind {
	case webrtc.PeerEventOpen:
		o.linkProxy.MarkPeerOpen(pe.PeerID)
	case webrtc.PeerEventMessage:
		if err := o.linkProxy.HandleDeviceMessage(ctx, pe.PeerID, pe.Data); err != nil {
			o.log.Warn("orchestrator: link device message failed", logger.Field{Key: "peer_id", Value: pe.PeerID}, logger.Field{Key: "error", Value: err.Error()})
		}
	case webrtc.PeerEventClosed:
		// The proxy's device table is pruned on LinkRejected/LinkTimeout
		// or an explicit RespondToLinkRequest(false); a bare channel
		// close carries no webClientId to evict by.
	}
}

// onPeerOpen runs the crypto handshake once a peer's WebRTC data
// channel opens: EstablishSession is the suspension point, so the
// capture-rule discipline requires re-checking the peer is still
// Handshaking (i.e. this connect-cycle did not move on without it)
// before persisting it as Connected.
func (o *Orchestrator) onPeerOpen(ctx context.Context, code string) {
	o.registry.ApplyWebRTCOpen(code)
	o.linkProxy.NotifyPeerState(code, peer.Handshaking.String())

	p := o.registry.Get(code)
	if p == nil || p.State != peer.Handshaking {
		return
	}

	if len(p.PublicKey) > 0 {
		if err := o.crypto.SetPeerPublicKey(code, p.PublicKey); err != nil {
			o.log.Warn("orchestrator: record peer public key failed", logger.Field{Key: "code", Value: code}, logger.Field{Key: "error", Value: err.Error()})
			o.registry.ApplyPairRejected(code)
			return
		}
	}

	if err := o.crypto.EstablishSession(code); err != nil {
		o.log.Warn("orchestrator: establish session failed", logger.Field{Key: "code", Value: code}, logger.Field{Key: "error", Value: err.Error()})
		o.registry.ApplyPairRejected(code)
		return
	}

	if p := o.registry.Get(code); p == nil || p.State != peer.Handshaking {
		return
	}
	if err := o.registry.ApplyHandshakeDone(ctx, code); err != nil {
		o.log.Warn("orchestrator: persist handshake done failed", logger.Field{Key: "code", Value: code}, logger.Field{Key: "error", Value: err.Error()})
		return
	}
	o.linkProxy.NotifyPeerState(code, peer.Connected.String())
}

func decodeKey(b64 string) []byte {
	if b64 == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil
	}
	return key
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
