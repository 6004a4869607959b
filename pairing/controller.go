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

// Package pairing drives the two-phase pair-request protocol: the
// initiator path (connect_to_peer -> pair_request -> PairMatched ->
// create_offer) and the responder path (PairIncoming -> admission
// decision -> PairMatched -> await Offer -> Answer).
package pairing

import (
	"context"
	"time"

	"github.com/Hamza-Labs-Core/zajel-sub007/internal/broadcast"
	"github.com/Hamza-Labs-Core/zajel-sub007/internal/logger"
	"github.com/Hamza-Labs-Core/zajel-sub007/internal/metrics"
	"github.com/Hamza-Labs-Core/zajel-sub007/paircode"
	"github.com/Hamza-Labs-Core/zajel-sub007/peer"
	"github.com/Hamza-Labs-Core/zajel-sub007/securechannel"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
	"github.com/Hamza-Labs-Core/zajel-sub007/webrtc"
)

// IncomingPairRequest is the event surfaced to the UI when neither
// the blocked predicate, the trusted-peer auto-accept, nor the
// is_e2e_test auto-accept resolves admission, per §4.6's responder
// path.
type IncomingPairRequest struct {
	FromCode      string
	FromPublicKey []byte
	ProposedName  string
}

// Dispatcher is the subset of signaling.Dispatcher the controller
// drives — kept narrow so orchestrator tests can substitute a fake
// without pulling in the full dispatcher.
type Dispatcher interface {
	IsConnected() bool
	SendPairRequest(pairingCode, publicKey string) error
	SendPairAccept(peerID string) error
	SendPairReject(peerID, reason string) error
	SendOffer(peerID, sdp string) error
	SendAnswer(peerID, sdp string) error
}

// BlockPredicate reports whether a candidate public key is blocked
// and must be silently rejected. It is pluggable at runtime so a host
// can back it with, e.g., a user-maintained block list.
type BlockPredicate func(publicKey []byte) bool

// Controller implements the pairing protocol described above.
type Controller struct {
	dispatcher Dispatcher
	registry   *peer.Registry
	migrator   *peer.Migrator
	engine     webrtc.Engine
	crypto     securechannel.Service
	trusted    storage.TrustedPeerStore
	log        *logger.StructuredLogger

	isBlocked BlockPredicate
	isE2ETest bool

	incoming *broadcast.Broadcaster[IncomingPairRequest]

	// attemptStarted/attemptRole track in-flight attempts by peer code
	// so the terminal outcome (HandlePairMatched/Rejected/Timeout) can
	// report PairingAttempts and PairingDuration with the right role.
	attemptStarted map[string]time.Time
	attemptRole    map[string]string
}

type Config struct {
	Dispatcher Dispatcher
	Registry   *peer.Registry
	Migrator   *peer.Migrator
	Engine     webrtc.Engine
	Crypto     securechannel.Service
	Trusted    storage.TrustedPeerStore
	Logger     *logger.StructuredLogger
	IsBlocked  BlockPredicate
	IsE2ETest  bool
}

func NewController(cfg Config) *Controller {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	isBlocked := cfg.IsBlocked
	if isBlocked == nil {
		isBlocked = func([]byte) bool { return false }
	}
	return &Controller{
		dispatcher: cfg.Dispatcher,
		registry:   cfg.Registry,
		migrator:   cfg.Migrator,
		engine:     cfg.Engine,
		crypto:     cfg.Crypto,
		trusted:    cfg.Trusted,
		log:        log,
		isBlocked:      isBlocked,
		isE2ETest:      cfg.IsE2ETest,
		incoming:       broadcast.New[IncomingPairRequest](),
		attemptStarted: make(map[string]time.Time),
		attemptRole:    make(map[string]string),
	}
}

// startAttempt records an attempt's start time and role, for later
// reporting by endAttempt.
func (c *Controller) startAttempt(code, role string) {
	c.attemptStarted[code] = time.Now()
	c.attemptRole[code] = role
}

// endAttempt reports PairingAttempts/PairingDuration for code's
// attempt, if one was tracked, and clears it. Attempts the controller
// never saw start (e.g. a stray PairError with no peer) report role
// "unknown" rather than being silently dropped.
func (c *Controller) endAttempt(code, outcome string) {
	role, ok := c.attemptRole[code]
	if !ok {
		role = "unknown"
	}
	metrics.PairingAttempts.WithLabelValues(role, outcome).Inc()
	if started, ok := c.attemptStarted[code]; ok {
		metrics.PairingDuration.Observe(time.Since(started).Seconds())
	}
	delete(c.attemptRole, code)
	delete(c.attemptStarted, code)
}

// endAllAttempts reports outcome for every currently tracked attempt;
// used by HandlePairError, which carries no peer code.
func (c *Controller) endAllAttempts(outcome string) {
	for code := range c.attemptRole {
		c.endAttempt(code, outcome)
	}
}

// IncomingPairRequests exposes the UI-facing admission stream.
func (c *Controller) IncomingPairRequests() (<-chan IncomingPairRequest, func()) {
	return c.incoming.Subscribe()
}

// ConnectToPeer begins the initiator path: normalize and validate
// code, require Connected signaling, insert a Connecting placeholder,
// and send pair_request.
func (c *Controller) ConnectToPeer(code string, proposedName string) error {
	normalized, err := paircode.Normalize(code)
	if err != nil {
		metrics.PairingCodeValidations.WithLabelValues("invalid").Inc()
		return logger.NewZajelError(logger.ErrCodeInvalidPairingCode, "invalid pairing code", err)
	}
	metrics.PairingCodeValidations.WithLabelValues("valid").Inc()

	if !c.dispatcher.IsConnected() {
		return logger.NewZajelError(logger.ErrCodeNotConnected, "signaling is not connected", nil)
	}

	c.registry.ConnectTo(string(normalized))

	if err := c.dispatcher.SendPairRequest(string(normalized), c.crypto.PublicKeyBase64()); err != nil {
		return logger.NewZajelError(logger.ErrCodeSignalingTransient, "failed to send pair request", err)
	}
	c.startAttempt(string(normalized), "initiator")
	return nil
}

// HandlePairMatched handles PairMatched for either role. When
// isInitiator is true it drives the WebRTC engine to create an offer
// and sends it; the capture-rule discipline requires re-checking the
// dispatcher's connected state after the (possibly suspending)
// CreateOffer call before sending.
func (c *Controller) HandlePairMatched(ctx context.Context, peerCode string, publicKey []byte, isInitiator bool) {
	c.endAttempt(peerCode, "matched")
	c.registry.ApplyPairMatched(peerCode, publicKey)
	if c.migrator != nil {
		c.migrator.OnPairMatched(ctx, peerCode, publicKey)
	}

	if !isInitiator {
		return // await the inbound Offer
	}

	connectedBeforeOffer := c.dispatcher.IsConnected()
	if !connectedBeforeOffer {
		c.registry.ApplyPairRejected(peerCode)
		return
	}

	sdp, err := c.engine.CreateOffer(peerCode)
	if err != nil {
		c.log.Warn("pairing: create offer failed", logger.Field{Key: "code", Value: peerCode}, logger.Field{Key: "error", Value: err.Error()})
		c.registry.ApplyPairRejected(peerCode)
		return
	}

	// Re-read connection state after the (potentially suspending) offer
	// creation, per §4.6/§5's capture-rule discipline.
	if !c.dispatcher.IsConnected() {
		c.registry.ApplyPairRejected(peerCode)
		return
	}

	if err := c.dispatcher.SendOffer(peerCode, sdp); err != nil {
		c.log.Warn("pairing: send offer failed", logger.Field{Key: "code", Value: peerCode}, logger.Field{Key: "error", Value: err.Error()})
	}
}

// HandlePairIncoming runs the responder admission order: blocked ->
// trusted auto-accept -> is_e2e_test auto-accept -> UI event.
func (c *Controller) HandlePairIncoming(ctx context.Context, fromCode string, fromPublicKey []byte, proposedName string) {
	if c.isBlocked(fromPublicKey) {
		return
	}

	if c.isTrusted(ctx, fromPublicKey) {
		c.accept(fromCode)
		return
	}

	if c.isE2ETest {
		c.accept(fromCode)
		return
	}

	c.incoming.Publish(IncomingPairRequest{
		FromCode:      fromCode,
		FromPublicKey: fromPublicKey,
		ProposedName:  proposedName,
	})
}

func (c *Controller) isTrusted(ctx context.Context, publicKey []byte) bool {
	if c.trusted == nil {
		return false
	}
	found, err := c.trusted.FindByPublicKey(ctx, publicKey)
	return err == nil && found != nil
}

func (c *Controller) accept(fromCode string) {
	c.registry.ConnectTo(fromCode)
	if err := c.dispatcher.SendPairAccept(fromCode); err != nil {
		c.log.Warn("pairing: send pair accept failed", logger.Field{Key: "code", Value: fromCode}, logger.Field{Key: "error", Value: err.Error()})
	}
	c.startAttempt(fromCode, "responder")
}

// RespondToPairRequest is how the UI answers an IncomingPairRequest.
func (c *Controller) RespondToPairRequest(fromCode string, accept bool) error {
	if accept {
		c.accept(fromCode)
		return nil
	}
	return c.dispatcher.SendPairReject(fromCode, "rejected by user")
}

// HandleOffer implements the responder's offer-to-answer leg: the
// dispatcher's connected state is re-captured into a local binding
// before the (potentially suspending) HandleOffer call and checked
// again before sending the answer, per §4.6's mandated capture
// pattern.
func (c *Controller) HandleOffer(fromCode, sdp string) error {
	capturedConnected := c.dispatcher.IsConnected()
	if !capturedConnected {
		return logger.NewZajelError(logger.ErrCodeNotConnected, "signaling not connected when offer arrived", nil)
	}

	answer, err := c.engine.HandleOffer(fromCode, sdp)
	if err != nil {
		return logger.NewZajelError(logger.ErrCodeInternal, "failed to handle offer", err)
	}

	if !c.dispatcher.IsConnected() {
		return logger.NewZajelError(logger.ErrCodeNotConnected, "signaling disconnected before answer could be sent", nil)
	}

	if err := c.dispatcher.SendAnswer(fromCode, answer); err != nil {
		return logger.NewZajelError(logger.ErrCodeSignalingTransient, "failed to send answer", err)
	}
	return nil
}

// HandlePairRejected and HandlePairTimeout remove the affected
// placeholder from the registry; HandlePairError purges every peer
// currently Connecting — it carries no peer field by protocol design.
func (c *Controller) HandlePairRejected(peerCode string) {
	c.endAttempt(peerCode, "rejected")
	c.registry.ApplyPairRejected(peerCode)
}

func (c *Controller) HandlePairTimeout(peerCode string) {
	c.endAttempt(peerCode, "timeout")
	c.registry.ApplyPairTimeout(peerCode)
}

func (c *Controller) HandlePairError() {
	c.endAllAttempts("error")
	c.registry.ApplyPairError()
}
