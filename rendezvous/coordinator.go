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

package rendezvous

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Hamza-Labs-Core/zajel-sub007/internal/logger"
	"github.com/Hamza-Labs-Core/zajel-sub007/internal/metrics"
	"github.com/Hamza-Labs-Core/zajel-sub007/signaling"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
)

const resendDelay = 5 * time.Second

// Dispatcher is the subset of signaling.Dispatcher the Coordinator
// drives. Its primary connection is supplied already-connected;
// auxiliary (federated-redirect) connections are produced fresh by
// Dial and connected here.
type Dispatcher interface {
	Connect(ctx context.Context, url, peerID string) error
	IsConnected() bool
	SendRegisterRendezvous(dailyTokens, hourlyTokens []string) error
	Events() <-chan signaling.Event
	Close() error
}

// DialFunc produces a fresh, unconnected Dispatcher for an auxiliary
// federated-redirect connection.
type DialFunc func() Dispatcher

// SessionSecretProvider looks up the prior session secret for a
// trusted peer, if one exists, for hourly-token derivation. Returning
// nil means no hourly tokens are derived for that peer.
type SessionSecretProvider func(peerCode string) []byte

// PeerStateLookup reports whether code is already in one of the
// states on_live_match must ignore.
type PeerStateLookup func(code string) (state string, exists bool)

// PairingDriver is the subset of pairing.Controller the Coordinator
// drives when this side wins the deterministic initiator election.
type PairingDriver interface {
	ConnectToPeer(code, proposedName string) error
}

// Config wires a Coordinator's collaborators.
type Config struct {
	Primary       Dispatcher
	Dial          DialFunc
	OwnCode       string
	OwnPublicKey  []byte
	Peers         storage.TrustedPeerStore
	Secrets       SessionSecretProvider
	PeerState     PeerStateLookup
	Pairing       PairingDriver
	Logger        *logger.StructuredLogger
}

// Coordinator implements reconnect_all_trusted and the live-match /
// federated-redirect handling described in spec.md §4.4.
type Coordinator struct {
	primary      Dispatcher
	dial         DialFunc
	ownCode      string
	ownPublicKey []byte
	peers        storage.TrustedPeerStore
	secrets      SessionSecretProvider
	peerState    PeerStateLookup
	pairing      PairingDriver
	log          *logger.StructuredLogger

	mu        sync.Mutex
	byToken   map[Token][]string
	resendCtx context.CancelFunc
	aux       map[string]*auxClient
}

type auxClient struct {
	dispatcher Dispatcher
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewCoordinator(cfg Config) *Coordinator {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	secrets := cfg.Secrets
	if secrets == nil {
		secrets = func(string) []byte { return nil }
	}
	peerState := cfg.PeerState
	if peerState == nil {
		peerState = func(string) (string, bool) { return "", false }
	}
	return &Coordinator{
		primary:      cfg.Primary,
		dial:         cfg.Dial,
		ownCode:      cfg.OwnCode,
		ownPublicKey: cfg.OwnPublicKey,
		peers:        cfg.Peers,
		secrets:      secrets,
		peerState:    peerState,
		pairing:      cfg.Pairing,
		log:          log,
		byToken:      make(map[Token][]string),
		aux:          make(map[string]*auxClient),
	}
}

// ReconnectAllTrusted assembles the union of meeting-point tokens for
// every non-blocked trusted peer and registers them once, then again
// after a five-second delay — the resend mitigates the race where both
// peers reboot concurrently and one registers before the other's
// tokens have landed.
func (c *Coordinator) ReconnectAllTrusted(ctx context.Context) error {
	trusted, err := c.peers.List(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	bundles := make([]*Bundle, 0, len(trusted))
	for _, p := range trusted {
		if p.Blocked {
			continue
		}
		secret := c.secrets(p.Code)
		b, err := BuildBundle(p.Code, c.ownPublicKey, p.PublicKey, secret, now)
		if err != nil {
			c.log.Warn("rendezvous: failed to build bundle", logger.Field{Key: "code", Value: p.Code}, logger.Field{Key: "error", Value: err.Error()})
			continue
		}
		bundles = append(bundles, b)
	}

	tokens, byToken := MergeBundles(bundles)

	c.mu.Lock()
	c.byToken = byToken
	if c.resendCtx != nil {
		c.resendCtx()
	}
	resendCtx, cancel := context.WithCancel(ctx)
	c.resendCtx = cancel
	c.mu.Unlock()

	tokenStrs := tokensToStrings(tokens)
	// Critical contract: every daily token must also appear in the
	// hourly_tokens field, or daily-only discovery would be
	// dead-drop-only — the server only pushes live matches for hourly
	// registrations.
	if err := c.primary.SendRegisterRendezvous(tokenStrs, tokenStrs); err != nil {
		return err
	}

	go c.resendAfterDelay(resendCtx, tokenStrs)
	return nil
}

func (c *Coordinator) resendAfterDelay(ctx context.Context, tokenStrs []string) {
	timer := time.NewTimer(resendDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	if err := c.primary.SendRegisterRendezvous(tokenStrs, tokenStrs); err != nil {
		c.log.Warn("rendezvous: resend failed", logger.Field{Key: "error", Value: err.Error()})
	}
}

// HandleResult processes a RendezvousResultEvent received on the
// primary signaling connection (or, internally, an auxiliary one):
// live matches drive on_live_match, redirects are grouped by endpoint
// and opened as auxiliary connections.
func (c *Coordinator) HandleResult(ctx context.Context, ev signaling.RendezvousResultEvent) {
	switch {
	case len(ev.Matches) > 0:
		metrics.RendezvousRoundTrips.WithLabelValues("match").Inc()
	case len(ev.Redirects) > 0:
		metrics.RendezvousRoundTrips.WithLabelValues("partial").Inc()
	default:
		metrics.RendezvousRoundTrips.WithLabelValues("empty").Inc()
	}

	for _, m := range ev.Matches {
		c.onLiveMatch(ctx, m.PeerID)
	}

	byEndpoint := make(map[string][]string)
	for _, r := range ev.Redirects {
		if r.RedirectURL == "" {
			continue
		}
		byEndpoint[r.RedirectURL] = append(byEndpoint[r.RedirectURL], string(r.Token))
	}
	for endpoint, toks := range byEndpoint {
		c.openRedirect(ctx, endpoint, toks)
	}
}

// onLiveMatch implements §4.4's deterministic initiator election: the
// side with the lexicographically smaller pairing code initiates.
func (c *Coordinator) onLiveMatch(ctx context.Context, matchedCode string) {
	if state, exists := c.peerState(matchedCode); exists {
		switch state {
		case "Connecting", "Handshaking", "Connected":
			return
		}
	}

	codes := []string{c.ownCode, matchedCode}
	sort.Strings(codes)
	weInitiate := codes[0] == c.ownCode && c.ownCode != matchedCode

	if !weInitiate {
		return
	}
	if c.pairing == nil {
		return
	}
	if err := c.pairing.ConnectToPeer(matchedCode, ""); err != nil {
		c.log.Warn("rendezvous: failed to initiate pair request after live match",
			logger.Field{Key: "code", Value: matchedCode}, logger.Field{Key: "error", Value: err.Error()})
	}
}

// openRedirect dials endpoint, registers toks, and processes its
// rendezvous stream identically to the primary connection. Reopening
// an endpoint that already has an auxiliary client first disposes of
// the prior one. Dial failures are logged and skipped — they never
// fail the primary flow.
func (c *Coordinator) openRedirect(ctx context.Context, endpoint string, toks []string) {
	if c.dial == nil {
		return
	}

	c.mu.Lock()
	if existing, ok := c.aux[endpoint]; ok {
		existing.cancel()
		_ = existing.dispatcher.Close()
		delete(c.aux, endpoint)
		metrics.ActiveFederatedRedirects.Dec()
	}
	c.mu.Unlock()

	dispatcher := c.dial()
	if err := dispatcher.Connect(ctx, endpoint, c.ownCode); err != nil {
		c.log.Warn("rendezvous: federated redirect connect failed",
			logger.Field{Key: "endpoint", Value: endpoint}, logger.Field{Key: "error", Value: err.Error()})
		metrics.RendezvousPartialFailures.Inc()
		return
	}
	if err := dispatcher.SendRegisterRendezvous(toks, toks); err != nil {
		c.log.Warn("rendezvous: federated redirect registration failed",
			logger.Field{Key: "endpoint", Value: endpoint}, logger.Field{Key: "error", Value: err.Error()})
		_ = dispatcher.Close()
		metrics.RendezvousPartialFailures.Inc()
		return
	}

	auxCtx, cancel := context.WithCancel(ctx)
	client := &auxClient{dispatcher: dispatcher, cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.aux[endpoint] = client
	c.mu.Unlock()
	metrics.ActiveFederatedRedirects.Inc()

	go c.drainAux(auxCtx, client)
}

func (c *Coordinator) drainAux(ctx context.Context, client *auxClient) {
	defer close(client.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.dispatcher.Events():
			if !ok {
				return
			}
			if result, ok := ev.(signaling.RendezvousResultEvent); ok {
				c.HandleResult(ctx, result)
			}
		}
	}
}

// Shutdown tears down every auxiliary federated-redirect client in
// parallel, per §4.4's federated-redirect lifecycle.
func (c *Coordinator) Shutdown() error {
	c.mu.Lock()
	if c.resendCtx != nil {
		c.resendCtx()
	}
	clients := make([]*auxClient, 0, len(c.aux))
	for _, cl := range c.aux {
		clients = append(clients, cl)
	}
	c.aux = make(map[string]*auxClient)
	metrics.ActiveFederatedRedirects.Sub(float64(len(clients)))
	c.mu.Unlock()

	g := new(errgroup.Group)
	for _, cl := range clients {
		cl := cl
		g.Go(func() error {
			cl.cancel()
			err := cl.dispatcher.Close()
			<-cl.done
			return err
		})
	}
	return g.Wait()
}

func tokensToStrings(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = string(t)
	}
	return out
}
