// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.


package metrics

import (
	"sync"
	"time"
)

// Collector accumulates the coordination engine's in-process
// counters alongside the Prometheus vectors in this package, for
// callers (e.g. the CLI's status output, or health.GetSystemHealth's
// Details field) that want a plain Go snapshot rather than scraping
// /metrics.
type Collector struct {
	mu sync.RWMutex

	PairingAttempts      int64
	PairingMatched        int64
	PairingRejected       int64
	PairingTimedOut       int64
	PairingErrored        int64

	RendezvousRoundTrips int64
	RendezvousPartials   int64

	PeerMigrations   int64
	PeerKeyRotations int64

	LinkSessionsCreated   int64
	LinkSessionsCompleted int64

	startTime time.Time
}

// NewCollector creates a new in-process metrics collector.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordPairingOutcome records a terminal pairing-controller outcome
// and mirrors it into the corresponding Prometheus counters.
func (c *Collector) RecordPairingOutcome(role, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.PairingAttempts++
	switch outcome {
	case "matched":
		c.PairingMatched++
	case "rejected":
		c.PairingRejected++
	case "timeout":
		c.PairingTimedOut++
	case "error":
		c.PairingErrored++
	}

	PairingAttempts.WithLabelValues(role, outcome).Inc()
}

// RecordRendezvousResult records a rendezvous round-trip result kind.
func (c *Collector) RecordRendezvousResult(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.RendezvousRoundTrips++
	if kind == "partial" {
		c.RendezvousPartials++
	}

	RendezvousRoundTrips.WithLabelValues(kind).Inc()
}

// RecordPeerMigration records a trusted-peer code migration.
func (c *Collector) RecordPeerMigration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PeerMigrations++
	PeerMigrations.Inc()
}

// RecordKeyRotation records a trusted-peer TOFU key rotation.
func (c *Collector) RecordKeyRotation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PeerKeyRotations++
	PeerKeyRotations.Inc()
}

// RecordLinkSessionCreated records a new linked-device session.
func (c *Collector) RecordLinkSessionCreated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LinkSessionsCreated++
	LinkSessionsCreated.Inc()
}

// RecordLinkSessionCompleted records a linked-device session outcome.
func (c *Collector) RecordLinkSessionCompleted(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LinkSessionsCompleted++
	LinkSessionsCompleted.WithLabelValues(outcome).Inc()
}

// Snapshot is a point-in-time copy of the collector's counters.
type Snapshot struct {
	Uptime time.Duration

	PairingAttempts int64
	PairingMatched  int64
	PairingRejected int64
	PairingTimedOut int64
	PairingErrored  int64

	RendezvousRoundTrips int64
	RendezvousPartials   int64

	PeerMigrations   int64
	PeerKeyRotations int64

	LinkSessionsCreated   int64
	LinkSessionsCompleted int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Snapshot{
		Uptime:                time.Since(c.startTime),
		PairingAttempts:       c.PairingAttempts,
		PairingMatched:        c.PairingMatched,
		PairingRejected:       c.PairingRejected,
		PairingTimedOut:       c.PairingTimedOut,
		PairingErrored:        c.PairingErrored,
		RendezvousRoundTrips:  c.RendezvousRoundTrips,
		RendezvousPartials:    c.RendezvousPartials,
		PeerMigrations:        c.PeerMigrations,
		PeerKeyRotations:      c.PeerKeyRotations,
		LinkSessionsCreated:   c.LinkSessionsCreated,
		LinkSessionsCompleted: c.LinkSessionsCompleted,
	}
}

// PairingSuccessRate returns the fraction of pairing attempts that
// reached PairMatched, as a percentage.
func (s *Snapshot) PairingSuccessRate() float64 {
	if s.PairingAttempts == 0 {
		return 0
	}
	return float64(s.PairingMatched) / float64(s.PairingAttempts) * 100
}

// Reset clears all counters and restarts the uptime clock. Intended
// for tests; the Prometheus vectors are left untouched since the
// registry has no notion of "reset" short of unregistering.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	*c = Collector{startTime: time.Now()}
}

// globalCollector is the process-wide collector returned by
// GetGlobalCollector.
var globalCollector = NewCollector()

// GetGlobalCollector returns the global metrics collector.
func GetGlobalCollector() *Collector {
	return globalCollector
}
