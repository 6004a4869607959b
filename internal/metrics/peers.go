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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PeersByState reports the current peer registry population by
	// connection state.
	PeersByState = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "by_state",
			Help:      "Number of peers currently in each connection state",
		},
		[]string{"state"},
	)

	// PeerMigrations tracks trusted-peer migrations triggered by a
	// code-rotation PairMatched event.
	PeerMigrations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "migrations_total",
			Help:      "Total number of trusted-peer code migrations performed",
		},
	)

	// PeerKeyRotations tracks TOFU key-rotation events handled for trusted peers.
	PeerKeyRotations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "key_rotations_total",
			Help:      "Total number of trusted-peer key rotations accepted",
		},
	)
)

var (
	// LinkSessionsCreated tracks linked-device session creation.
	LinkSessionsCreated = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "sessions_created_total",
			Help:      "Total number of linked-device sessions created",
		},
	)

	// LinkSessionsCompleted tracks link-session outcomes.
	LinkSessionsCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "sessions_completed_total",
			Help:      "Total number of linked-device sessions resolved, by outcome",
		},
		[]string{"outcome"}, // matched, rejected, timeout, expired
	)

	// ActiveLinkedDevices reports the current number of connected linked devices.
	ActiveLinkedDevices = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "active_devices",
			Help:      "Number of currently connected linked devices",
		},
	)
)
