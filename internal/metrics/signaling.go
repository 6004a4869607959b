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
	// SignalingConnects tracks dispatcher connect attempts by outcome.
	SignalingConnects = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signaling",
			Name:      "connects_total",
			Help:      "Total number of signaling dispatcher connection attempts",
		},
		[]string{"outcome"}, // connected, failed
	)

	// SignalingFramesReceived tracks inbound signaling frames by kind.
	SignalingFramesReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signaling",
			Name:      "frames_received_total",
			Help:      "Total number of inbound signaling frames by kind",
		},
		[]string{"kind"},
	)

	// SignalingMalformedFrames tracks frames dropped for failing to parse.
	SignalingMalformedFrames = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signaling",
			Name:      "malformed_frames_total",
			Help:      "Total number of inbound signaling frames dropped for being malformed",
		},
	)

	// SignalingConnectionState reports whether the dispatcher is
	// connected: 1 while connected, 0 once disconnected or closed. The
	// Connecting and Failed states are not reported.
	SignalingConnectionState = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signaling",
			Name:      "connection_state",
			Help:      "Current signaling dispatcher connection state",
		},
	)
)
