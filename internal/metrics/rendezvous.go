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
	// RendezvousRoundTrips tracks register_rendezvous round-trips by result kind.
	RendezvousRoundTrips = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rendezvous",
			Name:      "round_trips_total",
			Help:      "Total number of rendezvous registration round-trips",
		},
		[]string{"result"}, // match, partial, empty
	)

	// RendezvousPartialFailures tracks auxiliary federated-redirect
	// connections that failed to establish during a partial result.
	RendezvousPartialFailures = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rendezvous",
			Name:      "partial_failures_total",
			Help:      "Total number of rendezvous partial-result auxiliary connection failures",
		},
	)

	// ActiveFederatedRedirects tracks currently open auxiliary dispatcher connections.
	ActiveFederatedRedirects = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rendezvous",
			Name:      "active_federated_redirects",
			Help:      "Number of currently open auxiliary signaling connections opened via federated redirect",
		},
	)
)
