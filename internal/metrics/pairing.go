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
	// PairingAttempts tracks pairing-controller attempts by role and outcome.
	PairingAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "attempts_total",
			Help:      "Total number of pairing attempts",
		},
		[]string{"role", "outcome"}, // initiator/responder, matched/rejected/timeout/error
	)

	// PairingCodeValidations tracks the pairing-code checks made by
	// pairing.Controller.ConnectToPeer, by outcome.
	PairingCodeValidations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "code_validations_total",
			Help:      "Total number of pairing code validation checks",
		},
		[]string{"outcome"}, // valid, invalid
	)

	// PairingDuration tracks wall-clock time from connect_to_peer to a
	// terminal PairMatched/PairRejected/PairTimeout/PairError outcome.
	PairingDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "duration_seconds",
			Help:      "Time from pairing start to a terminal outcome, in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)
)
