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

// Package rendezvous derives the meeting-point tokens two peers use to
// find each other through the signaling server without either side
// revealing its pairing code to a passive observer, and coordinates
// the register/resend/redirect handshake that resolves those tokens
// into a live connection.
package rendezvous

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Token is an opaque meeting-point identifier registered with the
// signaling server. It carries no information about the peers that
// derived it.
type Token string

const tokenTruncatedLen = 22

// DailyPoints derives the meeting-point tokens two peers agree on for
// yesterday, today, and tomorrow (UTC, relative to at) so that two
// trusted peers reconnecting across a UTC day boundary still share a
// token. Both peers derive the same three tokens independent of which
// one calls DailyPoints first, because the two public keys are
// ordered lexicographically before hashing.
func DailyPoints(myPub, theirPub []byte, at time.Time) ([3]Token, error) {
	if len(myPub) == 0 || len(theirPub) == 0 {
		return [3]Token{}, fmt.Errorf("rendezvous: public keys must not be empty")
	}

	a, b := orderBytes(myPub, theirPub)

	var out [3]Token
	for i, offset := range [3]int{-1, 0, 1} {
		day := at.UTC().AddDate(0, 0, offset).Format("2006-01-02")
		h := sha256.New()
		h.Write(a)
		h.Write(b)
		h.Write([]byte("zajel:daily:"))
		h.Write([]byte(day))
		out[i] = Token("day_" + truncatedBase64(h.Sum(nil)))
	}
	return out, nil
}

// DailyPointsFromIDs is DailyPoints for callers that identify peers by
// a stable string id (e.g. the trusted-peer public key's base64
// encoding) rather than raw key bytes.
func DailyPointsFromIDs(myID, theirID string, at time.Time) ([3]Token, error) {
	return DailyPoints([]byte(myID), []byte(theirID), at)
}

// HourlyTokens derives the meeting-point tokens for the session
// identified by sessionSecret, for the previous, current, and next UTC
// hour relative to at, so two peers reconnecting across an hour
// boundary still share a token. Unlike DailyPoints, hourly tokens are
// keyed by a shared secret established during a prior session rather
// than by public identity, so they authenticate the pair that derives
// them via HMAC rather than a plain hash.
func HourlyTokens(sessionSecret []byte, at time.Time) ([3]Token, error) {
	if len(sessionSecret) == 0 {
		return [3]Token{}, fmt.Errorf("rendezvous: session secret must not be empty")
	}

	var out [3]Token
	for i, offset := range [3]time.Duration{-time.Hour, 0, time.Hour} {
		hour := at.UTC().Add(offset).Format("2006-01-02T15")
		mac := hmac.New(sha256.New, sessionSecret)
		mac.Write([]byte("zajel:hourly:"))
		mac.Write([]byte(hour))
		out[i] = Token("hr_" + truncatedBase64(mac.Sum(nil)))
	}
	return out, nil
}

// orderBytes returns a, b in lexicographic order (byte-wise, with
// shorter-is-less on equal prefixes) so token derivation commutes
// regardless of which peer calls it first.
func orderBytes(x, y []byte) ([]byte, []byte) {
	if compareBytes(x, y) <= 0 {
		return x, y
	}
	return y, x
}

func compareBytes(x, y []byte) int {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	for i := 0; i < n; i++ {
		if x[i] != y[i] {
			return int(x[i]) - int(y[i])
		}
	}
	return len(x) - len(y)
}

func truncatedBase64(sum []byte) string {
	encoded := base64.URLEncoding.EncodeToString(sum)
	encoded = strings.TrimRight(encoded, "=")
	if len(encoded) > tokenTruncatedLen {
		encoded = encoded[:tokenTruncatedLen]
	}
	return encoded
}
