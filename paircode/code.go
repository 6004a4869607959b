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

// Package paircode generates and validates the short, human-readable
// codes peers exchange out of band to start a pairing handshake.
package paircode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Alphabet excludes visually ambiguous characters (0/O, 1/I, etc.) so
// a code can be read aloud or copied by hand without transcription errors.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the number of symbols in a pairing code.
const Length = 6

// Code is a validated, canonical (uppercase) pairing code.
type Code string

// Generate produces a new random pairing code by rejection sampling
// from crypto/rand: each candidate byte is accepted only if it falls
// within an integer multiple of len(Alphabet), so every symbol is
// equally likely and the generator never needs math/rand as a fallback.
func Generate() (Code, error) {
	var b strings.Builder
	b.Grow(Length)

	buf := make([]byte, 1)
	// Largest multiple of len(Alphabet) that fits in a byte; values at
	// or above this are rejected to avoid modulo bias. Computed as an
	// int: 256 is not representable in a byte, so 256-(256%n) would
	// wrap to 0 for any n that divides 256 evenly (e.g. n=32).
	limit := 256 - (256 % len(Alphabet))

	for b.Len() < Length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("paircode: failed to read random bytes: %w", err)
		}
		if int(buf[0]) >= limit {
			continue
		}
		b.WriteByte(Alphabet[int(buf[0])%len(Alphabet)])
	}

	return Code(b.String()), nil
}

// MustGenerate generates a pairing code and panics if the underlying
// crypto/rand source fails. Intended for call sites — the CLI, tests —
// that treat randomness failure as unrecoverable rather than a
// condition to propagate.
func MustGenerate() Code {
	code, err := Generate()
	if err != nil {
		panic(err)
	}
	return code
}

// Validate reports whether candidate is a well-formed pairing code:
// exactly Length symbols, all drawn from Alphabet, case-insensitively.
func Validate(candidate string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(candidate))
	if len(trimmed) != Length {
		return false
	}
	for _, r := range trimmed {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}

// Normalize returns candidate as a canonical Code if it validates, or
// an error otherwise.
func Normalize(candidate string) (Code, error) {
	if !Validate(candidate) {
		return "", fmt.Errorf("paircode: %q is not a valid pairing code", candidate)
	}
	return Code(strings.ToUpper(strings.TrimSpace(candidate))), nil
}
