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

package link

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

const qrScheme = "zajel-link://"

// BuildQRPayload formats the QR payload a linking device scans:
// zajel-link://<code>:<pubkey>:<urlenc(serverURL)>.
func BuildQRPayload(code string, ephemeralPublicKey []byte, serverURL string) string {
	pubB64 := base64.RawURLEncoding.EncodeToString(ephemeralPublicKey)
	return fmt.Sprintf("%s%s:%s:%s", qrScheme, code, pubB64, url.QueryEscape(serverURL))
}

// ParseQRPayload reverses BuildQRPayload. It splits on ':' and keeps
// exactly the first two parts as code and pubkey; everything after the
// second colon is rejoined and URL-decoded as the server URL, so a
// server URL containing its own colons (e.g. "wss://host:8080/ws")
// round-trips correctly.
func ParseQRPayload(payload string) (code string, ephemeralPublicKey []byte, serverURL string, err error) {
	if !strings.HasPrefix(payload, qrScheme) {
		return "", nil, "", fmt.Errorf("link: payload missing %q prefix", qrScheme)
	}
	rest := strings.TrimPrefix(payload, qrScheme)

	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return "", nil, "", fmt.Errorf("link: malformed QR payload")
	}

	code = parts[0]
	pub, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, "", fmt.Errorf("link: decode public key: %w", err)
	}

	serverURL, err = url.QueryUnescape(parts[2])
	if err != nil {
		return "", nil, "", fmt.Errorf("link: decode server url: %w", err)
	}

	return code, pub, serverURL, nil
}
