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

package securechannel

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/hpke"
)

// linkSessionExportLen matches chacha20poly1305.KeySize: the exported
// HPKE secret feeds directly into Adapter.Encrypt/Decrypt.
const linkSessionExportLen = 32

var linkSuite = hpke.NewSuite(
	hpke.KEM_X25519_HKDF_SHA256,
	hpke.KDF_HKDF_SHA256,
	hpke.AEAD_ChaCha20Poly1305,
)

// EstablishLinkSession runs the sender side of an HPKE key exchange
// against the ephemeral X25519 public key a link session advertises,
// setting up a per-device session (§4.8) rather than the long-term
// identity-keyed session EstablishSession derives. The linked device
// is the sender: it returns the HPKE encapsulated key (which the
// device sends in its link request) and the exported session key.
func EstablishLinkSession(deviceEphemeralPub []byte, info []byte) (enc []byte, sessionKey []byte, err error) {
	curve := ecdh.X25519()
	peerPub, err := curve.NewPublicKey(deviceEphemeralPub)
	if err != nil {
		return nil, nil, fmt.Errorf("securechannel: parse device ephemeral key: %w", err)
	}

	kem := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	recipient, err := kem.UnmarshalBinaryPublicKey(peerPub.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("securechannel: unmarshal HPKE recipient key: %w", err)
	}

	sender, err := linkSuite.NewSender(recipient, info)
	if err != nil {
		return nil, nil, fmt.Errorf("securechannel: new HPKE sender: %w", err)
	}

	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("securechannel: HPKE setup: %w", err)
	}

	sessionKey = sealer.Export(info, uint(linkSessionExportLen))
	return enc, sessionKey, nil
}

// OpenLinkSession runs the receiver side of EstablishLinkSession: the
// holder of the link session's ephemeral private key (the proxy, in
// Proxy.Admit) reproduces the same exported session key from the enc
// value the device sent.
func OpenLinkSession(deviceEphemeralPriv []byte, enc []byte, info []byte) (sessionKey []byte, err error) {
	curve := ecdh.X25519()
	priv, err := curve.NewPrivateKey(deviceEphemeralPriv)
	if err != nil {
		return nil, fmt.Errorf("securechannel: parse device ephemeral private key: %w", err)
	}

	kem := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	skR, err := kem.UnmarshalBinaryPrivateKey(priv.Bytes())
	if err != nil {
		return nil, fmt.Errorf("securechannel: unmarshal HPKE private key: %w", err)
	}

	receiver, err := linkSuite.NewReceiver(skR, info)
	if err != nil {
		return nil, fmt.Errorf("securechannel: new HPKE receiver: %w", err)
	}

	opener, err := receiver.Setup(enc)
	if err != nil {
		return nil, fmt.Errorf("securechannel: HPKE receiver setup: %w", err)
	}

	return opener.Export(info, uint(linkSessionExportLen)), nil
}
