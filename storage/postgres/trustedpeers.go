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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
)

type trustedPeerStore struct {
	db *pgxpool.Pool
}

func (s *trustedPeerStore) List(ctx context.Context) ([]*storage.TrustedPeer, error) {
	rows, err := s.db.Query(ctx, `SELECT code, public_key, alias, blocked, trusted_at FROM trusted_peers`)
	if err != nil {
		return nil, fmt.Errorf("list trusted peers: %w", err)
	}
	defer rows.Close()

	var out []*storage.TrustedPeer
	for rows.Next() {
		p := &storage.TrustedPeer{}
		if err := rows.Scan(&p.Code, &p.PublicKey, &p.Alias, &p.Blocked, &p.TrustedAt); err != nil {
			return nil, fmt.Errorf("scan trusted peer: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *trustedPeerStore) Get(ctx context.Context, code string) (*storage.TrustedPeer, error) {
	p := &storage.TrustedPeer{}
	err := s.db.QueryRow(ctx,
		`SELECT code, public_key, alias, blocked, trusted_at FROM trusted_peers WHERE code = $1`, code,
	).Scan(&p.Code, &p.PublicKey, &p.Alias, &p.Blocked, &p.TrustedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("trusted peer not found: %s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("get trusted peer: %w", err)
	}
	return p, nil
}

func (s *trustedPeerStore) FindByPublicKey(ctx context.Context, publicKey []byte) (*storage.TrustedPeer, error) {
	p := &storage.TrustedPeer{}
	err := s.db.QueryRow(ctx,
		`SELECT code, public_key, alias, blocked, trusted_at FROM trusted_peers WHERE public_key = $1 LIMIT 1`, publicKey,
	).Scan(&p.Code, &p.PublicKey, &p.Alias, &p.Blocked, &p.TrustedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("trusted peer not found for public key")
	}
	if err != nil {
		return nil, fmt.Errorf("find trusted peer by public key: %w", err)
	}
	return p, nil
}

func (s *trustedPeerStore) Put(ctx context.Context, peer *storage.TrustedPeer) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trusted_peers (code, public_key, alias, blocked, trusted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET
			public_key = EXCLUDED.public_key,
			alias = EXCLUDED.alias,
			blocked = EXCLUDED.blocked,
			trusted_at = EXCLUDED.trusted_at
	`, peer.Code, peer.PublicKey, peer.Alias, peer.Blocked, peer.TrustedAt)
	if err != nil {
		return fmt.Errorf("put trusted peer: %w", err)
	}
	return nil
}

func (s *trustedPeerStore) Delete(ctx context.Context, code string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM trusted_peers WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete trusted peer: %w", err)
	}
	return nil
}
