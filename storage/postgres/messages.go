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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
)

type messageStore struct {
	db *pgxpool.Pool
}

func (s *messageStore) Append(ctx context.Context, msg *storage.Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, peer_code, direction, body, system, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.PeerCode, msg.Direction, msg.Body, msg.System, msg.SentAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *messageStore) ListForPeer(ctx context.Context, peerCode string) ([]*storage.Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, peer_code, direction, body, system, sent_at
		FROM messages WHERE peer_code = $1 ORDER BY sent_at ASC
	`, peerCode)
	if err != nil {
		return nil, fmt.Errorf("list messages for peer: %w", err)
	}
	defer rows.Close()

	var out []*storage.Message
	for rows.Next() {
		m := &storage.Message{}
		if err := rows.Scan(&m.ID, &m.PeerCode, &m.Direction, &m.Body, &m.System, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *messageStore) Rekey(ctx context.Context, oldCode, newCode string) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE messages SET peer_code = $1 WHERE peer_code = $2`, newCode, oldCode)
	if err != nil {
		return 0, fmt.Errorf("rekey messages: %w", err)
	}
	return tag.RowsAffected(), nil
}
