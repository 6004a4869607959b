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

type linkedDeviceStore struct {
	db *pgxpool.Pool
}

func (s *linkedDeviceStore) List(ctx context.Context) ([]*storage.LinkedDevice, error) {
	rows, err := s.db.Query(ctx, `SELECT web_client_id, device_name, linked_at, last_seen_at FROM linked_devices`)
	if err != nil {
		return nil, fmt.Errorf("list linked devices: %w", err)
	}
	defer rows.Close()

	var out []*storage.LinkedDevice
	for rows.Next() {
		d := &storage.LinkedDevice{}
		if err := rows.Scan(&d.WebClientID, &d.DeviceName, &d.LinkedAt, &d.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan linked device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *linkedDeviceStore) Get(ctx context.Context, webClientID string) (*storage.LinkedDevice, error) {
	d := &storage.LinkedDevice{}
	err := s.db.QueryRow(ctx,
		`SELECT web_client_id, device_name, linked_at, last_seen_at FROM linked_devices WHERE web_client_id = $1`,
		webClientID,
	).Scan(&d.WebClientID, &d.DeviceName, &d.LinkedAt, &d.LastSeenAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("linked device not found: %s", webClientID)
	}
	if err != nil {
		return nil, fmt.Errorf("get linked device: %w", err)
	}
	return d, nil
}

func (s *linkedDeviceStore) Put(ctx context.Context, device *storage.LinkedDevice) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO linked_devices (web_client_id, device_name, linked_at, last_seen_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (web_client_id) DO UPDATE SET
			device_name = EXCLUDED.device_name,
			last_seen_at = EXCLUDED.last_seen_at
	`, device.WebClientID, device.DeviceName, device.LinkedAt, device.LastSeenAt)
	if err != nil {
		return fmt.Errorf("put linked device: %w", err)
	}
	return nil
}

func (s *linkedDeviceStore) Delete(ctx context.Context, webClientID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM linked_devices WHERE web_client_id = $1`, webClientID)
	if err != nil {
		return fmt.Errorf("delete linked device: %w", err)
	}
	return nil
}
