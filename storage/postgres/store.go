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

// Package postgres is a pgx-backed implementation of the storage
// contracts, the one a production node wires in place of memstore.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Store groups pgx-backed implementations of storage.TrustedPeerStore,
// storage.MessageStore, and storage.LinkedDeviceStore, returned by its
// TrustedPeers, Messages, and LinkedDevices views, over a shared
// connection pool.
type Store struct {
	pool    *pgxpool.Pool
	trusted *trustedPeerStore
	msgs    *messageStore
	devices *linkedDeviceStore
}

// NewStore creates a new PostgreSQL-backed store, pinging the
// database before returning.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool:    pool,
		trusted: &trustedPeerStore{db: pool},
		msgs:    &messageStore{db: pool},
		devices: &linkedDeviceStore{db: pool},
	}, nil
}

// TrustedPeers returns the TrustedPeerStore view.
func (s *Store) TrustedPeers() storage.TrustedPeerStore { return s.trusted }

// Messages returns the MessageStore view.
func (s *Store) Messages() storage.MessageStore { return s.msgs }

// LinkedDevices returns the LinkedDeviceStore view.
func (s *Store) LinkedDevices() storage.LinkedDeviceStore { return s.devices }

// Close closes the database connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema this store expects, if it does not
// already exist. Intended for local/demo use; a production deployment
// would run these as versioned migrations instead.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS trusted_peers (
	code        TEXT PRIMARY KEY,
	public_key  BYTEA NOT NULL,
	alias       TEXT NOT NULL DEFAULT '',
	blocked     BOOLEAN NOT NULL DEFAULT FALSE,
	trusted_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS trusted_peers_public_key_idx ON trusted_peers (public_key);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	peer_code  TEXT NOT NULL,
	direction  TEXT NOT NULL,
	body       BYTEA NOT NULL,
	system     BOOLEAN NOT NULL DEFAULT FALSE,
	sent_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS messages_peer_code_idx ON messages (peer_code);

CREATE TABLE IF NOT EXISTS linked_devices (
	web_client_id  TEXT PRIMARY KEY,
	device_name    TEXT NOT NULL DEFAULT '',
	linked_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
