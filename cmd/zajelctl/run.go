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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hamza-Labs-Core/zajel-sub007/config"
	"github.com/Hamza-Labs-Core/zajel-sub007/health"
	"github.com/Hamza-Labs-Core/zajel-sub007/internal/logger"
	"github.com/Hamza-Labs-Core/zajel-sub007/internal/metrics"
	"github.com/Hamza-Labs-Core/zajel-sub007/orchestrator"
	"github.com/Hamza-Labs-Core/zajel-sub007/securechannel"
	"github.com/Hamza-Labs-Core/zajel-sub007/signaling"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage/memstore"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage/postgres"
	"github.com/Hamza-Labs-Core/zajel-sub007/webrtc/webrtctest"
)

var (
	configPath  string
	pairingCode string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a zajel node against a signaling server",
	Long: `run wires a zajel node's coordination engine: it connects to the
configured signaling server, generates or reuses an own pairing code,
and serves metrics and health endpoints until interrupted.

This module ships no production WebRTC media stack (see Non-goals);
run drives the orchestrator with the in-process webrtctest fake
engine so the coordination layer — pairing, rendezvous, linked
devices — can be exercised end to end against a real signaling
server. A host embedding this module for production use supplies its
own webrtc.Engine.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
	runCmd.Flags().StringVar(&pairingCode, "pairing-code", "", "Reuse this pairing code instead of generating one")
}

func runRun(cmd *cobra.Command, args []string) error {
	bootstrapLog := logger.NewDefaultLogger()
	cfg, err := loadConfig(bootstrapLog)
	if err != nil {
		return err
	}

	log := buildLogger(cfg.Logging)
	log.Info("zajelctl: starting", logger.String("environment", cfg.Environment))

	crypto := securechannel.NewAdapter()
	if err := crypto.Initialize(); err != nil {
		return fmt.Errorf("initialize crypto: %w", err)
	}

	trusted, messages, linkedDevices, closeStore, err := buildStores(cfg.Storage)
	if err != nil {
		return fmt.Errorf("build storage: %w", err)
	}
	defer closeStore()

	engine := webrtctest.NewFakeEngine()

	dialer := signaling.NewGorillaDialer()
	dial := func() orchestrator.Dispatcher {
		return signaling.NewDispatcher(dialer, log)
	}

	orch := orchestrator.New(orchestrator.Config{
		Dial:          dial,
		Engine:        engine,
		Crypto:        crypto,
		TrustedPeers:  trusted,
		Messages:      messages,
		LinkedDevices: linkedDevices,
		IsE2ETest:     cfg.Testing != nil && cfg.Testing.IsE2ETest,
		Logger:        log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize orchestrator: %w", err)
	}

	ownCode, err := orch.Connect(ctx, cfg.Signaling.ServerURL, pairingCode)
	if err != nil {
		return fmt.Errorf("connect to signaling server %s: %w", cfg.Signaling.ServerURL, err)
	}
	log.Info("zajelctl: connected", logger.String("own_code", ownCode), logger.String("server_url", cfg.Signaling.ServerURL))

	checker := buildHealthChecker(orch)
	stopServers := startServers(cfg, checker, log)
	defer stopServers()

	waitForShutdown(log)

	orch.Dispose()
	log.Info("zajelctl: stopped")
	return nil
}

// loadConfig loads the node's configuration. With an explicit --config
// file it loads that file directly; otherwise it defers to config.Load,
// which picks a file by environment (config/<env>.yaml, falling back to
// default.yaml or config.yaml) and applies the ZAJEL_* environment
// overrides on top. Either path runs through ValidateConfiguration and
// errors abort the run; validation warnings are logged only on the
// --config path, since config.Load does not return them.
func loadConfig(log *logger.StructuredLogger) (*config.Config, error) {
	if configPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	config.SubstituteEnvVarsInConfig(cfg)

	for _, issue := range config.ValidateConfiguration(cfg) {
		if issue.Level == config.ValidationError {
			return nil, fmt.Errorf("configuration validation failed: %s - %s", issue.Field, issue.Message)
		}
		log.Warn("zajelctl: configuration warning", logger.String("field", issue.Field), logger.String("message", issue.Message))
	}

	return cfg, nil
}

func buildLogger(cfg *config.LoggingConfig) *logger.StructuredLogger {
	log := logger.NewDefaultLogger()
	if cfg == nil {
		return log
	}
	switch cfg.Level {
	case "debug":
		log.SetLevel(logger.DebugLevel)
	case "warn":
		log.SetLevel(logger.WarnLevel)
	case "error":
		log.SetLevel(logger.ErrorLevel)
	default:
		log.SetLevel(logger.InfoLevel)
	}
	return log
}

func buildStores(cfg *config.StorageConfig) (storage.TrustedPeerStore, storage.MessageStore, storage.LinkedDeviceStore, func(), error) {
	if cfg == nil || cfg.Backend == "" || cfg.Backend == "memory" {
		store := memstore.NewStore()
		return store.TrustedPeers(), store.Messages(), store.LinkedDevices(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := postgres.NewStore(ctx, &postgres.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return store.TrustedPeers(), store.Messages(), store.LinkedDevices(), func() { _ = store.Close() }, nil
}

func buildHealthChecker(orch *orchestrator.Orchestrator) *health.HealthChecker {
	checker := health.NewHealthChecker(5 * time.Second)
	checker.RegisterCheck("signaling", health.SignalingHealthCheck(func(ctx context.Context) error {
		if !orch.IsConnected() {
			return fmt.Errorf("not connected to signaling server")
		}
		return nil
	}))
	checker.RegisterCheck("rendezvous", health.RendezvousHealthCheck(func() error {
		if !orch.IsConnected() {
			return fmt.Errorf("rendezvous coordinator has no live signaling connection")
		}
		return nil
	}))
	return checker
}

// startServers starts the metrics and health HTTP servers if enabled
// in cfg, returning a func that shuts both down.
func startServers(cfg *config.Config, checker *health.HealthChecker, log *logger.StructuredLogger) func() {
	var servers []*http.Server

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		servers = append(servers, srv)
		go func() {
			log.Info("zajelctl: metrics server listening", logger.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("zajelctl: metrics server error", logger.Error(err))
			}
		}()
	}

	if cfg.Health != nil && cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc(cfg.Health.Path, func(w http.ResponseWriter, r *http.Request) {
			sys := checker.GetSystemHealth(r.Context())
			w.Header().Set("Content-Type", "application/json")
			if sys.Status != health.StatusHealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			_ = json.NewEncoder(w).Encode(sys)
		})
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Health.Port), Handler: mux}
		servers = append(servers, srv)
		go func() {
			log.Info("zajelctl: health server listening", logger.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("zajelctl: health server error", logger.Error(err))
			}
		}()
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(ctx)
		}
	}
}

func waitForShutdown(log *logger.StructuredLogger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("zajelctl: shutdown signal received")
}
