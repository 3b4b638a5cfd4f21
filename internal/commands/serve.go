// Copyright 2026 Kyle Braxton
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kbraxton/toolhost/internal/mcp"
)

// newServeCommand creates the 'serve' command.
func newServeCommand() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run toolhost as a long-lived host process",
		Long: `Connect every auto_connect server and keep them running. The servers
config file is watched; edits are applied live without restarting
unchanged servers.

An HTTP endpoint serves /metrics (Prometheus), /healthz, and /v1/status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(listenAddr)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:9120", "Address for the metrics/status endpoint")
	return cmd
}

func runServe(listenAddr string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return userError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	reg := mcp.NewRegistry(mcp.RegistryConfig{Logger: logger})
	defer reg.CloseAll()

	// Connect the auto_connect set. A failing server is reported but does
	// not prevent startup; a config edit can fix it live.
	if errs := reg.Sync(ctx, cfg.Specs(true)); errs != nil {
		for name, err := range errs {
			logger.Error("failed to connect mcp server", "server", name, "error", err)
		}
	}
	logger.Info("toolhost started",
		"config", path,
		"servers", len(reg.Servers()),
		"listen", listenAddr,
	)

	watcher, err := mcp.NewConfigWatcher(mcp.ConfigWatcherConfig{
		Registry: reg,
		Path:     path,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"servers": reg.Status(),
			"tools":   reg.ListTools(),
		})
	})
	mux.HandleFunc("/v1/servers/{name}/logs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"entries": reg.Logs(r.PathValue("name"), 0),
		})
	})

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("metrics endpoint failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return nil
}
