// cmd/vaultd is the main entrypoint for a vault node running the Data
// Manager persona.
//
// Configuration is layered: defaults, an optional --config file, and
// VAULT_*-prefixed environment variables, all through viper.
//
// Example — single node:
//
//	./vaultd --id node1 --addr :8080 --data-dir /var/vault/node1
//
// Example — joining a cluster:
//
//	./vaultd --id node2 --addr :8081 --data-dir /var/vault/node2 \
//	         --peers node1=localhost:8080
package main

import (
	"context"
	"crypto/sha512"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/safevault/vault/internal/config"
	"github.com/safevault/vault/internal/dispatch"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/manager"
	"github.com/safevault/vault/internal/routing"
	"github.com/safevault/vault/internal/store"
	"github.com/safevault/vault/internal/telemetry"
	"github.com/safevault/vault/internal/transport"
)

// deriveHolderID turns an operator-friendly node name into a stable
// 64-byte holder identity via SHA-512, whose digest is exactly
// ids.Width bytes wide.
func deriveHolderID(name string) ids.HolderID {
	return ids.HolderID(sha512.Sum512([]byte(name)))
}

func main() {
	configFile := flag.String("config", "", "optional config file (yaml/json/toml)")
	id := flag.String("id", "node1", "node name, hashed into a holder identity")
	addr := flag.String("addr", "", "listen address (host:port)")
	dataDir := flag.String("data-dir", "", "directory for the metadata store")
	peersFlag := flag.String("peers", "", "comma-separated list of peer nodes: id=host:port")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	cfg.ID = *id
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	log := telemetry.NewLogger(cfg.ID)
	selfID := deriveHolderID(cfg.ID)

	seed := make([]routing.Peer, 0)
	if *peersFlag != "" {
		for _, entry := range strings.Split(*peersFlag, ",") {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				log.Fatal().Str("entry", entry).Msg("invalid peer format, expected id=host:port")
			}
			seed = append(seed, routing.Peer{ID: deriveHolderID(parts[0]), Addr: parts[1], Alive: true})
		}
	}

	collab, err := routing.NewRingCollaborator(selfID, cfg.GroupSize, cfg.ReplicationFactor, cfg.VirtualNodes, seed)
	if err != nil {
		log.Fatal().Err(err).Msg("build routing collaborator")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create data dir")
	}
	st, err := store.Open(filepath.Join(cfg.DataDir, "metadata.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("open metadata store")
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	disp := dispatch.NewHTTPDispatcher(collab)
	svc := manager.New(selfID, cfg, st, collab, disp, metrics, log)

	collab.OnChange(func(next routing.Snapshot) {
		if err := svc.HandleRoutingMatrixChanged(context.Background(), next); err != nil {
			log.Warn().Err(err).Msg("routing matrix change handling failed")
		}
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(transport.Logger(log), transport.Recovery(log))
	transport.NewHandler(svc, selfID).Register(router)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server shutdown error")
	}
}
