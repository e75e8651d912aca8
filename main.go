// Package main is the entry point for the pubreg node.
// It restores registry state, serves the ABCI socket to Tendermint and runs
// the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pubreg.chain/pubreg/internal/abci"
	"pubreg.chain/pubreg/internal/api"
	"pubreg.chain/pubreg/internal/config"
	"pubreg.chain/pubreg/internal/docs"
	"pubreg.chain/pubreg/internal/events"
	"pubreg.chain/pubreg/internal/logger"
	"pubreg.chain/pubreg/internal/store"
	"pubreg.chain/pubreg/internal/tendermint"
	"pubreg.chain/pubreg/internal/types"
)

const shutdownTimeout = 5 * time.Second

func main() {
	log.Printf("pubreg %s starting...", types.Version)

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	st, err := store.NewStore(cfg.DBFile)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	defer st.Close()
	log.Printf("State store at %s", st.Path())

	activity := logger.New(cfg.LogBufferSize)
	hub := events.NewHub(cfg.EventHistory)
	app := abci.NewABCIApplication(
		abci.WithStore(st),
		abci.WithEvents(hub),
		abci.WithActivityLog(activity),
	)
	if err := restoreState(app, st); err != nil {
		log.Fatalf("Failed to restore state: %v", err)
	}

	abciServer, err := tendermint.NewABCIServer(app, &tendermint.Config{
		TendermintHome: cfg.TendermintHome,
		SocketAddress:  cfg.ABCIAddress,
	})
	if err != nil {
		log.Fatalf("Failed to create ABCI server: %v", err)
	}
	if err := abciServer.Start(); err != nil {
		log.Fatalf("%v", err)
	}
	defer abciServer.Stop()
	log.Printf("ABCI server listening on %s", abciServer.SocketPath())

	port := resolvePort(cfg.Port, 8080)
	if err := ensurePortAvailable(port); err != nil {
		log.Fatalf("Port %d unavailable: %v", port, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	svc := api.NewService(app, tendermint.NewBroadcastClient(cfg.RPCAddress), activity).
		WithBackups(st, cfg.MaxBackups).
		WithDocs(docs.NewService(cfg.DocsDir)).
		WithEvents(hub)
	server := api.NewHTTPServer(fmt.Sprintf(":%d", port), svc.Routes(ctx, api.RouterConfig{
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
		TrustProxy: cfg.TrustProxy,
	}))

	g.Go(func() error {
		log.Printf("API available at http://localhost:%d/api", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		runBackups(ctx, st, activity, time.Duration(cfg.BackupMinutes)*time.Minute, cfg.MaxBackups)
		return nil
	})
	if cfg.RunTendermint {
		g.Go(func() error {
			return runTendermint(ctx, cfg.TendermintHome, cfg.ABCIAddress)
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("Exited with error: %v", err)
	}
	log.Println("Shutting down...")
}

// restoreState loads the last committed state into app. An empty store
// leaves the app waiting for InitChain.
func restoreState(app *abci.ABCIApplication, st *store.Store) error {
	cs, err := st.Load()
	if errors.Is(err, store.ErrNoState) {
		log.Println("No saved state, waiting for genesis")
		return nil
	}
	if err != nil {
		return err
	}
	app.LoadState(cs)
	log.Printf("Restored state at height %d (%d books)", cs.Height, cs.Registry.LastBookID)
	return nil
}

// runBackups snapshots the state database every interval until ctx ends.
// A non-positive interval disables it.
func runBackups(ctx context.Context, st api.Backupper, activity *logger.Logger, interval time.Duration, maxBackups int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			path, err := st.BackupCurrent(maxBackups)
			if err != nil {
				activity.Errorf("Scheduled backup failed: %v", err)
				continue
			}
			if path != "" {
				activity.Infof("Scheduled backup written to %s", path)
			}
		}
	}
}

// runTendermint starts a Tendermint node against the local ABCI socket and
// stops it when ctx ends.
func runTendermint(ctx context.Context, home, socketAddr string) error {
	if err := tendermint.InitTendermint(home); err != nil {
		return err
	}
	cmd := tendermint.GetTendermintCommand(home, socketAddr)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start tendermint: %w", err)
	}
	log.Printf("Tendermint started (pid %d)", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return fmt.Errorf("tendermint exited: %w", err)
	case <-ctx.Done():
		stopProcess(cmd, done)
		return nil
	}
}

func stopProcess(cmd *exec.Cmd, done <-chan error) {
	cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		cmd.Process.Kill()
		<-done
	}
}

func resolvePort(port, defaultPort int) int {
	if port <= 0 || port > 65535 {
		log.Printf("Warning: invalid port %d, using %d", port, defaultPort)
		return defaultPort
	}
	return port
}

func ensurePortAvailable(port int) error {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return listener.Close()
}
