// Command linkscout starts the scan API server: anonymous session,
// SQLite-backed scan history, remote URL safety classification, and a
// websocket live view of the history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linkscout/internal/classifier"
	"linkscout/internal/cli"
	"linkscout/internal/config"
	"linkscout/internal/history"
	"linkscout/internal/logging"
	"linkscout/internal/scan"
	"linkscout/internal/server"
	"linkscout/internal/session"
	"linkscout/internal/webclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "linkscout: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parse args: %w", err)
	}

	cfg := args.Apply(config.Load())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewStdoutLogger("linkscout")

	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, logger, nil)
	if err != nil {
		return fmt.Errorf("create webclient: %w", err)
	}
	defer wc.Close()

	store, err := history.NewStore(cfg.DBPath, cfg.AppID, logger)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	sess := session.NewManager(wc, cfg.AuthEndpoint, cfg.APIKey, logger)
	clf := classifier.NewClient(wc, cfg.LLMEndpoint, cfg.LLMModel, cfg.APIKey, logger)
	controller := scan.NewController(clf, store, sess, logger)

	srv := server.NewServer(server.Config{ListenAddr: cfg.ListenAddr}, logger, controller, store, sess, clf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Authentication first: one anonymous sign-in attempt. Failure is
	// non-fatal; the server runs with an absent identity.
	go sess.Start(ctx)

	httpSrv := srv.HTTPServer()
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	logger.Info("listening", logging.Field{Key: "addr", Value: cfg.ListenAddr})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", logging.Field{Key: "signal", Value: sig.String()})
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", logging.Field{Key: "error", Value: err.Error()})
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}
