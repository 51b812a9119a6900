package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/omochice/termchat/internal/config"
	"github.com/omochice/termchat/internal/logging"
	"github.com/omochice/termchat/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, _, err := config.LoadServer(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "termchat-server: %v\n", err)
		return 2
	}

	logger, err := logging.NewStderr(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "termchat-server: %v\n", err)
		return 1
	}
	defer logger.Sync()

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", zap.Error(err))
		return 1
	}
	if err := srv.Listen(); err != nil {
		logger.Error("failed to listen", zap.Error(err))
		return 1
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()

	// Wait for either error or shutdown signal
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, server.ErrServerStopped) {
			logger.Error("server error", zap.Error(err))
			return 1
		}
	case sig := <-sigChan:
		logger.Info("shutting down", zap.Stringer("signal", sig))
		srv.Stop()
	}
	return 0
}
