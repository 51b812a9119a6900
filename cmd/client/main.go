package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/omochice/termchat/internal/client"
	"github.com/omochice/termchat/internal/config"
	"github.com/omochice/termchat/internal/logging"
	"github.com/omochice/termchat/internal/tui"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, _, err := config.LoadClient(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "termchat: %v\n", err)
		return 2
	}

	logger, err := logging.NewFile(cfg.LogFile, cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "termchat: %v\n", err)
		return 1
	}
	defer logger.Sync()

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := client.NewSession(client.NewDialer(cfg), tui.New(os.Stdin, os.Stdout), client.Options{
		Framing:      cfg.Framing,
		PollInterval: cfg.PollInterval,
		ReadWait:     cfg.ReadWait,
		Resize:       tui.NotifyResize(ctx),
		Logger:       logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "termchat: %v\n", err)
		return 2
	}

	logger.Info("starting client", zap.String("transport", cfg.Transport), zap.String("address", cfg.Address))
	err = session.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case err != nil:
		fmt.Fprintf(os.Stderr, "termchat: %v\n", err)
		return 1
	case session.PeerLeft():
		fmt.Println("The server closed the chat.")
	}
	return 0
}
