// Package main provides the entry point for imorning-chat, a persistent
// messaging client that keeps one session to the server alive and recovers
// it after network loss.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/imorning/chat/internal/app"
	"github.com/imorning/chat/internal/config"
	"github.com/imorning/chat/internal/desktop"
	"github.com/imorning/chat/internal/logging"
	"github.com/imorning/chat/internal/notify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		headless bool
		debug    bool
		server   string
		version  bool
	)

	flagSet := pflag.NewFlagSet("imorning-chat", pflag.ContinueOnError)
	flagSet.BoolVar(&headless, "headless", false, "run without a desktop session; sign-in prompts use the terminal")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	flagSet.StringVar(&server, "server", "", "gateway address as host:port (saved to the config file)")
	flagSet.BoolVar(&version, "version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if version {
		fmt.Println("imorning-chat", app.Version)
		return nil
	}

	logging.SetupFromEnv()

	configManager, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if server != "" {
		if err := configManager.UpdateField(func(cfg *config.Config) { cfg.Server = server }); err != nil {
			return err
		}
	}
	if debug || configManager.GetConfig().Debug {
		logging.SetLevel(logging.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if headless {
		return runHeadless(ctx, configManager)
	}
	return runDesktop(ctx, configManager)
}

func runHeadless(ctx context.Context, configManager *config.Manager) error {
	var a *app.App
	notifier := notify.NewLog()
	router := newSignInRouter(newPrompter(os.Stdin, os.Stderr), notifier)

	a, err := app.New(configManager, app.Options{
		Notifier: notifier,
		OnLoginRequired: func(cause error) {
			router.route(ctx, a.Login(), cause)
		},
	})
	if err != nil {
		return err
	}

	return a.Run(ctx)
}

func runDesktop(ctx context.Context, configManager *config.Manager) error {
	var a *app.App
	host := desktop.NewApp()
	router := newSignInRouter(newPrompter(os.Stdin, os.Stderr), host.Notifier())

	a, err := app.New(configManager, app.Options{
		Notifier: host.Notifier(),
		Dispatch: desktop.Dispatch,
		OnLoginRequired: func(cause error) {
			router.route(ctx, a.Login(), cause)
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var runErr error
	done := make(chan struct{})

	onActivate := func() {
		go func() {
			defer close(done)
			runErr = a.Run(ctx)
			host.Quit()
		}()
	}

	// The main loop must not see our flags
	if code := host.Run(os.Args[:1], onActivate, cancel); code > 0 {
		return fmt.Errorf("application exited with code %d", code)
	}

	cancel()
	select {
	case <-done:
	default:
		// Never activated
		return nil
	}
	return runErr
}
