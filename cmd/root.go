// Package cmd defines and implements the CLI commands for the
// apec-observer executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AbdallahZerfaoui/apec-observer/internal/apec"
	"github.com/AbdallahZerfaoui/apec-observer/internal/app"
	"github.com/AbdallahZerfaoui/apec-observer/internal/config"
	"github.com/AbdallahZerfaoui/apec-observer/internal/store"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application surface that commands use. An interface
// so tests can inject a fake application.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Store() store.Store
	Client() *apec.Client
	Close()
}

// newApp is the application factory; a variable so tests can replace
// it with a mock factory.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apec-observer",
		Short: "A polite, resumable crawler for APEC job offers.",
		Long: `apec-observer paginates through the APEC job-offer search API,
deduplicates ads by their numeric identifier, and persists both the raw
payload and a flattened projection into a local relational store, while
tracking each crawl execution as a run record.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults plus APEC_* environment variables when omitted)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSnapshotCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. Exit code 0 on normal completion;
// 1 on authentication failure, interrupt, or any other error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			fmt.Fprintln(os.Stderr, "interrupted")
		case errors.Is(err, apec.ErrAuthFailure):
			fmt.Fprintf(os.Stderr, "authentication failed: %v\ncheck API access or proxy credentials\n", err)
		default:
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
