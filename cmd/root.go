package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"assetdistributor/internal/app"
	"assetdistributor/pkg/config"
)

var (
	verbose bool
	owner   string
)

var rootCmd = &cobra.Command{
	Use:   "assetdistributor",
	Short: "Publish media assets to video platforms",
	Long: `Assetdistributor uploads, updates and removes one media file across
YouTube, Vimeo and Dailymotion on behalf of an owner, remembering where each
asset was published and which accounts are connected.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&owner, "owner", "o", "", "Owner to act for (defaults to the configured owner)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogger()
	}
}

func Execute() error {
	return rootCmd.Execute()
}

func setupLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// loadPipeline loads configuration and wires the service. The returned
// closer releases the cache backend.
func loadPipeline(ctx context.Context) (*app.Pipeline, *config.Config, func(), error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if owner != "" {
		cfg.Owner = owner
	}

	service, err := app.BuildService(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	closer := func() {
		if err := service.Close(); err != nil {
			slog.Warn("Failed to close cache", "error", err)
		}
	}
	return app.NewPipeline(service), cfg, closer, nil
}
