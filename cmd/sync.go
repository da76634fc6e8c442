package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vscmirror/internal/config"
	"vscmirror/internal/database"
	"vscmirror/internal/marketplace"
	"vscmirror/internal/metrics"
	"vscmirror/internal/mirror"
	"vscmirror/internal/utils"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirrors installers and extensions from upstream",
	Long: `Downloads VS Code installers, extensions and the recommendation and
malicious feeds into the artifacts tree. With sync.frequency set it keeps
running and repeats the cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runSync()
	},
}

func init() {
	flags := syncCmd.Flags()
	flags.Duration("frequency", 0, "repeat the sync at this interval (0 runs once)")
	flags.Bool("insider", false, "mirror the insider quality")
	flags.Bool("prerelease", false, "keep prerelease extension versions")
	flags.String("search", "", "also mirror extensions matching this search text")
	flags.String("name", "", "also mirror this single extension (publisher.name)")
	flags.Int("total-recommended", 0, "number of top extensions to mirror")
	flags.String("marketplace", "", "gallery to mirror from (microsoft or open-vsx)")

	viper.BindPFlag("sync.frequency", flags.Lookup("frequency"))
	viper.BindPFlag("sync.insider", flags.Lookup("insider"))
	viper.BindPFlag("sync.prerelease", flags.Lookup("prerelease"))
	viper.BindPFlag("sync.search", flags.Lookup("search"))
	viper.BindPFlag("sync.name", flags.Lookup("name"))
	viper.BindPFlag("sync.total_recommended", flags.Lookup("total-recommended"))
	viper.BindPFlag("sync.marketplace", flags.Lookup("marketplace"))

	rootCmd.AddCommand(syncCmd)
}

func runSync() error {
	cfg := config.GetConfig()

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	endpoints, err := marketplace.EndpointsFor(marketplace.MarketplaceType(cfg.Sync.Marketplace))
	if err != nil {
		return err
	}

	if err := utils.EnsureDirectory(cfg.ArtifactsDir); err != nil {
		return fmt.Errorf("error creating artifacts directory: %w", err)
	}
	ledger, err := database.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("error opening ledger: %w", err)
	}
	defer ledger.Close()

	prom := metrics.NewProm(metricsNamespace)
	client := marketplace.New(marketplace.Options{
		Endpoints:     endpoints,
		Insider:       cfg.Sync.Insider,
		Prerelease:    cfg.Sync.Prerelease,
		VSCodeVersion: cfg.Sync.VSCodeVersion,
		Retries:       cfg.Sync.Retries,
		Timeout:       cfg.Sync.Timeout,
		Logger:        logger.Slog(),
		Metrics:       prom,
	})

	syncer := mirror.New(mirror.Options{
		Sync:         cfg.Sync,
		ArtifactsDir: cfg.ArtifactsDir,
		Upstream:     client,
		Ledger:       ledger,
		Logger:       logger.Slog(),
	})
	if !syncer.Enabled() {
		fmt.Println("Nothing to sync, every sync option is disabled")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.LogInfo("syncing from %s into %s", endpoints.Gallery, cfg.ArtifactsDir)
	if err := syncer.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("Sync interrupted")
			return nil
		}
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}
