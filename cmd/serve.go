package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vscmirror/internal/config"
	"vscmirror/internal/extensions"
	"vscmirror/internal/metrics"
	"vscmirror/internal/server"
	"vscmirror/internal/updates"
	"vscmirror/internal/utils"
)

const metricsNamespace = "vscmirror"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the gateway for mirrored installers and extensions",
	Long: `Starts the HTTP gateway that answers VS Code update checks and gallery
queries from the mirrored artifacts tree.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServe()
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port to listen on")
	serveCmd.Flags().String("host", "", "address to bind")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg := config.GetConfig()

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := checkArtifacts(cfg); err != nil {
		logger.LogError("%v", err)
		return err
	}

	prom := metrics.NewProm(metricsNamespace)
	index := extensions.NewIndex(extensions.IndexOptions{
		ExtensionsDir:     cfg.ExtensionsDir(),
		URLRoot:           cfg.BaseURL,
		IncludePrerelease: cfg.IncludePrerelease,
		Logger:            logger.Slog(),
		Metrics:           prom,
	})
	watcher := extensions.NewWatcher(cfg.ArtifactsDir, cfg.PollInterval, logger.Slog())

	srv := server.New(server.Options{
		Index: index,
		Engine: extensions.NewEngine(extensions.EngineOptions{
			MaxPageSize: cfg.MaxPageSize,
			Logger:      logger.Slog(),
			Metrics:     prom,
		}),
		Updates:        updates.NewResponder(cfg.InstallersDir(), cfg.BaseURL, logger.Slog()),
		ArtifactsDir:   cfg.ArtifactsDir,
		UseHTTPS:       cfg.UseHTTPS,
		CertFile:       cfg.CertFile,
		KeyFile:        cfg.KeyFile,
		Logger:         logger,
		Metrics:        prom,
		MetricsHandler: metrics.Handler(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.LogWarning("artifact watcher stopped: %v", err)
		}
	}()
	go index.Run(ctx, cfg.RefreshInterval, watcher.Signals())

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	protocol := "http"
	if cfg.UseHTTPS {
		protocol = "https"
	}
	fmt.Printf("Server started. API is available at: %s://%s\n", protocol, addr)
	fmt.Println("Press Ctrl+C to stop the server")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fmt.Printf("\nSignal received: %v. Stopping server...\n", sig)
	case err := <-errChan:
		return fmt.Errorf("server start error: %w", err)
	}

	fmt.Println("Performing graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.LogServerStop(err)
		return err
	}

	logger.LogServerStop(nil)
	fmt.Println("Server stopped successfully")
	return nil
}

// checkArtifacts refuses to start without a mirror to serve.
func checkArtifacts(cfg config.Config) error {
	for _, dir := range []string{cfg.ArtifactsDir, cfg.InstallersDir(), cfg.ExtensionsDir()} {
		if !utils.DirExists(dir) {
			return fmt.Errorf("artifacts directory %s does not exist, run sync first", dir)
		}
	}
	return nil
}
