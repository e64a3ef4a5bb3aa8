package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haskel/bore/internal/config"
	"github.com/haskel/bore/internal/logger"
	"github.com/haskel/bore/internal/monitor"
	"github.com/haskel/bore/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the suggestion server",
	Long: `Start the ask/tell server. Workers request configurations from
POST /v1/suggest and report results to POST /v1/observe.`,
	RunE: runServe,
}

// hostSampleInterval is how often the debug status refreshes host usage.
const hostSampleInterval = 10 * time.Second

var (
	servePort int
	serveHost string
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "listen-port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "listen-host", "", "host to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Override from flags
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	sp, err := serverSpace(cfg)
	if err != nil {
		return err
	}
	gen, err := newGenerator(cfg, sp, log)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	if err := be.restore(ctx, gen, log); err != nil {
		be.close()
		return err
	}
	if be.file != nil {
		be.file.Start(ctx)
	}

	opts := server.Options{
		Store:   be.store,
		Models:  be.models,
		Metrics: newMetrics(cfg, gen),
		RunID:   uuid.NewString(),
	}
	if cfg.Debug.Enabled {
		paths := []string{"/"}
		if cfg.Persistence.Backend == config.BackendFile || cfg.Persistence.SaveClassifier {
			paths = []string{cfg.Persistence.DataDir}
		}
		opts.Host = monitor.Default(paths, hostSampleInterval, log)
		opts.Host.Start(ctx)
		defer opts.Host.Stop()
	}

	srv := server.New(cfg, gen, opts, log, Version)

	// Write PID file
	if cfg.Server.PIDFile != "" {
		if err := writePIDFile(cfg.Server.PIDFile); err != nil {
			log.Warn("failed to write PID file", "error", err)
		} else {
			defer os.Remove(cfg.Server.PIDFile)
		}
	}

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info("bore server started",
		"addr", srv.Addr(),
		"generator", cfg.Generator.Kind,
		"parameters", sp.Names(),
		"persistence", cfg.Persistence.Backend,
	)

	for {
		select {
		case err := <-errCh:
			be.close()
			return err
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloadServerConfig(srv, log)
				continue
			}

			log.Info("received signal, shutting down", "signal", sig)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := srv.Shutdown(shutdownCtx)
			shutdownCancel()
			if err != nil {
				log.Error("shutdown error", "error", err)
			}

			if err := be.close(); err != nil {
				log.Error("failed to close history store", "error", err)
			}

			log.Info("bore server stopped")
			return nil
		}
	}
}

// reloadServerConfig re-reads the config file and applies the settings that
// can change without a restart.
func reloadServerConfig(srv *server.Server, log *slog.Logger) {
	if cfgFile == "" {
		log.Info("received SIGHUP without a config file, nothing to reload")
		return
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Error("failed to reload config", "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Error("reloaded config is invalid", "error", err)
		return
	}

	srv.ReloadConfig(cfg)
	log.Info("config reloaded", "path", cfgFile)
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}
