package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/jetstack/mediarelay/internal/handshake"
	"github.com/jetstack/mediarelay/internal/storage"
	"github.com/jetstack/mediarelay/pkg/logs"
	"github.com/jetstack/mediarelay/pkg/server"
	"github.com/jetstack/mediarelay/pkg/transcode"
)

var (
	configFilePath string
	metricsAddress string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "start the mediarelay server",
	Long: `The server accepts encrypted connections, stores each upload, runs the
requested ffmpeg transformation and streams the result back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(klog.NewContext(ctx, klog.Background()))
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.PersistentFlags().StringVarP(
		&configFilePath,
		"config",
		"c",
		"",
		"Config file location. Defaults are used for every key it does not set.",
	)
	serverCmd.PersistentFlags().StringVar(
		&metricsAddress,
		"metrics-address",
		"",
		"Serve Prometheus metrics on this address, e.g. :8081. Overrides metrics_address in the config file.",
	)
}

func runServer(ctx context.Context) error {
	log := klog.FromContext(ctx)

	cfg, err := loadConfig(configFilePath)
	if err != nil {
		return err
	}
	if metricsAddress != "" {
		cfg.MetricsAddress = metricsAddress
	}
	if dump, err := cfg.Dump(); err == nil {
		log.V(logs.Debug).Info("Loaded config", "config", dump)
	}

	store, err := storage.New(cfg.StorageDir, cfg.MaxStorage)
	if err != nil {
		return err
	}
	if err := store.Purge(ctx); err != nil {
		log.Error(err, "Failed to remove files left by a previous run", "dir", store.Dir())
	}

	keys, err := handshake.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate server key pair: %w", err)
	}

	srv, err := server.New(cfg, keys, store, transcode.NewProcessor(cfg.FFmpegPath, store))
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// loadConfig reads the config file at path, or returns the defaults if path is empty.
func loadConfig(path string) (server.Config, error) {
	if path == "" {
		return server.DefaultConfig(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return server.Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return server.ParseConfig(b)
}
