package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deislabs/wagi-go/pkg/wagi"
)

var (
	configPath     string
	bindleInvoice  string
	bindleServer   string
	moduleCacheDir string
	listenAddr     string
	defaultHost    string
	envPairs       []string
	envFile        string
	requestTimeout time.Duration
	maxBodyBytes   int64
	verboseLog     bool
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the WAGI server",
	Long: `Load a module manifest or bindle invoice, pre-compile every module,
run sub-route discovery, and serve HTTP requests against the resulting
routing table.

Examples:
  wagi up --config modules.yaml --listen 127.0.0.1:3000

  wagi up --bindle myorg/hello/1.0.0 --bindle-server https://bindle.example.com/v1`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringVar(&configPath, "config", "", "path to a module manifest (YAML)")
	upCmd.Flags().StringVar(&bindleInvoice, "bindle", "", "bindle invoice id (name/version)")
	upCmd.Flags().StringVar(&bindleServer, "bindle-server", "", "bindle server base URL")
	upCmd.Flags().StringVar(&moduleCacheDir, "module-cache", "", "wasm compilation cache directory (disabled if empty)")
	upCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:3000", "address to listen on")
	upCmd.Flags().StringVar(&defaultHost, "default-host", "localhost", "SERVER_NAME used when a request lacks a usable Host header")
	upCmd.Flags().StringArrayVar(&envPairs, "env", nil, "global environment overlay entry KEY=VALUE, repeatable")
	upCmd.Flags().StringVar(&envFile, "env-file", "", "path to a file of KEY=VALUE lines applied as a global environment overlay")
	upCmd.Flags().DurationVar(&requestTimeout, "request-timeout", 0, "per-request wall-clock deadline (0 disables)")
	upCmd.Flags().Int64Var(&maxBodyBytes, "max-body-bytes", 0, "maximum request body size in bytes (0 uses the implementation default)")
	upCmd.Flags().BoolVarP(&verboseLog, "verbose", "v", false, "enable debug logging")
}

func runUp(cmd *cobra.Command, args []string) error {
	if (configPath == "") == (bindleInvoice == "") {
		return fmt.Errorf("exactly one of --config or --bindle must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if verboseLog {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	globalEnv, err := loadGlobalEnv(envPairs, envFile)
	if err != nil {
		return fmt.Errorf("invalid --env/--env-file: %w", err)
	}

	opts := wagi.Options{
		ManifestPath:    configPath,
		ModuleCacheDir:  moduleCacheDir,
		BindleInvoice:   bindleInvoice,
		BindleServerURL: bindleServer,
		Listen:          listenAddr,
		DefaultHost:     defaultHost,
		GlobalEnv:       globalEnv,
		RequestTimeout:  requestTimeout,
		MaxBodyBytes:    maxBodyBytes,
		Logger:          logger,
	}

	server, err := wagi.New(ctx, opts)
	if err != nil {
		return err
	}
	defer server.Close(context.Background())

	logger.Info("wagi server starting", "listen", listenAddr)
	return server.ListenAndServe(ctx)
}
