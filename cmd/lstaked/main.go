package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"liquidstake/config"
	"liquidstake/core"
	"liquidstake/core/events"
	"liquidstake/core/genesis"
	"liquidstake/eventlog"
	"liquidstake/observability"
	"liquidstake/observability/logging"
	telemetry "liquidstake/observability/otel"
	"liquidstake/rpc"
	"liquidstake/storage"
)

const programName = "lstaked"

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Liquid staking pool daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config.toml", "path to the configuration file")
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	rootCmd.AddCommand(exportEventsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, logCloser := logging.Setup(programName, cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...interface{}) {
		logger.Info(fmt.Sprintf(format, v...), slog.String("component", programName))
	})); err != nil {
		logger.Warn("set GOMAXPROCS", slog.Any("error", err))
	}

	logger.Info("starting",
		slog.String("version", version),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("backend", cfg.DBBackend),
		logging.Secret("jwtSecret", cfg.RPC.JWTSecret),
		logging.OTLPHeaders("otelHeaders", cfg.Telemetry.Headers),
	)
	if strings.TrimSpace(cfg.RPC.JWTSecret) == "" {
		logger.Warn("rpc jwt secret not configured; pool operations will be rejected")
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	feed := rpc.NewEventFeed(cfg.RPC.StreamBuffer)
	node, archive, err := openNode(cfg, logger, feed)
	if err != nil {
		return err
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Error("close node", slog.Any("error", err))
		}
		if err := archive.Close(); err != nil {
			logger.Error("close event archive", slog.Any("error", err))
		}
	}()

	if err := node.Start(ctx, cfg.BlockInterval()); err != nil {
		return err
	}
	server := rpc.NewServer(node, archive, rpc.ServerConfig{
		JWTSecret:       cfg.RPC.JWTSecret,
		JWTIssuer:       cfg.RPC.JWTIssuer,
		RateLimitPerSec: cfg.RPC.RateLimitPerSec,
		RateLimitBurst:  cfg.RPC.RateLimitBurst,
		ServiceName:     cfg.Telemetry.ServiceName,
	}, logger)
	server.SetEventFeed(feed)
	err = server.Start(ctx, cfg.RPCAddress)
	node.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("stopped", slog.Uint64("height", node.Height()))
	return nil
}

func openNode(cfg *config.Config, logger *slog.Logger, feed events.Emitter) (*core.Node, *eventlog.Store, error) {
	stakingParams, err := cfg.StakingParams()
	if err != nil {
		return nil, nil, err
	}
	poolParams, err := cfg.PoolParams()
	if err != nil {
		return nil, nil, err
	}
	baseED, derivativeED, err := cfg.ExistentialDeposits()
	if err != nil {
		return nil, nil, err
	}
	var spec *genesis.Spec
	if path := strings.TrimSpace(cfg.GenesisFile); path != "" {
		if spec, err = genesis.Load(path); err != nil {
			return nil, nil, err
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("prepare data directory: %w", err)
	}
	archive, err := eventlog.Open(cfg.ResolvePath(cfg.EventLogPath), logger)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(cfg.DBBackend, cfg.DataDir)
	if err != nil {
		_ = archive.Close()
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	node, err := core.NewNode(db, core.NodeConfig{
		BaseSymbol:       cfg.Ledgers.BaseSymbol,
		BaseED:           baseED,
		DerivativeSymbol: cfg.Ledgers.DerivativeSymbol,
		DerivativeED:     derivativeED,
		Staking:          stakingParams,
		Pool:             poolParams,
		Genesis:          spec,
		Version:          version,
		Logger:           logger,
		Sinks:            []events.Emitter{observability.Events(), archive, feed},
	})
	if err != nil {
		_ = db.Close()
		_ = archive.Close()
		return nil, nil, fmt.Errorf("create node: %w", err)
	}
	return node, archive, nil
}

func exportEventsCmd() *cobra.Command {
	var (
		out  string
		from uint64
	)
	cmd := &cobra.Command{
		Use:   "export-events",
		Short: "Write the event archive to a Parquet file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			archive, err := eventlog.Open(cfg.ResolvePath(cfg.EventLogPath), nil)
			if err != nil {
				return err
			}
			defer archive.Close()
			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create export: %w", err)
			}
			n, err := archive.ExportParquet(cmd.Context(), file, from)
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d events to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "events.parquet", "destination file")
	cmd.Flags().Uint64Var(&from, "from", 0, "first block height to export")
	return cmd
}
