// Package cli provides the botctl command-line tool: administrative
// operations against the market-making engine's durable store and live
// on-chain state, without running the persistent worker loop itself.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mmengine/core"
	"mmengine/pkg/config"
)

var logger *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l
}

// RootCmd is the botctl entrypoint, mounted by cmd/botctl/main.go.
var RootCmd = &cobra.Command{
	Use:   "botctl",
	Short: "Administrative controls for the market-making engine",
}

func init() {
	RootCmd.AddCommand(startCmd, resumeAllCmd, updateStrategyCmd, statsCmd, inspectCmd)
}

// dependencies bundles the store/RPC/operator wiring every botctl
// subcommand needs, built fresh per invocation (botctl is a one-shot tool,
// not a long-running process).
type dependencies struct {
	cfg   *config.Config
	store *core.PostgresStore
	rpc   core.RPCClient
}

func bootstrap(cmd *cobra.Command) (*dependencies, func(), error) {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	store, err := core.OpenPostgresStore(ctx, cfg.Store.DSN, cfg.Store.MaxConnections)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	rpc := core.NewHTTPRPCClient(cfg.RPC.URL, cfg.RPC.WSURL, time.Duration(cfg.RPC.TimeoutSeconds)*time.Second, cfg.RPC.MaxRetries, nil)

	cleanup := func() { _ = store.Close() }
	return &dependencies{cfg: cfg, store: store, rpc: rpc}, cleanup, nil
}

func workerConfig(cfg *config.Config) core.WorkerConfig {
	return core.WorkerConfig{
		MinGasReserveLamports: uint64(cfg.Worker.MinGasReserveSOL * 1e9),
		BotMinTradeLamports:   uint64(cfg.Worker.BotMinTradeSOL * 1e9),
		BotMaxTradeLamports:   uint64(cfg.Worker.BotMaxTradeSOL * 1e9),
		DefaultSlippageBps:    uint16(cfg.Worker.DefaultSlippageBps),
		RandPercentMin:        0.2,
		RandPercentMax:        0.8,
		FeeClaimInterval:      time.Duration(cfg.Worker.FeeClaimIntervalHrs) * time.Hour,
	}
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		logger.Sugar().Error(err)
		os.Exit(1)
	}
}
