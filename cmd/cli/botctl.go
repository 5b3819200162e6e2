package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mmengine/core"
	"mmengine/pkg/utils"
)

// start <mint> <vault-state> <owner> [nonce] -------------------------------

var startCmd = &cobra.Command{
	Use:   "start <mint> <vault-state> <owner> [nonce]",
	Short: "start-worker: spawn (or confirm) a worker for one token",
	Args:  cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, cleanup, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		mint, err := core.ParseAddress(args[0])
		if err != nil {
			return fmt.Errorf("mint: %w", err)
		}
		vaultAddr, err := core.ParseAddress(args[1])
		if err != nil {
			return fmt.Errorf("vault-state: %w", err)
		}
		owner, err := core.ParseAddress(args[2])
		if err != nil {
			return fmt.Errorf("owner: %w", err)
		}

		operatorSecret := utils.EnvOrDefault(deps.cfg.Operator.SecretEnv, "")
		operator, err := core.LoadOperatorSigner(operatorSecret, nil)
		if err != nil {
			return fmt.Errorf("load operator signer: %w", err)
		}

		manager := core.NewManager(deps.rpc, deps.store, operator, workerConfig(deps.cfg), nil)
		vault := core.VaultRecord{VaultStateAddr: vaultAddr, OwnerKey: owner, TokenMint: &mint}
		if len(args) == 4 {
			nonce, err := strconv.ParseUint(args[3], 10, 8)
			if err != nil {
				return fmt.Errorf("nonce: %w", err)
			}
			vault.Nonce = uint8(nonce)
		}
		manager.StartWorker(cmd.Context(), mint, vault, owner)
		logger.Sugar().Infow("start-worker issued", "mint", mint.String())
		return nil
	},
}

// resume-all ----------------------------------------------------------------

var resumeAllCmd = &cobra.Command{
	Use:   "resume-all",
	Short: "resume-all-from-store: spawn a worker per running bot record and backfill new vaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		deps, cleanup, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		operatorSecret := utils.EnvOrDefault(deps.cfg.Operator.SecretEnv, "")
		operator, err := core.LoadOperatorSigner(operatorSecret, nil)
		if err != nil {
			return fmt.Errorf("load operator signer: %w", err)
		}

		manager := core.NewManager(deps.rpc, deps.store, operator, workerConfig(deps.cfg), nil)
		if err := manager.ResumeAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("resumed %d workers\n", manager.WorkerCount())
		return nil
	},
}

// update-strategy <mint> <name> <json-config> --------------------------------

var updateStrategyCmd = &cobra.Command{
	Use:   "update-strategy <mint> <strategy-name> <strategy-config-json>",
	Short: "update-strategy: persist a new strategy label and config blob for a bot",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, cleanup, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		mint, err := core.ParseAddress(args[0])
		if err != nil {
			return fmt.Errorf("mint: %w", err)
		}

		var cfgBlob any
		if err := json.Unmarshal([]byte(args[2]), &cfgBlob); err != nil {
			return fmt.Errorf("strategy-config-json: %w", err)
		}

		operatorSecret := utils.EnvOrDefault(deps.cfg.Operator.SecretEnv, "")
		operator, err := core.LoadOperatorSigner(operatorSecret, nil)
		if err != nil {
			return fmt.Errorf("load operator signer: %w", err)
		}

		manager := core.NewManager(deps.rpc, deps.store, operator, workerConfig(deps.cfg), nil)
		if err := manager.UpdateStrategy(cmd.Context(), mint, args[1], cfgBlob); err != nil {
			return err
		}
		logger.Sugar().Infow("strategy updated", "mint", mint.String(), "strategy", args[1])
		return nil
	},
}

// stats -----------------------------------------------------------------------

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "aggregate-stats: print total volume, total trades, active and total bot counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		deps, cleanup, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		bots, err := deps.store.ListRunningBots(cmd.Context())
		if err != nil {
			return err
		}
		var stats core.AggregateStats
		stats.TotalCount = len(bots)
		stats.ActiveCount = len(bots)
		for _, b := range bots {
			stats.TotalTrades += b.TotalTrades
			stats.TotalVolumeSOL += b.TotalVolumeSOL
		}
		enc, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	},
}

// inspect <mint> ---------------------------------------------------------------

var inspectCmd = &cobra.Command{
	Use:   "inspect <mint>",
	Short: "print the durable bot record for one token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, cleanup, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		mint, err := core.ParseAddress(args[0])
		if err != nil {
			return fmt.Errorf("mint: %w", err)
		}
		rec, ok, err := deps.store.GetBot(cmd.Context(), mint)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no bot record for mint %s", mint.Short())
		}
		enc, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	},
}
