package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/metrics"
	"github.com/inferchain/inferchain/internal/service"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Inspect the node registry",
}

var nodeCheckCmd = &cobra.Command{
	Use:   "check <address>",
	Short: "Report whether a node address is approved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(cfg.NodeRegistryAddress) {
			return fmt.Errorf("NODE_REGISTRY_ADDRESS is not set to a valid address")
		}

		ctx := cmd.Context()
		// Read-only: no signing keys are loaded.
		keys, err := chain.NewStaticKeyProvider(nil)
		if err != nil {
			return err
		}
		client, err := chain.Dial(ctx, chain.Config{
			RPCURL:       cfg.RPCURL,
			NodeRegistry: common.HexToAddress(cfg.NodeRegistryAddress),
			CallTimeout:  cfg.CallTimeout,
			RPS:          5,
		}, keys, metrics.NewNoop(), logger)
		if err != nil {
			return err
		}
		defer client.Close()

		approved, err := service.NewNodeService(client, logger).IsApproved(ctx, args[0])
		if err != nil {
			return err
		}
		status := "not approved"
		if approved {
			status = "approved"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status)
		return nil
	},
}

func init() {
	nodeCmd.AddCommand(nodeCheckCmd)
	rootCmd.AddCommand(nodeCmd)
}
