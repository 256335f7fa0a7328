package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/repository"
	"github.com/inferchain/inferchain/internal/service"
)

// Defaults match the model the local deploy script registers first.
const (
	qaOwnerWallet = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	qaContentCID  = "QmQAModelBasicQuestions"
	qaPriceWei    = "1000000000000000"
	qaChainID     = "1"
)

var seedOpts struct {
	owner   string
	chainID string
	price   string
}

var seedQACmd = &cobra.Command{
	Use:   "seed-qa-model",
	Short: "Insert the built-in Q&A model into the catalog",
	Long: `Inserts the Q&A model that already exists on chain into the catalog, creating
its owner with the modelOwner role. Running it twice is a no-op.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDatabase(); err != nil {
			return err
		}
		ctx := cmd.Context()
		repo, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer repo.Close()

		catalog := service.NewCatalogService(repo, repo, nil, false, logger)
		chainID := seedOpts.chainID
		m, created, err := catalog.Seed(ctx, &model.Model{
			ChainModelID:   &chainID,
			OwnerWallet:    seedOpts.owner,
			Name:           "Basic Q&A Model",
			Description:    "Answers basic questions",
			Category:       "qa",
			ContentPointer: qaContentCID,
			PricePerMinute: seedOpts.price,
		})
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(cmd.OutOrStdout(), "model for chain id %s already present: %s\n", chainID, m.ID)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %s (chain id %s, owner %s)\n", m.ID, chainID, m.OwnerWallet)
		return nil
	},
}

func init() {
	seedQACmd.Flags().StringVar(&seedOpts.owner, "owner", qaOwnerWallet, "owner wallet")
	seedQACmd.Flags().StringVar(&seedOpts.chainID, "chain-id", qaChainID, "on-chain model id")
	seedQACmd.Flags().StringVar(&seedOpts.price, "price-wei", qaPriceWei, "price per minute in wei")

	rootCmd.AddCommand(seedQACmd)
}
