package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/repository"
	"github.com/inferchain/inferchain/internal/service"
)

var grantOpts struct {
	wallet string
	role   string
}

var grantRoleCmd = &cobra.Command{
	Use:   "grant-role",
	Short: "Grant a role to a wallet, creating the user if needed",
	Long: `Grants any role, including admin, to a wallet. This is the only way to create
administrators; the public registration endpoint refuses the admin role.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wallet, role, err := parseGrant(grantOpts.wallet, grantOpts.role)
		if err != nil {
			return err
		}
		if err := requireDatabase(); err != nil {
			return err
		}

		ctx := cmd.Context()
		repo, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer repo.Close()

		user, created, err := repo.UpsertWalletUser(ctx, &model.User{
			ID:        ulid.Make().String(),
			Wallet:    &wallet,
			Roles:     []string{role},
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		verb := "updated"
		if created {
			verb = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s user %s (%s) roles=%s\n",
			verb, user.ID, wallet, strings.Join(user.Roles, ","))
		return nil
	},
}

func init() {
	grantRoleCmd.Flags().StringVar(&grantOpts.wallet, "wallet", "", "wallet address (required)")
	grantRoleCmd.Flags().StringVar(&grantOpts.role, "role", "", "role to grant: "+strings.Join(model.ValidRoles, ", "))
	_ = grantRoleCmd.MarkFlagRequired("wallet")
	_ = grantRoleCmd.MarkFlagRequired("role")

	rootCmd.AddCommand(grantRoleCmd)
}

func parseGrant(wallet, role string) (string, string, error) {
	normalized, err := service.NormalizeWallet(wallet)
	if err != nil {
		return "", "", fmt.Errorf("invalid wallet %q: %w", wallet, err)
	}
	if !slices.Contains(model.ValidRoles, role) {
		return "", "", fmt.Errorf("unknown role %q (valid: %s)", role, strings.Join(model.ValidRoles, ", "))
	}
	return normalized, role, nil
}
