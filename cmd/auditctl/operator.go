package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xela07ax/novel-moderation/internal/console/service"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"github.com/xela07ax/novel-moderation/internal/repository/postgres"
)

var operatorScopes []string

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage console operators",
}

var operatorAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an operator; the password is read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && password == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(password, "\r\n")
		if password == "" {
			return fmt.Errorf("empty password")
		}

		hash, err := service.HashPassword(password, cfg.Auth.BcryptCost)
		if err != nil {
			return err
		}

		scopes := make(map[string]bool, len(operatorScopes))
		for _, s := range operatorScopes {
			scopes[s] = true
		}

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		op := &domain.Operator{
			ID:           uuid.NewString(),
			Username:     args[0],
			PasswordHash: hash,
			Scopes:       scopes,
			CreatedAt:    time.Now(),
		}
		if err := postgres.NewOperatorRepo(store).CreateOperator(cmd.Context(), op); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "operator %s created (id %s)\n", op.Username, op.ID)
		return nil
	},
}

func init() {
	operatorAddCmd.Flags().StringSliceVar(&operatorScopes, "scope",
		[]string{domain.ScopeLedgerRead, domain.ScopeLedgerDecide}, "Granted scopes")
	operatorCmd.AddCommand(operatorAddCmd)
	rootCmd.AddCommand(operatorCmd)
}
