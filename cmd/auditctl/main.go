package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/novel-moderation/internal/infra"
)

var (
	verbose bool

	cfg    *infra.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "auditctl",
	Short: "Operator tool for the novel moderation pipeline",
	Long: `auditctl talks to the moderation ledger directly: list the human-review queue,
record manual decisions, dry-run the classifier on a local file and manage operators.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := infra.LoadConfig()
		if err != nil {
			return err
		}
		if verbose {
			c.Logger.Level = "debug"
		}
		// CLI пишет человеку: консольный формат
		c.Logger.Format = "console"
		l, _, err := infra.NewLogger(c.Logger, "auditctl")
		if err != nil {
			return err
		}
		cfg, logger = c, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
