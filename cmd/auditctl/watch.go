package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/novel-moderation/internal/catalog"
	"github.com/xela07ax/novel-moderation/internal/infra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print search refresh signals emitted after books pass moderation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := infra.NewRedisClient(cmd.Context(), cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()

		logger.Info("listening", zap.String("chan", infra.RedisChanSearchRefresh))
		catalog.ListenRefreshResilient(cmd.Context(), rdb, logger, infra.RedisChanSearchRefresh, func(bookID int64) {
			fmt.Fprintf(cmd.OutOrStdout(), "refresh book %d\n", bookID)
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
