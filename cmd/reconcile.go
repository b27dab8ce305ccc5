package cmd

import (
	"context"
	"sort"

	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-drive/internal/global"
	"github.com/Laisky/laisky-drive/library/log"
)

var reconcileCMD = &cobra.Command{
	Use:   "reconcile-quota",
	Short: "reconcile-quota",
	Long:  `recompute project storage counters from the node index`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}

		global.SetupDB(ctx)
		global.SetupServices(ctx)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if projectID, _ := cmd.Flags().GetString("project"); projectID != "" {
			total, err := global.DriveSvc.ReconcileQuota(ctx, projectID)
			if err != nil {
				log.Logger.Panic("reconcile quota", zap.Error(err), zap.String("project", projectID))
			}
			log.Logger.Info("reconciled", zap.String("project", projectID), zap.Int64("bytes", total))
			return
		}

		totals, err := global.DriveSvc.ReconcileAllQuotas(ctx)
		if err != nil {
			log.Logger.Panic("reconcile quotas", zap.Error(err))
		}
		ids := make([]string, 0, len(totals))
		for id := range totals {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			log.Logger.Info("reconciled", zap.String("project", id), zap.Int64("bytes", totals[id]))
		}
	},
}

func init() {
	reconcileCMD.Flags().String("project", "", "only reconcile this project id")
	rootCMD.AddCommand(reconcileCMD)
}
