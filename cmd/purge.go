package cmd

import (
	"context"
	"os/signal"
	"syscall"

	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-drive/internal/global"
	"github.com/Laisky/laisky-drive/library/log"
)

var purgeCMD = &cobra.Command{
	Use:   "purge-worker",
	Short: "purge-worker",
	Long:  `drain the permanent-delete queue without serving HTTP`,
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
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		worker := global.DriveSvc.NewPurgeWorker()
		if once, _ := cmd.Flags().GetBool("once"); once {
			if err := worker.RunOnce(ctx); err != nil {
				log.Logger.Panic("purge once", zap.Error(err))
			}
			global.DriveSvc.Wait()
			return
		}

		log.Logger.Info("purge worker started")
		if err := worker.Start(ctx); err != nil {
			log.Logger.Panic("purge worker", zap.Error(err))
		}
		global.DriveSvc.Wait()
	},
}

func init() {
	purgeCMD.Flags().Bool("once", false, "process one batch of due jobs and exit")
	rootCMD.AddCommand(purgeCMD)
}
