package cmd

import (
	"context"

	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-drive/internal/global"
	"github.com/Laisky/laisky-drive/internal/web"
	"github.com/Laisky/laisky-drive/library/jwt"
	"github.com/Laisky/laisky-drive/library/log"
)

var apiCMD = &cobra.Command{
	Use:   "api",
	Short: "api",
	Long:  `HTTP API service for laisky-drive`,
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
		if err := global.DriveSvc.StartPurgeWorkers(ctx); err != nil {
			log.Logger.Panic("start purge workers", zap.Error(err))
		}

		verifier, err := jwt.New([]byte(gconfig.Shared.GetString("settings.secret")))
		if err != nil {
			log.Logger.Panic("setup jwt", zap.Error(err))
		}

		var refs *web.ProjectRefCache
		if global.Redis != nil {
			refs = web.NewProjectRefCache(global.Redis.Utils(), global.DriveSvc)
		}

		web.RunServer(gconfig.Shared.GetString("listen"),
			web.NewController(global.DriveSvc, refs, verifier))
	},
}

func init() {
	rootCMD.AddCommand(apiCMD)
}
