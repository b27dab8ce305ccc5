package global

import (
	"context"

	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-drive/internal/drive"
	rutils "github.com/Laisky/laisky-drive/library/db/redis"
	"github.com/Laisky/laisky-drive/library/log"
)

var (
	DriveSvc *drive.Service
)

// SetupServices builds the drive engine on top of SetupDB's clients.
func SetupServices(_ context.Context) {
	var notifier drive.Notifier
	if Redis != nil {
		redisNotifier, err := drive.NewRedisNotifier(Redis.Client(), rutils.ChannelActivity)
		if err != nil {
			log.Logger.Panic("new redis notifier", zap.Error(err))
		}
		notifier = redisNotifier
	}

	settings := drive.LoadSettingsFromConfig()
	var err error
	if DriveSvc, err = drive.NewService(
		DriveDB,
		settings,
		Blobs,
		notifier,
		drive.NewMemberPolicy(DriveDB, settings.Admins),
		log.Logger.Named("drive"),
		nil,
	); err != nil {
		log.Logger.Panic("new drive service", zap.Error(err))
	}
}
