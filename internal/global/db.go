// Package global global shared variables
package global

import (
	"context"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-drive/internal/drive"
	"github.com/Laisky/laisky-drive/library/db/postgres"
	rutils "github.com/Laisky/laisky-drive/library/db/redis"
	"github.com/Laisky/laisky-drive/library/db/s3"
	"github.com/Laisky/laisky-drive/library/log"
)

var (
	DriveDB *gorm.DB
	// Redis is nil when settings.db.redis.addr is unset.
	Redis *rutils.DB
	Blobs drive.BlobStore
)

// SetupDB connects postgres, redis and the object store.
func SetupDB(ctx context.Context) {
	SetupPostgres(ctx)
	setupRedis(ctx)
	setupBlobStore(ctx)
}

// SetupPostgres connects only the relational index.
func SetupPostgres(ctx context.Context) {
	defer log.Logger.Info("connected postgres")

	var err error
	if DriveDB, err = postgres.NewDB(ctx, postgres.DialInfo{
		Addr:   gconfig.Shared.GetString("settings.db.postgres.addr"),
		DBName: gconfig.Shared.GetString("settings.db.postgres.db"),
		User:   gconfig.Shared.GetString("settings.db.postgres.user"),
		Pwd:    gconfig.Shared.GetString("settings.db.postgres.pwd"),
		Port:   gconfig.Shared.GetInt("settings.db.postgres.port"),
	}, gconfig.Shared.GetBool("debug")); err != nil {
		log.Logger.Panic("connect to postgres", zap.Error(err))
	}
}

func setupRedis(ctx context.Context) {
	addr := gconfig.Shared.GetString("settings.db.redis.addr")
	if addr == "" {
		log.Logger.Info("redis disabled")
		return
	}

	Redis = rutils.NewDB(&redis.Options{
		Addr:     addr,
		Password: gconfig.Shared.GetString("settings.db.redis.pwd"),
		DB:       gconfig.Shared.GetInt("settings.db.redis.db"),
	})
	if err := Redis.Client().Ping(ctx).Err(); err != nil {
		log.Logger.Panic("connect to redis", zap.Error(err), zap.String("addr", addr))
	}
	log.Logger.Info("connected redis", zap.String("addr", addr))
}

func setupBlobStore(ctx context.Context) {
	defer log.Logger.Info("connected object store")

	bucket := gconfig.Shared.GetString("settings.drive.s3.bucket")
	client, err := s3.NewClient(ctx, s3.DialInfo{
		Endpoint:  gconfig.Shared.GetString("settings.drive.s3.endpoint"),
		AccessKey: gconfig.Shared.GetString("settings.drive.s3.access_key"),
		SecretKey: gconfig.Shared.GetString("settings.drive.s3.secret_key"),
		Region:    gconfig.Shared.GetString("settings.drive.s3.region"),
		Bucket:    bucket,
		Secure:    gconfig.Shared.GetBool("settings.drive.s3.secure"),
	})
	if err != nil {
		log.Logger.Panic("create s3 client", zap.Error(err))
	}

	if Blobs, err = drive.NewMinioBlobStore(client, bucket); err != nil {
		log.Logger.Panic("create blob store", zap.Error(err))
	}
}
