package redis

import (
	gredis "github.com/Laisky/go-redis/v2"
	"github.com/redis/go-redis/v9"
)

// DB is a wrapper for go-redis
type DB struct {
	client *redis.Client
	utils  *gredis.Utils
}

// NewDB creates a new DB instance
func NewDB(opt *redis.Options) *DB {
	rdb := redis.NewClient(opt)
	rutils := gredis.NewRedisUtils(rdb)

	return &DB{
		client: rdb,
		utils:  rutils,
	}
}

// Client returns the raw go-redis client.
func (db *DB) Client() *redis.Client {
	return db.client
}

// Utils returns the key/value helpers.
func (db *DB) Utils() *gredis.Utils {
	return db.utils
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.client.Close()
}
