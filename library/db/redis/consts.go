package redis

const (
	keyPrefix = "drive/"

	// KeyPrefixProjectRef is the key prefix for cached project name lookups
	KeyPrefixProjectRef = keyPrefix + "project_ref/"
	// ChannelActivity is the pubsub channel for node activity events
	ChannelActivity = keyPrefix + "events/activity"
)
