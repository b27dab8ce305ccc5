package drive

import (
	"fmt"
	"strings"
	"time"

	gconfig "github.com/Laisky/go-config/v2"
)

// Settings captures runtime configuration for the drive engine.
type Settings struct {
	Bucket                 string
	KeyPrefix              string
	UploadURLTTL           time.Duration
	DefaultMaxStorageBytes int64
	PlanRetryMax           int
	BlobDeleteConcurrency  int
	Admins                 []string
	Purge                  PurgeSettings
}

// PurgeSettings configures the permanent-delete worker.
type PurgeSettings struct {
	Inline       bool
	Workers      int
	BatchSize    int
	RetryMax     int
	RetryBackoff time.Duration
	PollInterval time.Duration
}

// LoadSettingsFromConfig reads configuration and applies safe defaults.
func LoadSettingsFromConfig() Settings {
	settings := Settings{
		Bucket:                 strings.TrimSpace(gconfig.S.GetString("settings.drive.s3.bucket")),
		KeyPrefix:              strings.TrimSpace(gconfig.S.GetString("settings.drive.s3.key_prefix")),
		UploadURLTTL:           time.Duration(intFromConfig("settings.drive.upload_url_ttl_seconds", 900)) * time.Second,
		DefaultMaxStorageBytes: int64FromConfig("settings.drive.default_max_storage_bytes", 10_737_418_240),
		PlanRetryMax:           intFromConfig("settings.drive.plan_retry_max", 3),
		BlobDeleteConcurrency:  intFromConfig("settings.drive.blob_delete_concurrency", 4),
		Admins:                 normalizeEmails(gconfig.S.GetStringSlice("settings.drive.admins")),
		Purge: PurgeSettings{
			Inline:       boolFromConfig("settings.drive.purge.inline", false),
			Workers:      intFromConfig("settings.drive.purge.workers", 1),
			BatchSize:    intFromConfig("settings.drive.purge.batch_size", 10),
			RetryMax:     intFromConfig("settings.drive.purge.retry_max", 5),
			RetryBackoff: time.Duration(intFromConfig("settings.drive.purge.retry_backoff_ms", 1000)) * time.Millisecond,
			PollInterval: time.Duration(intFromConfig("settings.drive.purge.poll_interval_ms", 500)) * time.Millisecond,
		},
	}

	return settings.withDefaults()
}

// withDefaults clamps every field into a usable range.
func (s Settings) withDefaults() Settings {
	if s.KeyPrefix == "" {
		s.KeyPrefix = "projects"
	}
	s.KeyPrefix = strings.Trim(s.KeyPrefix, "/")
	if s.UploadURLTTL <= 0 {
		s.UploadURLTTL = 15 * time.Minute
	}
	if s.DefaultMaxStorageBytes < 0 {
		s.DefaultMaxStorageBytes = 0
	}
	if s.PlanRetryMax <= 0 {
		s.PlanRetryMax = 3
	}
	if s.BlobDeleteConcurrency <= 0 {
		s.BlobDeleteConcurrency = 4
	}
	if s.Purge.Workers < 0 {
		s.Purge.Workers = 0
	}
	if s.Purge.BatchSize <= 0 {
		s.Purge.BatchSize = 10
	}
	if s.Purge.RetryMax < 0 {
		s.Purge.RetryMax = 0
	}
	if s.Purge.RetryBackoff <= 0 {
		s.Purge.RetryBackoff = time.Second
	}
	if s.Purge.PollInterval <= 0 {
		s.Purge.PollInterval = 500 * time.Millisecond
	}
	return s
}

// normalizeEmails lowercases and drops blank entries.
func normalizeEmails(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, email := range raw {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			out = append(out, email)
		}
	}
	return out
}

// intFromConfig reads an int configuration value with a default fallback.
func intFromConfig(key string, def int) int {
	return int(int64FromConfig(key, int64(def)))
}

// int64FromConfig reads an int64 configuration value with a default fallback.
func int64FromConfig(key string, def int64) int64 {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return def
		}
		var parsed int64
		if _, err := fmt.Sscanf(trimmed, "%d", &parsed); err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// boolFromConfig reads a boolean configuration value with a default fallback.
func boolFromConfig(key string, def bool) bool {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		default:
			return def
		}
	default:
		return def
	}
}
