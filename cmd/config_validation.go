package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
)

// configGetter retrieves raw configuration values by dotted key path.
type configGetter func(key string) any

// validateStartupConfig validates startup configuration from the shared config source.
// It returns an error when any configured value is malformed or violates constraints.
func validateStartupConfig() error {
	return validateStartupConfigWithGetter(func(key string) any {
		return gconfig.S.Get(key)
	})
}

// validateStartupConfigWithGetter validates startup configuration via a key-value getter.
// It accepts a value getter and returns nil when all configured values are valid.
func validateStartupConfigWithGetter(get configGetter) error {
	if get == nil {
		return errors.New("config getter is nil")
	}

	validationErrs := make([]string, 0)

	validateRedisConfig(get, &validationErrs)
	validatePostgresConfig(get, &validationErrs)
	validateS3Config(get, &validationErrs)
	validateDriveConfig(get, &validationErrs)
	validatePurgeConfig(get, &validationErrs)
	validateWebConfig(get, &validationErrs)

	if len(validationErrs) == 0 {
		return nil
	}

	return errors.Errorf("invalid configuration:\n - %s", strings.Join(validationErrs, "\n - "))
}

// validateRedisConfig validates redis-related startup configuration values.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateRedisConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.db.redis.db", 0, errs)
	validateOptionalHost(get, "settings.db.redis.addr", errs)
}

// validatePostgresConfig validates the relational index connection settings.
func validatePostgresConfig(get configGetter, errs *[]string) {
	validateOptionalStringNonEmpty(get, "settings.db.postgres.addr", errs)
	validateOptionalStringNonEmpty(get, "settings.db.postgres.db", errs)
	validateOptionalIntRange(get, "settings.db.postgres.port", 1, 65535, errs)
}

// validateS3Config validates the object store endpoint settings.
func validateS3Config(get configGetter, errs *[]string) {
	validateOptionalHost(get, "settings.drive.s3.endpoint", errs)
	validateOptionalStringNonEmpty(get, "settings.drive.s3.bucket", errs)
	validateOptionalBool(get, "settings.drive.s3.secure", errs)

	if raw := get("settings.drive.s3.key_prefix"); raw != nil {
		prefix, parseErr := parseStrictString(raw)
		if parseErr != nil {
			appendValidationError(errs, "settings.drive.s3.key_prefix must be a string")
		} else if strings.Contains(prefix, "..") {
			appendValidationError(errs, "settings.drive.s3.key_prefix must not contain '..'")
		}
	}
}

// validateDriveConfig validates engine limits and the admin whitelist.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateDriveConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.drive.upload_url_ttl_seconds", 1, errs)
	validateOptionalInt64Min(get, "settings.drive.default_max_storage_bytes", 0, errs)
	validateOptionalIntMin(get, "settings.drive.plan_retry_max", 1, errs)
	validateOptionalIntMin(get, "settings.drive.blob_delete_concurrency", 1, errs)

	raw := get("settings.drive.admins")
	if raw == nil {
		return
	}
	admins, ok := toStringList(raw)
	if !ok {
		appendValidationError(errs, "settings.drive.admins must be a list of emails")
		return
	}
	for i, admin := range admins {
		if !strings.Contains(admin, "@") {
			appendValidationError(errs, "settings.drive.admins[%d] must be an email", i)
		}
	}
}

// validatePurgeConfig validates the permanent-delete worker settings.
func validatePurgeConfig(get configGetter, errs *[]string) {
	validateOptionalBool(get, "settings.drive.purge.inline", errs)
	validateOptionalIntMin(get, "settings.drive.purge.workers", 0, errs)
	validateOptionalIntMin(get, "settings.drive.purge.batch_size", 1, errs)
	validateOptionalIntMin(get, "settings.drive.purge.retry_max", 0, errs)
	validateOptionalIntMin(get, "settings.drive.purge.retry_backoff_ms", 1, errs)
	validateOptionalIntMin(get, "settings.drive.purge.poll_interval_ms", 1, errs)
}

// validateWebConfig validates the HTTP surface settings.
func validateWebConfig(get configGetter, errs *[]string) {
	validateOptionalStringNonEmpty(get, "settings.secret", errs)

	raw := get("settings.web.cors_domains")
	if raw == nil {
		return
	}
	domains, ok := toStringList(raw)
	if !ok {
		appendValidationError(errs, "settings.web.cors_domains must be a list of hosts")
		return
	}
	for i, domain := range domains {
		if !isValidHost(domain) {
			appendValidationError(errs, "settings.web.cors_domains[%d] must be a valid host", i)
		}
	}
}

// validateOptionalBool validates an optionally configured boolean key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalBool(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	if _, ok := parseStrictBool(raw); !ok {
		appendValidationError(errs, "%s must be a boolean", key)
	}
}

// validateOptionalIntMin validates an optionally configured integer key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalIntMin(get configGetter, key string, min int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalInt64Min validates an optionally configured int64 key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalInt64Min(get configGetter, key string, min int64, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt64(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalIntRange validates an optionally configured integer key within [min, max].
func validateOptionalIntRange(get configGetter, key string, min, max int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min || value > max {
		appendValidationError(errs, "%s must be within [%d, %d]", key, min, max)
	}
}

// validateOptionalHost validates an optionally configured host or host:port value.
func validateOptionalHost(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil || !isValidHost(value) {
		appendValidationError(errs, "%s must be a host without scheme or path", key)
	}
}

// toStringList converts a configured list into strings.
// It returns false when the value is not a list of strings.
func toStringList(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			text, err := parseStrictString(item)
			if err != nil {
				return nil, false
			}
			out = append(out, strings.TrimSpace(text))
		}
		return out, true
	default:
		return nil, false
	}
}

// validateOptionalStringNonEmpty validates an optionally configured non-empty string key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalStringNonEmpty(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must not be empty", key)
	}
}

// parseStrictBool parses a value as boolean using strict conversion rules.
// It accepts a raw value and returns the parsed boolean and whether parsing succeeded.
func parseStrictBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case float64:
		if math.Trunc(v) != v {
			return false, false
		}
		return int64(v) != 0, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return false, false
		}
		switch strings.ToLower(trimmed) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

// parseStrictInt parses a value as a strict integer.
// It accepts a raw value and returns the parsed int and an error when parsing fails.
func parseStrictInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Trunc(v) != v {
			return 0, errors.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty integer string")
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, errors.Wrap(err, "atoi")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported int type %T", value)
	}
}

// parseStrictInt64 parses a value as a strict int64.
// It accepts a raw value and returns the parsed int64 and an error when parsing fails.
func parseStrictInt64(value any) (int64, error) {
	parsed, err := parseStrictInt(value)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int64(parsed), nil
}

// parseStrictString parses a value as a strict string.
// It accepts a raw value and returns the parsed string and an error when parsing fails.
func parseStrictString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Errorf("unsupported string type %T", value)
	}
}

// isValidHost validates a host string without scheme or path components.
// It accepts a host string and returns true when the host is syntactically acceptable.
func isValidHost(host string) bool {
	trimmed := strings.TrimSpace(host)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "://") || strings.Contains(trimmed, "/") {
		return false
	}
	return true
}

// appendValidationError appends a formatted validation error to the collector.
// It accepts an error slice pointer, a format string, and format arguments, and has no return value.
func appendValidationError(errs *[]string, format string, args ...any) {
	if errs == nil {
		return
	}
	*errs = append(*errs, fmt.Sprintf(format, args...))
}
