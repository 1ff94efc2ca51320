package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

func GetEnv(key, defaultVal string, log *logger.Logger) string {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		if log != nil {
			log.Debug("Environment variable not set, using default", "env_var", key, "default", defaultVal)
		}
		return defaultVal
	}
	return val
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not set, using default", "env_var", key, "default", defaultVal)
		}
		return defaultVal
	}
	i, err := strconv.Atoi(strings.TrimSpace(valStr))
	if err != nil {
		if log != nil {
			log.Warn("Environment variable is not an int, using default", "env_var", key, "value", valStr, "default", defaultVal)
		}
		return defaultVal
	}
	return i
}

func GetEnvAsFloat(key string, defaultVal float64, log *logger.Logger) float64 {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not set, using default", "env_var", key, "default", defaultVal)
		}
		return defaultVal
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(valStr), 64)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable is not a float, using default", "env_var", key, "value", valStr, "default", defaultVal)
		}
		return defaultVal
	}
	return f
}

// GetEnvAsDuration reads a duration in seconds unless the value parses as a
// time.Duration string ("90s", "5m").
func GetEnvAsDuration(key string, defaultVal time.Duration, log *logger.Logger) time.Duration {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not set, using default", "env_var", key, "default", defaultVal)
		}
		return defaultVal
	}
	trimmed := strings.TrimSpace(valStr)
	if d, err := time.ParseDuration(trimmed); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(trimmed); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if log != nil {
		log.Warn("Environment variable is not a duration, using default", "env_var", key, "value", valStr, "default", defaultVal)
	}
	return defaultVal
}
