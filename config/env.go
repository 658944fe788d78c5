package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment variable the pipeline reads.
const EnvPrefix = "BOOKPIPE_"

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// EnvString returns the value of a prefixed variable if set.
func EnvString(name string) (string, bool) {
	return os.LookupEnv(EnvPrefix + name)
}

// EnvInt returns the integer value of a prefixed variable if set.
func EnvInt(name string) (int, bool, error) {
	raw, ok := EnvString(name)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return value, true, nil
}

// EnvDuration returns the duration value of a prefixed variable if set.
func EnvDuration(name string) (time.Duration, bool, error) {
	raw, ok := EnvString(name)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return value, true, nil
}

// ApplyEnv overrides cfg with any BOOKPIPE_* variables present.
func ApplyEnv(cfg *Config) error {
	if v, ok := EnvString("SOURCE_URL"); ok {
		cfg.SourceURL = v
	}
	if v, ok := EnvString("USER_AGENT"); ok {
		cfg.UserAgent = v
	}
	if v, ok := EnvString("ACCEPT_LANGUAGE"); ok {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers["Accept-Language"] = v
	}
	if v, ok, err := EnvDuration("TIMEOUT"); err != nil {
		return err
	} else if ok {
		cfg.Timeout = v
	}
	if v, ok, err := EnvInt("MAX_ITEMS"); err != nil {
		return err
	} else if ok {
		cfg.MaxItems = v
	}
	if v, ok, err := EnvInt("RETRIES"); err != nil {
		return err
	} else if ok {
		cfg.Retries = v
	}
	if v, ok, err := EnvDuration("RETRY_DELAY"); err != nil {
		return err
	} else if ok {
		cfg.RetryDelay = v
	}

	if v, ok := EnvString("DB_DRIVER"); ok {
		cfg.Store.Driver = v
	}
	if v, ok := EnvString("DB_HOST"); ok {
		cfg.Store.Host = v
	}
	if v, ok, err := EnvInt("DB_PORT"); err != nil {
		return err
	} else if ok {
		cfg.Store.Port = v
	}
	if v, ok := EnvString("DB_NAME"); ok {
		cfg.Store.Database = v
	}
	if v, ok := EnvString("DB_USER"); ok {
		cfg.Store.User = v
	}
	if v, ok := EnvString("DB_PASSWORD"); ok {
		cfg.Store.Password = v
	}
	if v, ok := EnvString("DB_SSLMODE"); ok {
		cfg.Store.SSLMode = v
	}
	if v, ok := EnvString("DB_TABLE"); ok {
		cfg.Store.Table = v
	}

	if v, ok := EnvString("HANDOFF_DIR"); ok {
		cfg.HandoffDir = v
	}
	if v, ok := EnvString("METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	return nil
}
