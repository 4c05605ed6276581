package traffic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	APIBaseURL   string
	APIKey       string
	Mode         string
	Execute      bool
	Interval     time.Duration
	HTTPTimeout  time.Duration
	WaitForReady bool
	MaxQuestions int
	Seed         int64
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:   "http://localhost:8080",
		Execute:      true,
		Interval:     5 * time.Second,
		HTTPTimeout:  2 * time.Minute,
		WaitForReady: true,
		Seed:         time.Now().UTC().UnixNano(),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	applyString(lookup, "TEXT2SQL_DEMO_API_URL", &cfg.APIBaseURL)
	applyString(lookup, "TEXT2SQL_DEMO_API_KEY", &cfg.APIKey)
	applyString(lookup, "TEXT2SQL_DEMO_MODE", &cfg.Mode)
	if err := applyBool(lookup, "TEXT2SQL_DEMO_EXECUTE", &cfg.Execute); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TEXT2SQL_DEMO_INTERVAL", &cfg.Interval); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TEXT2SQL_DEMO_HTTP_TIMEOUT", &cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TEXT2SQL_DEMO_WAIT_FOR_READY", &cfg.WaitForReady); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TEXT2SQL_DEMO_MAX_QUESTIONS", &cfg.MaxQuestions); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "TEXT2SQL_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}

	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("TEXT2SQL_DEMO_API_URL is required")
	}
	switch cfg.Mode {
	case "", "rag", "full":
	default:
		return Config{}, fmt.Errorf("TEXT2SQL_DEMO_MODE must be rag or full, got %q", cfg.Mode)
	}
	if cfg.Interval <= 0 {
		return Config{}, fmt.Errorf("TEXT2SQL_DEMO_INTERVAL must be > 0")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("TEXT2SQL_DEMO_HTTP_TIMEOUT must be > 0")
	}
	if cfg.MaxQuestions < 0 {
		return Config{}, fmt.Errorf("TEXT2SQL_DEMO_MAX_QUESTIONS must be >= 0")
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) {
	if raw, ok := lookup(key); ok {
		*dst = strings.TrimSpace(raw)
	}
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
