package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load returns the defaults overlaid with the YAML file at path.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, true, fmt.Errorf("%s=%q: %w", key, value, err)
	}
	return n, true, nil
}

// EnvBool parses key as a boolean.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, true, fmt.Errorf("%s=%q: %w", key, value, err)
	}
	return b, true, nil
}

// ApplyEnv overlays SCRAPER_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var errs []error

	intVars := map[string]*int{
		"SCRAPER_AUTHOR_PAGES": &cfg.AuthorPages,
		"SCRAPER_MAX_RETRIES":  &cfg.MaxRetries,
		"SCRAPER_OFFSET":       &cfg.Offset,
		"SCRAPER_LIMIT":        &cfg.Limit,
	}
	for key, dst := range intVars {
		if n, ok, err := EnvInt(key); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = n
		}
	}

	stringVars := map[string]*string{
		"SCRAPER_BASE_URL":       &cfg.BaseURL,
		"SCRAPER_AUTHOR_WORKERS": &cfg.AuthorWorkers,
		"SCRAPER_BOOK_WORKERS":   &cfg.BookWorkers,
		"SCRAPER_DETAIL_WORKERS": &cfg.DetailWorkers,
		"SCRAPER_AUTHORS_FILE":   &cfg.AuthorsFile,
		"SCRAPER_BOOK_URLS_FILE": &cfg.BookURLsFile,
		"SCRAPER_OUTPUT":         &cfg.OutputFile,
		"SCRAPER_FORMAT":         &cfg.OutputFormat,
		"SCRAPER_DRIVER":         &cfg.Driver,
		"SCRAPER_BROWSER_BIN":    &cfg.Browser.Bin,
		"SCRAPER_REMOTE_URL":     &cfg.Browser.RemoteURL,
		"SCRAPER_METRICS_ADDR":   &cfg.MetricsAddr,
	}
	for key, dst := range stringVars {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}

	if b, ok, err := EnvBool("SCRAPER_HEADLESS"); err != nil {
		errs = append(errs, err)
	} else if ok {
		cfg.Browser.Headless = b
	}

	return errors.Join(errs...)
}
