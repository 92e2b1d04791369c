// Package scraper implements the three extraction stages of the catalog: the
// author listing, the per-author book URL listing and the book detail pages.
package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
)

// openSession acquires one session from f. The returned release func must be
// called on every exit path; close failures are logged and never returned.
func openSession(ctx context.Context, f browser.Factory, m *Metrics, logger *slog.Logger) (browser.Session, func(), error) {
	started := time.Now()
	session, err := f.NewSession(ctx)
	if err != nil {
		return nil, nil, ErrSession{Err: err}
	}
	release := func() {
		browser.CloseQuietly(session, func(err error) {
			logger.Debug("session close failed", slog.Any("error", err))
		})
		m.ObserveSession(time.Since(started))
	}
	return session, release, nil
}

// backoff returns the pause before retry attempt n (1-based): RetryBackoff
// doubled per attempt, capped at RetryBackoffMax.
func backoff(cfg *config.Config, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}

	base := cfg.RetryBackoff
	if base <= 0 {
		return 0
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func componentLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}
