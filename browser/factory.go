package browser

import (
	"log/slog"
	"net/http"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"golang.org/x/time/rate"
)

// NewFactory returns the session factory selected by cfg.Driver. transport
// only applies to the HTTP driver and may be nil.
func NewFactory(cfg *config.Config, transport http.RoundTripper, logger *slog.Logger) Factory {
	limiter := NewLimiter(cfg.Browser.RequestsPerSecond)
	if cfg.Driver == config.DriverHTTP {
		return NewStaticFactory(StaticOptions{
			UserAgent:        cfg.UserAgent,
			Timeout:          cfg.Browser.PageLoadTimeout,
			RespectRobotsTxt: cfg.RespectRobotsTxt,
			Transport:        transport,
			Limiter:          limiter,
		})
	}
	return NewRodFactory(cfg.Browser, cfg.UserAgent, limiter, logger)
}

// NewLimiter shares a navigation budget between all sessions of a factory.
// It returns nil when rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
}
