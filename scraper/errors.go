package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/go-scrape-catalog/browser"
)

// ErrRetriesExhausted is returned by DetailScraper.Scrape when every attempt failed.
var ErrRetriesExhausted = errors.New("scraper: retries exhausted")

// ErrTimeout indicates a page load or element wait ran out of time.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing page (HTTP 404) or a required element
// that never appeared.
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrNavigation indicates the page could not be loaded.
type ErrNavigation struct {
	URL string
	Err error
}

func (e ErrNavigation) Error() string {
	return fmt.Errorf("navigation %s: %w", e.URL, e.Err).Error()
}

func (e ErrNavigation) Unwrap() error {
	return e.Err
}

// ErrSession indicates a browser session could not be opened.
type ErrSession struct {
	Err error
}

func (e ErrSession) Error() string {
	return fmt.Errorf("session: %w", e.Err).Error()
}

func (e ErrSession) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var session ErrSession
	if errors.As(err, &session) {
		return "session"
	}
	var nav ErrNavigation
	if errors.As(err, &nav) {
		return "navigation"
	}
	return "other"
}

// classifyError wraps err in the most specific typed error it matches.
// Errors that are already typed, or match nothing, are returned as is.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errorTypeLabel(err) != "other" {
		return err
	}

	if errors.Is(err, browser.ErrElementNotFound) {
		return ErrNotFound{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	var status *browser.StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case http.StatusForbidden:
			return ErrForbidden{Err: err}
		case http.StatusNotFound:
			return ErrNotFound{Err: err}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: err}
		}
	}
	return err
}
