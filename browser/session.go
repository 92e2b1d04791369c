// Package browser provides page sessions backed by a headless browser or a
// static HTTP fetcher, plus the scrolling helpers used to trigger lazy content.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrElementNotFound is returned when a locator matches nothing in time.
	ErrElementNotFound = errors.New("browser: element not found")
	// ErrSessionClosed is returned by sessions used after Close.
	ErrSessionClosed = errors.New("browser: session closed")
)

// Element is a located node of the current page.
type Element interface {
	// Text returns the rendered text of the element.
	Text() (string, error)
	// Attribute returns the named attribute and whether it is present.
	Attribute(name string) (string, bool, error)
	// Href returns the absolute link target, or "" when the element has none.
	Href() (string, error)
}

// Session is a single page owned by one unit of work. Sessions are not
// safe for concurrent use.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitElement blocks up to timeout for loc to match.
	WaitElement(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	// Find looks loc up once, without waiting.
	Find(ctx context.Context, loc Locator) (Element, error)
	// FindAll returns every match of loc, possibly none.
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
	ScrollHeight(ctx context.Context) (int, error)
	ScrollTo(ctx context.Context, y int) error
	ScrollBy(ctx context.Context, dy int) error
	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Factory produces independent sessions.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// CloseQuietly releases s and reports a failure through onErr, if set.
// Release failures never replace the caller's own result.
func CloseQuietly(s Session, onErr func(error)) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil && onErr != nil {
		onErr(err)
	}
}
