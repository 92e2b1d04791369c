package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
)

type fakeElement struct {
	text string
	href string
	err  error
}

func (e fakeElement) Text() (string, error) { return e.text, e.err }

func (e fakeElement) Attribute(name string) (string, bool, error) {
	if name == "href" && e.href != "" {
		return e.href, true, nil
	}
	return "", false, nil
}

func (e fakeElement) Href() (string, error) { return e.href, e.err }

// fakePage answers lookups by locator expression.
type fakePage struct {
	navErr  error
	single  map[string]fakeElement
	multi   map[string][]fakeElement
	lookErr map[string]error
}

func (p *fakePage) lookupErr(loc browser.Locator) error {
	if p.lookErr == nil {
		return nil
	}
	return p.lookErr[loc.Expr]
}

type fakeSession struct {
	factory *fakeFactory
	page    *fakePage
	closed  bool
}

func (s *fakeSession) Navigate(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.navErr
}

func (s *fakeSession) WaitElement(ctx context.Context, loc browser.Locator, _ time.Duration) (browser.Element, error) {
	return s.Find(ctx, loc)
}

func (s *fakeSession) Find(_ context.Context, loc browser.Locator) (browser.Element, error) {
	if err := s.page.lookupErr(loc); err != nil {
		return nil, err
	}
	el, ok := s.page.single[loc.Expr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, loc)
	}
	return el, nil
}

func (s *fakeSession) FindAll(_ context.Context, loc browser.Locator) ([]browser.Element, error) {
	if err := s.page.lookupErr(loc); err != nil {
		return nil, err
	}
	var out []browser.Element
	for _, el := range s.page.multi[loc.Expr] {
		out = append(out, el)
	}
	return out, nil
}

func (s *fakeSession) ScrollHeight(context.Context) (int, error) { return 1000, nil }

func (s *fakeSession) ScrollTo(context.Context, int) error { return nil }

func (s *fakeSession) ScrollBy(context.Context, int) error { return nil }

func (s *fakeSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.factory.mu.Lock()
	s.factory.closed++
	s.factory.mu.Unlock()
	return nil
}

// fakeFactory hands out one page per session; the last page repeats.
type fakeFactory struct {
	mu     sync.Mutex
	pages  []*fakePage
	err    error
	opened int
	closed int
}

func (f *fakeFactory) NewSession(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return nil, errors.New("no pages configured")
	}
	i := min(f.opened, len(f.pages)-1)
	f.opened++
	return &fakeSession{factory: f, page: f.pages[i]}, nil
}

func (f *fakeFactory) Close() error { return nil }

func (f *fakeFactory) counts() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}
