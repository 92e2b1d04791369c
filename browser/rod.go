package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/time/rate"
)

// RodFactory launches one headless Chromium per session, or opens an
// incognito context per session on a remote browser when RemoteURL is set.
type RodFactory struct {
	cfg       config.Browser
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu   sync.Mutex
	root *rod.Browser
}

// NewRodFactory builds a factory from the browser settings. limiter may be nil.
func NewRodFactory(cfg config.Browser, userAgent string, limiter *rate.Limiter, logger *slog.Logger) *RodFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodFactory{
		cfg:       cfg,
		userAgent: userAgent,
		limiter:   limiter,
		logger:    logger.With("component", "rod"),
	}
}

// NewSession returns a session with its own page. Construction failures are
// returned as is; the caller decides whether to retry.
func (f *RodFactory) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.cfg.RemoteURL != "" {
		return f.remoteSession()
	}

	l := f.newLauncher()
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := f.newPage(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("create page: %w", err)
	}

	f.logger.Debug("browser session started", slog.String("control_url", controlURL))
	return &rodSession{page: page, browser: b, launcher: l, cfg: f.cfg, limiter: f.limiter}, nil
}

// Close drops the remote connection, leaving the remote browser running.
// Launched browsers are owned by their sessions.
func (f *RodFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.root = nil
	return nil
}

func (f *RodFactory) newLauncher() *launcher.Launcher {
	l := launcher.New().
		Headless(f.cfg.Headless).
		NoSandbox(f.cfg.NoSandbox).
		Leakless(f.cfg.Leakless)

	if f.cfg.Bin != "" {
		l = l.Bin(f.cfg.Bin)
	}
	if f.cfg.DisableGPU {
		l = l.Set("disable-gpu")
	}
	if f.cfg.DisableDevShm {
		l = l.Set("disable-dev-shm-usage")
	}
	if f.cfg.DisableImages {
		l = l.Set("blink-settings", "imagesEnabled=false")
	}
	if f.cfg.WindowWidth > 0 && f.cfg.WindowHeight > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", f.cfg.WindowWidth, f.cfg.WindowHeight))
	}
	if f.userAgent != "" {
		l = l.Set("user-agent", f.userAgent)
	}
	return l
}

func (f *RodFactory) newPage(b *rod.Browser) (*rod.Page, error) {
	if f.cfg.Stealth {
		return stealth.Page(b)
	}
	return b.Page(proto.TargetCreateTarget{})
}

func (f *RodFactory) remoteSession() (Session, error) {
	root, err := f.remoteRoot()
	if err != nil {
		return nil, err
	}
	b, err := root.Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	page, err := f.newPage(b)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	return &rodSession{page: page, browser: b, cfg: f.cfg, limiter: f.limiter}, nil
}

func (f *RodFactory) remoteRoot() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.root != nil {
		return f.root, nil
	}
	b := rod.New().ControlURL(f.cfg.RemoteURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect remote browser %s: %w", f.cfg.RemoteURL, err)
	}
	f.root = b
	return b, nil
}

type rodSession struct {
	page     *rod.Page
	browser  *rod.Browser
	launcher *launcher.Launcher // nil for remote sessions
	cfg      config.Browser
	limiter  *rate.Limiter

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
	}

	page := s.page.Context(ctx).Timeout(s.cfg.PageLoadTimeout)
	defer page.CancelTimeout()

	if s.cfg.EagerLoad {
		wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
		if err := page.Navigate(url); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		wait()
		if err := page.GetContext().Err(); err != nil {
			return fmt.Errorf("wait dom content %s: %w", url, err)
		}
		return nil
	}

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (s *rodSession) WaitElement(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	if timeout <= 0 {
		timeout = s.cfg.ElementTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := s.page.Context(waitCtx)
	var (
		el  *rod.Element
		err error
	)
	if loc.Kind == XPath {
		el, err = page.ElementX(loc.Expr)
	} else {
		el, err = page.Element(loc.Expr)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s within %s: %w", ErrElementNotFound, loc, timeout, err)
		}
		return nil, fmt.Errorf("wait %s: %w", loc, err)
	}
	return &rodElement{el: el.Context(ctx)}, nil
}

func (s *rodSession) Find(ctx context.Context, loc Locator) (Element, error) {
	page := s.page.Context(ctx)
	var (
		found bool
		el    *rod.Element
		err   error
	)
	if loc.Kind == XPath {
		found, el, err = page.HasX(loc.Expr)
	} else {
		found, el, err = page.Has(loc.Expr)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, loc)
	}
	return &rodElement{el: el}, nil
}

func (s *rodSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	page := s.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if loc.Kind == XPath {
		els, err = page.ElementsX(loc.Expr)
	} else {
		els, err = page.Elements(loc.Expr)
	}
	if err != nil {
		return nil, fmt.Errorf("find all %s: %w", loc, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (s *rodSession) ScrollHeight(ctx context.Context) (int, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, fmt.Errorf("read scroll height: %w", err)
	}
	return res.Value.Int(), nil
}

func (s *rodSession) ScrollTo(ctx context.Context, y int) error {
	if _, err := s.page.Context(ctx).Eval(`(y) => window.scrollTo(0, y)`, y); err != nil {
		return fmt.Errorf("scroll to %d: %w", y, err)
	}
	return nil
}

func (s *rodSession) ScrollBy(ctx context.Context, dy int) error {
	if _, err := s.page.Context(ctx).Eval(`(dy) => window.scrollBy(0, dy)`, dy); err != nil {
		return fmt.Errorf("scroll by %d: %w", dy, err)
	}
	return nil
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	value, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

// Href reads the resolved href property rather than the raw attribute.
func (e *rodElement) Href() (string, error) {
	prop, err := e.el.Property("href")
	if err != nil {
		return "", err
	}
	if prop.Nil() {
		return "", nil
	}
	return prop.Str(), nil
}
