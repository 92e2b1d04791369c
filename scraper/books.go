package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// BookURLCollector lists the book pages linked from one author page.
type BookURLCollector struct {
	cfg     *config.Config
	factory browser.Factory
	metrics *Metrics
	logger  *slog.Logger
	matcher *parser.BookURLMatcher
	list    browser.Locator
	links   browser.Locator
}

// NewBookURLCollector builds a collector. It fails when the book URL
// pattern does not compile.
func NewBookURLCollector(cfg *config.Config, factory browser.Factory, metrics *Metrics, logger *slog.Logger) (*BookURLCollector, error) {
	matcher, err := parser.NewBookURLMatcher(cfg.BookURLPattern)
	if err != nil {
		return nil, err
	}
	return &BookURLCollector{
		cfg:     cfg,
		factory: factory,
		metrics: metrics,
		logger:  componentLogger(logger, "book-url-collector"),
		matcher: matcher,
		list:    browser.ParseLocator(cfg.Selectors.BookList),
		links:   browser.ParseLocator(cfg.Selectors.BookLinks),
	}, nil
}

// Collect opens a fresh session for authorURL, scrolls the listing until it
// stops growing and returns the matching book URLs in page order without
// duplicates. The session is released on every path.
func (c *BookURLCollector) Collect(ctx context.Context, authorURL string) ([]string, error) {
	c.metrics.IncAttempt(StageBookURLs)
	urls, err := c.collect(ctx, authorURL)
	if err != nil {
		err = classifyError(err)
		c.metrics.IncError(errorTypeLabel(err))
		return nil, err
	}
	c.metrics.AddItems(StageBookURLs, len(urls))
	c.logger.Debug("book urls collected",
		slog.String("author_url", authorURL),
		slog.Int("books", len(urls)),
	)
	return urls, nil
}

func (c *BookURLCollector) collect(ctx context.Context, authorURL string) ([]string, error) {
	session, release, err := openSession(ctx, c.factory, c.metrics, c.logger)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := session.Navigate(ctx, authorURL); err != nil {
		return nil, ErrNavigation{URL: authorURL, Err: classifyError(err)}
	}
	c.metrics.IncPage(StageBookURLs)

	if _, err := browser.WaitForElement(ctx, session, c.list, c.cfg.Browser.ElementTimeout); err != nil {
		return nil, err
	}
	if err := c.scroll(ctx, session); err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}

	links, err := session.FindAll(ctx, c.links)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(links))
	urls := make([]string, 0, len(links))
	for _, link := range links {
		href, err := link.Href()
		if err != nil || !c.matcher.Match(href) {
			continue
		}
		if _, dup := seen[href]; dup {
			continue
		}
		seen[href] = struct{}{}
		urls = append(urls, href)
	}
	return urls, nil
}

func (c *BookURLCollector) scroll(ctx context.Context, session browser.Session) error {
	sc := c.cfg.Scroll
	if c.cfg.BookScroll == config.ScrollHeight {
		_, err := browser.ScrollToBottom(ctx, session, sc.Pause, sc.MaxAttempts)
		return err
	}
	_, err := browser.SmoothScroll(ctx, session, browser.SmoothOptions{
		Increment:  sc.Increment,
		Delay:      sc.Delay,
		StallLimit: sc.StallLimit,
		MaxSteps:   sc.MaxSteps,
	})
	return err
}
