package scraper

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// AuthorCollector paginates the author listing.
type AuthorCollector struct {
	cfg       *config.Config
	factory   browser.Factory
	metrics   *Metrics
	logger    *slog.Logger
	container browser.Locator
	links     browser.Locator
}

// NewAuthorCollector builds a collector. metrics may be nil.
func NewAuthorCollector(cfg *config.Config, factory browser.Factory, metrics *Metrics, logger *slog.Logger) *AuthorCollector {
	return &AuthorCollector{
		cfg:       cfg,
		factory:   factory,
		metrics:   metrics,
		logger:    componentLogger(logger, "author-collector"),
		container: browser.ParseLocator(cfg.Selectors.AuthorContainer),
		links:     browser.ParseLocator(cfg.Selectors.AuthorLinks),
	}
}

// Collect visits listing pages 1..AuthorPages on a single session and
// returns the authors in page order, unique by URL. A page that fails is
// logged and skipped. Only a session failure or cancellation is returned,
// together with the authors gathered so far.
func (c *AuthorCollector) Collect(ctx context.Context) ([]models.Author, error) {
	session, release, err := openSession(ctx, c.factory, c.metrics, c.logger)
	if err != nil {
		c.metrics.IncError(errorTypeLabel(err))
		return nil, err
	}
	defer release()

	seen := make(map[string]struct{})
	var authors []models.Author
	for page := 1; page <= c.cfg.AuthorPages; page++ {
		if err := ctx.Err(); err != nil {
			return authors, err
		}

		pageURL := c.cfg.AuthorPageURL(page)
		found, err := c.collectPage(ctx, session, pageURL)
		if err != nil {
			err = classifyError(err)
			c.metrics.IncError(errorTypeLabel(err))
			c.logger.Warn("author page failed",
				slog.Int("page", page),
				slog.String("url", pageURL),
				slog.String("category", errorTypeLabel(err)),
				slog.Any("error", err),
			)
			continue
		}

		added := 0
		for _, a := range found {
			if _, dup := seen[a.URL]; dup {
				continue
			}
			seen[a.URL] = struct{}{}
			authors = append(authors, a)
			added++
		}
		c.metrics.AddItems(StageAuthors, added)
		c.logger.Info("author page collected",
			slog.Int("page", page),
			slog.Int("authors", added),
		)
	}
	return authors, nil
}

func (c *AuthorCollector) collectPage(ctx context.Context, session browser.Session, pageURL string) ([]models.Author, error) {
	c.metrics.IncAttempt(StageAuthors)
	if err := session.Navigate(ctx, pageURL); err != nil {
		return nil, ErrNavigation{URL: pageURL, Err: classifyError(err)}
	}
	c.metrics.IncPage(StageAuthors)

	if _, err := browser.WaitForElement(ctx, session, c.container, c.cfg.Browser.ElementTimeout); err != nil {
		return nil, err
	}
	if err := browser.Sleep(ctx, c.cfg.SettleDelay); err != nil {
		return nil, err
	}

	links, err := session.FindAll(ctx, c.links)
	if err != nil {
		return nil, err
	}

	authors := make([]models.Author, 0, len(links))
	for _, link := range links {
		href, err := link.Href()
		if err != nil {
			c.logger.Debug("author link without href", slog.Any("error", err))
			continue
		}
		name, err := link.Text()
		if err != nil {
			c.logger.Debug("author link without text", slog.String("url", href), slog.Any("error", err))
			continue
		}
		name = strings.TrimSpace(name)
		if href == "" || name == "" {
			continue
		}
		authors = append(authors, models.Author{
			ID:   parser.AuthorIDFromURL(href),
			Name: name,
			URL:  href,
		})
	}
	return authors, nil
}

// AuthorURLs returns the URL of every author, in order.
func AuthorURLs(authors []models.Author) []string {
	urls := make([]string, 0, len(authors))
	for _, a := range authors {
		urls = append(urls, a.URL)
	}
	return urls
}
