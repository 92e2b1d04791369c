package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

type attemptState int

const (
	attempting attemptState = iota
	succeeded
	exhausted
)

// DetailScraper extracts one book page per call, retrying with a fresh
// session per attempt.
type DetailScraper struct {
	cfg     *config.Config
	factory browser.Factory
	metrics *Metrics
	logger  *slog.Logger

	title       browser.Locator
	price       browser.Locator
	summary     browser.Locator
	commentCard browser.Locator
	qa          browser.Locator

	retries atomic.Int64
}

// NewDetailScraper builds a scraper. metrics may be nil.
func NewDetailScraper(cfg *config.Config, factory browser.Factory, metrics *Metrics, logger *slog.Logger) *DetailScraper {
	sel := cfg.Selectors
	return &DetailScraper{
		cfg:         cfg,
		factory:     factory,
		metrics:     metrics,
		logger:      componentLogger(logger, "detail-scraper"),
		title:       browser.ParseLocator(sel.Title),
		price:       browser.ParseLocator(sel.Price),
		summary:     browser.ParseLocator(sel.Summary),
		commentCard: browser.ParseLocator(sel.CommentCard),
		qa:          browser.ParseLocator(sel.QACards),
	}
}

// Retries returns how many retry attempts have been scheduled so far.
func (s *DetailScraper) Retries() int {
	return int(s.retries.Load())
}

// Scrape runs up to MaxRetries attempts against bookURL and returns the
// first complete record. When every attempt fails it returns a nil record
// and an error wrapping ErrRetriesExhausted and the last failure.
func (s *DetailScraper) Scrape(ctx context.Context, bookURL string) (*models.BookDetail, error) {
	attempts := max(1, s.cfg.MaxRetries)

	var (
		detail  *models.BookDetail
		lastErr error
		attempt int
	)
	for state := attempting; state == attempting; {
		attempt++
		detail, lastErr = s.attempt(ctx, bookURL)
		switch {
		case lastErr == nil:
			state = succeeded
		case attempt >= attempts || errors.Is(lastErr, context.Canceled):
			state = exhausted
		default:
			s.retries.Add(1)
			s.metrics.IncRetries()
			delay := backoff(s.cfg, attempt)
			s.logger.Warn("detail attempt failed",
				slog.String("url", bookURL),
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", delay),
				slog.String("category", errorTypeLabel(lastErr)),
				slog.Any("error", lastErr),
			)
			if err := browser.Sleep(ctx, delay); err != nil {
				lastErr = err
				state = exhausted
			}
		}
	}

	if lastErr != nil {
		s.logger.Error("detail scrape gave up",
			slog.String("url", bookURL),
			slog.Int("attempts", attempt),
			slog.String("category", errorTypeLabel(lastErr)),
			slog.Any("error", lastErr),
		)
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, lastErr)
	}
	s.metrics.AddItems(StageDetails, 1)
	return detail, nil
}

func (s *DetailScraper) attempt(ctx context.Context, bookURL string) (*models.BookDetail, error) {
	s.metrics.IncAttempt(StageDetails)
	detail, err := s.extract(ctx, bookURL)
	if err != nil {
		err = classifyError(err)
		s.metrics.IncError(errorTypeLabel(err))
		return nil, err
	}
	return detail, nil
}

func (s *DetailScraper) extract(ctx context.Context, bookURL string) (*models.BookDetail, error) {
	session, release, err := openSession(ctx, s.factory, s.metrics, s.logger)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := session.Navigate(ctx, bookURL); err != nil {
		return nil, ErrNavigation{URL: bookURL, Err: classifyError(err)}
	}
	s.metrics.IncPage(StageDetails)

	sc := s.cfg.Scroll
	if _, err := browser.StepScroll(ctx, session, sc.Step, sc.StepDelay, sc.Overshoot); err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}

	title, err := s.required(ctx, session, s.title, "title")
	if err != nil {
		return nil, err
	}
	price, err := s.required(ctx, session, s.price, "price")
	if err != nil {
		return nil, err
	}

	return &models.BookDetail{
		URL:      bookURL,
		Title:    title,
		Price:    price,
		Summary:  s.extractSummary(ctx, session, bookURL),
		Comments: s.extractComments(ctx, session, bookURL),
		QA:       s.extractQA(ctx, session, bookURL),
	}, nil
}

// required waits for loc and fails the attempt when it is missing or empty.
func (s *DetailScraper) required(ctx context.Context, session browser.Session, loc browser.Locator, field string) (string, error) {
	el, err := browser.WaitForElement(ctx, session, loc, s.cfg.Browser.ElementTimeout)
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, classifyError(err))
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("%s text: %w", field, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNotFound{Err: fmt.Errorf("%s is empty", field)}
	}
	return text, nil
}

func (s *DetailScraper) extractSummary(ctx context.Context, session browser.Session, bookURL string) models.Field[string] {
	if s.summary.Expr == "" {
		return models.AbsentField[string]()
	}
	el, err := session.Find(ctx, s.summary)
	if err != nil {
		s.logOptional("summary", bookURL, err)
		return models.DefaultedField(parser.SummaryFallback)
	}
	text, err := el.Text()
	if err != nil {
		s.logOptional("summary", bookURL, err)
		return models.DefaultedField(parser.SummaryFallback)
	}
	if text = strings.TrimSpace(text); text == "" {
		return models.AbsentField[string]()
	}
	return models.FoundField(text)
}

// extractComments walks the comment card indices. The first failing lookup
// ends the walk and keeps what was gathered before it.
func (s *DetailScraper) extractComments(ctx context.Context, session browser.Session, bookURL string) models.Field[[]string] {
	if s.commentCard.Expr == "" {
		return models.AbsentField[[]string]()
	}
	var comments []string
	for i := s.cfg.Selectors.CommentFirst; i < s.cfg.Selectors.CommentEnd; i++ {
		els, err := session.FindAll(ctx, s.commentCard.Indexed(i))
		if err == nil {
			var texts []string
			texts, err = collectTexts(els)
			comments = append(comments, texts...)
		}
		if err != nil {
			s.logOptional("comments", bookURL, err)
			return models.DefaultedField(comments)
		}
	}
	if len(comments) == 0 {
		return models.AbsentField[[]string]()
	}
	return models.FoundField(comments)
}

func (s *DetailScraper) extractQA(ctx context.Context, session browser.Session, bookURL string) models.Field[[]string] {
	if s.qa.Expr == "" {
		return models.AbsentField[[]string]()
	}
	els, err := session.FindAll(ctx, s.qa)
	if err != nil {
		s.logOptional("qa", bookURL, err)
		return models.DefaultedField([]string(nil))
	}
	texts, err := collectTexts(els)
	if err != nil {
		s.logOptional("qa", bookURL, err)
		return models.DefaultedField(texts)
	}
	if len(texts) == 0 {
		return models.AbsentField[[]string]()
	}
	return models.FoundField(texts)
}

func (s *DetailScraper) logOptional(field, bookURL string, err error) {
	s.logger.Debug("optional field lookup failed",
		slog.String("field", field),
		slog.String("url", bookURL),
		slog.Any("error", err),
	)
}

// collectTexts returns the non-empty trimmed texts of els, stopping at the
// first element whose text cannot be read.
func collectTexts(els []browser.Element) ([]string, error) {
	var out []string
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			return out, err
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}
