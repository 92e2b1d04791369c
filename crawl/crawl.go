// Package crawl wires the collectors, the dispatcher, the pipeline and the
// CSV files into the stages of a catalog crawl.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/dispatch"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/aluiziolira/go-scrape-catalog/storage"
)

// Stage names accepted by Runner.Run.
const (
	StageAuthors  = "authors"
	StageBookURLs = "book-urls"
	StageDetails  = "details"
	StageAll      = "all"
	StageNested   = "nested"
)

// ErrUnknownStage is returned by Run for an unsupported stage name.
var ErrUnknownStage = errors.New("crawl: unknown stage")

// Stages lists every stage name in execution order.
func Stages() []string {
	return []string{StageAuthors, StageBookURLs, StageDetails, StageAll, StageNested}
}

const progressInterval = 10 * time.Second

// Runner executes crawl stages against one session factory.
type Runner struct {
	cfg     *config.Config
	factory browser.Factory
	metrics *scraper.Metrics
	logger  *slog.Logger
}

// NewRunner builds a runner. metrics and logger may be nil.
func NewRunner(cfg *config.Config, factory browser.Factory, metrics *scraper.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg,
		factory: factory,
		metrics: metrics,
		logger:  logger,
	}
}

// Run executes stage and returns one result per stage it ran. StageAll
// chains authors, book URLs and details and stops at the first error.
func (r *Runner) Run(ctx context.Context, stage string) ([]*models.ScraperResult, error) {
	switch stage {
	case StageAuthors:
		result, _, err := r.Authors(ctx)
		return collect(result), err
	case StageBookURLs:
		result, err := r.BookURLs(ctx, nil)
		return collect(result), err
	case StageDetails:
		result, err := r.Details(ctx)
		return collect(result), err
	case StageNested:
		result, err := r.Nested(ctx, nil)
		return collect(result), err
	case StageAll:
		var results []*models.ScraperResult
		authorsResult, authors, err := r.Authors(ctx)
		results = append(results, collect(authorsResult)...)
		if err != nil {
			return results, err
		}
		urlsResult, err := r.BookURLs(ctx, scraper.AuthorURLs(authors))
		results = append(results, collect(urlsResult)...)
		if err != nil {
			return results, err
		}
		detailsResult, err := r.Details(ctx)
		results = append(results, collect(detailsResult)...)
		return results, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
}

func collect(result *models.ScraperResult) []*models.ScraperResult {
	if result == nil {
		return nil
	}
	return []*models.ScraperResult{result}
}

// Authors collects the author listing and, when SaveAuthors is set,
// rewrites the authors file with everything gathered, even on cancellation.
func (r *Runner) Authors(ctx context.Context) (*models.ScraperResult, []models.Author, error) {
	collector := scraper.NewAuthorCollector(r.cfg, r.factory, r.metrics, r.logger)
	authors, collectErr := collector.Collect(ctx)
	result := &models.ScraperResult{
		Stage:     StageAuthors,
		Total:     len(authors),
		Succeeded: len(authors),
	}
	if collectErr != nil && len(authors) == 0 {
		return result, nil, fmt.Errorf("collect authors: %w", collectErr)
	}

	if r.cfg.SaveAuthors {
		if err := storage.WriteAuthors(r.cfg.AuthorsFile, authors); err != nil {
			return result, authors, err
		}
		result.Items = len(authors)
	}
	r.logger.Info("authors collected",
		slog.Int("authors", len(authors)),
		slog.String("file", r.cfg.AuthorsFile),
	)
	return result, authors, collectErr
}

// BookURLs collects the book URLs of every author in authorURLs, or of the
// authors file when authorURLs is nil, and adds the ones not yet tracked as
// pending. Rows already in the tracking file keep their status. The file is
// left alone when no author listing could be collected.
func (r *Runner) BookURLs(ctx context.Context, authorURLs []string) (*models.ScraperResult, error) {
	authorURLs, err := r.authorURLs(authorURLs)
	if err != nil {
		return nil, err
	}
	collector, err := scraper.NewBookURLCollector(r.cfg, r.factory, r.metrics, r.logger)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var urls []string
	report := dispatch.Run(ctx, dispatch.Options{
		Workers: config.ResolveWorkers(r.cfg.AuthorWorkers),
		Name:    StageBookURLs,
		Logger:  r.logger,
	}, authorURLs, identity, collector.Collect, func(out dispatch.Outcome[string, []string]) {
		for _, u := range out.Value {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	})

	result := &models.ScraperResult{
		Stage:      StageBookURLs,
		Total:      len(authorURLs),
		Succeeded:  len(report.Succeeded),
		Skipped:    report.Skipped,
		FailedKeys: report.FailedKeys(),
	}
	if len(authorURLs) > 0 && len(report.Succeeded) == 0 {
		r.logger.Warn("no author listing collected, keeping the book url file",
			slog.Int("authors", len(authorURLs)),
			slog.Int("unsubmitted", report.Unsubmitted),
			slog.String("file", r.cfg.BookURLsFile),
		)
		return result, ctx.Err()
	}
	added, err := storage.MergeBookURLs(r.cfg.BookURLsFile, urls)
	if err != nil {
		return result, err
	}
	result.Items = added
	r.logger.Info("book urls collected",
		slog.Int("authors", len(authorURLs)),
		slog.Int("books", len(urls)),
		slog.Int("new", added),
		slog.String("file", r.cfg.BookURLsFile),
	)
	return result, ctx.Err()
}

// Details scrapes the [Offset, Offset+Limit) window of pending book URLs,
// writes the records and marks the written URLs completed.
func (r *Runner) Details(ctx context.Context) (*models.ScraperResult, error) {
	pending, err := storage.LoadPending(r.cfg.BookURLsFile)
	if err != nil {
		return nil, err
	}
	batch := window(pending, r.cfg.Offset, r.cfg.Limit)
	result := &models.ScraperResult{Stage: StageDetails, Total: len(batch)}
	if len(batch) == 0 {
		r.logger.Info("no pending book urls", slog.Int("pending", len(pending)))
		return result, nil
	}

	sink, err := r.openSink(ctx, false)
	if err != nil {
		return result, err
	}
	detailScraper := scraper.NewDetailScraper(r.cfg, r.factory, r.metrics, r.logger)

	report := dispatch.Run(ctx, dispatch.Options{
		Workers: config.ResolveWorkers(r.cfg.DetailWorkers),
		Name:    StageDetails,
		Logger:  r.logger,
	}, batch, identity, detailScraper.Scrape, func(out dispatch.Outcome[string, *models.BookDetail]) {
		if out.Err == nil {
			sink.process(out.Value)
		}
	})

	written, sinkErr := sink.close()
	result.Succeeded = len(report.Succeeded)
	result.Skipped = report.Skipped
	result.FailedKeys = report.FailedKeys()
	result.Retries = detailScraper.Retries()
	result.Items = len(written)

	marked, err := storage.MarkCompleted(r.cfg.BookURLsFile, written)
	if err != nil {
		return result, errors.Join(sinkErr, err)
	}
	r.logger.Info("book details scraped",
		slog.Int("pending", len(pending)),
		slog.Int("batch", len(batch)),
		slog.Int("written", len(written)),
		slog.Int("marked_completed", marked),
		slog.Int("unsubmitted", report.Unsubmitted),
	)
	return result, errors.Join(sinkErr, ctx.Err())
}

// Nested runs the author level pool and, per author, a book level pool
// that scrapes details directly. Book URLs already handled for another
// author are skipped. Records carry the author slug.
func (r *Runner) Nested(ctx context.Context, authorURLs []string) (*models.ScraperResult, error) {
	authorURLs, err := r.authorURLs(authorURLs)
	if err != nil {
		return nil, err
	}
	collector, err := scraper.NewBookURLCollector(r.cfg, r.factory, r.metrics, r.logger)
	if err != nil {
		return nil, err
	}
	sink, err := r.openSink(ctx, true)
	if err != nil {
		return nil, err
	}
	detailScraper := scraper.NewDetailScraper(r.cfg, r.factory, r.metrics, r.logger)
	books := dispatch.NewSeenSet()
	bookWorkers := config.ResolveWorkers(r.cfg.BookWorkers)

	type authorReport = *dispatch.Report[string, *models.BookDetail]
	scrapeAuthor := func(workCtx context.Context, authorURL string) (authorReport, error) {
		urls, err := collector.Collect(workCtx, authorURL)
		if err != nil {
			return nil, err
		}
		slug := parser.AuthorIDFromURL(authorURL)
		report := dispatch.Run(ctx, dispatch.Options{
			Workers: bookWorkers,
			Name:    StageDetails + ":" + slug,
			Logger:  r.logger,
			Seen:    books,
		}, urls, identity, detailScraper.Scrape, func(out dispatch.Outcome[string, *models.BookDetail]) {
			if out.Err == nil {
				out.Value.Author = slug
				sink.process(out.Value)
			}
		})
		return report, nil
	}

	result := &models.ScraperResult{Stage: StageNested}
	outer := dispatch.Run(ctx, dispatch.Options{
		Workers: config.ResolveWorkers(r.cfg.AuthorWorkers),
		Name:    StageNested,
		Logger:  r.logger,
	}, authorURLs, identity, scrapeAuthor, func(out dispatch.Outcome[string, authorReport]) {
		if out.Err != nil || out.Value == nil {
			return
		}
		inner := out.Value
		result.Total += inner.Submitted + inner.Skipped + inner.Unsubmitted
		result.Succeeded += len(inner.Succeeded)
		result.Skipped += inner.Skipped
		result.FailedKeys = append(result.FailedKeys, inner.FailedKeys()...)
	})
	result.FailedKeys = append(result.FailedKeys, outer.FailedKeys()...)

	written, sinkErr := sink.close()
	result.Retries = detailScraper.Retries()
	result.Items = len(written)
	r.logger.Info("nested crawl finished",
		slog.Int("authors", len(authorURLs)),
		slog.Int("authors_failed", len(outer.Failed)),
		slog.Int("books_seen", books.Len()),
		slog.Int("written", len(written)),
	)
	return result, errors.Join(sinkErr, ctx.Err())
}

func (r *Runner) authorURLs(given []string) ([]string, error) {
	if given != nil {
		return given, nil
	}
	authors, err := storage.ReadAuthors(r.cfg.AuthorsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("authors file %s not found, run the %s stage first: %w", r.cfg.AuthorsFile, StageAuthors, err)
		}
		return nil, err
	}
	return scraper.AuthorURLs(authors), nil
}

// sink feeds scraped records through the pipeline into the detail writer.
type sink struct {
	writer   storage.DetailWriter
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// openSink opens the detail output. The nested flow has no checkpoint to
// resume from, so its output with the author column is always rewritten.
func (r *Runner) openSink(ctx context.Context, withAuthor bool) (*sink, error) {
	writer, err := storage.NewDetailWriter(r.cfg.OutputFormat, r.cfg.OutputFile, storage.DetailOptions{
		Append:     r.cfg.Append && !withAuthor,
		WithAuthor: withAuthor,
	})
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	p := pipeline.NewPipeline(ctx, writer, r.cfg)
	p.Start(1)
	if r.cfg.Verbose {
		p.StartMetricsReporting(progressInterval)
	}
	return &sink{writer: writer, pipeline: p, logger: r.logger}, nil
}

func (s *sink) process(book *models.BookDetail) {
	if err := s.pipeline.Process(book); err != nil {
		s.logger.Error("pipeline process error", slog.String("url", book.URL), slog.Any("error", err))
	}
}

// close drains the pipeline and closes the writer. It returns the URLs that
// reached the output, which stay valid even when an error is returned.
func (s *sink) close() ([]string, error) {
	var errs []error
	if err := s.pipeline.Close(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline shutdown: %w", err))
	}
	written := s.pipeline.Written()
	if len(written) > 0 {
		if err := s.writer.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("output validation: %w", err))
		}
	}
	if err := s.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output: %w", err))
	}
	return written, errors.Join(errs...)
}

// window returns items[offset:offset+limit], clamped to the slice. A zero
// limit means everything after offset.
func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[max(offset, 0):]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func identity(s string) string { return s }
