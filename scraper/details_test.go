package scraper

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 0
	cfg.RetryBackoffMax = 0
	cfg.SettleDelay = 0
	cfg.Scroll.Pause = 0
	cfg.Scroll.Delay = 0
	cfg.Scroll.StepDelay = 0
	cfg.Browser.ElementTimeout = 10 * time.Millisecond
	return cfg
}

func commentExpr(cfg *config.Config, i int) string {
	return fmt.Sprintf(cfg.Selectors.CommentCard, i)
}

// completePage renders a book page where every field is present.
func completePage(cfg *config.Config) *fakePage {
	sel := cfg.Selectors
	return &fakePage{
		single: map[string]fakeElement{
			sel.Title:   {text: "  Bela Furabar Age "},
			sel.Price:   {text: "TK. 225"},
			sel.Summary: {text: "A novel."},
		},
		multi: map[string][]fakeElement{
			commentExpr(cfg, 2): {{text: "great"}},
			commentExpr(cfg, 4): {{text: " "}, {text: "fast delivery"}},
			sel.QACards:         {{text: "Is it hardcover? Yes."}},
		},
	}
}

func TestDetailScraperRetriesWithFreshSession(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	broken := &fakePage{single: map[string]fakeElement{cfg.Selectors.Price: {text: "TK. 225"}}}
	factory := &fakeFactory{pages: []*fakePage{broken, completePage(cfg)}}

	metrics := NewMetrics()
	s := NewDetailScraper(cfg, factory, metrics, nil)
	detail, err := s.Scrape(context.Background(), "http://example.test/book/1")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if detail.Title != "Bela Furabar Age" || detail.Price != "TK. 225" {
		t.Fatalf("detail = %+v", detail)
	}

	opened, closed := factory.counts()
	if opened != 2 || closed != 2 {
		t.Fatalf("sessions opened=%d closed=%d, want 2/2", opened, closed)
	}
	if s.Retries() != 1 {
		t.Fatalf("retries = %d, want 1", s.Retries())
	}
	if got := testutil.ToFloat64(metrics.AttemptsTotal.WithLabelValues(StageDetails)); got != 2 {
		t.Fatalf("attempts metric = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("not_found")); got != 1 {
		t.Fatalf("not_found errors metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ItemsScrapedTotal.WithLabelValues(StageDetails)); got != 1 {
		t.Fatalf("items metric = %v, want 1", got)
	}
}

func TestDetailScraperExhaustedReturnsNoRecord(t *testing.T) {
	tests := []struct {
		name     string
		page     func(cfg *config.Config) *fakePage
		category string
	}{
		{
			name: "missing price",
			page: func(cfg *config.Config) *fakePage {
				return &fakePage{single: map[string]fakeElement{cfg.Selectors.Title: {text: "Title"}}}
			},
			category: "not_found",
		},
		{
			name: "empty title",
			page: func(cfg *config.Config) *fakePage {
				return &fakePage{single: map[string]fakeElement{
					cfg.Selectors.Title: {text: "   "},
					cfg.Selectors.Price: {text: "TK. 90"},
				}}
			},
			category: "not_found",
		},
		{
			name: "navigation timeout",
			page: func(*config.Config) *fakePage {
				return &fakePage{navErr: context.DeadlineExceeded}
			},
			category: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxRetries = 3
			factory := &fakeFactory{pages: []*fakePage{tt.page(cfg)}}

			s := NewDetailScraper(cfg, factory, NewMetrics(), nil)
			detail, err := s.Scrape(context.Background(), "http://example.test/book/2")
			if detail != nil {
				t.Fatalf("expected no record, got %+v", detail)
			}
			if !errors.Is(err, ErrRetriesExhausted) {
				t.Fatalf("err = %v, want ErrRetriesExhausted", err)
			}
			if got := errorTypeLabel(err); got != tt.category {
				t.Fatalf("category = %q, want %q", got, tt.category)
			}
			opened, closed := factory.counts()
			if opened != 3 || closed != 3 {
				t.Fatalf("sessions opened=%d closed=%d, want 3/3", opened, closed)
			}
			if s.Retries() != 2 {
				t.Fatalf("retries = %d, want 2", s.Retries())
			}
		})
	}
}

func TestDetailScraperSessionFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	factory := &fakeFactory{err: errors.New("chrome not found")}

	s := NewDetailScraper(cfg, factory, nil, nil)
	_, err := s.Scrape(context.Background(), "http://example.test/book/3")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if got := errorTypeLabel(err); got != "session" {
		t.Fatalf("category = %q, want session", got)
	}
}

func TestDetailScraperCanceledStopsRetrying(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 5
	factory := &fakeFactory{pages: []*fakePage{completePage(cfg)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewDetailScraper(cfg, factory, nil, nil)
	if _, err := s.Scrape(ctx, "http://example.test/book/4"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if s.Retries() != 0 {
		t.Fatalf("canceled scrape must not retry, got %d retries", s.Retries())
	}
}

func TestDetailScraperOptionalFields(t *testing.T) {
	cfg := testConfig()
	sel := cfg.Selectors
	lookupFailed := errors.New("stale element")

	tests := []struct {
		name     string
		page     func() *fakePage
		summary  models.Field[string]
		comments models.Field[[]string]
		qa       models.Field[[]string]
	}{
		{
			name:     "all found",
			page:     func() *fakePage { return completePage(cfg) },
			summary:  models.FoundField("A novel."),
			comments: models.FoundField([]string{"great", "fast delivery"}),
			qa:       models.FoundField([]string{"Is it hardcover? Yes."}),
		},
		{
			name: "summary missing defaults, empty sections are absent",
			page: func() *fakePage {
				return &fakePage{single: map[string]fakeElement{
					sel.Title: {text: "Title"},
					sel.Price: {text: "TK. 90"},
				}}
			},
			summary:  models.DefaultedField(parser.SummaryFallback),
			comments: models.AbsentField[[]string](),
			qa:       models.AbsentField[[]string](),
		},
		{
			name: "empty summary and failing lookups",
			page: func() *fakePage {
				p := completePage(cfg)
				p.single[sel.Summary] = fakeElement{text: "  "}
				p.lookErr = map[string]error{
					commentExpr(cfg, 4): lookupFailed,
					sel.QACards:         lookupFailed,
				}
				return p
			},
			summary:  models.AbsentField[string](),
			comments: models.DefaultedField([]string{"great"}),
			qa:       models.DefaultedField([]string(nil)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := &fakeFactory{pages: []*fakePage{tt.page()}}
			s := NewDetailScraper(cfg, factory, nil, nil)

			detail, err := s.Scrape(context.Background(), "http://example.test/book/5")
			if err != nil {
				t.Fatalf("optional fields must not fail the scrape: %v", err)
			}
			if !reflect.DeepEqual(detail.Summary, tt.summary) {
				t.Fatalf("summary = %+v, want %+v", detail.Summary, tt.summary)
			}
			if !reflect.DeepEqual(detail.Comments, tt.comments) {
				t.Fatalf("comments = %+v, want %+v", detail.Comments, tt.comments)
			}
			if !reflect.DeepEqual(detail.QA, tt.qa) {
				t.Fatalf("qa = %+v, want %+v", detail.QA, tt.qa)
			}
			if s.Retries() != 0 {
				t.Fatalf("optional fields must not trigger retries")
			}
		})
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 200 * time.Millisecond},
		{attempt: 1, want: 200 * time.Millisecond},
		{attempt: 2, want: 400 * time.Millisecond},
		{attempt: 3, want: 500 * time.Millisecond},
		{attempt: 64, want: 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := backoff(cfg, tt.attempt); got != tt.want {
			t.Fatalf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
