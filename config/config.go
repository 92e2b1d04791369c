package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Driver names accepted by Config.Driver.
const (
	DriverRod  = "rod"
	DriverHTTP = "http"
)

// Scroll strategies accepted by Config.BookScroll.
const (
	ScrollHeight = "height"
	ScrollSmooth = "smooth"
)

// Selectors holds the locators of every extracted field. A locator that
// starts with "/" or "(" is XPath, anything else is CSS.
type Selectors struct {
	AuthorContainer string `yaml:"author_container"`
	AuthorLinks     string `yaml:"author_links"`
	BookList        string `yaml:"book_list"`
	BookLinks       string `yaml:"book_links"`
	Title           string `yaml:"title"`
	Price           string `yaml:"price"`
	Summary         string `yaml:"summary"`
	// CommentCard is formatted with each card index in [CommentFirst, CommentEnd).
	CommentCard  string `yaml:"comment_card"`
	CommentFirst int    `yaml:"comment_first"`
	CommentEnd   int    `yaml:"comment_end"`
	QACards      string `yaml:"qa_cards"`
}

// Scroll holds the tuning of the page interaction helpers.
type Scroll struct {
	Pause       time.Duration `yaml:"pause"`
	MaxAttempts int           `yaml:"max_attempts"`
	Increment   int           `yaml:"increment"`
	Delay       time.Duration `yaml:"delay"`
	StallLimit  int           `yaml:"stall_limit"`
	MaxSteps    int           `yaml:"max_steps"`
	Step        int           `yaml:"step"`
	StepDelay   time.Duration `yaml:"step_delay"`
	Overshoot   int           `yaml:"overshoot"`
}

// Browser holds the session factory settings.
type Browser struct {
	Headless          bool          `yaml:"headless"`
	DisableGPU        bool          `yaml:"disable_gpu"`
	NoSandbox         bool          `yaml:"no_sandbox"`
	DisableDevShm     bool          `yaml:"disable_dev_shm_usage"`
	DisableImages     bool          `yaml:"disable_images"`
	EagerLoad         bool          `yaml:"eager_load"`
	WindowWidth       int           `yaml:"window_width"`
	WindowHeight      int           `yaml:"window_height"`
	PageLoadTimeout   time.Duration `yaml:"page_load_timeout"`
	ElementTimeout    time.Duration `yaml:"element_timeout"`
	Bin               string        `yaml:"bin"`
	RemoteURL         string        `yaml:"remote_url"`
	Stealth           bool          `yaml:"stealth"`
	Leakless          bool          `yaml:"leakless"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// Config holds scraper configuration.
type Config struct {
	BaseURL        string `yaml:"base_url"`
	AuthorListPath string `yaml:"author_list_path"`
	AuthorPages    int    `yaml:"author_pages"`
	BookURLPattern string `yaml:"book_url_pattern"`

	// Worker counts accept a number or "auto".
	AuthorWorkers string `yaml:"author_workers"`
	BookWorkers   string `yaml:"book_workers"`
	DetailWorkers string `yaml:"detail_workers"`

	// MaxRetries is the total number of attempts per book page.
	MaxRetries      int           `yaml:"max_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max"`
	SettleDelay     time.Duration `yaml:"settle_delay"`

	Offset int `yaml:"offset"`
	Limit  int `yaml:"limit"`

	AuthorsFile  string `yaml:"authors_file"`
	BookURLsFile string `yaml:"book_urls_file"`
	OutputFile   string `yaml:"output_file"`
	OutputFormat string `yaml:"output_format"` // csv, json, or dual
	Append       bool   `yaml:"append"`
	SaveAuthors  bool   `yaml:"save_authors"`

	BatchSize          int `yaml:"batch_size"`
	PipelineBufferSize int `yaml:"pipeline_buffer_size"`
	DedupeMaxSize      int `yaml:"dedupe_max_size"`

	Driver           string `yaml:"driver"` // rod or http
	BookScroll       string `yaml:"book_scroll"`
	UserAgent        string `yaml:"user_agent"`
	RespectRobotsTxt bool   `yaml:"respect_robots_txt"`

	Browser   Browser   `yaml:"browser"`
	Scroll    Scroll    `yaml:"scroll"`
	Selectors Selectors `yaml:"selectors"`

	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     bool   `yaml:"verbose"`
}

// DefaultConfig returns defaults matching the catalog the scraper was built for.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://www.rokomari.com",
		AuthorListPath:     "/book/authors/",
		AuthorPages:        2,
		BookURLPattern:     `/book/\d+`,
		AuthorWorkers:      "2",
		BookWorkers:        "2",
		DetailWorkers:      "2",
		MaxRetries:         2,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		SettleDelay:        time.Second,
		Offset:             0,
		Limit:              0,
		AuthorsFile:        "authors.csv",
		BookURLsFile:       "book_urls.csv",
		OutputFile:         "books_data.csv",
		OutputFormat:       "csv",
		Append:             true,
		SaveAuthors:        true,
		BatchSize:          16,
		PipelineBufferSize: 256,
		DedupeMaxSize:      100000,
		Driver:             DriverRod,
		BookScroll:         ScrollSmooth,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Browser: Browser{
			Headless:        true,
			DisableGPU:      true,
			NoSandbox:       true,
			DisableDevShm:   true,
			DisableImages:   true,
			EagerLoad:       true,
			WindowWidth:     1920,
			WindowHeight:    1080,
			PageLoadTimeout: 30 * time.Second,
			ElementTimeout:  10 * time.Second,
			Leakless:        true,
		},
		Scroll: Scroll{
			Pause:       500 * time.Millisecond,
			MaxAttempts: 10,
			Increment:   300,
			Delay:       50 * time.Millisecond,
			StallLimit:  5,
			MaxSteps:    2000,
			Step:        60,
			StepDelay:   200 * time.Millisecond,
			Overshoot:   300,
		},
		Selectors: Selectors{
			AuthorContainer: "#author-list",
			AuthorLinks:     `//*[@id="author-list"]/div[3]/section/div[2]/div/a`,
			BookList:        ".book-list-wrapper",
			BookLinks:       ".book-list-wrapper a",
			Title:           `//*[@id="ts--desktop-details-book-main-info"]/div[1]/h1`,
			Price:           ".sell-price",
			Summary:         `//*[@id="rokomariBody"]/div[3]/div[5]/div[2]/div[1]/div`,
			CommentCard:     `//*[@id="rokomariBody"]/div[3]/div[6]/div[2]/div/div/div/div[%d]/div[2]/div/div`,
			CommentFirst:    2,
			CommentEnd:      7,
			QACards:         "#ts--common-ques-ans-card",
		},
	}
}

// AuthorPageURL returns the listing URL of page n (1-based).
func (c *Config) AuthorPageURL(n int) string {
	return fmt.Sprintf("%s%s?page=%d", strings.TrimRight(c.BaseURL, "/"), c.AuthorListPath, n)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.AuthorPages <= 0 {
		return fmt.Errorf("author pages must be positive")
	}
	for name, value := range map[string]string{
		"author workers": c.AuthorWorkers,
		"book workers":   c.BookWorkers,
		"detail workers": c.DetailWorkers,
	} {
		if _, err := ParseWorkers(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay cannot be negative")
	}
	if c.Offset < 0 {
		return fmt.Errorf("offset cannot be negative")
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	if c.AuthorsFile == "" || c.BookURLsFile == "" || c.OutputFile == "" {
		return fmt.Errorf("output file paths cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.Driver != DriverRod && c.Driver != DriverHTTP {
		return fmt.Errorf("driver must be %s or %s", DriverRod, DriverHTTP)
	}
	if c.BookScroll != ScrollHeight && c.BookScroll != ScrollSmooth {
		return fmt.Errorf("book scroll must be %s or %s", ScrollHeight, ScrollSmooth)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Browser.PageLoadTimeout <= 0 {
		return fmt.Errorf("page load timeout must be positive")
	}
	if c.Browser.ElementTimeout <= 0 {
		return fmt.Errorf("element timeout must be positive")
	}
	if c.Browser.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.Scroll.MaxAttempts <= 0 || c.Scroll.StallLimit <= 0 {
		return fmt.Errorf("scroll attempt limits must be positive")
	}
	if c.Scroll.Increment <= 0 || c.Scroll.Step <= 0 {
		return fmt.Errorf("scroll increments must be positive")
	}
	if c.Selectors.Title == "" || c.Selectors.Price == "" {
		return fmt.Errorf("title and price selectors are required")
	}
	if c.Selectors.CommentEnd < c.Selectors.CommentFirst {
		return fmt.Errorf("comment card range is inverted")
	}
	if verbs := strings.ReplaceAll(c.Selectors.CommentCard, "%%", ""); strings.Count(verbs, "%") != 1 || !strings.Contains(verbs, "%d") {
		return fmt.Errorf("comment card selector %q needs exactly one %%d for the card index", c.Selectors.CommentCard)
	}

	return nil
}
