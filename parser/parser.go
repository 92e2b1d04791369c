package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// MultiValueSeparator joins multi-valued fields into a single CSV cell.
const MultiValueSeparator = " ||| "

// SummaryFallback is stored when the summary lookup fails.
const SummaryFallback = "N/A"

// ValidateBook ensures the scraper captured the required fields.
func ValidateBook(b *models.BookDetail) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.URL) == "" {
		return fmt.Errorf("book missing url")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book missing title for %s", b.URL)
	}
	if strings.TrimSpace(b.Price) == "" {
		return fmt.Errorf("book missing price for %s", b.URL)
	}
	return nil
}

// NormalizePrice trims the price text and joins the currency marker and
// amount with a single space; the page splits them across lines. The marker
// is kept since the catalog mixes several.
func NormalizePrice(price string) string {
	return strings.Join(strings.Fields(price), " ")
}

// AuthorIDFromURL returns the last path segment of the author URL.
func AuthorIDFromURL(raw string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if u, err := url.Parse(trimmed); err == nil && u.Path != "" {
		trimmed = strings.TrimRight(u.Path, "/")
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// BookURLMatcher reports whether a link points at a book detail page.
type BookURLMatcher struct {
	re *regexp.Regexp
}

// NewBookURLMatcher compiles the book URL pattern.
func NewBookURLMatcher(pattern string) (*BookURLMatcher, error) {
	if pattern == "" {
		pattern = "/book/"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile book url pattern: %w", err)
	}
	return &BookURLMatcher{re: re}, nil
}

// Match reports whether href is a book URL.
func (m *BookURLMatcher) Match(href string) bool {
	if href == "" {
		return false
	}
	return m.re.MatchString(href)
}

// JoinMulti flattens a multi-valued field into a single cell.
func JoinMulti(values []string) string {
	return strings.Join(values, MultiValueSeparator)
}

// SplitMulti reverses JoinMulti, tolerating separators without spaces.
func SplitMulti(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	parts := strings.Split(cell, strings.TrimSpace(MultiValueSeparator))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
