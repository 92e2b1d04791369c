// Package models defines data structures for the scraper.
package models

import "strings"

// Author is one entry of the catalog's author listing.
type Author struct {
	ID   string `csv:"author_id" json:"author_id"`
	Name string `csv:"author_name" json:"author_name"`
	URL  string `csv:"author_url" json:"author_url"`
}

// Status is the resume checkpoint of a book URL.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
)

// ParseStatus maps a status cell to a Status. Anything that is not
// "completed" (case-insensitive), including an empty cell, is pending.
func ParseStatus(s string) Status {
	if strings.EqualFold(strings.TrimSpace(s), string(StatusCompleted)) {
		return StatusCompleted
	}
	return StatusPending
}

// BookURL is a row of the book URL tracking file.
type BookURL struct {
	URL    string `csv:"Book URL" json:"url"`
	Status Status `csv:"Status" json:"status"`
}

// FieldState tells how an optional field was obtained.
type FieldState int

const (
	// Absent means the lookup succeeded but matched nothing.
	Absent FieldState = iota
	// Found means the lookup matched and produced a value.
	Found
	// Defaulted means the lookup failed and a fallback value was used.
	Defaulted
)

func (s FieldState) String() string {
	switch s {
	case Found:
		return "found"
	case Defaulted:
		return "defaulted"
	default:
		return "absent"
	}
}

// Field carries a best-effort extracted value together with how it was obtained.
type Field[T any] struct {
	Value T
	State FieldState
}

// FoundField wraps a value located on the page.
func FoundField[T any](v T) Field[T] {
	return Field[T]{Value: v, State: Found}
}

// DefaultedField wraps a fallback value used after a failed lookup.
func DefaultedField[T any](v T) Field[T] {
	return Field[T]{Value: v, State: Defaulted}
}

// AbsentField is the zero value marked as genuinely missing.
func AbsentField[T any]() Field[T] {
	return Field[T]{State: Absent}
}

// BookDetail is the record extracted from a single book page.
type BookDetail struct {
	URL      string
	Title    string
	Price    string
	Summary  Field[string]
	Comments Field[[]string]
	QA       Field[[]string]
	Author   string
}

// ScraperResult holds the overall result of one pipeline stage.
type ScraperResult struct {
	Stage      string
	Total      int
	Succeeded  int
	Skipped    int
	FailedKeys []string
	Retries    int
	// Items counts the records the stage persisted.
	Items      int
}
