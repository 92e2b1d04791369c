package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

const (
	bookURLColumn = "Book URL"
	statusColumn  = "Status"
)

// WriteBookURLs replaces path with urls, all marked pending.
func WriteBookURLs(path string, urls []string) error {
	rows := make([][]string, 0, len(urls))
	for _, u := range urls {
		rows = append(rows, []string{u, string(models.StatusPending)})
	}
	if err := writeCSV(path, []string{bookURLColumn, statusColumn}, rows); err != nil {
		return fmt.Errorf("write book urls: %w", err)
	}
	return nil
}

// MergeBookURLs adds the URLs missing from the tracking file at path as
// pending rows below the existing ones, which keep their status, order and
// extra columns. A missing file is created as by WriteBookURLs. It returns
// the number of rows added.
func MergeBookURLs(path string, urls []string) (int, error) {
	header, rows, err := readCSV(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && header == nil) {
		if err := WriteBookURLs(path, urls); err != nil {
			return 0, err
		}
		return len(urls), nil
	}
	if err != nil {
		return 0, fmt.Errorf("merge book urls: %w", err)
	}
	urlCol := columnIndex(header, bookURLColumn)
	if urlCol < 0 {
		return 0, fmt.Errorf("merge book urls: %s has no %q column", path, bookURLColumn)
	}
	statusCol := columnIndex(header, statusColumn)
	if statusCol < 0 {
		header = append(header, statusColumn)
		statusCol = len(header) - 1
	}

	known := make(map[string]struct{}, len(rows)+len(urls))
	for _, row := range rows {
		known[cell(row, urlCol)] = struct{}{}
	}
	added := 0
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := known[u]; ok {
			continue
		}
		known[u] = struct{}{}
		row := make([]string, len(header))
		row[urlCol] = u
		row[statusCol] = string(models.StatusPending)
		rows = append(rows, row)
		added++
	}
	if added == 0 {
		return 0, nil
	}

	if err := writeCSV(path, header, rows); err != nil {
		return 0, fmt.Errorf("merge book urls: %w", err)
	}
	return added, nil
}

// LoadBookURLs reads every row of the tracking file. A missing or empty
// status cell counts as pending.
func LoadBookURLs(path string) ([]models.BookURL, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("load book urls: %w", err)
	}
	urlCol := columnIndex(header, bookURLColumn)
	if urlCol < 0 {
		return nil, fmt.Errorf("load book urls: %s has no %q column", path, bookURLColumn)
	}
	statusCol := columnIndex(header, statusColumn)

	out := make([]models.BookURL, 0, len(rows))
	for _, row := range rows {
		u := cell(row, urlCol)
		if u == "" {
			continue
		}
		out = append(out, models.BookURL{URL: u, Status: models.ParseStatus(cell(row, statusCol))})
	}
	return out, nil
}

// LoadPending returns the pending URLs in file order.
func LoadPending(path string) ([]string, error) {
	records, err := LoadBookURLs(path)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, r := range records {
		if r.Status == models.StatusPending {
			pending = append(pending, r.URL)
		}
	}
	return pending, nil
}

// MarkCompleted flips the status of the given URLs to Completed and rewrites
// the file. Row order, other rows and extra columns are preserved. It returns
// the number of rows updated.
func MarkCompleted(path string, urls []string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	done := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		done[strings.TrimSpace(u)] = struct{}{}
	}

	header, rows, err := readCSV(path)
	if err != nil {
		return 0, fmt.Errorf("mark completed: %w", err)
	}
	urlCol := columnIndex(header, bookURLColumn)
	if urlCol < 0 {
		return 0, fmt.Errorf("mark completed: %s has no %q column", path, bookURLColumn)
	}
	statusCol := columnIndex(header, statusColumn)
	if statusCol < 0 {
		header = append(header, statusColumn)
		statusCol = len(header) - 1
	}

	updated := 0
	for i, row := range rows {
		if _, ok := done[cell(row, urlCol)]; !ok {
			continue
		}
		for len(row) <= statusCol {
			row = append(row, "")
		}
		row[statusCol] = string(models.StatusCompleted)
		rows[i] = row
		updated++
	}

	if err := writeCSV(path, header, rows); err != nil {
		return 0, fmt.Errorf("mark completed: %w", err)
	}
	return updated, nil
}
