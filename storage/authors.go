package storage

import (
	"fmt"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

var authorHeader = []string{"author_id", "author_name", "author_url"}

// WriteAuthors replaces path with the given authors.
func WriteAuthors(path string, authors []models.Author) error {
	rows := make([][]string, 0, len(authors))
	for _, a := range authors {
		rows = append(rows, []string{a.ID, a.Name, a.URL})
	}
	if err := writeCSV(path, authorHeader, rows); err != nil {
		return fmt.Errorf("write authors: %w", err)
	}
	return nil
}

// ReadAuthors loads an authors file in row order.
func ReadAuthors(path string) ([]models.Author, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("read authors: %w", err)
	}
	idCol := columnIndex(header, "author_id")
	nameCol := columnIndex(header, "author_name")
	urlCol := columnIndex(header, "author_url")
	if urlCol < 0 {
		return nil, fmt.Errorf("read authors: %s has no author_url column", path)
	}

	authors := make([]models.Author, 0, len(rows))
	for _, row := range rows {
		a := models.Author{
			ID:   cell(row, idCol),
			Name: cell(row, nameCol),
			URL:  cell(row, urlCol),
		}
		if a.URL == "" {
			continue
		}
		authors = append(authors, a)
	}
	return authors, nil
}
