package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// DetailWriter is implemented by every book detail output.
type DetailWriter interface {
	Write(books []*models.BookDetail) error
	Close() error
	Validate() error
}

// DualWriter outputs to both CSV and JSON lines.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// NewDualWriter creates a writer for both formats.
func NewDualWriter(csvFilename, jsonFilename string, opts DetailOptions) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename, opts)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename, opts)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create json writer: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

func (dw *DualWriter) Write(books []*models.BookDetail) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(books); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	if err := dw.jsonWriter.Write(books); err != nil {
		return fmt.Errorf("json write: %w", err)
	}
	return nil
}

func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("csv close: %w", err))
	}
	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("json close: %w", err))
	}
	return errors.Join(errs...)
}

func (dw *DualWriter) Validate() error {
	return errors.Join(dw.csvWriter.Validate(), dw.jsonWriter.Validate())
}

// JSONPath derives the JSON lines filename used next to a CSV output.
func JSONPath(csvFilename string) string {
	return strings.TrimSuffix(csvFilename, ".csv") + ".jsonl"
}

// NewDetailWriter opens the book detail output for format csv, json or dual.
func NewDetailWriter(format, filename string, opts DetailOptions) (DetailWriter, error) {
	var (
		w   DetailWriter
		err error
	)
	switch strings.ToLower(format) {
	case "json":
		w, err = NewJSONWriter(filename, opts)
	case "csv", "":
		w, err = NewCSVWriter(filename, opts)
	case "dual":
		w, err = NewDualWriter(filename, JSONPath(filename), opts)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}
