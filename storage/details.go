package storage

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// DetailOptions controls how a detail file is opened.
type DetailOptions struct {
	// Append keeps existing content and skips the header when the file is
	// not empty.
	Append bool
	// WithAuthor adds the leading author column.
	WithAuthor bool
}

// DetailHeader returns the column names of the detail CSV.
func DetailHeader(withAuthor bool) []string {
	header := []string{"title", "price", "summary", "comments", "qa", "url"}
	if withAuthor {
		return append([]string{"author"}, header...)
	}
	return header
}

// openOutput opens filename for writing and reports whether it already
// holds data.
func openOutput(filename string, appendMode bool) (*os.File, bool, error) {
	if err := ensureDir(filename); err != nil {
		return nil, false, err
	}
	if appendMode {
		if info, err := os.Stat(filename); err == nil && info.Size() > 0 {
			f, err := os.OpenFile(filename, os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, false, fmt.Errorf("open %s for append: %w", filename, err)
			}
			return f, true, nil
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, false, fmt.Errorf("create %s: %w", filename, err)
	}
	return f, false, nil
}

// CSVWriter writes book details to CSV.
type CSVWriter struct {
	file       *os.File
	writer     *csv.Writer
	withAuthor bool
	mu         sync.Mutex
}

// NewCSVWriter opens filename and writes the header unless appending to a
// file that already has one.
func NewCSVWriter(filename string, opts DetailOptions) (*CSVWriter, error) {
	header := DetailHeader(opts.WithAuthor)
	if opts.Append {
		existing, err := readHeader(filename)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if existing != nil && !sameHeader(existing, header) {
			return nil, fmt.Errorf("append to %s: header %v does not match %v", filename, existing, header)
		}
	}

	f, hasData, err := openOutput(filename, opts.Append)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(f)
	if !hasData {
		if _, err := f.WriteString(bom); err != nil {
			f.Close()
			return nil, fmt.Errorf("write bom: %w", err)
		}
		if err := writer.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return &CSVWriter{
		file:       f,
		writer:     writer,
		withAuthor: opts.WithAuthor,
	}, nil
}

// Write appends books to the CSV output.
func (cw *CSVWriter) Write(books []*models.BookDetail) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, book := range books {
		record := []string{
			book.Title,
			book.Price,
			book.Summary.Value,
			parser.JoinMulti(book.Comments.Value),
			parser.JoinMulti(book.QA.Value),
			book.URL,
		}
		if cw.withAuthor {
			record = append([]string{book.Author}, record...)
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func sameHeader(a, b []string) bool {
	return slices.EqualFunc(a, b, func(x, y string) bool {
		return strings.EqualFold(strings.TrimSpace(x), y)
	})
}

// detailRecord is the JSON shape of a book detail.
type detailRecord struct {
	Author        string   `json:"author,omitempty"`
	Title         string   `json:"title"`
	Price         string   `json:"price"`
	Summary       string   `json:"summary"`
	SummaryState  string   `json:"summary_state"`
	Comments      []string `json:"comments"`
	CommentsState string   `json:"comments_state"`
	QA            []string `json:"qa"`
	QAState       string   `json:"qa_state"`
	URL           string   `json:"url"`
}

func newDetailRecord(b *models.BookDetail) detailRecord {
	return detailRecord{
		Author:        b.Author,
		Title:         b.Title,
		Price:         b.Price,
		Summary:       b.Summary.Value,
		SummaryState:  b.Summary.State.String(),
		Comments:      nonNil(b.Comments.Value),
		CommentsState: b.Comments.State.String(),
		QA:            nonNil(b.QA.Value),
		QAState:       b.QA.State.String(),
		URL:           b.URL,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON lines writer.
func NewJSONWriter(filename string, opts DetailOptions) (*JSONWriter, error) {
	f, _, err := openOutput(filename, opts.Append)
	if err != nil {
		return nil, err
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends books in JSONL format.
func (jw *JSONWriter) Write(books []*models.BookDetail) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, book := range books {
		if err := jw.encoder.Encode(newDetailRecord(book)); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}
