package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

func TestAuthorsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authors.csv")
	authors := []models.Author{
		{ID: "humayun-ahmed", Name: "হুমায়ূন আহমেদ", URL: "https://www.rokomari.com/book/author/1/humayun-ahmed"},
		{ID: "77", Name: "Author, With Comma", URL: "https://www.rokomari.com/book/author/77"},
		{ID: "quote", Name: `Say "hi"`, URL: "https://www.rokomari.com/book/author/9/quote"},
	}

	if err := WriteAuthors(path, authors); err != nil {
		t.Fatalf("write authors: %v", err)
	}
	got, err := ReadAuthors(path)
	if err != nil {
		t.Fatalf("read authors: %v", err)
	}
	if !reflect.DeepEqual(got, authors) {
		t.Fatalf("round trip = %+v, want %+v", got, authors)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !strings.HasPrefix(string(raw), bom+"author_id,author_name,author_url\n") {
		t.Fatalf("file should start with BOM and header, got %q", string(raw[:40]))
	}

	if err := WriteAuthors(path, authors[:1]); err != nil {
		t.Fatalf("rewrite authors: %v", err)
	}
	got, _ = ReadAuthors(path)
	if len(got) != 1 {
		t.Fatalf("write must truncate, got %d authors", len(got))
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadPending(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "mixed statuses",
			body: bom + "Book URL,Status\nA,Pending\nB,Completed\nC,Pending\n",
			want: []string{"A", "C"},
		},
		{
			name: "empty status and case folding",
			body: "Book URL,Status\nA,\nB,COMPLETED\nC,pending\nD, completed \n",
			want: []string{"A", "C"},
		},
		{
			name: "reordered columns",
			body: "Status,Note,Book URL\nCompleted,x,A\nPending,y,B\n",
			want: []string{"B"},
		},
		{
			name: "missing status column",
			body: "Book URL\nA\nB\n",
			want: []string{"A", "B"},
		},
		{
			name: "blank url rows are ignored",
			body: "Book URL,Status\n ,Pending\nA,Pending\n",
			want: []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "book_urls.csv")
			writeFile(t, path, tt.body)
			got, err := LoadPending(path)
			if err != nil {
				t.Fatalf("load pending: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("pending = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadPendingMissingURLColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book_urls.csv")
	writeFile(t, path, "url,Status\nA,Pending\n")
	if _, err := LoadPending(path); err == nil {
		t.Fatalf("expected error for missing Book URL column")
	}
}

func TestMarkCompletedPreservesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book_urls.csv")
	writeFile(t, path, bom+"Book URL,Status,Note\nA,Pending,first\nB,Completed,second\nC,Pending,third\n")

	updated, err := MarkCompleted(path, []string{"A", "C"})
	if err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if updated != 2 {
		t.Fatalf("updated = %d, want 2", updated)
	}

	header, rows, err := readCSV(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !reflect.DeepEqual(header, []string{"Book URL", "Status", "Note"}) {
		t.Fatalf("header = %v", header)
	}
	want := [][]string{
		{"A", "Completed", "first"},
		{"B", "Completed", "second"},
		{"C", "Completed", "third"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}

	pending, err := LoadPending(path)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending after mark = %v (%v)", pending, err)
	}
}

func TestMarkCompletedLeavesOthersPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book_urls.csv")
	if err := WriteBookURLs(path, []string{"A", "B", "C"}); err != nil {
		t.Fatalf("write book urls: %v", err)
	}
	if _, err := MarkCompleted(path, []string{"B", "unknown"}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	records, err := LoadBookURLs(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []models.BookURL{
		{URL: "A", Status: models.StatusPending},
		{URL: "B", Status: models.StatusCompleted},
		{URL: "C", Status: models.StatusPending},
	}
	if !reflect.DeepEqual(records, want) {
		t.Fatalf("records = %v, want %v", records, want)
	}

	if n, err := MarkCompleted(path, nil); err != nil || n != 0 {
		t.Fatalf("empty mark = %d (%v)", n, err)
	}
}

func TestMergeBookURLsKeepsExistingRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book_urls.csv")
	writeFile(t, path, bom+"Book URL,Status,Note\nB,Completed,second\nA,Pending,first\n")

	added, err := MergeBookURLs(path, []string{"A", " C ", "B", "", "D", "C"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	header, rows, err := readCSV(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !reflect.DeepEqual(header, []string{"Book URL", "Status", "Note"}) {
		t.Fatalf("header = %v", header)
	}
	want := [][]string{
		{"B", "Completed", "second"},
		{"A", "Pending", "first"},
		{"C", "Pending", ""},
		{"D", "Pending", ""},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}

	if n, err := MergeBookURLs(path, []string{"A", "B"}); err != nil || n != 0 {
		t.Fatalf("second merge = %d (%v), want nothing added", n, err)
	}
}

func TestMergeBookURLsCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "book_urls.csv")

	added, err := MergeBookURLs(path, []string{"A", "B"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}
	pending, err := LoadPending(path)
	if err != nil || !reflect.DeepEqual(pending, []string{"A", "B"}) {
		t.Fatalf("pending = %v (%v)", pending, err)
	}
}

func TestMergeBookURLsMissingURLColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book_urls.csv")
	writeFile(t, path, "url,Status\nA,Pending\n")
	if _, err := MergeBookURLs(path, []string{"B"}); err == nil {
		t.Fatalf("expected error for missing Book URL column")
	}
}

func sampleBook(url string) *models.BookDetail {
	return &models.BookDetail{
		URL:      url,
		Title:    "Bela Furabar Age",
		Price:    "TK. 225",
		Summary:  models.DefaultedField("N/A"),
		Comments: models.FoundField([]string{"great", "fast delivery"}),
		QA:       models.AbsentField[[]string](),
		Author:   "humayun-ahmed",
	}
}

func TestCSVWriterAppendSkipsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "books_data.csv")

	for i, url := range []string{"http://example.test/book/1", "http://example.test/book/2"} {
		w, err := NewCSVWriter(path, DetailOptions{Append: true})
		if err != nil {
			t.Fatalf("open writer %d: %v", i, err)
		}
		if err := w.Write([]*models.BookDetail{sampleBook(url)}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if err := w.Validate(); err != nil {
			t.Fatalf("validate %d: %v", i, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}

	header, rows, err := readCSV(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !reflect.DeepEqual(header, DetailHeader(false)) {
		t.Fatalf("header = %v", header)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (header written once)", len(rows))
	}
	if rows[0][3] != "great ||| fast delivery" || rows[0][2] != "N/A" || rows[0][4] != "" {
		t.Fatalf("row = %v", rows[0])
	}

	if _, err := NewCSVWriter(path, DetailOptions{Append: true, WithAuthor: true}); err == nil {
		t.Fatalf("expected header mismatch error")
	}
}

func TestCSVWriterTruncatesWithoutAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books_data.csv")
	for range 2 {
		w, err := NewCSVWriter(path, DetailOptions{WithAuthor: true})
		if err != nil {
			t.Fatalf("open writer: %v", err)
		}
		if err := w.Write([]*models.BookDetail{sampleBook("http://example.test/book/1")}); err != nil {
			t.Fatalf("write: %v", err)
		}
		w.Close()
	}

	header, rows, err := readCSV(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if header[0] != "author" || len(rows) != 1 || rows[0][0] != "humayun-ahmed" {
		t.Fatalf("header=%v rows=%v", header, rows)
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.jsonl")
	w, err := NewJSONWriter(path, DetailOptions{})
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := w.Write([]*models.BookDetail{sampleBook("http://example.test/book/1")}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatalf("expected a json line")
	}
	var rec detailRecord
	if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if rec.SummaryState != "defaulted" || rec.QAState != "absent" || rec.CommentsState != "found" {
		t.Fatalf("states = %s/%s/%s", rec.SummaryState, rec.CommentsState, rec.QAState)
	}
	if rec.QA == nil || len(rec.QA) != 0 {
		t.Fatalf("absent qa should encode as empty list, got %v", rec.QA)
	}
}

func TestNewDetailWriterDual(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books_data.csv")
	w, err := NewDetailWriter("dual", path, DetailOptions{})
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := w.Write([]*models.BookDetail{sampleBook("http://example.test/book/1")}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(JSONPath(path)); err != nil {
		t.Fatalf("json output missing: %v", err)
	}

	if _, err := NewDetailWriter("xml", path, DetailOptions{}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
