// Package pipeline sits between the detail scrapers and the output writer:
// it validates records, drops duplicate URLs and writes in batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for pending writes.
var drainTimeout = 30 * time.Second

// Drop reasons reported in Stats.Dropped.
const (
	DropInvalid   = "invalid_record"
	DropDuplicate = "duplicate_url"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(books []*models.BookDetail) error
	Close() error
	Validate() error
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Processed int64
	Written   int
	Dropped   map[string]int
}

// Pipeline coordinates validation, de-duplication, and output writing.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	bookCh    chan *models.BookDetail
	batchSize int
	logger    *slog.Logger
	seen      *lru.Cache[string, struct{}]

	wg sync.WaitGroup

	// mu guards closed and the closing of bookCh and stopped.
	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}

	errMu sync.Mutex
	err   error

	statsMu   sync.Mutex
	processed int64
	dropped   map[string]int
	written   []string
}

// NewPipeline builds a pipeline sized from cfg. ctx bounds the progress
// reporter only; queued records are always drained by Close.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	bufferSize := cfg.PipelineBufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	dedupeSize := cfg.DedupeMaxSize
	if dedupeSize <= 0 {
		dedupeSize = 100000
	}
	// lru.New only fails on a non-positive size.
	seen, _ := lru.New[string, struct{}](dedupeSize)

	return &Pipeline{
		ctx:       ctx,
		writer:    writer,
		bookCh:    make(chan *models.BookDetail, bufferSize),
		batchSize: batchSize,
		logger:    slog.Default().With("component", "pipeline"),
		seen:      seen,
		stopped:   make(chan struct{}),
		dropped:   make(map[string]int),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	for range max(workers, 1) {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues books for downstream processing. It blocks while the
// buffer is full and fails once the pipeline is closed or a write failed.
func (p *Pipeline) Process(books ...*models.BookDetail) error {
	if err := p.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPipelineClosed
	}
	for _, book := range books {
		if book != nil {
			p.bookCh <- book
		}
	}
	return nil
}

// Close stops accepting records, waits for queued ones to be written and
// returns the first write error.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.bookCh)
		close(p.stopped)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return p.Err()
	case <-time.After(drainTimeout):
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}
}

// Err returns the first write error.
func (p *Pipeline) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Written returns the URLs of records that reached the writer.
func (p *Pipeline) Written() []string {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	out := make([]string, len(p.written))
	copy(out, p.written)
	return out
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return Stats{
		Processed: p.processed,
		Written:   len(p.written),
		Dropped:   maps.Clone(p.dropped),
	}
}

// StartMetricsReporting logs the counters every interval until Close or
// until ctx is done.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := p.Stats()
				p.logger.Info("pipeline progress",
					slog.Int64("processed", stats.Processed),
					slog.Int("written", stats.Written),
					slog.Any("dropped", stats.Dropped),
				)
			case <-p.stopped:
				return
			case <-p.ctx.Done():
				return
			}
		}
	}()
}

// worker batches records into the writer. After a write error it keeps
// draining so that producers never block, but writes nothing more.
func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.BookDetail, 0, p.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if p.Err() == nil {
			if err := p.writer.Write(batch); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
			} else {
				p.recordWritten(batch)
			}
		}
		batch = batch[:0]
	}

	for book := range p.bookCh {
		if prepared := p.prepare(book); prepared != nil {
			batch = append(batch, prepared)
		}
		if len(batch) >= p.batchSize {
			flush()
		}
	}
	flush()
}

func (p *Pipeline) prepare(book *models.BookDetail) *models.BookDetail {
	if err := parser.ValidateBook(book); err != nil {
		p.drop(DropInvalid)
		p.logger.Warn("dropping invalid record", slog.String("url", book.URL), slog.Any("error", err))
		return nil
	}

	book.URL = strings.TrimSpace(book.URL)
	if found, _ := p.seen.ContainsOrAdd(book.URL, struct{}{}); found {
		p.drop(DropDuplicate)
		return nil
	}

	book.Title = strings.TrimSpace(book.Title)
	book.Price = parser.NormalizePrice(book.Price)

	p.statsMu.Lock()
	p.processed++
	p.statsMu.Unlock()
	return book
}

func (p *Pipeline) drop(reason string) {
	p.statsMu.Lock()
	p.dropped[reason]++
	p.statsMu.Unlock()
}

func (p *Pipeline) recordWritten(batch []*models.BookDetail) {
	p.statsMu.Lock()
	for _, book := range batch {
		p.written = append(p.written, book.URL)
	}
	p.statsMu.Unlock()
}

func (p *Pipeline) setErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err == nil {
		p.err = err
	}
}
