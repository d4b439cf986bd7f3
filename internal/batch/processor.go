// Package batch imports a directory of PDFs with bounded concurrency and an
// optional upload rate.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmsas95/docdesk/internal/pages"
	"github.com/gmsas95/docdesk/internal/scope"
)

// Ingester is the part of the page service the importer needs
type Ingester interface {
	Ingest(ctx context.Context, sc scope.Scope, req pages.IngestRequest) (*pages.IngestResult, error)
}

type Config struct {
	MaxConcurrency int
	// RPM caps ingests per minute, 0 means unlimited
	RPM   int
	Burst int
	// Recursive descends into subdirectories
	Recursive bool
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Burst:          1,
	}
}

type OutputItem struct {
	Path           string        `json:"path"`
	DocumentID     string        `json:"document_id,omitempty"`
	PageCount      int           `json:"page_count,omitempty"`
	DuplicatesSeen int           `json:"duplicates_seen,omitempty"`
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration"`
}

type Result struct {
	Total      int           `json:"total"`
	Success    int           `json:"success"`
	Failed     int           `json:"failed"`
	Duplicates int           `json:"duplicates"`
	Duration   time.Duration `json:"duration"`
	Items      []OutputItem  `json:"items"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
}

type Processor struct {
	ingester Ingester
	config   Config
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func NewProcessor(ingester Ingester, cfg Config, logger *zap.Logger) *Processor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		ingester: ingester,
		config:   cfg,
		logger:   logger,
	}
	if cfg.RPM > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60.0), cfg.Burst)
	}
	return p
}

// ProcessDir ingests every PDF under dir into the given scope. A failed file
// is recorded in the result and does not stop the others. When outputPath is
// set the result is also written there as JSON.
func (p *Processor) ProcessDir(ctx context.Context, sc scope.Scope, dir, outputPath string) (*Result, error) {
	files, err := p.collect(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list input directory: %w", err)
	}

	result := &Result{
		Total:     len(files),
		StartTime: time.Now(),
		Items:     make([]OutputItem, 0, len(files)),
	}

	concurrency := p.config.MaxConcurrency
	if concurrency > len(files) {
		concurrency = len(files)
	}
	p.logger.Info("Starting import",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Int("concurrency", concurrency),
		zap.Int("rpm_limit", p.config.RPM),
	)

	progress := &ProgressTracker{Total: len(files), StartTime: result.StartTime}
	paths := make(chan string, len(files))
	results := make(chan OutputItem, len(files))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, sc, paths, results, progress)
		}()
	}
	for _, f := range files {
		paths <- f
	}
	close(paths)

	go func() {
		wg.Wait()
		close(results)
	}()

	for item := range results {
		result.Items = append(result.Items, item)
		if item.Success {
			result.Success++
			if item.DuplicatesSeen > 0 {
				result.Duplicates++
			}
		} else {
			result.Failed++
		}
	}
	sort.Slice(result.Items, func(i, j int) bool { return result.Items[i].Path < result.Items[j].Path })

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	p.logger.Info("Import finished",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Int("with_duplicates", result.Duplicates),
		zap.Duration("duration", result.Duration),
	)

	if outputPath != "" {
		if err := saveOutputFile(outputPath, result); err != nil {
			return result, fmt.Errorf("failed to save output file: %w", err)
		}
	}
	return result, nil
}

func (p *Processor) worker(ctx context.Context, sc scope.Scope, paths <-chan string, results chan<- OutputItem, progress *ProgressTracker) {
	for path := range paths {
		item := OutputItem{Path: path}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				item.Error = err.Error()
				results <- item
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			item.Error = err.Error()
			results <- item
			continue
		}

		start := time.Now()
		p.processFile(ctx, sc, &item)
		item.Duration = time.Since(start)

		done := progress.Increment()
		p.logger.Debug("Imported file",
			zap.String("path", path),
			zap.Bool("success", item.Success),
			zap.Int("done", done),
			zap.Int("total", progress.Total),
		)
		results <- item
	}
}

func (p *Processor) processFile(ctx context.Context, sc scope.Scope, item *OutputItem) {
	data, err := os.ReadFile(item.Path)
	if err != nil {
		item.Error = err.Error()
		return
	}
	res, err := p.ingester.Ingest(ctx, sc, pages.IngestRequest{
		FileName: filepath.Base(item.Path),
		MimeType: "application/pdf",
		Data:     data,
	})
	if err != nil {
		item.Error = err.Error()
		p.logger.Warn("Import failed", zap.String("path", item.Path), zap.Error(err))
		return
	}
	item.Success = true
	item.DocumentID = res.Document.ID
	item.PageCount = res.Document.PageCount
	if res.Duplicates != nil {
		item.DuplicatesSeen = len(res.Duplicates.Duplicates)
	}
}

func (p *Processor) collect(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !p.config.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func saveOutputFile(path string, result *Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func (r *Result) Summary() string {
	var sb strings.Builder
	sb.WriteString("=== Import Summary ===\n")
	sb.WriteString(fmt.Sprintf("Total:      %d\n", r.Total))
	sb.WriteString(fmt.Sprintf("Success:    %d\n", r.Success))
	sb.WriteString(fmt.Sprintf("Failed:     %d\n", r.Failed))
	sb.WriteString(fmt.Sprintf("Duplicates: %d\n", r.Duplicates))
	sb.WriteString(fmt.Sprintf("Duration:   %v\n", r.Duration))
	return sb.String()
}

// ProgressTracker counts finished files across workers
type ProgressTracker struct {
	Total     int
	StartTime time.Time
	done      atomic.Int64
}

func (p *ProgressTracker) Increment() int {
	return int(p.done.Add(1))
}

func (p *ProgressTracker) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.done.Load()) / float64(p.Total) * 100
}

// ETA extrapolates the remaining time from the average so far
func (p *ProgressTracker) ETA() time.Duration {
	done := p.done.Load()
	if done == 0 {
		return 0
	}
	elapsed := time.Since(p.StartTime)
	remaining := int64(p.Total) - done
	return time.Duration(float64(elapsed) / float64(done) * float64(remaining))
}
