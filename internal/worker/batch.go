package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// Verifier runs the verification request stored in a file
type Verifier interface {
	VerifyFile(ctx context.Context, path string) (*model.Report, error)
}

// VerifyJob represents one request file in a batch
type VerifyJob struct {
	Path     string
	Verifier Verifier
}

// Execute executes the verify job
func (j *VerifyJob) Execute(ctx context.Context) Result {
	report, err := j.Verifier.VerifyFile(ctx, j.Path)
	if err != nil {
		return &VerifyResult{Path: j.Path, Error: err}
	}
	return &VerifyResult{Path: j.Path, Report: report}
}

// VerifyResult represents the result of a verify job
type VerifyResult struct {
	Path   string
	Report *model.Report
	Error  error
}

// GetError returns the error from the verify result
func (r *VerifyResult) GetError() error {
	return r.Error
}

// BatchProcessor verifies many request files concurrently
type BatchProcessor struct {
	verifier    Verifier
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(verifier Verifier, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		verifier:    verifier,
		concurrency: concurrency,
	}
}

// ProcessPaths verifies the given request files, returning results in input order
func (b *BatchProcessor) ProcessPaths(ctx context.Context, paths []string) []*VerifyResult {
	if len(paths) == 0 {
		return []*VerifyResult{}
	}

	jobs := make([]Job, len(paths))
	for i, path := range paths {
		jobs[i] = &VerifyJob{Path: path, Verifier: b.verifier}
	}

	pool := NewPoolWithContext(ctx, b.concurrency)
	results := pool.Process(jobs)

	out := make([]*VerifyResult, len(results))
	for i, result := range results {
		if result == nil {
			out[i] = &VerifyResult{Path: paths[i], Error: fmt.Errorf("not run: %w", context.Cause(ctx))}
			continue
		}
		out[i] = result.(*VerifyResult)
	}

	return out
}

// ProcessFile reads request paths from a list file and verifies them
func (b *BatchProcessor) ProcessFile(ctx context.Context, listPath string) ([]*VerifyResult, error) {
	paths, err := ReadPathsFromFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("read request list: %w", err)
	}

	return b.ProcessPaths(ctx, paths), nil
}

// ReadPathsFromFile reads request file paths (one per line). Relative
// paths resolve against the list file's directory.
func ReadPathsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	base := filepath.Dir(filePath)
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}

		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}
