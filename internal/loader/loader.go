// Package loader discovers and parses metrics-first documents.
//
// Files are parsed in parallel but results are always returned in path order,
// so nothing downstream depends on filesystem enumeration order.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/parser"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
	"golang.org/x/sync/errgroup"
)

// Options configures a Loader.
type Options struct {
	// Dirs are the input directories, scanned recursively. Plain files are
	// accepted as well.
	Dirs []string
	// Concurrency caps parallel parsing; 0 means GOMAXPROCS.
	Concurrency int
	Logger      *slog.Logger
}

// FileStatus describes what happened to a scanned file.
type FileStatus string

// File statuses.
const (
	FileParsed  FileStatus = "parsed"
	FileSkipped FileStatus = "skipped"
	FileFailed  FileStatus = "failed"
)

// FileResult is the outcome for one scanned file.
type FileResult struct {
	Path    string
	Status  FileStatus
	Metrics []*core.MetricDefinition
	Err     *core.CompileError
}

// Result contains everything loaded in one pass.
type Result struct {
	Files   []FileResult
	Metrics []*core.MetricDefinition
	Scanned int
	Skipped int
	Errors  []*core.CompileError
}

// HasErrors returns true if any file failed to parse.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Loader scans input directories for metrics-first documents.
type Loader struct {
	dirs        []string
	concurrency int
	logger      *slog.Logger
}

// New creates a Loader.
func New(opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Loader{
		dirs:        opts.Dirs,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Load scans, sniffs and parses every candidate file.
// The returned error is reserved for I/O failures and cancellation; malformed
// documents are reported in Result.Errors.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	paths, err := l.scan()
	if err != nil {
		return nil, err
	}
	l.logger.Debug("scanned input directories", "dirs", l.dirs, "files", len(paths))

	files := make([]FileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fr, err := l.loadFile(path)
			if err != nil {
				return err
			}
			files[i] = fr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{Files: files, Scanned: len(files)}
	for _, fr := range files {
		switch fr.Status {
		case FileSkipped:
			result.Skipped++
		case FileFailed:
			result.Errors = append(result.Errors, fr.Err)
		case FileParsed:
			result.Metrics = append(result.Metrics, fr.Metrics...)
		}
	}

	l.logger.Info("loaded metrics documents",
		"scanned", result.Scanned,
		"skipped", result.Skipped,
		"metrics", len(result.Metrics),
		"errors", len(result.Errors))

	return result, nil
}

func (l *Loader) loadFile(path string) (FileResult, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the directory walk
	if err != nil {
		return FileResult{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := parser.Decode(path, content)
	if err != nil {
		if !parser.LooksLikeMetricsDocument(content) {
			l.logger.Debug("skipping unparsable non-metrics file", "path", path)
			return FileResult{Path: path, Status: FileSkipped}, nil
		}
		return failed(path, err), nil
	}

	if !parser.IsMetricsDocument(doc) {
		l.logger.Debug("skipping non-metrics document", "path", path)
		return FileResult{Path: path, Status: FileSkipped}, nil
	}

	parsed, err := parser.ParseNode(path, doc)
	if err != nil {
		l.logger.Debug("metrics document parse error", "path", path, "error", err.Error())
		return failed(path, err), nil
	}

	l.logger.Debug("parsed metrics document", "path", path, "metrics", len(parsed.Metrics))
	return FileResult{Path: path, Status: FileParsed, Metrics: parsed.Metrics}, nil
}

func failed(path string, err error) FileResult {
	var ce *core.CompileError
	if !errors.As(err, &ce) {
		ce = core.NewParseError(path, core.Position{}, "cannot parse document", err)
	}
	return FileResult{Path: path, Status: FileFailed, Err: ce}
}

// scan returns every YAML file below the input directories, sorted and
// de-duplicated.
func (l *Loader) scan() ([]string, error) {
	seen := make(map[string]bool)
	var paths []string

	add := func(path string) {
		clean := filepath.Clean(path)
		if !seen[clean] {
			seen[clean] = true
			paths = append(paths, clean)
		}
	}

	for _, dir := range l.dirs {
		info, err := os.Stat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Debug("input directory does not exist", "dir", dir)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
		}
		if !info.IsDir() {
			if IsYAML(dir) {
				add(dir)
			}
			continue
		}

		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if IsYAML(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// IsYAML reports whether path has a YAML extension.
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return true
	}
	return false
}
