// Package pdf loads PDF files as page records. Text is extracted in-process
// with github.com/ledongthuc/pdf by default; pdftotext (poppler-utils) can be
// selected instead for layout-heavy documents.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

const toolName = "pdftotext"

// Extractor names accepted by NewForExtractor.
const (
	ExtractorNative    = "native"
	ExtractorPDFToText = "pdftotext"
)

// ErrPDFToolNotFound is returned when pdftotext is not on PATH.
var ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils")

// Ensure Loader implements the interface.
var _ port.DocumentLoader = (*Loader)(nil)

// Extractor returns the text of every physical page of a PDF, in order.
// Pages without text are returned as empty strings so numbering stays
// physical.
type Extractor interface {
	Pages(ctx context.Context, path string) ([]string, error)
}

// CommandRunner executes an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// nativeExtractor parses the PDF in-process.
type nativeExtractor struct{}

func (nativeExtractor) Pages(ctx context.Context, path string) (pages []string, err error) {
	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse %s: %v", filepath.Base(path), r)
		}
	}()

	f, r, err := lpdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			slog.Debug("skipping unreadable pdf page", "file", filepath.Base(path), "page", i, "error", err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// toolExtractor shells out to pdftotext.
type toolExtractor struct {
	runner CommandRunner
}

func (e toolExtractor) Pages(ctx context.Context, path string) ([]string, error) {
	out, err := e.runner.Run(ctx, toolName, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		if errors.Is(err, ErrPDFToolNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pdftotext failed for %s: %v", filepath.Base(path), err)
	}
	raw := strings.Split(string(out), "\f")
	// pdftotext terminates every page with a form feed
	if len(raw) > 0 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}
	return raw, nil
}

// Loader reads every *.pdf in a directory into page records.
type Loader struct {
	extractor Extractor
}

// New creates a loader that parses PDFs in-process.
func New() *Loader {
	return &Loader{extractor: nativeExtractor{}}
}

// NewWithRunner creates a pdftotext loader with a custom command runner.
func NewWithRunner(runner CommandRunner) *Loader {
	return &Loader{extractor: toolExtractor{runner: runner}}
}

// NewWithExtractor creates a loader around any extractor.
func NewWithExtractor(e Extractor) *Loader {
	return &Loader{extractor: e}
}

// NewForExtractor builds the loader named by configuration.
func NewForExtractor(name string) (*Loader, error) {
	switch name {
	case "", ExtractorNative:
		return New(), nil
	case ExtractorPDFToText:
		return NewWithRunner(execRunner{}), nil
	default:
		return nil, fmt.Errorf("%w: unknown pdf extractor %q", port.ErrConfiguration, name)
	}
}

// CheckAvailable reports whether pdftotext can be found.
func CheckAvailable() error {
	if _, err := exec.LookPath(toolName); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// InstallInstructions explains how to install pdftotext.
func InstallInstructions() string {
	return `pdftotext is required when PDF_EXTRACTOR=pdftotext.
  Debian/Ubuntu: sudo apt-get install poppler-utils
  Fedora:        sudo dnf install poppler-utils
  macOS:         brew install poppler
Or set PDF_EXTRACTOR=native to parse PDFs in-process.`
}

// IsPDF reports whether name has a .pdf extension (any case).
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Load parses every PDF in dir, in directory-listing order. A file that
// fails to parse is logged and skipped. An empty directory yields an empty
// slice and no error. If every file failed because pdftotext is missing the
// error wraps port.ErrConfiguration.
func (l *Loader) Load(ctx context.Context, dir string) ([]domain.PageRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf directory %s: %v", port.ErrConfiguration, dir, err)
	}

	var (
		pages       []domain.PageRecord
		files       int
		toolMissing int
	)
	for _, e := range entries {
		if e.IsDir() || !IsPDF(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files++

		filePages, err := l.LoadFile(ctx, filepath.Join(dir, e.Name()))
		if err != nil {
			if errors.Is(err, ErrPDFToolNotFound) {
				toolMissing++
			}
			slog.Warn("skipping pdf", "file", e.Name(), "error", err)
			continue
		}
		slog.Info("loaded pdf", "file", e.Name(), "pages", len(filePages))
		pages = append(pages, filePages...)
	}

	if files == 0 {
		slog.Warn("no pdf files found", "dir", dir)
	}
	if files > 0 && toolMissing == files {
		return nil, fmt.Errorf("%w: %w", port.ErrConfiguration, ErrPDFToolNotFound)
	}
	slog.Info("pdf directory loaded", "dir", dir, "files", files, "pages", len(pages))
	return pages, nil
}

// LoadFile extracts the pages of a single PDF. Errors wrap port.ErrIngestion.
// Page numbers are 1-based and physical: blank pages are dropped but do not
// shift the numbering of later pages.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]domain.PageRecord, error) {
	raw, err := l.extractor.Pages(ctx, path)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", port.ErrIngestion, err)
	}

	name := filepath.Base(path)
	total := strconv.Itoa(len(raw))
	pages := make([]domain.PageRecord, 0, len(raw))
	for i, text := range raw {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, domain.PageRecord{
			Text:       text,
			SourceFile: name,
			PageNumber: i + 1,
			Metadata: map[string]string{
				"source_path": path,
				"total_pages": total,
			},
		})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s contains no extractable text", port.ErrIngestion, name)
	}
	return pages, nil
}
