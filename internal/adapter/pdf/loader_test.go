package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/medguide-qa/internal/port"
)

// mockRunner is a test double for CommandRunner keyed by file basename.
type mockRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	path := args[len(args)-2]
	base := filepath.Base(path)
	m.calls = append(m.calls, base)
	if name != "pdftotext" {
		return nil, errors.New("unexpected command " + name)
	}
	if err := m.errs[base]; err != nil {
		return nil, err
	}
	return []byte(m.outputs[base]), nil
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("%PDF-1.4"), 0o644))
	}
}

// writePDF writes a minimal single-font PDF with one page per entry of
// pages. An empty entry produces a page with no text.
func writePDF(t *testing.T, path string, pages ...string) {
	t.Helper()
	var (
		buf     bytes.Buffer
		offsets []int
	)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i, text := range pages {
		content := ""
		if text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestNew(t *testing.T) {
	l := New()
	require.NotNil(t, l)
	assert.IsType(t, nativeExtractor{}, l.extractor)
}

func TestNewForExtractor(t *testing.T) {
	l, err := NewForExtractor(ExtractorNative)
	require.NoError(t, err)
	assert.IsType(t, nativeExtractor{}, l.extractor)

	l, err = NewForExtractor("")
	require.NoError(t, err)
	assert.IsType(t, nativeExtractor{}, l.extractor)

	l, err = NewForExtractor(ExtractorPDFToText)
	require.NoError(t, err)
	assert.Equal(t, toolExtractor{runner: execRunner{}}, l.extractor)

	_, err = NewForExtractor("tika")
	assert.ErrorIs(t, err, port.ErrConfiguration)
}

func TestNativeLoadFile_ExtractsPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guideline.pdf")
	writePDF(t, path, "Ankle brachial index", "", "Toe pressure")

	pages, err := New().LoadFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Contains(t, pages[0].Text, "Ankle brachial index")
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "guideline.pdf", pages[0].SourceFile)
	assert.Contains(t, pages[1].Text, "Toe pressure")
	assert.Equal(t, 3, pages[1].PageNumber, "blank page 2 is skipped but numbering is physical")
	assert.Equal(t, "3", pages[1].Metadata["total_pages"])
}

func TestNativeLoadFile_InvalidPDF(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "broken.pdf")

	_, err := New().LoadFile(context.Background(), filepath.Join(dir, "broken.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrIngestion)
}

func TestNativeLoad_SkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "broken.pdf")
	writePDF(t, filepath.Join(dir, "good.pdf"), "Wound classification")

	pages, err := New().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "good.pdf", pages[0].SourceFile)
}

func TestInstallInstructions(t *testing.T) {
	assert.Contains(t, InstallInstructions(), "poppler")
	assert.Contains(t, InstallInstructions(), "PDF_EXTRACTOR=native")
}

func TestErrPDFToolNotFound(t *testing.T) {
	assert.Contains(t, ErrPDFToolNotFound.Error(), "pdftotext")
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("a.pdf"))
	assert.True(t, IsPDF("GUIDE.PDF"))
	assert.False(t, IsPDF("notes.txt"))
	assert.False(t, IsPDF("pdf"))
}

func TestLoadFile_SplitsPagesOnFormFeed(t *testing.T) {
	runner := &mockRunner{outputs: map[string]string{
		"guideline.pdf": "Page one text\fPage two text\f\f Page four\f",
	}}
	l := NewWithRunner(runner)

	pages, err := l.LoadFile(context.Background(), "/docs/guideline.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.Equal(t, "Page one text", pages[0].Text)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "guideline.pdf", pages[0].SourceFile)
	assert.Equal(t, 2, pages[1].PageNumber)
	assert.Equal(t, 4, pages[2].PageNumber, "blank page 3 is skipped but numbering is physical")
	assert.Equal(t, "4", pages[2].Metadata["total_pages"])
	assert.Equal(t, "/docs/guideline.pdf", pages[2].Metadata["source_path"])
}

func TestLoadFile_RunnerError(t *testing.T) {
	runner := &mockRunner{errs: map[string]error{"broken.pdf": errors.New("syntax error")}}
	l := NewWithRunner(runner)

	_, err := l.LoadFile(context.Background(), "/docs/broken.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrIngestion)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestLoadFile_NoText(t *testing.T) {
	runner := &mockRunner{outputs: map[string]string{"scan.pdf": "\f \f"}}
	_, err := NewWithRunner(runner).LoadFile(context.Background(), "scan.pdf")
	assert.ErrorIs(t, err, port.ErrIngestion)
}

func TestLoad_SkipsFailingFilesAndNonPDFs(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf", "b.pdf", "c.PDF", "readme.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755))

	runner := &mockRunner{
		outputs: map[string]string{
			"a.pdf": "alpha\f",
			"c.PDF": "gamma one\fgamma two\f",
		},
		errs: map[string]error{"b.pdf": errors.New("encrypted")},
	}
	pages, err := NewWithRunner(runner).Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.PDF"}, runner.calls)
	require.Len(t, pages, 3)
	assert.Equal(t, "a.pdf", pages[0].SourceFile)
	assert.Equal(t, "c.PDF", pages[1].SourceFile)
	assert.Equal(t, 2, pages[2].PageNumber)
}

func TestLoad_ToolMissingForEveryFileIsConfigurationError(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "guideline.pdf", "other.pdf")

	runner := &mockRunner{errs: map[string]error{
		"guideline.pdf": ErrPDFToolNotFound,
		"other.pdf":     ErrPDFToolNotFound,
	}}
	_, err := NewWithRunner(runner).Load(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrConfiguration)
	assert.ErrorIs(t, err, ErrPDFToolNotFound)
	assert.NotErrorIs(t, err, port.ErrIngestion)
}

func TestLoad_ToolMissingForSomeFilesIsNotConfigurationError(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf", "b.pdf")

	runner := &mockRunner{errs: map[string]error{
		"a.pdf": ErrPDFToolNotFound,
		"b.pdf": errors.New("encrypted"),
	}}
	pages, err := NewWithRunner(runner).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestLoad_EmptyDirectory(t *testing.T) {
	runner := &mockRunner{}
	pages, err := NewWithRunner(runner).Load(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.Empty(t, runner.calls)
}

func TestLoad_MissingDirectory(t *testing.T) {
	_, err := NewWithRunner(&mockRunner{}).Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrConfiguration)
}

func TestLoad_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWithRunner(&mockRunner{}).Load(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

// Integration test - only runs if pdftotext is available.
func TestLoadFile_Integration(t *testing.T) {
	if err := CheckAvailable(); err != nil {
		t.Skip("pdftotext not available, skipping integration test")
	}
	_, err := NewWithRunner(execRunner{}).LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, port.ErrIngestion)
}
