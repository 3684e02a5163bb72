// ABOUTME: Tests for document text extraction and folder watching
package loader

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDocx(t *testing.T, path, body string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestExtract_Text(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.md", "C.TXT"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("hello 世界"), 0o600))

		text, err := Extract(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "hello 世界", text)
	}
}

func TestExtract_Docx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.docx")
	writeDocx(t, path,
		`<w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>tabbed</w:t></w:r></w:p>`)

	text, err := Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\nSecond\ttabbed", text)
}

func TestExtract_DocxWithoutDocumentXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Extract(context.Background(), path)
	assert.Error(t, err)
}

func TestExtract_Unsupported(t *testing.T) {
	_, err := Extract(context.Background(), "slides.pptx")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestExtract_PDFWithoutTool(t *testing.T) {
	old := PDFTool
	PDFTool = "definitely-not-a-real-pdf-tool"
	t.Cleanup(func() { PDFTool = old })

	_, err := Extract(context.Background(), "paper.pdf")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestExtract_MissingFile(t *testing.T) {
	_, err := Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("notes.md"))
	assert.True(t, Supported("REPORT.PDF"))
	assert.True(t, Supported("a.docx"))
	assert.False(t, Supported("a.json"))
	assert.False(t, Supported("noext"))
}

func TestWatcher_ReportsSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	events, err := w.Watch(ctx, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600))

	select {
	case ev := <-events:
		assert.Equal(t, "notes.txt", filepath.Base(ev.Path))
		assert.Contains(t, []Op{FileCreated, FileModified}, ev.Op)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w, err := NewWatcher(zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Watch(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestWatcher_ClosesOnCancel(t *testing.T) {
	w, err := NewWatcher(zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := w.Watch(ctx, t.TempDir())
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "created", FileCreated.String())
	assert.Equal(t, "removed", FileRemoved.String())
}
