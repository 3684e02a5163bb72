// ABOUTME: Extracts plain text from uploaded documents for ingestion
// ABOUTME: Handles .txt/.md directly, .docx by reading its XML parts and .pdf via pdftotext
package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file types Extract cannot read
var ErrUnsupported = errors.New("unsupported document type")

// PDFTool is the command used to convert PDFs to text. It is called as
// "<tool> -layout <file> -".
var PDFTool = "pdftotext"

// Extensions lists the file types Extract understands
var Extensions = []string{".txt", ".md", ".markdown", ".docx", ".pdf"}

// Supported reports whether path has an extension Extract can read
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Extract returns the plain text of the document at path
func Extract(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ".docx":
		return extractDocx(path)
	case ".pdf":
		return extractPDF(ctx, path)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
}

// extractDocx reads word/document.xml and emits one line per paragraph
func extractDocx(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening docx: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("opening document.xml: %w", err)
		}
		defer rc.Close()
		return docxText(rc)
	}
	return "", fmt.Errorf("docx %s has no word/document.xml", filepath.Base(path))
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func extractPDF(ctx context.Context, path string) (string, error) {
	if _, err := exec.LookPath(PDFTool); err != nil {
		return "", fmt.Errorf("%w: pdf needs %s installed", ErrUnsupported, PDFTool)
	}
	cmd := exec.CommandContext(ctx, PDFTool, "-layout", path, "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", PDFTool, filepath.Base(path), err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}
