package source

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFSource struct {
	rowBuffer
	name string
}

// OpenPDF extracts the text layer of a PDF as a single "text" column,
// one row per non-empty line.
func OpenPDF(path string) (*PDFSource, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	content, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return nil, fmt.Errorf("reading pdf text: %w", err)
	}

	var rows [][]string
	for _, line := range strings.Split(buf.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			rows = append(rows, []string{line})
		}
	}
	return &PDFSource{rowBuffer: rowBuffer{rows: rows}, name: filepath.Base(path)}, nil
}

func (s *PDFSource) Name() string      { return s.name }
func (s *PDFSource) Type() string      { return "pdf" }
func (s *PDFSource) Columns() []string { return []string{"text"} }
func (s *PDFSource) Close() error      { return nil }
