package source

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Source streams one tabular dataset. Next returns io.EOF after the
// last row; Close releases the underlying handle.
type Source interface {
	Name() string
	Type() string
	Columns() []string
	Next() ([]string, error)
	Close() error
}

// Open picks a reader for path by extension: .csv/.tsv/.txt (optionally
// gzipped), .jsonl/.ndjson, or .pdf.
func Open(path string) (Source, error) {
	base := strings.ToLower(filepath.Base(path))
	base = strings.TrimSuffix(base, ".gz")
	switch {
	case strings.HasSuffix(base, ".csv"), strings.HasSuffix(base, ".txt"):
		return OpenCSV(path, ',')
	case strings.HasSuffix(base, ".tsv"):
		return OpenCSV(path, '\t')
	case strings.HasSuffix(base, ".jsonl"), strings.HasSuffix(base, ".ndjson"):
		return OpenJSONL(path)
	case strings.HasSuffix(base, ".pdf"):
		return OpenPDF(path)
	}
	return nil, fmt.Errorf("unsupported source type %q", filepath.Ext(path))
}

// rowBuffer serves rows extracted eagerly at open time.
type rowBuffer struct {
	rows   [][]string
	cursor int
}

func (b *rowBuffer) Next() ([]string, error) {
	if b.cursor >= len(b.rows) {
		return nil, io.EOF
	}
	row := b.rows[b.cursor]
	b.cursor++
	return row, nil
}
