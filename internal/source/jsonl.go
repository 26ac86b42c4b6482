package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/profview/profview/internal/report"
)

const maxJSONLineSize = 4 << 20

type JSONLSource struct {
	rowBuffer
	name    string
	columns []string
}

// OpenJSONL loads a newline-delimited JSON file. Columns are the
// object keys in first-seen order across all lines; rows missing a
// key get an empty cell.
func OpenJSONL(path string) (*JSONLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening jsonl: %w", err)
	}
	defer f.Close()

	var columns []string
	seen := map[string]bool{}
	var records []*report.Map

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), maxJSONLineSize)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		m, err := report.DecodeJSON(line)
		if err != nil {
			return nil, fmt.Errorf("parsing %s line %d: %w", filepath.Base(path), lineno, err)
		}
		for _, k := range m.Keys() {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
		records = append(records, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning jsonl: %w", err)
	}

	rows := make([][]string, len(records))
	for i, m := range records {
		row := make([]string, len(columns))
		for j, k := range columns {
			if v, ok := m.Get(k); ok {
				row[j] = cellString(v)
			}
		}
		rows[i] = row
	}
	return &JSONLSource{
		rowBuffer: rowBuffer{rows: rows},
		name:      filepath.Base(path),
		columns:   columns,
	}, nil
}

// cellString renders a decoded JSON value as a cell. Strings stay
// verbatim, null becomes an empty cell, the rest round-trip through
// compact JSON.
func cellString(v report.Value) string {
	switch v.Kind() {
	case report.KindString:
		return string(v.(report.String))
	case report.KindNull:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func (s *JSONLSource) Name() string      { return s.name }
func (s *JSONLSource) Type() string      { return "jsonl" }
func (s *JSONLSource) Columns() []string { return s.columns }
func (s *JSONLSource) Close() error      { return nil }
