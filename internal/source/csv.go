package source

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

type CSVSource struct {
	name    string
	file    *os.File
	gz      *gzip.Reader
	reader  *csv.Reader
	columns []string
	pending [][]string
}

// OpenCSV reads a delimited file, transparently unwrapping gzip when
// the magic bytes match. The first row becomes the header unless it
// contains numeric cells, in which case names are synthesized and the
// row is replayed as data.
func OpenCSV(path string, delimiter rune) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}

	br := bufio.NewReader(f)
	var in io.Reader = br
	var gz *gzip.Reader
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err = gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening gzip: %w", err)
		}
		in = gz
	}

	r := csv.NewReader(in)
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	s := &CSVSource{name: filepath.Base(path), file: f, gz: gz, reader: r}
	first, err := r.Read()
	if errors.Is(err, io.EOF) {
		return s, nil
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if headerLike(first) {
		s.columns = first
		return s, nil
	}
	s.columns = make([]string, len(first))
	for i := range s.columns {
		s.columns[i] = fmt.Sprintf("column_%d", i)
	}
	s.pending = append(s.pending, first)
	return s, nil
}

// headerLike reports whether a row holds column names rather than
// data. Any numeric cell marks it as data.
func headerLike(row []string) bool {
	for _, cell := range row {
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err == nil {
			return false
		}
	}
	return true
}

func (s *CSVSource) Name() string      { return s.name }
func (s *CSVSource) Type() string      { return "csv" }
func (s *CSVSource) Columns() []string { return s.columns }

func (s *CSVSource) Next() ([]string, error) {
	if len(s.pending) > 0 {
		row := s.pending[0]
		s.pending = s.pending[1:]
		return s.pad(row), nil
	}
	row, err := s.reader.Read()
	if err != nil {
		return nil, err
	}
	return s.pad(row), nil
}

func (s *CSVSource) pad(row []string) []string {
	for len(row) < len(s.columns) {
		row = append(row, "")
	}
	return row
}

func (s *CSVSource) Close() error {
	if s.gz != nil {
		s.gz.Close()
	}
	return s.file.Close()
}
