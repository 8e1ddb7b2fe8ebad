package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is one data row keyed by normalized header name.
type Record map[string]string

// Get returns the first non-empty value among keys.
func (r Record) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

// Float parses the first non-empty value among keys. A missing or empty
// cell returns nil without error.
func (r Record) Float(keys ...string) (*float64, error) {
	s := r.Get(keys...)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "table: parse %q", s)
	}
	return &f, nil
}

// NormalizeHeader lower-cases a column name and joins its words with
// underscores, so "Threat Level" and "threat_level" match.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.FieldsFunc(h, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	}), "_")
}

// Supported reports whether EachRecord can read path, judged by extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".xlsx":
		return true
	}
	return false
}

// EachRecord reads a CSV, TSV, or XLSX file whose first row is a header
// and calls fn for every non-blank data row. Reading stops at the first
// error from fn, which is returned as is.
func EachRecord(ctx context.Context, path string, fn func(line int, rec Record) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		rows <-chan []string
		errs <-chan error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv":
		f, err := os.Open(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return eris.Wrapf(err, "table: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		opts := CSVOptions{TrimSpace: true, LazyQuotes: true}
		if ext == ".tsv" {
			opts.Delimiter = '\t'
		}
		rows, errs = StreamCSV(ctx, f, opts)
	case ".xlsx":
		rows, errs = StreamXLSX(ctx, path, XLSXOptions{})
	default:
		return eris.Errorf("table: unsupported file type %q", ext)
	}

	var header []string
	line := 0
	for row := range rows {
		line++
		if header == nil {
			header = make([]string, len(row))
			for i, h := range row {
				header[i] = NormalizeHeader(h)
			}
			continue
		}
		if blank(row) {
			continue
		}

		rec := make(Record, len(header))
		for i, h := range header {
			if i < len(row) && h != "" {
				rec[h] = strings.TrimSpace(row[i])
			}
		}
		if err := fn(line, rec); err != nil {
			cancel()
			for range rows {
			}
			return err
		}
	}

	if err := <-errs; err != nil {
		return eris.Wrapf(err, "table: read %s", path)
	}
	return nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
