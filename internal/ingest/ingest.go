// Package ingest reads input rows from CSV, XLSX and JSON files, and field
// definitions from YAML or JSON.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Table is a parsed input file. Columns is the header in file order.
type Table struct {
	Columns []string
	Rows    []model.Row
}

// Format identifies an input file type.
type Format string

// Supported row formats.
const (
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatXLSX  Format = "xlsx"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// DetectFormat infers the row format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return FormatCSV, nil
	case ".tsv":
		return FormatTSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", eris.Errorf("ingest: unsupported file extension %q", ext)
	}
}

// Options applies to every row format.
type Options struct {
	// Limit keeps only the first Limit rows. Zero keeps all.
	Limit int

	// Sheet selects an XLSX sheet by name. Empty means the first sheet.
	Sheet string
}

// ReadRows loads a row file, picking the parser from its extension.
func ReadRows(ctx context.Context, path string, opts Options) (*Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var t *Table
	switch format {
	case FormatXLSX:
		t, err = ReadXLSX(ctx, path, XLSXOptions{SheetName: opts.Sheet})
	default:
		f, oerr := os.Open(path)
		if oerr != nil {
			return nil, eris.Wrapf(oerr, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		switch format {
		case FormatCSV:
			t, err = ReadCSV(ctx, f, CSVOptions{})
		case FormatTSV:
			t, err = ReadCSV(ctx, f, CSVOptions{Delimiter: '\t'})
		case FormatJSON:
			t, err = ReadJSON(f)
		case FormatJSONL:
			t, err = ReadJSONLines(ctx, f)
		}
	}
	if err != nil {
		return nil, err
	}

	if opts.Limit > 0 && opts.Limit < len(t.Rows) {
		t.Rows = t.Rows[:opts.Limit]
	}
	return t, nil
}

// fromRecords turns a header row plus data records into a table. Blank
// records are dropped.
func fromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, eris.New("ingest: file has no header row")
	}

	header := make([]string, len(records[0]))
	seen := make(map[string]bool, len(header))
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			return nil, eris.Errorf("ingest: header column %d is empty", i+1)
		}
		if seen[h] {
			return nil, eris.Errorf("ingest: duplicate header column %q", h)
		}
		seen[h] = true
		header[i] = h
	}

	t := &Table{Columns: header, Rows: make([]model.Row, 0, len(records)-1)}
	for n, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		if len(rec) > len(header) && !blank(rec[len(header):]) {
			return nil, eris.Errorf("ingest: line %d has %d values for %d columns", n+2, len(rec), len(header))
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		t.Rows = append(t.Rows, model.NewRow(header, rec))
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
