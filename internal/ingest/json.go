package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// ReadJSON parses a JSON array of objects. Columns lists every key in
// first-seen order.
func ReadJSON(r io.Reader) (*Table, error) {
	var rows []model.Row
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, eris.Wrap(err, "json: decode rows")
	}
	return tableFromRows(rows), nil
}

// ReadJSONLines parses one JSON object per line. Blank lines are skipped.
func ReadJSONLines(ctx context.Context, r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var rows []model.Row
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "jsonl: context cancelled")
		}
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var row model.Row
		if err := json.Unmarshal(b, &row); err != nil {
			return nil, eris.Wrapf(err, "jsonl: line %d", line)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "jsonl: scan")
	}
	return tableFromRows(rows), nil
}

func tableFromRows(rows []model.Row) *Table {
	t := &Table{Rows: rows}
	if t.Rows == nil {
		t.Rows = []model.Row{}
	}
	seen := map[string]bool{}
	for _, row := range rows {
		for _, k := range row.Keys() {
			if !seen[k] {
				seen[k] = true
				t.Columns = append(t.Columns, k)
			}
		}
	}
	return t
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
