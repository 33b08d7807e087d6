package stream

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Delimited writes records as delimited text rows preceded by a header row.
// When no columns are given, the sorted keys of the first encoded record fix
// them for the rest of the stream. Keys outside the columns are dropped and
// every value decodes back as a string.
//
// A Delimited value tracks whether its header was written and belongs to a
// single stream.
type Delimited struct {
	Comma   rune
	Columns []string

	wroteHeader bool
	readHeader  bool
}

func NewDelimited(comma rune, columns ...string) *Delimited {
	if comma == 0 {
		comma = ','
	}
	return &Delimited{Comma: comma, Columns: columns}
}

func (d *Delimited) Kind() Kind         { return KindDelimited }
func (d *Delimited) Strategy() Strategy { return PullThrough }

func (d *Delimited) Extension() string {
	if d.Comma == '\t' {
		return "tsv"
	}
	return "csv"
}

func (d *Delimited) MimeType() string {
	if d.Comma == '\t' {
		return "text/tab-separated-values"
	}
	return "text/csv"
}

func (d *Delimited) Encode(r Record) ([]byte, error) {
	if d.Columns == nil {
		d.Columns = sortedKeys(r)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = d.Comma
	if !d.wroteHeader {
		if err := w.Write(d.Columns); err != nil {
			return nil, fmt.Errorf("encoding csv header: %w", err)
		}
		d.wroteHeader = true
	}

	row := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		s, err := formatCell(r[col])
		if err != nil {
			return nil, fmt.Errorf("encoding csv column %q: %w", col, err)
		}
		row[i] = s
	}
	// A lone empty cell would be a blank line, which readers skip.
	if len(row) == 1 && row[0] == "" {
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		buf.WriteString(`""` + "\n")
		return buf.Bytes(), nil
	}
	if err := w.Write(row); err != nil {
		return nil, fmt.Errorf("encoding csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode accepts either one row or a header row followed by one row, which is
// what Encode produces for the first record. Once this value has written a
// header, the first payload it decodes must carry that header.
func (d *Delimited) Decode(data []byte) (Record, error) {
	rd := csv.NewReader(bytes.NewReader(data))
	rd.Comma = d.Comma
	rd.FieldsPerRecord = -1
	rows, err := rd.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decoding csv record: %w", err)
	}

	columns := d.Columns
	switch len(rows) {
	case 1:
		if d.wroteHeader && !d.readHeader {
			return nil, errors.New("decoding csv record: header row without a data row")
		}
	case 2:
		columns = rows[0]
		if d.Columns == nil {
			d.Columns = columns
		}
		d.readHeader = true
		rows = rows[1:]
	default:
		return nil, fmt.Errorf("decoding csv record: expected 1 or 2 rows, got %d", len(rows))
	}
	if columns == nil {
		return nil, errors.New("decoding csv record: no header known")
	}

	values := rows[0]
	if len(values) != len(columns) {
		return nil, fmt.Errorf("decoding csv record: %d values for %d columns", len(values), len(columns))
	}
	rec := make(Record, len(columns))
	for i, col := range columns {
		rec[col] = values[i]
	}
	return rec, nil
}

func formatCell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case map[string]any, Record, []any:
		data, err := json.Marshal(t)
		return string(data), err
	default:
		return fmt.Sprint(t), nil
	}
}

func sortedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
