package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultTitle  = "Document Content"
	defaultColumn = "Content"
	cellSeparator = " | "
)

// Table is the tabular content read from a document. Rows are always
// rectangular-ish string cells regardless of how the model returned them.
type Table struct {
	Title   string     `json:"title"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Item is one line item derived from a table row.
type Item struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

// UnmarshalJSON accepts rows as arrays of cells or as objects keyed by
// column name, and "table_title"/"data" as aliases of "title"/"rows".
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title      *string           `json:"title"`
		TableTitle *string           `json:"table_title"`
		Columns    []any             `json:"columns"`
		Rows       []json.RawMessage `json:"rows"`
		Data       []json.RawMessage `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch {
	case raw.TableTitle != nil:
		t.Title = *raw.TableTitle
	case raw.Title != nil:
		t.Title = *raw.Title
	default:
		t.Title = defaultTitle
	}

	t.Columns = make([]string, 0, len(raw.Columns))
	for _, c := range raw.Columns {
		t.Columns = append(t.Columns, cellString(c))
	}

	rows := raw.Rows
	if rows == nil {
		rows = raw.Data
	}

	t.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		row, err := t.decodeRow(r)
		if err != nil {
			return err
		}
		t.Rows = append(t.Rows, row)
	}

	if len(t.Columns) == 0 {
		t.Columns = []string{defaultColumn}
	}
	return nil
}

func (t *Table) decodeRow(data json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid table row: %w", err)
	}

	switch row := v.(type) {
	case []any:
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = cellString(c)
		}
		return cells, nil
	case map[string]any:
		if len(t.Columns) == 0 {
			keys := make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			t.Columns = keys
		}
		cells := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = cellString(row[col])
		}
		return cells, nil
	default:
		return []string{cellString(row)}, nil
	}
}

func cellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case json.Number:
		return c.String()
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(c)
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return fmt.Sprint(c)
		}
		return string(b)
	}
}

// ParseTable reads the first JSON object embedded in text. When there is none,
// or it does not decode, every non-blank line becomes a one-cell row.
func ParseTable(text string) Table {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var t Table
		if err := json.Unmarshal([]byte(text[start:end+1]), &t); err == nil {
			return t
		}
	}
	return linesTable(text)
}

func linesTable(text string) Table {
	t := Table{
		Title:   defaultTitle,
		Columns: []string{defaultColumn},
		Rows:    [][]string{},
	}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			t.Rows = append(t.Rows, []string{line})
		}
	}
	return t
}

// Items turns each row into a line item whose description joins the cells
// with " | ". Rows without any text are dropped.
func (t Table) Items() []Item {
	items := make([]Item, 0, len(t.Rows))
	for _, row := range t.Rows {
		blank := true
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				blank = false
				break
			}
		}
		if blank {
			continue
		}
		items = append(items, Item{
			Description: strings.Join(row, cellSeparator),
			Quantity:    1,
		})
	}
	return items
}
