package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTable(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected Table
	}{
		{
			name: "array rows",
			text: `{"table_title": "Order 42", "columns": ["Qty", "Description"], "rows": [["10", "Hex Bolt M8"], [5, "Washer M8"]]}`,
			expected: Table{
				Title:   "Order 42",
				Columns: []string{"Qty", "Description"},
				Rows:    [][]string{{"10", "Hex Bolt M8"}, {"5", "Washer M8"}},
			},
		},
		{
			name: "json wrapped in prose and fences",
			text: "Here is the table:\n```json\n{\"table_title\": \"PO\", \"columns\": [\"Item\"], \"rows\": [[\"Nut M6\"]]}\n```\nDone.",
			expected: Table{
				Title:   "PO",
				Columns: []string{"Item"},
				Rows:    [][]string{{"Nut M6"}},
			},
		},
		{
			name: "data alias and defaults",
			text: `{"data": [["Screw M4"]]}`,
			expected: Table{
				Title:   "Document Content",
				Columns: []string{"Content"},
				Rows:    [][]string{{"Screw M4"}},
			},
		},
		{
			name: "object rows follow column order",
			text: `{"table_title": "T", "columns": ["Description", "Qty"], "rows": [{"Qty": 3, "Description": "Anchor", "Extra": "x"}]}`,
			expected: Table{
				Title:   "T",
				Columns: []string{"Description", "Qty"},
				Rows:    [][]string{{"Anchor", "3"}},
			},
		},
		{
			name: "object rows without columns use sorted keys",
			text: `{"rows": [{"b": "2", "a": "1"}]}`,
			expected: Table{
				Title:   "Document Content",
				Columns: []string{"a", "b"},
				Rows:    [][]string{{"1", "2"}},
			},
		},
		{
			name: "plain text falls back to lines",
			text: "Hex Bolt M8\n\n   Washer M8  \n",
			expected: Table{
				Title:   "Document Content",
				Columns: []string{"Content"},
				Rows:    [][]string{{"Hex Bolt M8"}, {"Washer M8"}},
			},
		},
		{
			name: "invalid json falls back to lines",
			text: "{not json}",
			expected: Table{
				Title:   "Document Content",
				Columns: []string{"Content"},
				Rows:    [][]string{{"{not json}"}},
			},
		},
		{
			name: "empty text",
			text: "",
			expected: Table{
				Title:   "Document Content",
				Columns: []string{"Content"},
				Rows:    [][]string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseTable(tt.text))
		})
	}
}

func TestParseTable_NullAndBoolCells(t *testing.T) {
	table := ParseTable(`{"columns": ["a", "b", "c"], "rows": [[null, true, 1.5]]}`)
	assert.Equal(t, [][]string{{"", "true", "1.5"}}, table.Rows)
}

func TestTable_Items(t *testing.T) {
	table := Table{
		Columns: []string{"Qty", "Description"},
		Rows: [][]string{
			{"10", "Hex Bolt M8"},
			{"", "  "},
			{},
			{"", "Washer"},
		},
	}

	items := table.Items()
	require.Len(t, items, 2)
	assert.Equal(t, Item{Description: "10 | Hex Bolt M8", Quantity: 1}, items[0])
	assert.Equal(t, Item{Description: " | Washer", Quantity: 1}, items[1])
}

func TestTable_ItemsEmpty(t *testing.T) {
	items := Table{}.Items()
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestTable_JSONRoundTripKeepsTitle(t *testing.T) {
	in := Table{Title: "Export", Columns: []string{"A"}, Rows: [][]string{{"x"}}}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Table
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
