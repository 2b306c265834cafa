package document

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	dataSheet     = "Document Data"
	mappingsSheet = "Product Mappings"
	infoSheet     = "Document Info"

	timestampLayout = "2006-01-02 15:04:05"
	maxColumnWidth  = 80
)

var mappingHeaders = []string{"Row", "Original Content", "Mapped Product ID", "Mapped Product Description"}

// ExportExcel renders the table, any mappings and the document's details as
// an xlsx workbook. It returns the file bytes and a download name.
func (s *Service) ExportExcel(ctx context.Context, id uuid.UUID, req ExportRequest) ([]byte, string, error) {
	doc, err := s.repo.FindDocument(ctx, id)
	if err != nil {
		return nil, "", err
	}

	data, err := buildWorkbook(doc, req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build workbook: %w", err)
	}

	s.logger.Info("document exported",
		slog.String("document_id", id.String()),
		slog.Int("rows", len(req.Table.Rows)),
		slog.Int("mappings", len(req.Mappings)),
	)
	return data, fmt.Sprintf("document_%s_export.xlsx", id), nil
}

func buildWorkbook(doc *Document, req ExportRequest) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), dataSheet); err != nil {
		return nil, err
	}

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"0D6EFD"}, Pattern: 1},
		Border: border,
	})
	if err != nil {
		return nil, err
	}
	cellStyle, err := f.NewStyle(&excelize.Style{Border: border})
	if err != nil {
		return nil, err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	columns := req.Table.Columns
	if len(columns) == 0 {
		columns = []string{"Content"}
	}
	rows := make([][]any, 0, len(req.Table.Rows))
	for _, r := range req.Table.Rows {
		row := make([]any, len(r))
		for i, c := range r {
			row[i] = c
		}
		rows = append(rows, row)
	}
	if err := writeSheet(f, dataSheet, columns, rows, headerStyle, cellStyle); err != nil {
		return nil, err
	}

	if len(req.Mappings) > 0 {
		if _, err := f.NewSheet(mappingsSheet); err != nil {
			return nil, err
		}
		rows := make([][]any, len(req.Mappings))
		for i, m := range req.Mappings {
			rows[i] = []any{m.RowIndex + 1, m.OriginalContent, m.ProductID, m.ProductDescription}
		}
		if err := writeSheet(f, mappingsSheet, mappingHeaders, rows, headerStyle, cellStyle); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(infoSheet); err != nil {
		return nil, err
	}
	info := [][2]string{
		{"Document ID:", doc.ID.String()},
		{"Filename:", doc.Filename},
		{"Upload Date:", doc.UploadDate.Format(timestampLayout)},
		{"Export Date:", now().Format(timestampLayout)},
	}
	for i, kv := range info {
		label, _ := excelize.CoordinatesToCellName(1, i+1)
		value, _ := excelize.CoordinatesToCellName(2, i+1)
		if err := f.SetCellValue(infoSheet, label, kv[0]); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(infoSheet, label, label, labelStyle); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(infoSheet, value, kv[1]); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(infoSheet, "A", "A", 16); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(infoSheet, "B", "B", 40); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeSheet writes a styled header row and data rows, then widens each
// column to fit its longest value.
func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle, cellStyle int) error {
	widths := make(map[int]int)
	fit := func(col int, v any) {
		if n := len([]rune(fmt.Sprint(v))) + 2; n > widths[col] {
			widths[col] = min(n, maxColumnWidth)
		}
	}

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return err
		}
		fit(i+1, h)
	}

	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
			if err := f.SetCellStyle(sheet, cell, cell, cellStyle); err != nil {
				return err
			}
			fit(c+1, v)
		}
	}

	for col, w := range widths {
		name, err := excelize.ColumnNumberToName(col)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, float64(w)); err != nil {
			return err
		}
	}
	return nil
}
