package catalog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
)

// catalogRow binds normalized header names to entry fields. Headers such as
// "Thread Type" or "THREAD-TYPE" both arrive here as thread_type.
type catalogRow struct {
	Type        string `csv:"type"`
	Material    string `csv:"material"`
	Size        string `csv:"size"`
	Length      string `csv:"length"`
	Coating     string `csv:"coating"`
	ThreadType  string `csv:"thread_type"`
	Description string `csv:"description"`
}

func (r catalogRow) entry() matching.CatalogEntry {
	return matching.CatalogEntry{
		Description: r.Description,
		Type:        r.Type,
		Material:    r.Material,
		Size:        r.Size,
		Length:      r.Length,
		Coating:     r.Coating,
		ThreadType:  r.ThreadType,
	}
}

// FileSource reads the catalog file on every LoadCatalog call, so edits to
// the file are picked up without a restart.
type FileSource struct {
	Path string
}

// NewFileSource creates a file-backed catalog source
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// LoadCatalog implements matching.CatalogSource
func (s *FileSource) LoadCatalog(ctx context.Context) ([]matching.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadFile(s.Path)
}

// LoadFile loads a CSV or XLSX catalog, chosen by file extension. Anything
// that is not .xlsx is read as delimited text.
func LoadFile(path string) ([]matching.CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCatalogFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(bytes.NewReader(data))
	case ".xls":
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	default:
		return LoadCSV(bytes.NewReader(data))
	}
}

// LoadCSV parses a delimited catalog. The delimiter is sniffed from the
// header line, a UTF-8 BOM is dropped and input that is not valid UTF-8 is
// decoded as Latin-1.
func LoadCSV(r io.Reader) ([]matching.CatalogEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	data, err = normalizeEncoding(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog CSV: %w", err)
	}

	return entriesFromRecords(records)
}

// LoadXLSX parses the first worksheet of a workbook.
func LoadXLSX(r io.Reader) ([]matching.CatalogEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyCatalogFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	return entriesFromRecords(rows)
}

func entriesFromRecords(records [][]string) ([]matching.CatalogEntry, error) {
	if len(records) == 0 {
		return nil, ErrEmptyCatalogFile
	}

	header := make([]string, len(records[0]))
	hasDescription := false
	for i, h := range records[0] {
		header[i] = normalizeHeader(h)
		if header[i] == "description" {
			hasDescription = true
		}
	}
	if !hasDescription {
		return nil, ErrMissingDescriptionColumn
	}

	table := make([][]string, 0, len(records))
	table = append(table, header)
	for _, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		// short rows leave the trailing columns empty
		row := make([]string, len(header))
		copy(row, rec)
		table = append(table, row)
	}

	entries := make([]matching.CatalogEntry, 0, len(table)-1)
	if len(table) == 1 {
		return entries, nil
	}

	var rows []catalogRow
	if err := gocsv.UnmarshalCSV(&recordReader{records: table}, &rows); err != nil {
		return nil, fmt.Errorf("failed to map catalog rows: %w", err)
	}

	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}

// normalizeHeader lower-cases h and joins its words with underscores.
func normalizeHeader(h string) string {
	fields := strings.FieldsFunc(strings.ToLower(h), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, "_")
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func normalizeEncoding(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	if utf8.Valid(data) {
		return data, nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode catalog as Latin-1: %w", err)
	}
	return decoded, nil
}

// sniffDelimiter picks the separator that occurs most often on the header
// line, falling back to a comma.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// recordReader feeds already parsed records to gocsv.
type recordReader struct {
	records [][]string
	pos     int
}

func (r *recordReader) Read() ([]string, error) {
	if r.pos >= len(r.records) {
		return nil, io.EOF
	}
	rec := r.records[r.pos]
	r.pos++
	return rec, nil
}

func (r *recordReader) ReadAll() ([][]string, error) {
	rest := r.records[r.pos:]
	r.pos = len(r.records)
	return rest, nil
}
