package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/models"
)

var (
	ErrMalformedCsv = errors.New("malformed CSV content")
	ErrEmptyFile    = errors.New("CSV file has no data rows")
	ErrTooManyRows  = errors.New("CSV file exceeds the maximum row count")
	ErrFileTooLarge = errors.New("CSV file exceeds the maximum size")
)

// CsvParser reads uploaded broker exports into a ParsedCsv. Limits are
// enforced while reading so an oversized upload never fully materializes.
type CsvParser struct {
	MaxRows      int
	MaxSizeBytes int64
}

func NewCsvParser(maxRows int, maxSizeBytes int64) *CsvParser {
	return &CsvParser{MaxRows: maxRows, MaxSizeBytes: maxSizeBytes}
}

// Parse reads the full CSV stream. The first record is the header row; every
// following record becomes a CsvRowData keyed by header name, with RowNumber
// counting data rows from 1. Records whose field count disagrees with the
// header make the whole file malformed.
func (p *CsvParser) Parse(r io.Reader) (*models.ParsedCsv, error) {
	// Read one byte past the limit so an oversized stream is detected rather
	// than silently cut off at a record boundary.
	var limited *io.LimitedReader
	if p.MaxSizeBytes > 0 {
		limited = &io.LimitedReader{R: r, N: p.MaxSizeBytes + 1}
		r = limited
	}
	tooLarge := func() bool { return limited != nil && limited.N == 0 }

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCsv, err)
	}

	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	if len(headers) == 0 || (len(headers) == 1 && headers[0] == "") {
		return nil, ErrEmptyFile
	}

	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if h == "" {
			return nil, fmt.Errorf("%w: empty column header", ErrMalformedCsv)
		}
		if seen[h] {
			return nil, fmt.Errorf("%w: duplicate column header %q", ErrMalformedCsv, h)
		}
		seen[h] = true
	}

	parsed := &models.ParsedCsv{Headers: headers}
	rowNumber := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if tooLarge() {
				return nil, fmt.Errorf("%w (limit %d bytes)", ErrFileTooLarge, p.MaxSizeBytes)
			}
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedCsv, rowNumber+1, err)
		}

		if isBlankRecord(record) {
			continue
		}

		rowNumber++
		if p.MaxRows > 0 && rowNumber > p.MaxRows {
			logger.L.Warn("CSV upload rejected: too many rows", "maxRows", p.MaxRows)
			return nil, fmt.Errorf("%w (limit %d)", ErrTooManyRows, p.MaxRows)
		}

		values := make(map[string]string, len(headers))
		for i, h := range headers {
			values[h] = strings.TrimSpace(record[i])
		}
		parsed.Rows = append(parsed.Rows, models.CsvRowData{Values: values, RowNumber: rowNumber})
	}

	if tooLarge() {
		return nil, fmt.Errorf("%w (limit %d bytes)", ErrFileTooLarge, p.MaxSizeBytes)
	}
	if len(parsed.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return parsed, nil
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
