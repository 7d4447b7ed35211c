package numberset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

// ExtractCells returns every cell value of the upload in row-major order.
// Spreadsheets contribute their first sheet only.
func ExtractCells(r io.Reader, filename string) ([]string, error) {
	if r == nil {
		return nil, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: upload is empty", domain.ErrUnparsableFile)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return csvCells(data)
	default:
		return xlsxCells(data)
	}
}

func xlsxCells(data []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnparsableFile, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrUnparsableFile)
	}

	// Raw values keep long numeric cells out of scientific notation.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", domain.ErrUnparsableFile, sheet, err)
	}

	cells := make([]string, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, row...)
	}
	return cells, nil
}

func csvCells(data []byte) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	cells := make([]string, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnparsableFile, err)
		}
		cells = append(cells, record...)
	}
	return cells, nil
}
