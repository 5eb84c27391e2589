// pkg/ingest/csv.go
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chartcsv/import-engine/pkg/model"
)

// ParseCSV reads a header row plus data rows from r. Header cells are
// trimmed; every data cell comes back as a string value, with type
// normalization left to the canonicalizer. Rows that are blank in every
// cell are dropped.
func ParseCSV(r io.Reader) ([]string, []model.Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, errors.New("csv input is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = strings.TrimSpace(col)
	}

	var rows []model.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read csv row: %w", err)
		}

		row := make(model.Row, len(columns))
		blank := true
		for i, col := range columns {
			if i >= len(record) {
				row[col] = model.Null()
				continue
			}
			cell := strings.TrimSpace(record[i])
			if cell != "" {
				blank = false
			}
			row[col] = model.String(cell)
		}
		if blank {
			continue
		}
		rows = append(rows, row)
	}

	return columns, rows, nil
}
