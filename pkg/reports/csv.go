package reports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// table is the common shape of every report: a header and string rows,
// or a slice of records when rendered as JSON.
type table struct {
	headers []string
	rows    [][]string
	records any
}

func (t table) render(format ReportFormat) (io.Reader, error) {
	buf := &bytes.Buffer{}
	switch format {
	case ReportFormatJSON:
		enc := json.NewEncoder(buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(t.records); err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		return buf, nil
	case ReportFormatCSV, "":
	default:
		return nil, fmt.Errorf("unknown report format: %s", format)
	}

	writer := csv.NewWriter(buf)
	if err := writer.Write(t.headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for _, row := range t.rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return buf, nil
}
