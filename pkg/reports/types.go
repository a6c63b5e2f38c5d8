// Package reports renders tabular summaries of the document collection:
// rack unit usage and broken parent references.
package reports

import (
	"context"
	"io"

	"github.com/rmax-ai/topolord/pkg/index"
)

type ReportType string

const (
	ReportTypeRackCapacity ReportType = "rack_capacity"
	ReportTypeReferences   ReportType = "references"
)

type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatJSON ReportFormat = "json"
)

// Source yields the parsed document index a report reads from.
// *navigator.Loader satisfies it.
type Source interface {
	Index(ctx context.Context) (*index.Index, error)
}

type Generator interface {
	Generate(ctx context.Context, format ReportFormat) (io.Reader, error)
}
