package reports

import (
	"context"
	"fmt"
	"io"

	"github.com/rmax-ai/topolord/pkg/index"
)

// ReferenceReport lists broken parent references and skipped documents.
type ReferenceReport struct {
	src Source
}

func NewReferenceReport(src Source) *ReferenceReport {
	return &ReferenceReport{src: src}
}

func (r *ReferenceReport) Generate(ctx context.Context, format ReportFormat) (io.Reader, error) {
	idx, err := r.src.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	issues := idx.ValidateReferences()
	skipped := idx.Skipped()

	t := table{
		headers: []string{"kind", "document_id", "source_type", "field", "value", "message"},
		records: struct {
			Issues  []index.Issue   `json:"issues"`
			Skipped []index.Skipped `json:"skipped"`
		}{Issues: nonNil(issues), Skipped: nonNil(skipped)},
	}
	for _, s := range skipped {
		t.rows = append(t.rows, []string{"skipped", s.DocumentID, "", "", "", s.Reason})
	}
	for _, is := range issues {
		t.rows = append(t.rows, []string{string(is.Kind), is.DocumentID, string(is.SourceType), is.Field, is.Value, is.Message})
	}
	return t.render(format)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
