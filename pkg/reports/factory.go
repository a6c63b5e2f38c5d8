package reports

import (
	"fmt"
)

// NewReportGenerator creates a report generator based on the report type.
func NewReportGenerator(reportType ReportType, src Source) (Generator, error) {
	switch reportType {
	case ReportTypeRackCapacity:
		return NewRackCapacityReport(src), nil
	case ReportTypeReferences:
		return NewReferenceReport(src), nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}
