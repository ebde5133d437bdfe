package reportobs

import (
	"context"
	"time"

	"pead-drift/internal/interfaces"
	"pead-drift/internal/logger"
	"pead-drift/internal/research/pead"
	"pead-drift/internal/trace"
)

type observableReportWriter struct {
	writer interfaces.ReportWriter
}

var _ interfaces.ReportWriter = (*observableReportWriter)(nil)

func Wrap(writer interfaces.ReportWriter) interfaces.ReportWriter {
	return &observableReportWriter{
		writer: writer,
	}
}

func (o *observableReportWriter) WriteJSON(report *pead.Report) (string, error) {
	return o.observe("report.WriteJSON", "json", report, o.writer.WriteJSON)
}

func (o *observableReportWriter) WriteCSV(report *pead.Report) (string, error) {
	return o.observe("report.WriteCSV", "csv", report, o.writer.WriteCSV)
}

func (o *observableReportWriter) observe(op, format string, report *pead.Report, write func(*pead.Report) (string, error)) (string, error) {
	ctx, span := trace.StartSpan(context.Background(), op)
	defer span.End()

	start := time.Now()
	path, err := write(report)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 2, "Report write failed", err,
			"format", format,
			"run_id", report.RunID,
		)
		return "", err
	}

	logger.InfoSkip(ctx, 2, "Report written",
		"format", format,
		"path", path,
		"run_id", report.RunID,
		"companies", len(report.Companies),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return path, nil
}
