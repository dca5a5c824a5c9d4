// Package reporter renders forecast results.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one row per forecast event or per week, for spreadsheets
//
// Example usage:
//
//	gen, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = gen.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cashflow-forecast-service/internal/forecaster"
	"cashflow-forecast-service/internal/models"
	"cashflow-forecast-service/pkg/errors"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// CSVContent selects what a CSV report lists
type CSVContent string

const (
	CSVEvents CSVContent = "events"
	CSVWeekly CSVContent = "weekly"
)

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Sections
	IncludePatterns bool `json:"include_patterns"`
	IncludeEvents   bool `json:"include_events"`
	IncludeWeekly   bool `json:"include_weekly"`
	IncludeErrors   bool `json:"include_errors"`

	// Console options
	TableMaxWidth int `json:"table_max_width"`
	// MaxEvents caps the console event listing; zero lists every event.
	MaxEvents int `json:"max_events"`
	// SortByForecastability orders patterns from most to least forecastable.
	SortByForecastability bool `json:"sort_by_forecastability"`

	// CSV options
	CSVContent   CSVContent `json:"csv_content"`
	CSVDelimiter rune       `json:"csv_delimiter"`
	CSVHeaders   bool       `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                FormatConsole,
		IncludePatterns:       true,
		IncludeEvents:         true,
		IncludeWeekly:         true,
		IncludeErrors:         true,
		TableMaxWidth:         120,
		MaxEvents:             50,
		SortByForecastability: true,
		CSVContent:            CSVEvents,
		CSVDelimiter:          ',',
		CSVHeaders:            true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}
	if c.Format == FormatCSV && c.CSVContent != CSVEvents && c.CSVContent != CSVWeekly {
		return fmt.Errorf("invalid csv content %q (want events or weekly)", c.CSVContent)
	}
	if c.MaxEvents < 0 {
		return fmt.Errorf("max events cannot be negative, got %d", c.MaxEvents)
	}
	return nil
}

// ReportGenerator generates forecast reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.CSVDelimiter == 0 {
		config.CSVDelimiter = ','
	}
	if config.Format == FormatCSV && config.CSVContent == "" {
		config.CSVContent = CSVEvents
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes a report of result to writer
func (rg *ReportGenerator) GenerateReport(result *forecaster.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("forecast result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *forecaster.Result, writer io.Writer) error {
	ew := &errWriter{w: writer}

	ew.printf("CASH FLOW FORECAST\n")
	ew.printf("As of: %s   Window: %s to %s\n",
		formatDate(result.AsOf), formatDate(result.StartDate), formatDate(result.EndDate))
	ew.printf("Vendor groups: %d   Events: %d   Duration: %v\n\n",
		len(result.Groups), len(result.Events), result.Duration)

	if rg.config.IncludePatterns {
		ew.printf("=== PATTERNS ===\n")
		rg.printPatterns(ew, result.Patterns())
		ew.printf("\n")
	}

	if rg.config.IncludeEvents {
		ew.printf("=== FORECAST EVENTS ===\n")
		rg.printEvents(ew, result.Events)
		ew.printf("\n")
	}

	if rg.config.IncludeWeekly {
		ew.printf("=== WEEKLY SUMMARY ===\n")
		rg.printWeekly(ew, result.Weekly)
		if len(result.Truncated) > 0 {
			ew.printf("Events outside the requested weeks (not summarised): %d\n", len(result.Truncated))
		}
		ew.printf("\n")
	}

	if rg.config.IncludeErrors && len(result.Errors) > 0 {
		ew.printf("=== PROBLEMS ===\n")
		if summary := errors.NewErrorSummary(result.Errors); summary.Total > 1 {
			ew.printf("%s\n", summary.Error())
		}
		for _, e := range result.Errors {
			ew.printf("  - %s\n", e.Error())
		}
	}
	return ew.err
}

func (rg *ReportGenerator) printPatterns(ew *errWriter, patterns []models.Pattern) {
	if len(patterns) == 0 {
		ew.printf("No vendor groups analysed\n")
		return
	}

	sorted := append([]models.Pattern(nil), patterns...)
	if rg.config.SortByForecastability {
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Forecastability > sorted[j].Forecastability
		})
	}

	width := rg.groupWidth(len("Vendor Group"))
	ew.printf("%-*s  %-10s  %-18s  %14s  %-19s  %6s  %6s\n",
		width, "Vendor Group", "Frequency", "Timing", "Amount", "Method", "Conf", "Score")
	ew.printf("%s\n", strings.Repeat("-", min(rg.config.TableMaxWidth, width+87)))
	for _, p := range sorted {
		timing := "-"
		if p.Timing != nil {
			timing = p.Timing.String()
		}
		ew.printf("%-*s  %-10s  %-18s  %14s  %-19s  %6.2f  %6.2f\n",
			width, truncate(p.VendorGroup, width), p.Frequency, truncate(timing, 18),
			p.AmountEstimate.StringFixed(2), p.Method, p.FrequencyConfidence, p.Forecastability)
	}
}

func (rg *ReportGenerator) printEvents(ew *errWriter, events []models.ForecastEvent) {
	if len(events) == 0 {
		ew.printf("No events in the forecast window\n")
		return
	}

	width := rg.groupWidth(len("Vendor Group"))
	ew.printf("%-10s  %-*s  %14s  %-10s  %-16s  %5s\n", "Date", width, "Vendor Group", "Amount", "Frequency", "Source", "Conf")
	for i, e := range events {
		if rg.config.MaxEvents > 0 && i >= rg.config.MaxEvents {
			ew.printf("  ... and %d more\n", len(events)-rg.config.MaxEvents)
			break
		}
		ew.printf("%-10s  %-*s  %14s  %-10s  %-16s  %5.2f\n",
			formatDate(e.Date), width, truncate(e.VendorGroup, width), e.Amount.StringFixed(2),
			e.Frequency, e.Source, e.Confidence)
	}
}

func (rg *ReportGenerator) printWeekly(ew *errWriter, weeks []models.WeeklySummary) {
	if len(weeks) == 0 {
		ew.printf("No weeks to summarise\n")
		return
	}

	ew.printf("%5s  %-10s  %-10s  %14s  %14s  %14s  %6s\n", "Week", "Start", "End", "Deposits", "Withdrawals", "Net", "Events")
	deposits, withdrawals := decimal.Zero, decimal.Zero
	for _, w := range weeks {
		ew.printf("%5d  %-10s  %-10s  %14s  %14s  %14s  %6d\n",
			w.WeekNumber, formatDate(w.StartDate), formatDate(w.EndDate),
			w.Deposits.StringFixed(2), w.Withdrawals.StringFixed(2), w.Net.StringFixed(2), len(w.Events))
		deposits = deposits.Add(w.Deposits)
		withdrawals = withdrawals.Add(w.Withdrawals)
	}
	ew.printf("%5s  %-10s  %-10s  %14s  %14s  %14s\n", "Total", "", "",
		deposits.StringFixed(2), withdrawals.StringFixed(2), deposits.Sub(withdrawals).StringFixed(2))
}

// groupWidth sizes the vendor group column to what the table width allows
func (rg *ReportGenerator) groupWidth(minWidth int) int {
	w := rg.config.TableMaxWidth - 90
	if w < minWidth {
		return minWidth
	}
	if w > 32 {
		return 32
	}
	return w
}

func (rg *ReportGenerator) generateJSONReport(result *forecaster.Result, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterResultForOutput(result))
}

func (rg *ReportGenerator) filterResultForOutput(result *forecaster.Result) map[string]interface{} {
	output := map[string]interface{}{
		"as_of":      formatDate(result.AsOf),
		"start_date": formatDate(result.StartDate),
		"end_date":   formatDate(result.EndDate),
	}

	if rg.config.IncludePatterns {
		output["patterns"] = result.Patterns()
	}
	if rg.config.IncludeEvents {
		output["events"] = nonNilEvents(result.Events)
	}
	if rg.config.IncludeWeekly {
		output["weekly"] = result.Weekly
		if len(result.Truncated) > 0 {
			output["truncated_events"] = result.Truncated
		}
	}
	if rg.config.IncludeErrors && len(result.Errors) > 0 {
		output["errors"] = result.Errors
	}
	return output
}

func (rg *ReportGenerator) generateCSVReport(result *forecaster.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	var err error
	if rg.config.CSVContent == CSVWeekly {
		err = rg.writeWeeklyCSV(csvWriter, result.Weekly)
	} else {
		err = rg.writeEventsCSV(csvWriter, result.Events)
	}
	if err != nil {
		return err
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) writeEventsCSV(w *csv.Writer, events []models.ForecastEvent) error {
	if rg.config.CSVHeaders {
		headers := []string{"date", "vendor_group", "amount", "event_type", "frequency", "confidence", "source", "override_id", "note"}
		if err := w.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	for _, e := range events {
		record := []string{
			formatDate(e.Date),
			e.VendorGroup,
			e.Amount.StringFixed(2),
			string(e.EventType),
			string(e.Frequency),
			fmt.Sprintf("%.2f", e.Confidence),
			string(e.Source),
			e.OverrideID,
			e.Note,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write event record: %w", err)
		}
	}
	return nil
}

func (rg *ReportGenerator) writeWeeklyCSV(w *csv.Writer, weeks []models.WeeklySummary) error {
	if rg.config.CSVHeaders {
		headers := []string{"week_number", "start_date", "end_date", "deposits", "withdrawals", "net", "event_count"}
		if err := w.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	for _, wk := range weeks {
		record := []string{
			fmt.Sprintf("%d", wk.WeekNumber),
			formatDate(wk.StartDate),
			formatDate(wk.EndDate),
			wk.Deposits.StringFixed(2),
			wk.Withdrawals.StringFixed(2),
			wk.Net.StringFixed(2),
			fmt.Sprintf("%d", len(wk.Events)),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write weekly record: %w", err)
		}
	}
	return nil
}

// errWriter keeps the first write error so the console report can be
// written without checking every line.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func formatDate(d time.Time) string {
	return d.Format(models.DateLayout)
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}

func nonNilEvents(events []models.ForecastEvent) []models.ForecastEvent {
	if events == nil {
		return []models.ForecastEvent{}
	}
	return events
}
