package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashflow-forecast-service/internal/aggregator"
	"cashflow-forecast-service/internal/forecaster"
	"cashflow-forecast-service/internal/models"
	"cashflow-forecast-service/pkg/errors"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func createSampleForecastResult() *forecaster.Result {
	payroll := models.Pattern{
		VendorGroup:         "Payroll",
		Frequency:           models.FrequencyBiWeekly,
		FrequencyConfidence: 0.9,
		Timing:              models.WeekdayTiming(time.Tuesday),
		AmountEstimate:      decimal.NewFromInt(-44500),
		AmountConfidence:    0.8,
		Method:              models.MethodIQRMean,
		Forecastability:     0.83,
	}
	rent := models.Pattern{
		VendorGroup:         "Rent",
		Frequency:           models.FrequencyMonthly,
		FrequencyConfidence: 1,
		Timing:              models.DayOfMonthTiming(1),
		AmountEstimate:      decimal.NewFromInt(-2000),
		AmountConfidence:    1,
		Method:              models.MethodIQRMean,
		Forecastability:     0.95,
	}
	stripe := models.Pattern{
		VendorGroup:    "Stripe",
		Frequency:      models.FrequencyIrregular,
		AmountEstimate: decimal.NewFromInt(1200),
		Method:         models.MethodWeightedMean,
	}

	event := func(date, group, amount string, freq models.Frequency) models.ForecastEvent {
		return models.ForecastEvent{
			Date:        day(date),
			VendorGroup: group,
			Amount:      decimal.RequireFromString(amount),
			EventType:   models.EventRecurring,
			Frequency:   freq,
			Confidence:  0.9,
			Source:      models.SourcePatternDetected,
		}
	}
	events := []models.ForecastEvent{
		event("2025-07-22", "Payroll", "-44500", models.FrequencyBiWeekly),
		event("2025-08-01", "Rent", "-2000", models.FrequencyMonthly),
		{
			Date: day("2025-08-05"), VendorGroup: "Payroll", Amount: decimal.NewFromInt(-50000),
			EventType: models.EventOverride, Frequency: models.FrequencyBiWeekly, Confidence: 0.9,
			Source: models.SourceManualOverride, OverrideID: "ovr-1", Note: "bonus, July",
		},
	}

	start := day("2025-07-09")
	return &forecaster.Result{
		AsOf:      day("2025-07-08"),
		StartDate: start,
		EndDate:   day("2025-08-05"),
		Groups: []*forecaster.GroupForecast{
			{VendorGroup: "Payroll", Pattern: payroll},
			{VendorGroup: "Rent", Pattern: rent},
			{VendorGroup: "Stripe", Pattern: stripe},
		},
		Events: events,
		Weekly: aggregator.AggregateWeekly(events, start, 5, aggregator.Options{}),
		Errors: []*errors.ForecastError{
			errors.AnalysisError(errors.CodeMalformedRecord, "Payroll", stderrors.New("vendor name cannot be empty")),
		},
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{name: "default config", config: nil},
		{name: "valid config", config: DefaultReportConfig()},
		{name: "invalid format", config: &ReportConfig{Format: "xml", TableMaxWidth: 120}, expectError: true},
		{name: "table width too small", config: &ReportConfig{Format: FormatConsole, TableMaxWidth: 30}, expectError: true},
		{name: "csv defaults to events", config: &ReportConfig{Format: FormatCSV, TableMaxWidth: 120}},
		{name: "bad csv content", config: &ReportConfig{Format: FormatCSV, TableMaxWidth: 120, CSVContent: "patterns"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if tt.format.IsValid() != tt.valid {
				t.Errorf("expected IsValid() = %v for format %q", tt.valid, tt.format)
			}
		})
	}
}

func TestConsoleOutputSections(t *testing.T) {
	generator, err := NewReportGenerator(DefaultReportConfig())
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleForecastResult(), &buf); err != nil {
		t.Fatalf("console report failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"CASH FLOW FORECAST",
		"=== PATTERNS ===",
		"=== FORECAST EVENTS ===",
		"=== WEEKLY SUMMARY ===",
		"=== PROBLEMS ===",
		"Tuesday",
		"-44500.00",
		"manual_override",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("console output should contain %q\n%s", want, output)
		}
	}

	// Rent is the most forecastable group and is listed first.
	patterns := output[strings.Index(output, "=== PATTERNS ==="):strings.Index(output, "=== FORECAST EVENTS ===")]
	if strings.Index(patterns, "Rent") > strings.Index(patterns, "Payroll") {
		t.Errorf("patterns should be sorted by forecastability:\n%s", patterns)
	}
}

func TestConsoleReportSummarisesProblems(t *testing.T) {
	result := createSampleForecastResult()
	result.Errors = append(result.Errors,
		errors.AnalysisError(errors.CodeGroupFailed, "Rent", stderrors.New("store unavailable")),
		errors.InternalError(errors.CodeCancelled, "forecast_group", stderrors.New("context canceled")))

	generator, _ := NewReportGenerator(DefaultReportConfig())
	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("console report failed: %v", err)
	}

	problems := buf.String()[strings.Index(buf.String(), "=== PROBLEMS ==="):]
	if !strings.Contains(problems, "3 errors occurred (analysis: 2, internal: 1)") {
		t.Errorf("expected a category summary line:\n%s", problems)
	}
	if strings.Count(problems, "  - ") != 3 {
		t.Errorf("expected 3 listed problems:\n%s", problems)
	}
}

func TestConsoleOutput_SectionToggles(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeEvents = false
	config.IncludeWeekly = false
	config.IncludeErrors = false

	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleForecastResult(), &buf); err != nil {
		t.Fatalf("console report failed: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "=== PATTERNS ===") {
		t.Errorf("patterns section missing")
	}
	for _, unwanted := range []string{"=== FORECAST EVENTS ===", "=== WEEKLY SUMMARY ===", "=== PROBLEMS ==="} {
		if strings.Contains(output, unwanted) {
			t.Errorf("console output should not contain %q", unwanted)
		}
	}
}

func TestConsoleOutput_MaxEvents(t *testing.T) {
	config := DefaultReportConfig()
	config.MaxEvents = 1

	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleForecastResult(), &buf); err != nil {
		t.Fatalf("console report failed: %v", err)
	}
	if !strings.Contains(buf.String(), "... and 2 more") {
		t.Errorf("expected event listing to be capped:\n%s", buf.String())
	}
}

func TestJSONOutput(t *testing.T) {
	generator, err := NewReportGenerator(&ReportConfig{
		Format:          FormatJSON,
		IncludePatterns: true,
		IncludeEvents:   true,
		IncludeWeekly:   true,
		TableMaxWidth:   120,
	})
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleForecastResult(), &buf); err != nil {
		t.Fatalf("json report failed: %v", err)
	}

	var data struct {
		AsOf     string            `json:"as_of"`
		Patterns []json.RawMessage `json:"patterns"`
		Events   []struct {
			Date   string `json:"date"`
			Amount string `json:"amount"`
		} `json:"events"`
		Weekly []struct {
			WeekNumber int    `json:"week_number"`
			Net        string `json:"net"`
		} `json:"weekly"`
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("output should be valid JSON: %v\n%s", err, buf.String())
	}

	if data.AsOf != "2025-07-08" {
		t.Errorf("expected as_of 2025-07-08, got %q", data.AsOf)
	}
	if len(data.Patterns) != 3 {
		t.Errorf("expected 3 patterns, got %d", len(data.Patterns))
	}
	if len(data.Events) != 3 || data.Events[0].Date != "2025-07-22" {
		t.Errorf("unexpected events: %+v", data.Events)
	}
	if len(data.Weekly) != 5 {
		t.Errorf("expected 5 weeks, got %d", len(data.Weekly))
	}
	if data.Errors != nil {
		t.Errorf("errors should be omitted when not requested")
	}
}

func TestCSVFormatting(t *testing.T) {
	tests := []struct {
		name       string
		content    CSVContent
		wantHeader []string
		wantRows   int
	}{
		{
			name:       "events",
			content:    CSVEvents,
			wantHeader: []string{"date", "vendor_group", "amount", "event_type", "frequency", "confidence", "source", "override_id", "note"},
			wantRows:   3,
		},
		{
			name:       "weekly",
			content:    CSVWeekly,
			wantHeader: []string{"week_number", "start_date", "end_date", "deposits", "withdrawals", "net", "event_count"},
			wantRows:   5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(&ReportConfig{
				Format:        FormatCSV,
				CSVContent:    tt.content,
				CSVHeaders:    true,
				TableMaxWidth: 120,
			})
			if err != nil {
				t.Fatalf("failed to create generator: %v", err)
			}

			var buf bytes.Buffer
			if err := generator.GenerateReport(createSampleForecastResult(), &buf); err != nil {
				t.Fatalf("csv report failed: %v", err)
			}

			records, err := csv.NewReader(&buf).ReadAll()
			if err != nil {
				t.Fatalf("output should be valid CSV: %v", err)
			}
			if len(records) != tt.wantRows+1 {
				t.Fatalf("expected %d rows plus header, got %d", tt.wantRows, len(records))
			}
			if strings.Join(records[0], ",") != strings.Join(tt.wantHeader, ",") {
				t.Errorf("unexpected header %v", records[0])
			}
		})
	}
}

func TestCSVFormatting_QuotesNotes(t *testing.T) {
	generator, err := NewReportGenerator(&ReportConfig{Format: FormatCSV, CSVContent: CSVEvents, TableMaxWidth: 120})
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleForecastResult(), &buf); err != nil {
		t.Fatalf("csv report failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output should be valid CSV: %v", err)
	}
	last := records[len(records)-1]
	if last[7] != "ovr-1" || last[8] != "bonus, July" {
		t.Errorf("override columns not preserved: %v", last)
	}
}

func TestWeeklyTotals(t *testing.T) {
	result := createSampleForecastResult()
	generator, _ := NewReportGenerator(DefaultReportConfig())

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("console report failed: %v", err)
	}
	// 44500 + 2000 + 50000 withdrawn in total
	if !strings.Contains(buf.String(), "96500.00") {
		t.Errorf("weekly total withdrawals missing:\n%s", buf.String())
	}
}

func TestEmptyResultHandling(t *testing.T) {
	empty := &forecaster.Result{AsOf: day("2025-07-08"), StartDate: day("2025-07-09"), EndDate: day("2025-07-15")}

	for _, format := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			generator, err := NewReportGenerator(&ReportConfig{
				Format:          format,
				IncludePatterns: true,
				IncludeEvents:   true,
				IncludeWeekly:   true,
				TableMaxWidth:   120,
				CSVHeaders:      true,
			})
			if err != nil {
				t.Fatalf("failed to create generator: %v", err)
			}

			var buf bytes.Buffer
			if err := generator.GenerateReport(empty, &buf); err != nil {
				t.Fatalf("empty result should still render: %v", err)
			}
			if format == FormatConsole && !strings.Contains(buf.String(), "No events in the forecast window") {
				t.Errorf("expected empty events notice:\n%s", buf.String())
			}
			if format == FormatJSON && !strings.Contains(buf.String(), `"events": []`) {
				t.Errorf("expected empty events array:\n%s", buf.String())
			}
		})
	}

	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error for nil result")
	}
}

// failOnceWriter fails its first write and then behaves like a buffer
type failOnceWriter struct {
	bytes.Buffer
	failed bool
}

func (w *failOnceWriter) Write(p []byte) (int, error) {
	if !w.failed {
		w.failed = true
		return 0, stderrors.New("broken pipe")
	}
	return w.Buffer.Write(p)
}

func TestSafeReportGenerator_FormatFallback(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	srg, err := NewSafeReportGenerator(config, nil)
	if err != nil {
		t.Fatalf("failed to create safe generator: %v", err)
	}

	w := &failOnceWriter{}
	if err := srg.GenerateReportSafely(createSampleForecastResult(), w); err != nil {
		t.Fatalf("expected fallback to succeed: %v", err)
	}
	output := w.String()
	if !strings.Contains(output, "NOTE: Report generated in console format") {
		t.Errorf("expected fallback notice:\n%s", output)
	}
	if !strings.Contains(output, "=== PATTERNS ===") {
		t.Errorf("expected console report after fallback:\n%s", output)
	}
}

func TestSafeReportGenerator_Validation(t *testing.T) {
	srg, err := NewSafeReportGenerator(nil, nil)
	if err != nil {
		t.Fatalf("failed to create safe generator: %v", err)
	}

	if err := srg.GenerateReportSafely(nil, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error for nil result")
	}
	if err := srg.GenerateReportSafely(createSampleForecastResult(), nil); err == nil {
		t.Errorf("expected error for nil writer")
	}

	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "xml", TableMaxWidth: 120}, nil); err == nil {
		t.Errorf("expected configuration error")
	} else if errors.GetExitCode(err) != 4 {
		t.Errorf("expected configuration exit code 4, got %d", errors.GetExitCode(err))
	}
}

func TestBackupPathFor(t *testing.T) {
	tests := map[string]string{
		"/tmp/report.json": "/tmp/report_backup.json",
		"out/forecast.csv": "out/forecast_backup.csv",
		"report":           "report_backup",
	}
	for in, want := range tests {
		if got := backupPathFor(in); got != want {
			t.Errorf("backupPathFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func BenchmarkGenerateConsoleReport(b *testing.B) {
	result := createSampleForecastResult()
	generator, _ := NewReportGenerator(DefaultReportConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		_ = generator.GenerateReport(result, &buf)
	}
}
