// Package parsers reads transaction and override CSV files.
//
// Real exports vary: headers differ between banks and ledgers, amounts may
// carry currency symbols or accounting parentheses, and dates come in
// several layouts. The parsers resolve columns through configurable aliases
// and report each bad row as an EnhancedParseError that names the line and
// the record, so a caller can skip it or stop.
//
// Example usage:
//
//	parser, err := NewTransactionParser(DefaultTransactionParserConfig())
//	txns, stats, err := parser.ParseTransactions(ctx, "history.csv")
//
//	// large files, in batches
//	stats, err = parser.ParseTransactionsStream(ctx, "history.csv", 500, store.SaveTransactions)
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"cashflow-forecast-service/pkg/errors"
	"cashflow-forecast-service/pkg/logger"
)

// ParseConfig holds reader-level settings shared by all parsers
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
	// MaxErrors stops parsing after this many bad rows; 0 means no limit.
	MaxErrors int
	// ContinueOnError skips bad rows instead of failing on the first one.
	ContinueOnError bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     64 * 1024,
		ValidateEncoding: true,
		MaxErrors:        100,
		ContinueOnError:  true,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	return &BaseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("csv_parser"),
	}
}

// parseState tracks position and columns while reading one file
type parseState struct {
	ctx       context.Context
	file      string
	line      int
	headers   []string
	headerMap map[string]int
}

func newParseState(ctx context.Context, file string) *parseState {
	if ctx == nil {
		ctx = context.Background()
	}
	return &parseState{ctx: ctx, file: file, headerMap: make(map[string]int)}
}

func (ps *parseState) cancelled() bool {
	select {
	case <-ps.ctx.Done():
		return true
	default:
		return false
	}
}

// location builds the error context for the current line
func (ps *parseState) location(column, value, record string) errors.ParseContext {
	return errors.ParseContext{
		File:   ps.file,
		Line:   ps.line,
		Column: column,
		Value:  value,
		Record: record,
	}
}

// columnIndex finds the first of names present in the header, case-insensitively.
func (ps *parseState) columnIndex(names ...string) (int, string) {
	for _, name := range names {
		if idx, ok := ps.headerMap[strings.ToLower(strings.TrimSpace(name))]; ok {
			return idx, name
		}
	}
	return -1, ""
}

// OpenFile opens a CSV file and returns a configured csv.Reader
func (bp *BaseParser) OpenFile(filePath string) (*os.File, *csv.Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")
		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			return nil, nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
		}
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1

	return file, reader, nil
}

// validateEncoding checks the first lines of the file for valid UTF-8
func (bp *BaseParser) validateEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for lineNum := 1; scanner.Scan() && lineNum <= 100; lineNum++ {
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeEncodingError, filePath, lineNum, "encoding", "",
				fmt.Errorf("invalid UTF-8 encoding detected"))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}
	return nil
}

// readHeaders reads the header row and checks that every required column
// resolves through its aliases. Without a header row, the columns are
// assumed to be in defaultOrder.
func (bp *BaseParser) readHeaders(reader *csv.Reader, ps *parseState, required map[string][]string, defaultOrder []string) error {
	if !bp.config.HasHeader {
		ps.headers = defaultOrder
	} else {
		headers, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
					WithSuggestion("ensure the file contains a header row and data rows")
			}
			return errors.ParseError(errors.CodeInvalidFormat, ps.file, 1, "headers", "", err)
		}
		ps.line++
		ps.headers = make([]string, len(headers))
		for i, h := range headers {
			ps.headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		}
	}

	for i, h := range ps.headers {
		key := strings.ToLower(h)
		if _, dup := ps.headerMap[key]; !dup {
			ps.headerMap[key] = i
		}
	}

	var missing []string
	for _, name := range defaultOrder {
		aliases, ok := required[name]
		if !ok {
			continue
		}
		if idx, _ := ps.columnIndex(aliases...); idx == -1 {
			missing = append(missing, aliases[0])
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": ps.headers,
		}).Error("Required headers are missing")
		return errors.MissingColumnError(ps.file, missing, ps.headers)
	}
	return nil
}

// readRecord returns the next non-empty record or io.EOF
func (bp *BaseParser) readRecord(reader *csv.Reader, ps *parseState) ([]string, error) {
	for {
		if ps.cancelled() {
			return nil, errors.InternalError(errors.CodeCancelled, "csv_parsing", ps.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			var csvErr *csv.ParseError
			if stderrors.As(err, &csvErr) {
				ps.line = csvErr.StartLine
			} else {
				ps.line++
			}
			return nil, errors.NewEnhancedParseError(errors.CodeInvalidFormat,
				&errors.ParseContext{File: ps.file, Line: ps.line, Column: "record"},
				"malformed CSV row", err)
		}
		// csv.Reader skips blank lines, so take the line from the reader
		ps.line, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, value := range record {
				if len(value) > bp.config.MaxFieldSize {
					return nil, errors.NewEnhancedParseError(errors.CodeInvalidData,
						&errors.ParseContext{File: ps.file, Line: ps.line, Column: columnName(ps, i), Value: value[:50] + "..."},
						fmt.Sprintf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize), nil)
				}
			}
		}
		return record, nil
	}
}

// field returns the trimmed value of the first alias present in the header
func field(record []string, ps *parseState, aliases []string) (string, string) {
	idx, name := ps.columnIndex(aliases...)
	if idx == -1 || idx >= len(record) {
		if len(aliases) > 0 {
			name = aliases[0]
		}
		return "", name
	}
	return strings.TrimSpace(record[idx]), name
}

func columnName(ps *parseState, i int) string {
	if i < len(ps.headers) {
		return ps.headers[i]
	}
	return fmt.Sprintf("column_%d", i)
}

func isEmptyRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// recordIdentity joins the raw row for error messages
func recordIdentity(record []string) string {
	return strings.Join(record, ",")
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	File          string
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	Errors        []*errors.EnhancedParseError
}

// ErrorCount returns the number of rejected rows
func (ps *ParseStats) ErrorCount() int {
	return len(ps.Errors)
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return len(ps.Errors) > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, len(ps.Errors))
}

// SampleErrors returns up to maxSamples error messages for logging
func (ps *ParseStats) SampleErrors(maxSamples int) []string {
	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}
	samples := make([]string, 0, limit)
	for _, err := range ps.Errors[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}

// rowLoop drives a parse: it reads rows and hands each to parseRow. Row
// errors (*errors.EnhancedParseError) go through the collector, which decides
// whether parsing goes on; any other error from parseRow stops the loop.
func (bp *BaseParser) rowLoop(reader *csv.Reader, ps *parseState, stats *ParseStats, parseRow func([]string) error) error {
	collector := errors.NewParseErrorCollector(bp.config.MaxErrors, bp.config.ContinueOnError)
	defer func() {
		stats.TotalLines = ps.line
		stats.Errors = collector.GetErrors()
	}()

	for {
		record, err := bp.readRecord(reader, ps)
		if err == io.EOF {
			return nil
		}
		if err == nil {
			stats.RecordsParsed++
			if err = parseRow(record); err == nil {
				stats.RecordsValid++
				continue
			}
		}

		perr, ok := err.(*errors.EnhancedParseError)
		if !ok {
			return err
		}
		bp.logger.WithFields(logger.Fields{
			"file":   ps.file,
			"line":   ps.line,
			"column": perr.Context.Column,
		}).Debug("Rejected row")
		if !collector.Add(perr) {
			return perr
		}
	}
}
