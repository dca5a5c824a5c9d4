package parsers

import (
	"context"
	"time"

	"cashflow-forecast-service/internal/models"
	"cashflow-forecast-service/pkg/errors"
	"cashflow-forecast-service/pkg/logger"
)

var transactionColumnOrder = []string{ColumnDate, ColumnAmount, ColumnVendor, ColumnGroup}

// TransactionParser handles parsing of historical transaction CSV files
type TransactionParser struct {
	*BaseParser
	config *TransactionParserConfig
	logger logger.Logger
}

// NewTransactionParser creates a new TransactionParser with the given configuration
func NewTransactionParser(config *TransactionParserConfig) (*TransactionParser, error) {
	if config == nil {
		config = DefaultTransactionParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "transaction_parser_config", config.DateColumn, err).
			WithSuggestion("check the transaction parser column settings")
	}

	return &TransactionParser{
		BaseParser: NewBaseParser(config.parseConfig()),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("transaction_parser"),
	}, nil
}

func (tp *TransactionParser) required() map[string][]string {
	return map[string][]string{
		ColumnDate:   tp.config.Aliases(ColumnDate),
		ColumnAmount: tp.config.Aliases(ColumnAmount),
		ColumnVendor: tp.config.Aliases(ColumnVendor),
	}
}

// ParseTransactions reads every valid transaction in the file. Rejected rows
// are listed in the returned stats; the error is non-nil only when the file
// cannot be read or the error policy stops the parse.
func (tp *TransactionParser) ParseTransactions(ctx context.Context, filePath string) ([]models.Transaction, *ParseStats, error) {
	var txns []models.Transaction
	stats, err := tp.parse(ctx, filePath, func(t models.Transaction) error {
		txns = append(txns, t)
		return nil
	})
	return txns, stats, err
}

func (tp *TransactionParser) parse(ctx context.Context, filePath string, emit func(models.Transaction) error) (*ParseStats, error) {
	op := logger.NewOperationLogger("parse_transactions", tp.logger).
		WithFields(logger.Fields{"file_path": filePath})

	file, reader, err := tp.OpenFile(filePath)
	if err != nil {
		op.Error(err, "Failed to open transaction file")
		return nil, err
	}
	defer file.Close()

	ps := newParseState(ctx, filePath)
	stats := &ParseStats{File: filePath}

	if err := tp.readHeaders(reader, ps, tp.required(), transactionColumnOrder); err != nil {
		op.Error(err, "Failed to read or validate headers")
		return stats, err
	}

	err = tp.rowLoop(reader, ps, stats, func(record []string) error {
		txn, perr := tp.parseRecord(record, ps)
		if perr != nil {
			return perr
		}
		return emit(txn)
	})

	fields := logger.Fields{
		"total_lines":    ps.line,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount(),
	}
	if err != nil {
		op.WithFields(fields).Error(err, "Transaction parsing stopped")
		return stats, err
	}
	if stats.HasErrors() {
		tp.logger.WithField("sample_errors", stats.SampleErrors(3)).Warn("Skipped malformed rows")
	}
	op.WithFields(fields).Success("Transaction parsing completed")
	return stats, nil
}

// parseRecord builds a Transaction from one CSV row
func (tp *TransactionParser) parseRecord(record []string, ps *parseState) (models.Transaction, *errors.EnhancedParseError) {
	identity := recordIdentity(record)

	dateStr, dateCol := field(record, ps, tp.config.Aliases(ColumnDate))
	amountStr, amountCol := field(record, ps, tp.config.Aliases(ColumnAmount))
	vendor, vendorCol := field(record, ps, tp.config.Aliases(ColumnVendor))
	group, _ := field(record, ps, tp.config.Aliases(ColumnGroup))

	if dateStr == "" {
		return models.Transaction{}, errors.EmptyValueError(ps.location(dateCol, "", identity))
	}
	if amountStr == "" {
		return models.Transaction{}, errors.EmptyValueError(ps.location(amountCol, "", identity))
	}
	if vendor == "" {
		return models.Transaction{}, errors.EmptyValueError(ps.location(vendorCol, "", identity))
	}

	date, err := parseDate(dateStr, tp.config.DateFormat)
	if err != nil {
		return models.Transaction{}, errors.InvalidDateError(ps.location(dateCol, dateStr, identity))
	}

	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return models.Transaction{}, errors.InvalidAmountError(ps.location(amountCol, amountStr, identity))
	}

	txn := models.NewTransaction(date, amount, vendor)
	txn.VendorGroup = group
	return txn, nil
}

// parseDate uses layout when set, otherwise the common layouts
func parseDate(value, layout string) (time.Time, error) {
	if layout == "" {
		return models.ParseDate(value)
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, err
	}
	return models.DateOnly(t), nil
}
