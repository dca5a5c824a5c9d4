package parsers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cashflow-forecast-service/internal/models"
	"cashflow-forecast-service/pkg/errors"
	"cashflow-forecast-service/pkg/logger"
)

// OverrideParser reads manual override CSV files with the columns
// vendor_group, override_date, override_type, override_amount, new_date, reason.
type OverrideParser struct {
	*BaseParser
	config *OverrideParserConfig
	logger logger.Logger
	now    func() time.Time
}

// NewOverrideParser creates a new OverrideParser with the given configuration
func NewOverrideParser(config *OverrideParserConfig) (*OverrideParser, error) {
	if config == nil {
		config = DefaultOverrideParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "override_parser_config", string(config.Delimiter), err)
	}

	return &OverrideParser{
		BaseParser: NewBaseParser(config.parseConfig()),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("override_parser"),
		now:        time.Now,
	}, nil
}

// ParseOverrides reads every valid override in the file. Rows without an id
// get a fresh UUID; created_at is the parse time.
func (op *OverrideParser) ParseOverrides(ctx context.Context, filePath string) ([]models.Override, *ParseStats, error) {
	opLog := logger.NewOperationLogger("parse_overrides", op.logger).
		WithFields(logger.Fields{"file_path": filePath})

	file, reader, err := op.OpenFile(filePath)
	if err != nil {
		opLog.Error(err, "Failed to open override file")
		return nil, nil, err
	}
	defer file.Close()

	ps := newParseState(ctx, filePath)
	stats := &ParseStats{File: filePath}

	required := map[string][]string{
		ColumnOverrideGroup: overrideColumns[ColumnOverrideGroup],
		ColumnOverrideDate:  overrideColumns[ColumnOverrideDate],
		ColumnOverrideType:  overrideColumns[ColumnOverrideType],
	}
	if err := op.readHeaders(reader, ps, required, overrideColumnOrder); err != nil {
		opLog.Error(err, "Failed to read or validate headers")
		return nil, stats, err
	}

	createdAt := op.now().UTC()
	var overrides []models.Override
	err = op.rowLoop(reader, ps, stats, func(record []string) error {
		o, perr := op.parseRecord(record, ps)
		if perr != nil {
			return perr
		}
		o.CreatedAt = createdAt
		overrides = append(overrides, o)
		return nil
	})
	if err != nil {
		opLog.Error(err, "Override parsing stopped")
		return overrides, stats, err
	}

	opLog.WithFields(logger.Fields{
		"records_valid": stats.RecordsValid,
		"error_count":   stats.ErrorCount(),
	}).Success("Override parsing completed")
	return overrides, stats, nil
}

func (op *OverrideParser) parseRecord(record []string, ps *parseState) (models.Override, *errors.EnhancedParseError) {
	identity := recordIdentity(record)

	group, groupCol := field(record, ps, overrideColumns[ColumnOverrideGroup])
	dateStr, dateCol := field(record, ps, overrideColumns[ColumnOverrideDate])
	typeStr, typeCol := field(record, ps, overrideColumns[ColumnOverrideType])
	amountStr, amountCol := field(record, ps, overrideColumns[ColumnOverrideAmount])
	newDateStr, newDateCol := field(record, ps, overrideColumns[ColumnNewDate])
	reason, _ := field(record, ps, overrideColumns[ColumnReason])
	id, _ := field(record, ps, []string{"id", "override_id"})

	if group == "" {
		return models.Override{}, errors.EmptyValueError(ps.location(groupCol, "", identity))
	}
	if dateStr == "" {
		return models.Override{}, errors.EmptyValueError(ps.location(dateCol, "", identity))
	}

	date, err := parseDate(dateStr, op.config.DateFormat)
	if err != nil {
		return models.Override{}, errors.InvalidDateError(ps.location(dateCol, dateStr, identity))
	}

	kind, err := models.ParseOverrideType(typeStr)
	if err != nil {
		return models.Override{}, errors.InvalidOverrideTypeError(ps.location(typeCol, typeStr, identity))
	}

	o := models.Override{
		ID:           id,
		VendorGroup:  group,
		OverrideDate: date,
		Type:         kind,
		Amount:       decimal.Zero,
		Reason:       reason,
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	switch {
	case amountStr != "":
		amount, err := models.ParseDecimalFromString(amountStr)
		if err != nil {
			return models.Override{}, errors.InvalidAmountError(ps.location(amountCol, amountStr, identity))
		}
		o.Amount = amount
	case kind == models.OverrideAmountChange || kind == models.OverrideAdd:
		return models.Override{}, errors.EmptyValueError(ps.location(amountCol, "", identity))
	}

	switch {
	case newDateStr != "":
		newDate, err := parseDate(newDateStr, op.config.DateFormat)
		if err != nil {
			return models.Override{}, errors.InvalidDateError(ps.location(newDateCol, newDateStr, identity))
		}
		o.NewDate = &newDate
	case kind == models.OverrideDateShift:
		return models.Override{}, errors.EmptyValueError(ps.location(newDateCol, "", identity))
	}

	return o, nil
}
