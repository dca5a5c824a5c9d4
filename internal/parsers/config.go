package parsers

import (
	"fmt"
	"strings"
)

// Standard column names
const (
	ColumnDate   = "date"
	ColumnAmount = "amount"
	ColumnVendor = "vendor"
	ColumnGroup  = "vendor_group"

	ColumnOverrideGroup  = "vendor_group"
	ColumnOverrideDate   = "override_date"
	ColumnOverrideType   = "override_type"
	ColumnOverrideAmount = "override_amount"
	ColumnNewDate        = "new_date"
	ColumnReason         = "reason"
)

// defaultTransactionAliases lists header spellings seen in common ledger exports
var defaultTransactionAliases = map[string][]string{
	ColumnDate:   {"posted_date", "transaction_date", "posting_date", "txn_date"},
	ColumnAmount: {"value", "transaction_amount", "net_amount"},
	ColumnVendor: {"vendor_name", "payee", "description", "counterparty", "name"},
	ColumnGroup:  {"group", "category"},
}

// TransactionParserConfig holds configuration for parsing transaction CSV files
type TransactionParserConfig struct {
	DateColumn   string `json:"date_column" mapstructure:"date_column"`
	AmountColumn string `json:"amount_column" mapstructure:"amount_column"`
	VendorColumn string `json:"vendor_column" mapstructure:"vendor_column"`
	// GroupColumn is optional; when present its value becomes the vendor group.
	GroupColumn string `json:"group_column" mapstructure:"group_column"`
	// DateFormat forces a single Go layout; empty accepts the common layouts.
	DateFormat string `json:"date_format" mapstructure:"date_format"`
	HasHeader  bool   `json:"has_header" mapstructure:"has_header"`
	Delimiter  rune   `json:"delimiter" mapstructure:"delimiter"`
	// ColumnAliases adds accepted header names per standard column.
	ColumnAliases   map[string][]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
	MaxErrors       int                 `json:"max_errors" mapstructure:"max_errors"`
	ContinueOnError bool                `json:"continue_on_error" mapstructure:"continue_on_error"`
}

// DefaultTransactionParserConfig returns a configuration with standard defaults
func DefaultTransactionParserConfig() *TransactionParserConfig {
	return &TransactionParserConfig{
		DateColumn:      ColumnDate,
		AmountColumn:    ColumnAmount,
		VendorColumn:    ColumnVendor,
		GroupColumn:     ColumnGroup,
		HasHeader:       true,
		Delimiter:       ',',
		ColumnAliases:   make(map[string][]string),
		MaxErrors:       100,
		ContinueOnError: true,
	}
}

// Validate checks if the transaction parser configuration is valid
func (c *TransactionParserConfig) Validate() error {
	if strings.TrimSpace(c.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}
	if strings.TrimSpace(c.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}
	if strings.TrimSpace(c.VendorColumn) == "" {
		return fmt.Errorf("vendor column cannot be empty")
	}
	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	if c.MaxErrors < 0 {
		return fmt.Errorf("max errors cannot be negative, got %d", c.MaxErrors)
	}
	return nil
}

// Aliases returns the accepted header names of a standard column: the
// configured name first, then user aliases, then built-in aliases.
func (c *TransactionParserConfig) Aliases(standard string) []string {
	var primary string
	switch standard {
	case ColumnDate:
		primary = c.DateColumn
	case ColumnAmount:
		primary = c.AmountColumn
	case ColumnVendor:
		primary = c.VendorColumn
	case ColumnGroup:
		primary = c.GroupColumn
	default:
		primary = standard
	}

	names := []string{primary}
	names = append(names, c.ColumnAliases[standard]...)
	if primary != standard {
		names = append(names, standard)
	}
	return append(names, defaultTransactionAliases[standard]...)
}

func (c *TransactionParserConfig) parseConfig() *ParseConfig {
	pc := DefaultParseConfig()
	pc.HasHeader = c.HasHeader
	pc.Delimiter = c.Delimiter
	pc.MaxErrors = c.MaxErrors
	pc.ContinueOnError = c.ContinueOnError
	return pc
}

// OverrideParserConfig holds configuration for parsing override CSV files
type OverrideParserConfig struct {
	DateFormat      string `json:"date_format" mapstructure:"date_format"`
	HasHeader       bool   `json:"has_header" mapstructure:"has_header"`
	Delimiter       rune   `json:"delimiter" mapstructure:"delimiter"`
	MaxErrors       int    `json:"max_errors" mapstructure:"max_errors"`
	ContinueOnError bool   `json:"continue_on_error" mapstructure:"continue_on_error"`
}

// DefaultOverrideParserConfig returns a configuration with standard defaults
func DefaultOverrideParserConfig() *OverrideParserConfig {
	return &OverrideParserConfig{
		HasHeader:       true,
		Delimiter:       ',',
		MaxErrors:       100,
		ContinueOnError: true,
	}
}

// Validate checks if the override parser configuration is valid
func (c *OverrideParserConfig) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	if c.MaxErrors < 0 {
		return fmt.Errorf("max errors cannot be negative, got %d", c.MaxErrors)
	}
	return nil
}

func (c *OverrideParserConfig) parseConfig() *ParseConfig {
	pc := DefaultParseConfig()
	pc.HasHeader = c.HasHeader
	pc.Delimiter = c.Delimiter
	pc.MaxErrors = c.MaxErrors
	pc.ContinueOnError = c.ContinueOnError
	return pc
}

// overrideColumns lists the accepted header names of each override column
var overrideColumns = map[string][]string{
	ColumnOverrideGroup:  {ColumnOverrideGroup, "vendor", "group"},
	ColumnOverrideDate:   {ColumnOverrideDate, "date"},
	ColumnOverrideType:   {ColumnOverrideType, "type"},
	ColumnOverrideAmount: {ColumnOverrideAmount, "amount"},
	ColumnNewDate:        {ColumnNewDate},
	ColumnReason:         {ColumnReason, "note"},
}

// overrideColumnOrder is the column order assumed for header-less files
var overrideColumnOrder = []string{
	ColumnOverrideGroup, ColumnOverrideDate, ColumnOverrideType,
	ColumnOverrideAmount, ColumnNewDate, ColumnReason,
}
