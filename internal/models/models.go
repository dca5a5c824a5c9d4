package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date layout used in files, JSON and storage.
const DateLayout = "2006-01-02"

// Transaction is one historical ledger entry. Amounts are signed: deposits
// are positive, withdrawals negative.
type Transaction struct {
	Date        time.Time       `json:"date" csv:"date"`
	Amount      decimal.Decimal `json:"amount" csv:"amount"`
	VendorName  string          `json:"vendor_name" csv:"vendor"`
	VendorGroup string          `json:"vendor_group,omitempty" csv:"-"`
}

// NewTransaction creates a new Transaction instance with the date truncated to a calendar day
func NewTransaction(date time.Time, amount decimal.Decimal, vendor string) Transaction {
	return Transaction{
		Date:       DateOnly(date),
		Amount:     amount,
		VendorName: strings.TrimSpace(vendor),
	}
}

// Validate performs basic validation on the Transaction
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.VendorName) == "" {
		return fmt.Errorf("vendor name cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	return nil
}

// Identity names the record for error messages.
func (t Transaction) Identity() string {
	return fmt.Sprintf("%s %s %s", t.Date.Format(DateLayout), t.VendorName, t.Amount.StringFixed(2))
}

// Group returns the vendor group, falling back to the vendor name.
func (t Transaction) Group() string {
	if t.VendorGroup != "" {
		return t.VendorGroup
	}
	return t.VendorName
}

// MarshalJSON implements custom JSON marshaling for Transaction
func (t Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Date string `json:"date"`
		*Alias
	}{
		Date:  t.Date.Format(DateLayout),
		Alias: (*Alias)(&t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Transaction
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		Date string `json:"date"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	date, err := ParseDate(aux.Date)
	if err != nil {
		return fmt.Errorf("invalid transaction date: %w", err)
	}
	t.Date = date
	return nil
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsWeekday reports whether t falls Monday through Friday.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// ISOWeekdayIndex maps Monday..Sunday to 0..6.
func ISOWeekdayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseDate parses a calendar date using several common layouts
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		DateLayout,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"01/02/2006",
		"2006/01/02",
		"Jan 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return DateOnly(t), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}
