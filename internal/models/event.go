package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventType classifies a forecast event
type EventType string

const (
	EventRecurring EventType = "recurring"
	EventOverride  EventType = "override"
	EventOneTime   EventType = "one_time"
)

// EventSource records where a forecast event came from
type EventSource string

const (
	SourcePatternDetected EventSource = "pattern_detected"
	SourceManualOverride  EventSource = "manual_override"
	SourceManualEntry     EventSource = "manual_entry"
)

// ForecastEvent is one dated, projected cash movement.
type ForecastEvent struct {
	Date        time.Time       `json:"date"`
	VendorGroup string          `json:"vendor_group"`
	Amount      decimal.Decimal `json:"amount"`
	EventType   EventType       `json:"event_type"`
	Frequency   Frequency       `json:"frequency"`
	Confidence  float64         `json:"confidence"`
	Source      EventSource     `json:"source"`
	OverrideID  string          `json:"override_id,omitempty"`
	Note        string          `json:"note,omitempty"`
}

// Key returns the (vendor group, date) lookup key of the event
func (e ForecastEvent) Key() EventKey {
	return EventKey{VendorGroup: e.VendorGroup, Date: DateOnly(e.Date)}
}

// String returns a string representation of the event
func (e ForecastEvent) String() string {
	return fmt.Sprintf("%s %s %s (%s/%s)", e.Date.Format(DateLayout), e.VendorGroup,
		e.Amount.StringFixed(2), e.EventType, e.Source)
}

// MarshalJSON writes the date as YYYY-MM-DD
func (e ForecastEvent) MarshalJSON() ([]byte, error) {
	type Alias ForecastEvent
	return json.Marshal(&struct {
		Date string `json:"date"`
		*Alias
	}{
		Date:  e.Date.Format(DateLayout),
		Alias: (*Alias)(&e),
	})
}

// EventKey identifies a single occurrence for override lookup
type EventKey struct {
	VendorGroup string
	Date        time.Time
}

// SortEvents orders events ascending by date, then vendor group. The sort is
// stable so equal keys keep their relative order.
func SortEvents(events []ForecastEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].VendorGroup < events[j].VendorGroup
	})
}

// OverrideType is the kind of manual correction
type OverrideType string

const (
	OverrideAmountChange OverrideType = "amount_change"
	OverrideDateShift    OverrideType = "date_shift"
	OverrideSkip         OverrideType = "skip_occurrence"
	OverrideAdd          OverrideType = "add_occurrence"
)

// IsValid checks if the override type is known
func (t OverrideType) IsValid() bool {
	switch t {
	case OverrideAmountChange, OverrideDateShift, OverrideSkip, OverrideAdd:
		return true
	}
	return false
}

// ParseOverrideType parses an override type, accepting a few short aliases
func ParseOverrideType(s string) (OverrideType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "amount_change", "amount":
		return OverrideAmountChange, nil
	case "date_shift", "shift":
		return OverrideDateShift, nil
	case "skip_occurrence", "skip":
		return OverrideSkip, nil
	case "add_occurrence", "add":
		return OverrideAdd, nil
	}
	return "", fmt.Errorf("invalid override type '%s'", s)
}

// Override is a persisted manual correction to one forecast occurrence.
type Override struct {
	ID           string          `json:"id"`
	VendorGroup  string          `json:"vendor_group"`
	OverrideDate time.Time       `json:"override_date"`
	Type         OverrideType    `json:"override_type"`
	Amount       decimal.Decimal `json:"override_amount"`
	NewDate      *time.Time      `json:"new_date,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Key returns the occurrence the override targets
func (o Override) Key() EventKey {
	return EventKey{VendorGroup: o.VendorGroup, Date: DateOnly(o.OverrideDate)}
}

// Validate performs basic validation on the Override
func (o Override) Validate() error {
	if strings.TrimSpace(o.VendorGroup) == "" {
		return fmt.Errorf("override vendor group cannot be empty")
	}
	if o.OverrideDate.IsZero() {
		return fmt.Errorf("override date cannot be zero")
	}
	if !o.Type.IsValid() {
		return fmt.Errorf("invalid override type: %s", o.Type)
	}
	if o.Type == OverrideDateShift && (o.NewDate == nil || o.NewDate.IsZero()) {
		return fmt.Errorf("date_shift override requires new_date")
	}
	return nil
}

// WeeklySummary totals the events of one 7-day window.
type WeeklySummary struct {
	WeekNumber  int             `json:"week_number"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`
	Deposits    decimal.Decimal `json:"deposits"`
	Withdrawals decimal.Decimal `json:"withdrawals"`
	Net         decimal.Decimal `json:"net"`
	Events      []ForecastEvent `json:"events"`
}

// MarshalJSON writes the window bounds as YYYY-MM-DD
func (w WeeklySummary) MarshalJSON() ([]byte, error) {
	type Alias WeeklySummary
	return json.Marshal(&struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
		*Alias
	}{
		StartDate: w.StartDate.Format(DateLayout),
		EndDate:   w.EndDate.Format(DateLayout),
		Alias:     (*Alias)(&w),
	})
}
