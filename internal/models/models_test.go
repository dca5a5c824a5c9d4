package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNewTransaction(t *testing.T) {
	amount := decimal.NewFromFloat(-44.99)
	tx := NewTransaction(time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC), amount, "  ACME SaaS ")

	if !tx.Date.Equal(date("2025-06-10")) {
		t.Errorf("expected date truncated to 2025-06-10, got %s", tx.Date)
	}
	if tx.VendorName != "ACME SaaS" {
		t.Errorf("expected trimmed vendor name, got %q", tx.VendorName)
	}
	if tx.Group() != "ACME SaaS" {
		t.Errorf("expected group to fall back to vendor name, got %q", tx.Group())
	}
	if tx.Identity() != "2025-06-10 ACME SaaS -44.99" {
		t.Errorf("unexpected identity %q", tx.Identity())
	}
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tx      Transaction
		wantErr bool
	}{
		{"valid", NewTransaction(date("2025-01-01"), decimal.NewFromInt(10), "x"), false},
		{"zero amount allowed", NewTransaction(date("2025-01-01"), decimal.Zero, "x"), false},
		{"missing vendor", NewTransaction(date("2025-01-01"), decimal.NewFromInt(10), " "), true},
		{"missing date", Transaction{Amount: decimal.NewFromInt(1), VendorName: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransaction_JSONMarshaling(t *testing.T) {
	tx := NewTransaction(date("2025-06-24"), decimal.RequireFromString("44800.00"), "Payroll")

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"date":"2025-06-24"`) {
		t.Errorf("expected date-only JSON, got %s", data)
	}

	var back Transaction
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !back.Date.Equal(tx.Date) || !back.Amount.Equal(tx.Amount) || back.VendorName != tx.VendorName {
		t.Errorf("round trip mismatch: %+v vs %+v", back, tx)
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"100.50", "100.5", false},
		{"$1,200.00", "1200", false},
		{"-44.99", "-44.99", false},
		{"(250.00)", "-250", false},
		{"", "", true},
		{"12..5", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDecimalFromString(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.expected {
				t.Errorf("ParseDecimalFromString(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2025-06-10", "2025-06-10", false},
		{"06/10/2025", "2025-06-10", false},
		{"2025-06-10T23:59:00Z", "2025-06-10", false},
		{"2025/06/10", "2025-06-10", false},
		{"Jun 10, 2025", "2025-06-10", false},
		{"10th June", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.Format(DateLayout) != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got.Format(DateLayout), tt.want)
			}
		})
	}
}

func TestCalendarHelpers(t *testing.T) {
	if d := DaysBetween(date("2025-06-10"), date("2025-06-24")); d != 14 {
		t.Errorf("DaysBetween = %d, want 14", d)
	}
	if d := DaysBetween(date("2025-03-01"), date("2025-02-01")); d != -28 {
		t.Errorf("DaysBetween backwards = %d, want -28", d)
	}
	if d := DaysInMonth(2025, time.February); d != 28 {
		t.Errorf("DaysInMonth(2025-02) = %d, want 28", d)
	}
	if d := DaysInMonth(2024, time.February); d != 29 {
		t.Errorf("DaysInMonth(2024-02) = %d, want 29", d)
	}
	if ISOWeekdayIndex(time.Monday) != 0 || ISOWeekdayIndex(time.Sunday) != 6 {
		t.Error("ISOWeekdayIndex should map Monday to 0 and Sunday to 6")
	}
	if IsWeekday(date("2025-06-14")) {
		t.Error("2025-06-14 is a Saturday")
	}
}

func TestOrdinal(t *testing.T) {
	tests := map[int]string{1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 11: "11th", 12: "12th", 13: "13th", 21: "21st", 22: "22nd", 31: "31st"}
	for n, want := range tests {
		if got := Ordinal(n); got != want {
			t.Errorf("Ordinal(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestTiming_String(t *testing.T) {
	tests := []struct {
		timing *Timing
		want   string
	}{
		{nil, "none"},
		{WeekdayTiming(time.Tuesday), "Tuesday"},
		{DayOfMonthTiming(15), "15th"},
		{&Timing{Kind: TimingDailyMode, DailyMode: DailyWeekdays}, "weekdays"},
	}

	for _, tt := range tests {
		if got := tt.timing.String(); got != tt.want {
			t.Errorf("Timing.String() = %s, want %s", got, tt.want)
		}
	}
}

func TestParseOverrideType(t *testing.T) {
	tests := []struct {
		input   string
		want    OverrideType
		wantErr bool
	}{
		{"amount_change", OverrideAmountChange, false},
		{"SKIP", OverrideSkip, false},
		{" date_shift ", OverrideDateShift, false},
		{"add", OverrideAdd, false},
		{"delete", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOverrideType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOverrideType(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseOverrideType(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestOverride_Validate(t *testing.T) {
	newDate := date("2025-08-07")
	tests := []struct {
		name    string
		o       Override
		wantErr bool
	}{
		{"amount change", Override{VendorGroup: "x", OverrideDate: date("2025-08-05"), Type: OverrideAmountChange}, false},
		{"shift with date", Override{VendorGroup: "x", OverrideDate: date("2025-08-05"), Type: OverrideDateShift, NewDate: &newDate}, false},
		{"shift without date", Override{VendorGroup: "x", OverrideDate: date("2025-08-05"), Type: OverrideDateShift}, true},
		{"missing group", Override{OverrideDate: date("2025-08-05"), Type: OverrideSkip}, true},
		{"bad type", Override{VendorGroup: "x", OverrideDate: date("2025-08-05"), Type: "bump"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.o.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSortEvents(t *testing.T) {
	events := []ForecastEvent{
		{Date: date("2025-08-05"), VendorGroup: "b"},
		{Date: date("2025-07-22"), VendorGroup: "a"},
		{Date: date("2025-08-05"), VendorGroup: "a"},
	}
	SortEvents(events)

	got := []string{}
	for _, e := range events {
		got = append(got, e.Date.Format(DateLayout)+"/"+e.VendorGroup)
	}
	want := "2025-07-22/a 2025-08-05/a 2025-08-05/b"
	if strings.Join(got, " ") != want {
		t.Errorf("SortEvents order = %v, want %s", got, want)
	}
}

func TestWeeklySummary_JSON(t *testing.T) {
	w := WeeklySummary{
		WeekNumber: 0,
		StartDate:  date("2025-07-07"),
		EndDate:    date("2025-07-13"),
		Deposits:   decimal.NewFromInt(300),
		Events: []ForecastEvent{
			{Date: date("2025-07-08"), VendorGroup: "x", Amount: decimal.NewFromInt(300)},
		},
	}

	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, want := range []string{`"start_date":"2025-07-07"`, `"end_date":"2025-07-13"`, `"date":"2025-07-08"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in %s", want, data)
		}
	}
}
