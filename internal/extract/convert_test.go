package extract

import (
	"testing"
	"time"
)

func TestParseBRDecimalCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0,00", 0},
		{"1.234,56", 123456},
		{"R$ 1.234,56", 123456},
		{"3,50", 350},
		{"150", 15000},
		{"abc", 0},
		{"12,3", 1230},
	}
	for _, tt := range tests {
		if got := ParseBRDecimalCents(tt.in); got != tt.want {
			t.Errorf("ParseBRDecimalCents(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNumberCents(t *testing.T) {
	if got := NumberCents(1234.56); got != 123456 {
		t.Errorf("NumberCents(1234.56) = %d", got)
	}
	if got := NumberCents(0.1); got != 10 {
		t.Errorf("NumberCents(0.1) = %d", got)
	}
}

func TestDigitsOnly(t *testing.T) {
	if got := DigitsOnly("3525 0107 8438.000193"); got != "352501078438000193" {
		t.Errorf("DigitsOnly = %q", got)
	}
}

func TestParseBRDate(t *testing.T) {
	if got := ParseBRDate("31/01/2025"); got == nil || got.Format("2006-01-02") != "2025-01-31" {
		t.Errorf("ParseBRDate = %v", got)
	}
	if got := ParseBRDate("2025-01-31"); got != nil {
		t.Errorf("expected nil for ISO input, got %v", got)
	}
	if got := ParseBRDate(""); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestParseBRDateTime(t *testing.T) {
	got := ParseBRDateTime("31/01/2025 14:05:59")
	if got == nil || got.Hour() != 14 || got.Second() != 59 {
		t.Errorf("ParseBRDateTime = %v", got)
	}
	if got := ParseBRDateTime("31/01/2025 14:05"); got == nil || got.Minute() != 5 {
		t.Errorf("ParseBRDateTime without seconds = %v", got)
	}
}

func TestParseISODateTime(t *testing.T) {
	if got := ParseISODateTime("2025-01-31T14:05:59"); got == nil || got.Hour() != 14 {
		t.Errorf("ParseISODateTime = %v", got)
	}
	if got := ParseISODateTime("2025-01-31T14:05:59-03:00"); got == nil {
		t.Error("expected offset timestamp to parse")
	}
	if got := ParseISODateTime("not a date"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestParseBoolToken(t *testing.T) {
	tests := []struct {
		in   string
		def  bool
		want bool
	}{
		{"Sim", false, true},
		{"s", false, true},
		{"Não", true, false},
		{"nao", true, false},
		{"", true, true},
		{"", false, false},
		{"talvez", false, false},
	}
	for _, tt := range tests {
		if got := ParseBoolToken(tt.in, tt.def); got != tt.want {
			t.Errorf("ParseBoolToken(%q, %v) = %v, want %v", tt.in, tt.def, got, tt.want)
		}
	}
}

func TestParseISODate(t *testing.T) {
	got := ParseISODate("2025-02-01")
	if got == nil || !got.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.Local)) {
		t.Errorf("ParseISODate = %v", got)
	}
}
