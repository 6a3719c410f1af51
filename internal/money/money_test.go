package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCommissionRoundsHalfUp(t *testing.T) {
	cases := []struct {
		amount int64
		rate   string
		want   int64
	}{
		{10000, "3", 300},
		{10000, "2.00", 200},
		{101, "0.5", 1},   // 0.505 rounds up
		{99, "0.5", 0},    // 0.495 rounds down
		{333, "1.5", 5},   // 4.995 rounds up
		{10000, "0", 0},
		{10000, "100", 10000},
	}
	for _, c := range cases {
		rate, err := decimal.NewFromString(c.rate)
		if err != nil {
			t.Fatalf("bad rate %s: %v", c.rate, err)
		}
		if got := Commission(c.amount, rate); got != c.want {
			t.Fatalf("Commission(%d, %s) = %d, expected %d", c.amount, c.rate, got, c.want)
		}
	}
}

func TestParseMinor(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"100", 10000},
		{"100.5", 10050},
		{"100.55", 10055},
		{"0.05", 5},
		{"-2.50", -250},
	}
	for _, c := range cases {
		got, err := ParseMinor(c.in)
		if err != nil {
			t.Fatalf("ParseMinor(%q): unexpected error %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseMinor(%q) = %d, expected %d", c.in, got, c.want)
		}
	}
	if _, err := ParseMinor("1.234"); err != ErrTooManyDecimals {
		t.Fatalf("expected ErrTooManyDecimals, got %v", err)
	}
	if _, err := ParseMinor("abc"); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestFormatMinor(t *testing.T) {
	if got := FormatMinor(10055); got != "100.55" {
		t.Fatalf("expected 100.55, got %s", got)
	}
	if got := FormatMinor(-250); got != "-2.50" {
		t.Fatalf("expected -2.50, got %s", got)
	}
}
