package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in    string
		cents int64
		ok    bool
	}{
		{"12.34", 1234, true},
		{"12,34", 1234, true},
		{" 7 ", 700, true},
		{"0.01", 1, true},
		{"12.344", 1234, true},
		{"12.345", 1235, true}, // half rounds up
		{"12.346", 1235, true},
		{"", 0, false},
		{"0", 0, false},
		{"0.00", 0, false},
		{"-5", 0, false},
		{"+5", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"1e3", 0, false},
		{"1.2.3", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			m, err := ParseAmount(tc.in)
			if tc.ok {
				if err != nil {
					t.Fatalf("ParseAmount(%q) unexpected error: %v", tc.in, err)
				}
				if m.Cents != tc.cents {
					t.Fatalf("ParseAmount(%q) = %d, want %d", tc.in, m.Cents, tc.cents)
				}
				return
			}
			if err != ErrInvalidAmount {
				t.Fatalf("ParseAmount(%q) = (%d, %v), want ErrInvalidAmount", tc.in, m.Cents, err)
			}
		})
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatal("expected error for zero")
	}
	if err := (Money{Cents: -100}).Validate(); err == nil {
		t.Fatal("expected error for negative")
	}
}
