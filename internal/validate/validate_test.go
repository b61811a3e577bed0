package validate

import (
	"errors"
	"testing"
)

func TestIdentity(t *testing.T) {
	valid := []string{"123456", "000000", "123456789012", "99887766"}
	for _, in := range valid {
		got, err := Identity(in)
		if err != nil {
			t.Errorf("Identity(%q) unexpected error: %v", in, err)
		}
		if got != in {
			t.Errorf("Identity(%q) = %q, want input unchanged", in, got)
		}
	}

	cases := []struct {
		in      string
		wantErr error
	}{
		{"12345", ErrIdentityLength},
		{"1234567890123", ErrIdentityLength},
		{"", ErrIdentityLength},
		{"12345a", ErrIdentityNotDigits},
		{"123 456", ErrIdentityNotDigits},
		{"1234-56", ErrIdentityNotDigits},
	}
	for _, tc := range cases {
		if _, err := Identity(tc.in); !errors.Is(err, tc.wantErr) {
			t.Errorf("Identity(%q) error = %v, want %v", tc.in, err, tc.wantErr)
		}
	}
}

func TestPlate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HHW926", "HHW926"},
		{"hhw926", "HHW926"},
		{"aBc123", "ABC123"},
	}
	for _, tc := range cases {
		got, err := Plate(tc.in)
		if err != nil {
			t.Errorf("Plate(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Plate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	invalid := []string{"HH926", "HHWW926", "926HHW", "HHW92", "HHW9266", "HH-926", ""}
	for _, in := range invalid {
		if _, err := Plate(in); !errors.Is(err, ErrPlateFormat) {
			t.Errorf("Plate(%q) error = %v, want ErrPlateFormat", in, err)
		}
	}
}

func TestWeightRule(t *testing.T) {
	rule := WeightRule{Ceiling: 100000}

	got, err := rule.Parse("1234,5")
	if err != nil {
		t.Fatalf("Parse(1234,5) unexpected error: %v", err)
	}
	if got != 1234.5 {
		t.Errorf("Parse(1234,5) = %v, want 1234.5", got)
	}

	got, err = rule.Parse("1234.5")
	if err != nil {
		t.Fatalf("Parse(1234.5) unexpected error: %v", err)
	}
	if got != 1234.5 {
		t.Errorf("Parse(1234.5) = %v, want 1234.5", got)
	}

	cases := []struct {
		in      string
		wantErr error
	}{
		{"-5", ErrWeightFormat},
		{"12a", ErrWeightFormat},
		{"12,3,4", ErrWeightFormat},
		{"", ErrWeightFormat},
		{"0", ErrWeightZero},
		{"100001", ErrWeightCeiling},
	}
	for _, tc := range cases {
		if _, err := rule.Parse(tc.in); !errors.Is(err, tc.wantErr) {
			t.Errorf("Parse(%q) error = %v, want %v", tc.in, err, tc.wantErr)
		}
	}

	// Field-specific ceilings vary by use case.
	silo := WeightRule{Ceiling: 50}
	if _, err := silo.Parse("50,5"); !errors.Is(err, ErrWeightCeiling) {
		t.Errorf("silo Parse(50,5) error = %v, want ErrWeightCeiling", err)
	}
	if _, err := silo.Parse("49,9"); err != nil {
		t.Errorf("silo Parse(49,9) unexpected error: %v", err)
	}

	zeroOK := WeightRule{Ceiling: 25000, AllowZero: true}
	if _, err := zeroOK.Parse("0"); err != nil {
		t.Errorf("AllowZero Parse(0) unexpected error: %v", err)
	}
}

func TestCountRule(t *testing.T) {
	pen := CountRule{Min: 1, Max: 2000}
	if got, err := pen.Parse("2000"); err != nil || got != 2000 {
		t.Errorf("Parse(2000) = %v, %v, want 2000, nil", got, err)
	}
	if _, err := pen.Parse("0"); !errors.Is(err, ErrCountRange) {
		t.Errorf("Parse(0) error = %v, want ErrCountRange", err)
	}
	if _, err := pen.Parse("2001"); !errors.Is(err, ErrCountRange) {
		t.Errorf("Parse(2001) error = %v, want ErrCountRange", err)
	}
	if _, err := pen.Parse("12.5"); !errors.Is(err, ErrCountFormat) {
		t.Errorf("Parse(12.5) error = %v, want ErrCountFormat", err)
	}

	delivery := CountRule{Min: 1, Max: 5000}
	if _, err := delivery.Parse("5000"); err != nil {
		t.Errorf("delivery Parse(5000) unexpected error: %v", err)
	}
}

func TestRangeRule(t *testing.T) {
	rule := RangeRule{ForbidZero: true, MaxSpan: 10}

	got, err := rule.Parse("3-7")
	if err != nil {
		t.Fatalf("Parse(3-7) unexpected error: %v", err)
	}
	if got.Start != 3 || got.End != 7 || got.Span() != 5 {
		t.Errorf("Parse(3-7) = %+v, want start=3 end=7 span=5", got)
	}

	if got, err := rule.Parse("5-5"); err != nil || got.Span() != 1 {
		t.Errorf("Parse(5-5) = %+v, %v, want single-entry range", got, err)
	}

	cases := []struct {
		in      string
		wantErr error
	}{
		{"7-3", ErrRangeOrder},
		{"0-5", ErrRangeStart},
		{"1-11", ErrRangeSpan},
		{"3", ErrRangeFormat},
		{"a-b", ErrRangeFormat},
		{"3--7", ErrRangeFormat},
	}
	for _, tc := range cases {
		if _, err := rule.Parse(tc.in); !errors.Is(err, tc.wantErr) {
			t.Errorf("Parse(%q) error = %v, want %v", tc.in, err, tc.wantErr)
		}
	}

	// Zero start allowed when the field does not forbid index 0.
	open := RangeRule{}
	if _, err := open.Parse("0-5"); err != nil {
		t.Errorf("open Parse(0-5) unexpected error: %v", err)
	}
}

func TestLotCode(t *testing.T) {
	valid := []string{"LOT-2024_A", "abc", "A1_b2-c3"}
	for _, in := range valid {
		if _, err := LotCode(in); err != nil {
			t.Errorf("LotCode(%q) unexpected error: %v", in, err)
		}
	}
	invalid := []string{"ab", "lot code", "lot.code", "", "0123456789012345678901234567890"}
	for _, in := range invalid {
		if _, err := LotCode(in); !errors.Is(err, ErrLotCodeFormat) {
			t.Errorf("LotCode(%q) error = %v, want ErrLotCodeFormat", in, err)
		}
	}
}

func TestIndexRule(t *testing.T) {
	rule := IndexRule{Allowed: []int{1, 2, 3, 4}}
	if got, err := rule.Parse("3"); err != nil || got != 3 {
		t.Errorf("Parse(3) = %v, %v, want 3, nil", got, err)
	}
	if _, err := rule.Parse("5"); !errors.Is(err, ErrIndexUnknown) {
		t.Errorf("Parse(5) error = %v, want ErrIndexUnknown", err)
	}
	if _, err := rule.Parse("x"); !errors.Is(err, ErrIndexFormat) {
		t.Errorf("Parse(x) error = %v, want ErrIndexFormat", err)
	}
}
