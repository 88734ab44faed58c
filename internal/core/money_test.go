package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"50000", 50000, true},
		{"50.000", 50000, true},
		{"50,000", 50000, true},
		{"1 200 300", 1200300, true},
		{"  700  ", 700, true},
		{"", 0, false},
		{"0", 0, false},
		{"-500", 0, false},
		{"+500", 0, false},
		{"abc", 0, false},
		{"12x", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error %v", tc.in, err)
			}
			if got.Units != tc.want {
				t.Fatalf("ParseAmount(%q) = %d, want %d", tc.in, got.Units, tc.want)
			}
			continue
		}
		if err == nil {
			t.Fatalf("ParseAmount(%q) expected error", tc.in)
		}
	}
}
