package cmd

import "testing"

func TestShortLabel(t *testing.T) {
	tests := []struct {
		label string
		max   int
		want  string
	}{
		{"Alice", 32, "Alice"},
		{"abcdefghij", 8, "abcde..."},
		{"Žluťoučký kůň", 8, "Žluťo..."},
	}
	for _, tc := range tests {
		if got := shortLabel(tc.label, tc.max); got != tc.want {
			t.Errorf("shortLabel(%q, %d) = %q, want %q", tc.label, tc.max, got, tc.want)
		}
	}
}
