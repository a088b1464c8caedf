package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	tests := []struct {
		in   string
		def  int
		want int
	}{
		{"", 7, 7},
		{"42", 7, 42},
		{"-3", 7, -3},
		{"bogus", 7, 7},
		{"4.2", 7, 7},
	}
	for _, tt := range tests {
		if got := AtoiDefault(tt.in, tt.def); got != tt.want {
			t.Errorf("AtoiDefault(%q, %d) = %d, want %d", tt.in, tt.def, got, tt.want)
		}
	}
}
