package utils

import (
	"math"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than max", "abc", 10, "abc"},
		{"exact", "abcd", 4, "abcd"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"cyrillic is cut on rune boundary", "Настройка VPN", 9, "Настройка"},
		{"zero max keeps input", "abc", 0, "abc"},
		{"empty", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(L2Norm(v)-1) > 1e-6 {
		t.Errorf("norm after NormalizeL2 = %f, want 1", L2Norm(v))
	}
	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestDot(t *testing.T) {
	if got := Dot([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal dot = %f", got)
	}
	if got := Dot([]float32{1, 2}, []float32{1}); got != 0 {
		t.Errorf("mismatched lengths should be 0, got %f", got)
	}
}

func TestRoundScore(t *testing.T) {
	if got := RoundScore(0.123456); got != 0.1235 {
		t.Errorf("RoundScore = %v, want 0.1235", got)
	}
	if got := RoundScore(1); got != 1 {
		t.Errorf("RoundScore(1) = %v", got)
	}
}

func TestFloat32Encoding(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out, err := DecodeFloat32s(EncodeFloat32s(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := DecodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated data")
	}
}
