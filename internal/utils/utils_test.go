package utils

import (
	"testing"
)

func TestShortenString(t *testing.T) {
	tests := []struct {
		input    string
		length   int
		expected string
	}{
		{"hello world", 5, "hello..."},
		{"hello", 10, "hello"},
		{"", 3, ""},
		{"abcdef", 0, "abcdef"},
		{"abcdef", 6, "abcdef"},
		{"abcdef", 3, "abc..."},
		{"grüße", 3, "gr..."},
		{"grüße", 4, "grü..."},
	}

	for _, tt := range tests {
		result := ShortenString(tt.input, tt.length)
		if result != tt.expected {
			t.Errorf("ShortenString(%q, %d) = %q; want %q", tt.input, tt.length, result, tt.expected)
		}
	}
}

func TestClosestString(t *testing.T) {
	tests := []struct {
		input      string
		candidates []string
		maxDist    int
		expected   string
		found      bool
	}{
		{"Savings ", []string{"Savings", "Offset"}, 2, "Savings", true},
		{"savings account", []string{"Savings", "Offset"}, 2, "", false},
		{"OFFSET", []string{"Savings", "Offset"}, 0, "Offset", true},
		{"Everyday", []string{}, 3, "", false},
	}

	for _, tt := range tests {
		result, found := ClosestString(tt.input, tt.candidates, tt.maxDist)
		if found != tt.found || (found && result != tt.expected) {
			t.Errorf("ClosestString(%q, %v, %d) = %q, %v; want %q, %v", tt.input, tt.candidates, tt.maxDist, result, found, tt.expected, tt.found)
		}
	}
}
