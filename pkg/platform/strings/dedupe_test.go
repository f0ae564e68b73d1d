package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims each value",
			input:    []string{"  document.signed  ", "document.completed "},
			expected: []string{"document.signed", "document.completed"},
		},
		{
			name:     "drops duplicates keeping first-seen order",
			input:    []string{"hr", "legal", "hr", "security", "legal"},
			expected: []string{"hr", "legal", "security"},
		},
		{
			name:     "drops empty and blank values",
			input:    []string{"hr", "", "  ", "legal"},
			expected: []string{"hr", "legal"},
		},
		{
			name:     "trim and dedupe combine",
			input:    []string{"  hr ", "legal", "hr", "", "  ", "legal"},
			expected: []string{"hr", "legal"},
		},
		{
			name:     "case is significant",
			input:    []string{"HR", "hr"},
			expected: []string{"HR", "hr"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
