package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"blank", "   ", nil},
		{"single", "kafka:9092", []string{"kafka:9092"}},
		{"trims and drops empties", " a, ,b ,", []string{"a", "b"}},
		{"dedupes preserving order", "bob,alice,bob", []string{"bob", "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input))
		})
	}
}

func TestDedupeAndTrim(t *testing.T) {
	assert.Nil(t, DedupeAndTrim(nil))
	assert.Equal(t, []string{}, DedupeAndTrim([]string{}))
	assert.Equal(t, []string{"x", "y"}, DedupeAndTrim([]string{" x", "y ", "x", ""}))
}
