package nostraddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeExactCaseFoldsAndCollapsesPunctuation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"mixed case", "The Great Gatsby", "the great gatsby"},
		{"dashes", "self-published book", "self published book"},
		{"repeated punctuation", "what?! really??", "what really"},
		{"already normalized", "plain query", "plain query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeExact(tt.input))
		})
	}
}

func TestNormalizeFuzzyStripsCombiningMarks(t *testing.T) {
	assert.Equal(t, "cafe", NormalizeFuzzy("café"))
	assert.Equal(t, "resume", NormalizeFuzzy("résumé"))
	assert.Equal(t, "naive", NormalizeFuzzy("naïve"))
}

func TestNormalizeFuzzySupersetsExactBehavior(t *testing.T) {
	assert.Equal(t, "self published", NormalizeFuzzy("Self-Published"))
}
