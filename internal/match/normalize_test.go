package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "ampersand and conjunction compare equal",
			input: "Meals & Entertainment",
			want:  "meals entertainment",
		},
		{
			name:  "word conjunction",
			input: "Meals and Entertainment",
			want:  "meals entertainment",
		},
		{
			name:  "mixed case conjunction",
			input: "Dues And Subscriptions",
			want:  "dues subscriptions",
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  Office Supplies  ",
			want:  "office supplies",
		},
		{
			name:  "extra spaces around conjunction",
			input: "Repairs  &  Maintenance",
			want:  "repairs maintenance",
		},
		{
			name:  "no conjunction untouched",
			input: "Travel",
			want:  "travel",
		},
		{
			name:  "empty label",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeEquivalence(t *testing.T) {
	assert.Equal(t, Normalize("Meals & Entertainment"), Normalize("Meals and Entertainment"))
}

func TestNormalizeIdempotent(t *testing.T) {
	labels := []string{
		"Meals & Entertainment",
		"Dues and Subscriptions",
		"  Travel  ",
		"Repairs & Maintenance and Other",
		"",
	}
	for _, label := range labels {
		once := Normalize(label)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", label)
	}
}
