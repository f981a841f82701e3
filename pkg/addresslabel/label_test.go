package addresslabel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		street   string
		number   string
		city     string
		expected string
	}{
		{
			name:     "full address",
			street:   "Rua das Laranjeiras",
			number:   "123",
			city:     "Santos",
			expected: "Rua das Laranjeiras, 123 - Santos",
		},
		{
			name:     "no number",
			street:   "Avenida Paulista",
			number:   "",
			city:     "São Paulo",
			expected: "Avenida Paulista - São Paulo",
		},
		{
			name:     "no city",
			street:   "Rua A",
			number:   "45",
			city:     "",
			expected: "Rua A, 45",
		},
		{
			name:     "street only",
			street:   "Rua B",
			expected: "Rua B",
		},
		{
			name:     "whitespace-only components",
			street:   "  ",
			number:   " ",
			city:     "\t",
			expected: "",
		},
		{
			name:     "components get trimmed",
			street:   " Rua C ",
			number:   " 7 ",
			city:     " Guarujá ",
			expected: "Rua C, 7 - Guarujá",
		},
		{
			name:     "number and city without street",
			street:   "",
			number:   "99",
			city:     "Campinas",
			expected: "99 - Campinas",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.street, tt.number, tt.city))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Rua A, 123 - Santos", "rua a 123 santos"},
		{"RUA A 123 SANTOS", "rua a 123 santos"},
		{"  rua   a,,, 123 --- santos  ", "rua a 123 santos"},
		{"", ""},
		{", - ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Normalize(tt.input))
	}
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("Rua A, 123 - Santos", "rua a 123 santos"))
	assert.False(t, Matches("Rua A, 123 - Santos", "Rua A, 124 - Santos"))
}
