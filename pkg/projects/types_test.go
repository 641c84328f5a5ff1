package projects

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidSlug(t *testing.T) {
	tests := []struct {
		name string
		slug string
		want bool
	}{
		{"simple", "genome-atlas", true},
		{"single word", "atlas", true},
		{"digits", "lab-42", true},
		{"empty", "", false},
		{"uppercase", "Genome-Atlas", false},
		{"underscore", "genome_atlas", false},
		{"leading hyphen", "-atlas", false},
		{"trailing hyphen", "atlas-", false},
		{"double hyphen", "genome--atlas", false},
		{"spaces", "genome atlas", false},
		{"too long", strings.Repeat("a", 64), false},
		{"max length", strings.Repeat("a", 63), true},
		{"uuid shaped", uuid.NewString(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidSlug(tt.slug))
		})
	}
}
