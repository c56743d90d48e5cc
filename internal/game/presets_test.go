package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const presetYAML = `
presets:
  - size: 5
    pieces: 21
    capstones: 1
  - size: 6
    pieces: 30
    capstones: 1
    half_komi: 4
`

func TestLoadPresetsFromBytes(t *testing.T) {
	presets, err := LoadPresetsFromBytes([]byte(presetYAML))
	require.NoError(t, err)
	require.Len(t, presets, 2)

	assert.Equal(t, 21, presets[5].Pieces)
	assert.Equal(t, 1, presets[5].Capstones)
	assert.Equal(t, 0, presets[5].HalfKomi)
	assert.Equal(t, 4, presets[6].HalfKomi)
	assert.Equal(t, []int{5, 6}, presets.Sizes())
}

func TestLoadPresetsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", `presets: []`},
		{"size too small", "presets:\n  - size: 2\n    pieces: 10"},
		{"size too large", "presets:\n  - size: 9\n    pieces: 10"},
		{"no pieces", "presets:\n  - size: 5\n    pieces: 0"},
		{"duplicate size", "presets:\n  - size: 5\n    pieces: 21\n  - size: 5\n    pieces: 10"},
		{"not yaml", `{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPresetsFromBytes([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDefaultPresetsAreValid(t *testing.T) {
	presets := DefaultPresets()
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8}, presets.Sizes())
	for _, p := range presets {
		assert.NoError(t, p.Validate())
	}
}
