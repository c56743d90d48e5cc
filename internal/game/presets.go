package game

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// BoardPreset fixes the reserve counts and komi for one board size.
// Presets are content, not code: they are loaded from YAML at startup.
type BoardPreset struct {
	Size      int `yaml:"size"`
	Pieces    int `yaml:"pieces"`
	Capstones int `yaml:"capstones"`
	HalfKomi  int `yaml:"half_komi"`
}

// Validate checks the preset invariants: a playable size and a non-empty
// flat-stone reserve.
func (p BoardPreset) Validate() error {
	if p.Size < 3 || p.Size > 8 {
		return fmt.Errorf("board size must be 3-8, got %d", p.Size)
	}
	if p.Pieces < 1 {
		return fmt.Errorf("size %d: pieces must be positive, got %d", p.Size, p.Pieces)
	}
	if p.Capstones < 0 {
		return fmt.Errorf("size %d: capstones must not be negative, got %d", p.Size, p.Capstones)
	}
	if p.HalfKomi < 0 {
		return fmt.Errorf("size %d: half_komi must not be negative, got %d", p.Size, p.HalfKomi)
	}
	return nil
}

// Presets maps board size to its preset.
type Presets map[int]BoardPreset

// Sizes returns the supported board sizes in ascending order.
func (p Presets) Sizes() []int {
	sizes := make([]int, 0, len(p))
	for s := range p {
		sizes = append(sizes, s)
	}
	sort.Ints(sizes)
	return sizes
}

// yamlPresetFile is the top-level YAML structure for preset files.
type yamlPresetFile struct {
	Presets []BoardPreset `yaml:"presets"`
}

// LoadPresetsFromFile reads and validates a board-preset YAML file.
//
// Precondition: path must point to a valid YAML preset file.
// Postcondition: Returns validated presets or a non-nil error.
func LoadPresetsFromFile(path string) (Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading preset file %s: %w", path, err)
	}
	return LoadPresetsFromBytes(data)
}

// LoadPresetsFromBytes parses and validates board presets from YAML bytes.
//
// Postcondition: every returned preset passes Validate and sizes are unique.
func LoadPresetsFromBytes(data []byte) (Presets, error) {
	var file yamlPresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing preset YAML: %w", err)
	}
	if len(file.Presets) == 0 {
		return nil, fmt.Errorf("no presets defined")
	}

	presets := make(Presets, len(file.Presets))
	for _, p := range file.Presets {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("validating preset: %w", err)
		}
		if _, dup := presets[p.Size]; dup {
			return nil, fmt.Errorf("duplicate preset for board size %d", p.Size)
		}
		presets[p.Size] = p
	}
	return presets, nil
}

// DefaultPresets returns the standard reserve counts, used when no content
// file is configured.
func DefaultPresets() Presets {
	return Presets{
		3: {Size: 3, Pieces: 10, Capstones: 0},
		4: {Size: 4, Pieces: 15, Capstones: 0},
		5: {Size: 5, Pieces: 21, Capstones: 1},
		6: {Size: 6, Pieces: 30, Capstones: 1},
		7: {Size: 7, Pieces: 40, Capstones: 2},
		8: {Size: 8, Pieces: 50, Capstones: 2},
	}
}
