package convert

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/cyclopcam/masksync/pkg/labelmask"
	"github.com/cyclopcam/masksync/pkg/palette"
	"github.com/cyclopcam/masksync/pkg/reconcile"
)

// Settings holds every tunable of mask <-> polygon conversion
type Settings struct {
	Colors    []palette.ColorEntry       `json:"colors"`    // Class color table for 3-channel masks
	Vectorize labelmask.VectorizeOptions `json:"vectorize"` // Contour simplification
	Reconcile reconcile.Params           `json:"reconcile"` // Identity matching
}

func DefaultSettings() *Settings {
	return &Settings{
		Colors:    slices.Clone(palette.DefaultColorTable),
		Vectorize: labelmask.DefaultVectorizeOptions(),
		Reconcile: reconcile.DefaultParams(),
	}
}

// LoadSettings reads a JSON settings file. Fields absent from the file keep their defaults.
// An empty filename returns the defaults.
func LoadSettings(filename string) (*Settings, error) {
	s := DefaultSettings()
	if filename == "" {
		return s, nil
	}
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("Error parsing settings file %v: %w", filename, err)
	}
	return s, nil
}
