package server

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/masksync/pkg/framestore"
)

type Config struct {
	DB       dbh.DBConfig      `json:"db"`
	Storage  StorageConfig     `json:"storage"`
	Layout   framestore.Layout `json:"layout"`   // Sub-directories of frames, masks, and annotations
	Settings string            `json:"settings"` // Path to conversion settings. Empty means defaults.
	Workers  int               `json:"workers"`  // Vectorization workers for sequence runs. Zero means one per CPU.
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the sequence
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
}

// LoadConfig reads a config file. Missing layout fields take their defaults.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{
		Layout: framestore.DefaultLayout(),
	}
	cfgB, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cfgB, cfg); err != nil {
		return nil, fmt.Errorf("Error parsing config file %v: %w", configFile, err)
	}
	def := framestore.DefaultLayout()
	if cfg.Layout.Frames == "" {
		cfg.Layout.Frames = def.Frames
	}
	if cfg.Layout.Masks == "" {
		cfg.Layout.Masks = def.Masks
	}
	if cfg.Layout.Annotations == "" {
		cfg.Layout.Annotations = def.Annotations
	}
	return cfg, nil
}
