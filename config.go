package elastiq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jirevwe/elastiq/pool"
)

// Config is the service configuration, loadable from a YAML or JSON
// file. Pool sizing follows the pool package's rules: the roster starts
// at MinWorkers, grows one worker per dispatch while the backlog exceeds
// HighWaterMark, and never exceeds MaxWorkers.
type Config struct {
	MinWorkers    int    `yaml:"min_workers" json:"min_workers"`
	MaxWorkers    int    `yaml:"max_workers" json:"max_workers"`
	HighWaterMark int    `yaml:"high_water_mark" json:"high_water_mark"`
	JournalPath   string `yaml:"journal_path" json:"journal_path"`
}

func DefaultConfig() Config {
	return Config{
		MinWorkers:    3,
		MaxWorkers:    10,
		HighWaterMark: pool.DefaultHighWaterMark,
		JournalPath:   "elastiq.db",
	}
}

// LoadConfig reads a config file; the format is chosen by extension.
// Fields absent from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format: %s", ext)
	}

	return config, nil
}
