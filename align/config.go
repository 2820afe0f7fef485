package align

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Dataset splits.
const (
	SplitVal  = "val"
	SplitTest = "test"
)

// Config is the run configuration loaded from YAML.
type Config struct {
	Split      string                 `yaml:"split"`
	FramesRoot string                 `yaml:"framesRoot"`
	Workers    int                    `yaml:"workers,omitempty"`
	Splits     map[string]SplitConfig `yaml:"splits"`
	Filter     FilterConfig           `yaml:"filter"`
	Export     ExportConfig           `yaml:"export"`
	MQTT       MQTTConfig             `yaml:"mqtt"`
	Store      StoreConfig            `yaml:"store"`
}

// SplitConfig names the inputs and output directory of one dataset split.
type SplitConfig struct {
	Clips     PoseFiles `yaml:"clips"`
	Scans     PoseFiles `yaml:"scans"`
	ScanRoot  string    `yaml:"scanRoot"`
	OutputDir string    `yaml:"outputDir"`
}

// PoseFiles names the source (structure-from-motion) and destination (PnP)
// pose collections of a pass.
type PoseFiles struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
}

// FilterConfig configures outlier removal per pass.
type FilterConfig struct {
	Enabled bool          `yaml:"enabled"`
	Clip    OutlierParams `yaml:"clip"`
	Scan    OutlierParams `yaml:"scan"`
}

// ExportConfig toggles the per-run outputs.
type ExportConfig struct {
	PLY             bool   `yaml:"ply"`
	GeoJSON         bool   `yaml:"geojson"`
	Poses           bool   `yaml:"poses"`
	Render          string `yaml:"render,omitempty"` // "", "svg" or "png"
	Plot            bool   `yaml:"plot"`
	TransformCache  string `yaml:"transformCache,omitempty"`
	ReuseTransforms bool   `yaml:"reuseTransforms,omitempty"` // apply cached transforms to failed fits
}

// MQTTConfig holds the optional broker settings for result publishing.
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty"`
	ClientID      string `yaml:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty"`
}

// StoreConfig holds the optional sqlite results database path.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Split:      SplitVal,
		FramesRoot: "clips_frames",
		Splits: map[string]SplitConfig{
			SplitVal: {
				Clips:     PoseFiles{Source: "colmap_ext_val.json", Dest: "pnp_ext_val.json"},
				Scans:     PoseFiles{Source: "colmap_ext_val_scan.json", Dest: "pnp_ext_val_scan.json"},
				ScanRoot:  "colmap_scan",
				OutputDir: "clips_camera_poses",
			},
			SplitTest: {
				Clips:     PoseFiles{Source: "colmap_ext_test.json", Dest: "pnp_ext_test.json"},
				Scans:     PoseFiles{Source: "colmap_ext_test_scan.json", Dest: "pnp_ext_test_scan.json"},
				ScanRoot:  "colmap_scan_test",
				OutputDir: "clips_camera_poses_test",
			},
		},
		Filter: FilterConfig{
			Clip: DefaultClipOutlierParams,
			Scan: DefaultScanOutlierParams,
		},
	}
}

// LoadConfig loads the configuration from a YAML file. Fields omitted from
// the file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the fields a run depends on.
func (c *Config) Validate() error {
	if c.Split != SplitVal && c.Split != SplitTest {
		return fmt.Errorf("split must be %q or %q, got %q", SplitVal, SplitTest, c.Split)
	}
	if c.FramesRoot == "" {
		return fmt.Errorf("framesRoot is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	sc, ok := c.Splits[c.Split]
	if !ok {
		return fmt.Errorf("splits.%s is not configured", c.Split)
	}
	if sc.Clips.Source == "" || sc.Clips.Dest == "" {
		return fmt.Errorf("splits.%s.clips requires source and dest", c.Split)
	}
	if sc.Scans.Source == "" || sc.Scans.Dest == "" {
		return fmt.Errorf("splits.%s.scans requires source and dest", c.Split)
	}
	if sc.ScanRoot == "" {
		return fmt.Errorf("splits.%s.scanRoot is required", c.Split)
	}
	if c.Filter.Enabled {
		for name, p := range map[string]OutlierParams{"clip": c.Filter.Clip, "scan": c.Filter.Scan} {
			if p.K < 1 {
				return fmt.Errorf("filter.%s.k must be at least 1", name)
			}
			if p.StdRatio <= 0 {
				return fmt.Errorf("filter.%s.stdRatio must be positive", name)
			}
		}
	}
	if c.Export.ReuseTransforms && c.Export.TransformCache == "" {
		return fmt.Errorf("export.reuseTransforms requires export.transformCache")
	}
	switch c.Export.Render {
	case "", "svg", "png":
	default:
		return fmt.Errorf("export.render must be svg or png, got %q", c.Export.Render)
	}
	return nil
}

// ActiveSplit returns the inputs of the selected split.
func (c *Config) ActiveSplit() SplitConfig {
	return c.Splits[c.Split]
}

// RunOptions converts the configuration into the core's run parameters.
func (c *Config) RunOptions() RunOptions {
	return RunOptions{
		Split:       c.Split,
		Filter:      c.Filter.Enabled,
		ClipOutlier: c.Filter.Clip,
		ScanOutlier: c.Filter.Scan,
		Workers:     c.Workers,
	}
}
