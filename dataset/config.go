// Package dataset - Pascal VOC evaluation datasets and their batched loader.
package dataset

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// BackgroundClass is the name of the reserved class at index 0.
const BackgroundClass = "__background__"

// Config is a data configuration file.
//
// Test directories take precedence over validation directories. CLASSES holds every class
// name indexed by label, with the background at index 0, and NC is its length.
type Config struct {
	TestDirImages  string `yaml:"TEST_DIR_IMAGES"`
	TestDirLabels  string `yaml:"TEST_DIR_LABELS"`
	ValidDirImages string `yaml:"VALID_DIR_IMAGES"`
	ValidDirLabels string `yaml:"VALID_DIR_LABELS"`

	NC            int      `yaml:"NC"`
	Classes       []string `yaml:"CLASSES"`
	COCO91Classes []string `yaml:"COCO_91_CLASSES"`
}

// LoadConfig reads and validates a YAML data configuration.
//
// Arguments:
//   - path: The path of the YAML file.
//
// Returns:
//   - *Config: The parsed configuration.
//   - error: When the file cannot be read or is incomplete.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read data config %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse data config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "data config %s", path)
	}
	return &cfg, nil
}

// Validate checks that the configuration names a dataset and a class list.
func (c *Config) Validate() error {
	if _, _, err := c.EvalDirs(); err != nil {
		return err
	}
	if len(c.Classes) == 0 {
		return errors.New("CLASSES is empty")
	}
	if c.NC != 0 && c.NC != len(c.Classes) {
		return errors.Errorf("NC is %d but CLASSES has %d entries", c.NC, len(c.Classes))
	}
	return nil
}

// EvalDirs returns the image and annotation directories to evaluate on.
func (c *Config) EvalDirs() (imagesDir, labelsDir string, err error) {
	if c.TestDirImages != "" && c.TestDirLabels != "" {
		return c.TestDirImages, c.TestDirLabels, nil
	}
	if c.ValidDirImages != "" && c.ValidDirLabels != "" {
		return c.ValidDirImages, c.ValidDirLabels, nil
	}
	return "", "", errors.New("neither TEST_DIR_IMAGES/TEST_DIR_LABELS nor VALID_DIR_IMAGES/VALID_DIR_LABELS are set")
}

// LabelSpace returns the class list that annotations are indexed against.
//
// With coco set the COCO_91_CLASSES list is used, otherwise CLASSES.
func (c *Config) LabelSpace(coco bool) ([]string, error) {
	if !coco {
		return c.Classes, nil
	}
	if len(c.COCO91Classes) == 0 {
		return nil, errors.New("COCO_91_CLASSES is required for COCO labels")
	}
	return c.COCO91Classes, nil
}
