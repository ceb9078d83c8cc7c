package config

import (
	"bytes"
	"fmt"
	"os"

	"proteodiff/internal/errors"

	"gopkg.in/yaml.v3"
)

// DesignFile is the YAML sample sheet:
//
//	contrast:
//	  numerator: trt
//	  denominator: ctrl
//	intercept: false
//	fit_mode: robust
//	levels: [ctrl, trt]
//	samples:
//	  ctrl_1: ctrl
//	  trt_1: trt
//	weights:
//	  trt_1: 0.5
type DesignFile struct {
	Contrast struct {
		Numerator   string `yaml:"numerator"`
		Denominator string `yaml:"denominator"`
	} `yaml:"contrast"`
	Intercept    *bool              `yaml:"intercept"`
	FitMode      string             `yaml:"fit_mode"`
	Levels       []string           `yaml:"levels"`
	GroupPattern string             `yaml:"group_pattern"`
	Samples      map[string]string  `yaml:"samples"`
	Weights      map[string]float64 `yaml:"weights"`
}

// LoadDesignFile reads and decodes a sample sheet. Unknown keys are
// rejected so typos do not silently drop settings.
func LoadDesignFile(path string) (*DesignFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	return ParseDesignFile(raw)
}

// ParseDesignFile decodes a sample sheet from memory
func ParseDesignFile(raw []byte) (*DesignFile, error) {
	var d DesignFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, errors.ConfigInvalid(fmt.Sprintf("design file: %v", err))
	}
	if len(d.Samples) == 0 && d.GroupPattern == "" {
		return nil, errors.ConfigInvalid("design file needs samples or group_pattern")
	}
	for s, w := range d.Weights {
		if w <= 0 {
			return nil, errors.ConfigInvalid(fmt.Sprintf("design file: weight for %s must be positive", s))
		}
	}
	return &d, nil
}

// Apply overlays the sheet's settings on the analysis config. Values the
// sheet leaves empty keep the config's.
func (d *DesignFile) Apply(a *AnalysisConfig) {
	if d.Contrast.Numerator != "" {
		a.Numerator = d.Contrast.Numerator
	}
	if d.Contrast.Denominator != "" {
		a.Denominator = d.Contrast.Denominator
	}
	if d.Intercept != nil {
		a.Intercept = *d.Intercept
	}
	if d.FitMode != "" {
		a.FitMode = d.FitMode
	}
	if d.GroupPattern != "" {
		a.GroupPattern = d.GroupPattern
	}
}
