package cube

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/lh-astro/fitscube/pkg/buildlog"
)

// canonicalPolarizations is the default outer-axis order for the
// polarization axis.
var canonicalPolarizations = []string{"I", "Q", "U", "V"}

// Config is the full build configuration. Width, Height and Bitpix may
// be left zero, in which case they are discovered from the reference
// image before allocation.
type Config struct {
	Output    string `yaml:"output"`
	Overwrite bool   `yaml:"overwrite"`
	Object    string `yaml:"object"`

	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	Bitpix int `yaml:"bitpix"`

	// Inputs maps a polarization name to a glob pattern; matches are
	// sorted and become the channel-ordered plane list for that
	// polarization.
	Inputs map[string]string `yaml:"inputs"`

	// Polarizations fixes the outer-axis order. Defaults to the
	// canonical I, Q, U, V order filtered to the polarizations that
	// actually appear in Inputs.
	Polarizations []string `yaml:"polarizations"`

	ChunkSize    int  `yaml:"chunk_size"`
	Workers      int  `yaml:"workers"`
	HeaderBlocks int  `yaml:"header_blocks"`
	ZeroFill     bool `yaml:"zero_fill"`

	// RMSThreshold is the Stokes-V noise ceiling in uJy/beam above
	// which a channel is flagged and written as NaN. Zero disables
	// noise screening.
	RMSThreshold   float64 `yaml:"rms_threshold"`
	StatisticsFile string  `yaml:"statistics_file"`

	Log buildlog.Config `yaml:"log"`
}

// LoadConfig reads a YAML build configuration.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// buildPlan is the resolved, channel-ordered plane list.
type buildPlan struct {
	pols     []string
	paths    map[string][]string // polarization -> per-channel source path
	channels int
}

// resolveInputs expands the per-polarization globs into sorted path
// lists and checks that every polarization covers the same channels.
func (c *Config) resolveInputs() (*buildPlan, error) {
	if len(c.Inputs) == 0 {
		return nil, fmt.Errorf("no inputs configured")
	}

	pols := c.Polarizations
	if len(pols) == 0 {
		for _, p := range canonicalPolarizations {
			if _, ok := c.Inputs[p]; ok {
				pols = append(pols, p)
			}
		}
		// Non-canonical polarization names come last, sorted.
		var rest []string
		for p := range c.Inputs {
			if !containsString(pols, p) {
				rest = append(rest, p)
			}
		}
		sort.Strings(rest)
		pols = append(pols, rest...)
	}

	plan := &buildPlan{pols: pols, paths: make(map[string][]string)}
	for _, pol := range pols {
		pattern, ok := c.Inputs[pol]
		if !ok {
			return nil, fmt.Errorf("polarization %q has no input pattern", pol)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad glob %q for polarization %q: %w", pattern, pol, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("glob %q for polarization %q matched no files", pattern, pol)
		}
		sort.Strings(matches)
		plan.paths[pol] = matches
	}

	plan.channels = len(plan.paths[pols[0]])
	for _, pol := range pols {
		if len(plan.paths[pol]) != plan.channels {
			return nil, fmt.Errorf("polarization %q has %d channels, %q has %d",
				pol, len(plan.paths[pol]), pols[0], plan.channels)
		}
	}
	return plan, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
