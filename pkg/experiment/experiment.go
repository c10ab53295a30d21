// Package experiment persists the description of one imaging experiment:
// where its frames live, how they are prepared and which channels were
// selected.
package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"channeldiffusion/pkg/geometry"
)

// Experiment is the on-disk record shared by every pipeline step.
type Experiment struct {
	Name string `yaml:"experimentName"`

	// BrightfieldDir and FluorescenceDir hold one image file per frame
	BrightfieldDir  string `yaml:"brightfield"`
	FluorescenceDir string `yaml:"fluorescence"`

	// SwapChannels exchanges the two directories when they were recorded
	// the wrong way round
	SwapChannels bool `yaml:"swapChannels,omitempty"`

	// Angle rotates every frame counter-clockwise, in degrees
	Angle float64 `yaml:"angle"`

	// FramesToSkip lists frame indices dropped before analysis
	FramesToSkip []int `yaml:"framesToSkip,omitempty"`

	// Boxes are kept in left-to-right order
	Boxes geometry.BoxList `yaml:"boxes"`

	// LinesPerPixelLength is recorded once weight maps are generated
	LinesPerPixelLength float64 `yaml:"linesPerPixelLength,omitempty"`

	// WeightMapsPath points to the weight-map database
	WeightMapsPath string `yaml:"weightMapsPath,omitempty"`

	// path is where the experiment was loaded from; relative paths resolve
	// against its directory
	path string
}

// Load reads an experiment file.
func Load(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading experiment file: %w", err)
	}

	exp := &Experiment{}
	if err := yaml.Unmarshal(data, exp); err != nil {
		return nil, fmt.Errorf("error parsing experiment file: %w", err)
	}
	exp.path = path

	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return exp, nil
}

// Save writes the experiment file, creating its directory if needed.
func (e *Experiment) Save(path string) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating experiment directory: %w", err)
	}

	data, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Errorf("error marshaling experiment: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing experiment file: %w", err)
	}
	e.path = path
	return nil
}

// Path returns the file the experiment was loaded from or last saved to.
func (e *Experiment) Path() string {
	return e.path
}

// Validate checks the fields every step relies on.
func (e *Experiment) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("experiment has no name")
	}
	if e.Boxes.Len() == 0 {
		return fmt.Errorf("experiment %q has no bounding boxes", e.Name)
	}
	for _, f := range e.FramesToSkip {
		if f < 0 {
			return fmt.Errorf("experiment %q skips negative frame %d", e.Name, f)
		}
	}
	return nil
}

// Channels returns the brightfield and fluorescence directories, resolved
// against the experiment file and swapped when requested.
func (e *Experiment) Channels() (brightfield, fluorescence string) {
	brightfield = e.Resolve(e.BrightfieldDir)
	fluorescence = e.Resolve(e.FluorescenceDir)
	if e.SwapChannels {
		brightfield, fluorescence = fluorescence, brightfield
	}
	return brightfield, fluorescence
}

// Resolve makes p absolute relative to the experiment file's directory.
func (e *Experiment) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || e.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(e.path), p)
}

// Skipped returns the sorted, de-duplicated frame indices to drop.
func (e *Experiment) Skipped() []int {
	seen := make(map[int]bool, len(e.FramesToSkip))
	var out []int
	for _, f := range e.FramesToSkip {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Ints(out)
	return out
}
