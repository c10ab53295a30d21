// Package pipeline runs the weight-map analysis of one experiment end to
// end: frames are loaded, weight maps built and stored, fluorescence stacks
// reduced to profiles, and the diffusion front fitted.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"channeldiffusion/internal/logger"
	"channeldiffusion/internal/models"
	"channeldiffusion/pkg/config"
	"channeldiffusion/pkg/diffusion"
	"channeldiffusion/pkg/experiment"
	"channeldiffusion/pkg/export"
	"channeldiffusion/pkg/stack"
	"channeldiffusion/pkg/store"
	"channeldiffusion/pkg/visualization"
	"channeldiffusion/pkg/weightmap"
)

// ErrStaleWeightMaps is returned when the stored maps were built for boxes
// other than the experiment's current ones.
var ErrStaleWeightMaps = errors.New("stored weight maps do not match the experiment boxes")

// Params holds the inputs of a run.
type Params struct {
	// ExperimentPath is the experiment YAML file
	ExperimentPath string

	// Config supplies processing, analysis and output settings
	Config *config.Config

	// LinesPerPixelLength overrides the configured density when positive
	LinesPerPixelLength float64

	// Logger receives progress; nil discards it
	Logger *logger.Logger
}

// Steps selects which stages Process runs.
type Steps struct {
	Build bool
	Apply bool
	Fit   bool
}

// AllSteps runs everything.
var AllSteps = Steps{Build: true, Apply: true, Fit: true}

// ProfileStats summarises the raw intensities of one profile.
type ProfileStats struct {
	Mean             float64
	StdDev           float64
	Min              float64
	Max              float64
	MiddleLineLength float64
}

// Pipeline carries the state of a run between stages.
type Pipeline struct {
	params *Params
	cfg    *config.Config
	log    *logger.Logger
	exp    *experiment.Experiment

	// maps[i] belongs to box i of the experiment
	maps     []models.WeightMap
	profiles []models.IntensityProfile
	stats    []ProfileStats
	results  []*diffusion.Result
}

// New loads the experiment and prepares a pipeline for it.
func New(params *Params) (*Pipeline, error) {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := params.Logger
	if log == nil {
		log = logger.Discard()
	}

	exp, err := experiment.Load(params.ExperimentPath)
	if err != nil {
		return nil, err
	}

	return &Pipeline{params: params, cfg: cfg, log: log, exp: exp}, nil
}

// Experiment returns the loaded experiment.
func (p *Pipeline) Experiment() *experiment.Experiment {
	return p.exp
}

// WeightMaps returns the maps built or loaded so far.
func (p *Pipeline) WeightMaps() []models.WeightMap {
	return p.maps
}

// Profiles returns the profiles computed so far.
func (p *Pipeline) Profiles() []models.IntensityProfile {
	return p.profiles
}

// Stats returns per-profile intensity summaries.
func (p *Pipeline) Stats() []ProfileStats {
	return p.stats
}

// Results returns the fitted fronts, one per box.
func (p *Pipeline) Results() []*diffusion.Result {
	return p.results
}

// Process runs the selected stages in order.
func (p *Pipeline) Process(steps Steps) error {
	p.log.Info("Experiment %q with %d boxes", p.exp.Name, p.exp.Boxes.Len())

	if steps.Build {
		p.log.Info("Step 1: Building weight maps...")
		if err := p.BuildWeightMaps(); err != nil {
			return fmt.Errorf("failed to build weight maps: %w", err)
		}
	}

	if steps.Apply {
		p.log.Info("Step 2: Applying weight maps to the fluorescence stack...")
		if err := p.ApplyWeightMaps(); err != nil {
			return fmt.Errorf("failed to apply weight maps: %w", err)
		}
	}

	if steps.Fit {
		p.log.Info("Step 3: Fitting the diffusion front...")
		if err := p.FitProfiles(); err != nil {
			return fmt.Errorf("failed to fit profiles: %w", err)
		}
	}

	return nil
}

// OutputDir is where this experiment's files are written.
func (p *Pipeline) OutputDir() string {
	return p.exp.Resolve(filepath.Join(p.cfg.Output.Dir, p.exp.Name))
}

// DatabasePath is the weight-map database of the experiment.
func (p *Pipeline) DatabasePath() string {
	if p.exp.WeightMapsPath != "" {
		return p.exp.Resolve(p.exp.WeightMapsPath)
	}
	return filepath.Join(p.OutputDir(), "weightmaps.db")
}

// ProfilePath is the CSV table of box i.
func (p *Pipeline) ProfilePath(box int) string {
	return filepath.Join(p.OutputDir(), fmt.Sprintf("%s_box%d.csv", p.exp.Name, box))
}

// ResultPath is the fit result of box i.
func (p *Pipeline) ResultPath(box int) string {
	return filepath.Join(p.OutputDir(), fmt.Sprintf("%s_box%d_fit.yaml", p.exp.Name, box))
}

// ProfileGridPath is the per-frame intensity plot of box i.
func (p *Pipeline) ProfileGridPath(box int) string {
	return filepath.Join(p.OutputDir(), fmt.Sprintf("%s_box%d_profiles.png", p.exp.Name, box))
}

func (p *Pipeline) outputFile(name string) string {
	return filepath.Join(p.OutputDir(), name)
}

func (p *Pipeline) stackOptions() stack.Options {
	return stack.Options{Angle: p.exp.Angle, Skip: p.exp.Skipped()}
}

func (p *Pipeline) linesPerPixelLength() float64 {
	if p.params.LinesPerPixelLength > 0 {
		return p.params.LinesPerPixelLength
	}
	return p.cfg.Processing.LinesPerPixelLength
}

func (p *Pipeline) builder(lpl float64) (*weightmap.Builder, error) {
	kernel, err := weightmap.ParseKernel(p.cfg.Processing.Kernel)
	if err != nil {
		return nil, err
	}
	b := weightmap.NewBuilder(lpl)
	b.SamplesPerPixel = p.cfg.Processing.SamplesPerPixel
	b.Kernel = kernel
	b.Workers = p.cfg.Processing.NumWorkers
	return b, nil
}

// firstBrightfield returns the first retained brightfield frame, prepared
// like every other frame.
func (p *Pipeline) firstBrightfield() (models.Frame, error) {
	dir, _ := p.exp.Channels()
	opts := p.stackOptions()
	opts.Limit = 1
	frames, err := stack.Load(dir, opts)
	if err != nil {
		return models.Frame{}, fmt.Errorf("failed to load brightfield frames: %w", err)
	}
	return frames[0], nil
}

// Preview builds n lines per box and draws them over the first brightfield
// frame. It returns the path of the written image.
func (p *Pipeline) Preview(n int) (string, error) {
	if n < 1 {
		n = p.cfg.Processing.PreviewLines
	}
	frame, err := p.firstBrightfield()
	if err != nil {
		return "", err
	}

	b, err := p.builder(p.linesPerPixelLength())
	if err != nil {
		return "", err
	}

	maps := make([]models.WeightMap, p.exp.Boxes.Len())
	for i := range maps {
		wm, err := b.Preview(p.exp.Boxes.At(i), frame.Shape(), n)
		if err != nil {
			return "", fmt.Errorf("box %d: %w", i, err)
		}
		maps[i] = wm
	}

	img := visualization.RenderPreview(frame, maps, visualization.DefaultPreviewOptions())
	path := p.outputFile(fmt.Sprintf("%s_preview.png", p.exp.Name))
	if err := visualization.SaveImage(img, path); err != nil {
		return "", err
	}
	p.log.Info("Preview with %d lines per box written to %s", n, path)
	return path, nil
}

// BuildWeightMaps generates a map per box for the brightfield frame shape,
// stores them and records the settings in the experiment file.
func (p *Pipeline) BuildWeightMaps() error {
	frame, err := p.firstBrightfield()
	if err != nil {
		return err
	}
	shape := frame.Shape()
	p.log.Info("Frame shape %dx%d", shape.Width, shape.Height)

	lpl := p.linesPerPixelLength()
	b, err := p.builder(lpl)
	if err != nil {
		return err
	}
	b.Progress = p.log.Progress("Building weight maps")

	maps, err := b.BuildAll(p.exp.Boxes, shape)
	if err != nil {
		return err
	}
	for i, wm := range maps {
		p.log.Info("Box %d: %d lines over %.1f px", i, len(wm.Lines), wm.AxisLength)
	}

	dbPath := p.DatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.NewWeightMapRepository(db).Save(p.exp.Name, maps); err != nil {
		return err
	}
	p.maps = maps

	p.exp.LinesPerPixelLength = lpl
	p.exp.WeightMapsPath = p.relativeToExperiment(dbPath)
	if err := p.exp.Save(p.exp.Path()); err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}

	if p.cfg.Output.SaveIntermediaryResults {
		img := visualization.RenderPreview(frame, maps, visualization.PreviewOptions{Scale: 4, ShowPixels: true})
		if err := visualization.SaveImage(img, p.outputFile("weightmaps.png")); err != nil {
			p.log.Warning("Failed to save weight map overview: %v", err)
		}
	}
	return nil
}

func (p *Pipeline) relativeToExperiment(path string) string {
	rel, err := filepath.Rel(filepath.Dir(p.exp.Path()), path)
	if err != nil {
		return path
	}
	return rel
}

// loadWeightMaps reads the stored maps unless this run built them.
func (p *Pipeline) loadWeightMaps() error {
	if p.maps != nil {
		return nil
	}
	dbPath := p.DatabasePath()
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no weight maps at %s, run build first", dbPath)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	maps, err := store.NewWeightMapRepository(db).Load(p.exp.Name)
	if err != nil {
		return err
	}
	if len(maps) != p.exp.Boxes.Len() {
		return fmt.Errorf("%w: stored %d maps for %d boxes, run build again",
			ErrStaleWeightMaps, len(maps), p.exp.Boxes.Len())
	}
	for i, wm := range maps {
		if wm.Box != p.exp.Boxes.At(i) {
			return fmt.Errorf("%w: box %d changed since the maps were built, run build again",
				ErrStaleWeightMaps, i)
		}
	}
	p.maps = maps
	return nil
}

// ApplyWeightMaps reduces the fluorescence stack along every map and writes
// one CSV table per box.
func (p *Pipeline) ApplyWeightMaps() error {
	if err := p.loadWeightMaps(); err != nil {
		return err
	}

	_, dir := p.exp.Channels()
	frames, err := stack.Load(dir, p.stackOptions())
	if err != nil {
		return fmt.Errorf("failed to load fluorescence frames: %w", err)
	}
	p.log.Info("Loaded %d fluorescence frames", len(frames))

	applier := weightmap.NewApplier(p.cfg.Processing.NumWorkers)
	applier.Progress = p.log.Progress("Applying weight maps")

	profiles, err := applier.ApplyAll(p.maps, frames)
	if err != nil {
		return err
	}

	p.stats = make([]ProfileStats, len(profiles))
	for i, profile := range profiles {
		if err := export.SaveProfile(p.ProfilePath(i), profile); err != nil {
			return err
		}
		p.stats[i] = summarize(profile)
		p.log.Info("Box %d: mean intensity %.2f ± %.2f, middle line %.2f px",
			i, p.stats[i].Mean, p.stats[i].StdDev, p.stats[i].MiddleLineLength)
	}
	p.profiles = profiles

	if p.cfg.Output.SaveIntermediaryResults {
		viewer := visualization.NewViewer(frames)
		if err := viewer.SaveFrameSequence(p.outputFile("frames")); err != nil {
			p.log.Warning("Failed to save prepared frames: %v", err)
		}
	}
	return nil
}

// FitProfiles fits the diffusion front of every box. Profiles computed in
// this run are used directly; otherwise the CSV tables are read back.
func (p *Pipeline) FitProfiles() error {
	params := diffusion.Params{
		LengthPerPixel:  p.cfg.Analysis.LengthPerPixel,
		SecondsPerFrame: p.cfg.Analysis.SecondsPerFrame,
	}

	p.results = make([]*diffusion.Result, p.exp.Boxes.Len())
	for i := range p.results {
		values, positions, err := p.profileTable(i)
		if err != nil {
			return err
		}

		result, err := diffusion.Analyze(values, positions, params)
		if err != nil {
			return fmt.Errorf("box %d: %w", i, err)
		}
		if err := result.Save(p.ResultPath(i)); err != nil {
			return err
		}
		p.results[i] = result
		p.log.Info("Box %d: D = %.4g ± %.2g, C = %.4g ± %.2g",
			i, result.D, result.Uncertainties[0], result.C, result.Uncertainties[1])

		chartPath := p.outputFile(fmt.Sprintf("%s_box%d_fit.png", p.exp.Name, i))
		if err := visualization.SaveFitChart(chartPath, result); err != nil {
			p.log.Warning("Failed to save fit chart for box %d: %v", i, err)
		}

		lengths := make([]float64, len(positions))
		floats.ScaleTo(lengths, params.LengthPerPixel, positions)
		grid, err := visualization.RenderProfileGrid(diffusion.Normalize(values), lengths, result, p.cfg.Output.PlotRows)
		if err == nil {
			err = visualization.SaveImage(grid, p.ProfileGridPath(i))
		}
		if err != nil {
			p.log.Warning("Failed to save profile grid for box %d: %v", i, err)
		}

		if p.cfg.Output.SaveIntermediaryResults {
			heatmap := visualization.Heatmap(diffusion.Normalize(values), 8)
			heatmapPath := p.outputFile(fmt.Sprintf("%s_box%d_heatmap.png", p.exp.Name, i))
			if err := visualization.SaveImage(heatmap, heatmapPath); err != nil {
				p.log.Warning("Failed to save heatmap for box %d: %v", i, err)
			}
		}
	}
	return nil
}

func (p *Pipeline) profileTable(box int) (mat.Matrix, []float64, error) {
	if box < len(p.profiles) {
		profile := p.profiles[box]
		values := mat.NewDense(profile.NumLines(), profile.NumFrames(), nil)
		for l, row := range profile.Values {
			values.SetRow(l, row)
		}
		return values, profile.Positions, nil
	}

	table, err := export.LoadProfile(p.ProfilePath(box))
	if err != nil {
		return nil, nil, fmt.Errorf("box %d: %w", box, err)
	}
	return table.Values, table.Positions, nil
}

func summarize(profile models.IntensityProfile) ProfileStats {
	var all []float64
	for _, row := range profile.Values {
		all = append(all, row...)
	}
	mean, std := stat.MeanStdDev(all, nil)
	return ProfileStats{
		Mean:             mean,
		StdDev:           std,
		Min:              floats.Min(all),
		Max:              floats.Max(all),
		MiddleLineLength: profile.MiddleLineLength,
	}
}
