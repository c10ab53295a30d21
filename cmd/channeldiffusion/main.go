package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"channeldiffusion/internal/logger"
	"channeldiffusion/internal/models"
	"channeldiffusion/pkg/config"
	"channeldiffusion/pkg/experiment"
	"channeldiffusion/pkg/geometry"
	"channeldiffusion/pkg/pipeline"
)

const usage = `Usage: channeldiffusion <command> [flags]

Commands:
  init      create an experiment file from frame directories and boxes
  config    write a default configuration file
  preview   draw a few transects per box over the first brightfield frame
  build     generate and store weight maps for every box
  apply     reduce the fluorescence stack to per-box CSV profiles
  fit       fit the diffusion front of every stored profile
  run       build, apply and fit in one go

Run 'channeldiffusion <command> -h' for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "init":
		err = runInit(args)
	case "config":
		err = runConfig(args)
	case "preview":
		err = runPreview(args)
	case "build":
		err = runSteps(cmd, args, pipeline.Steps{Build: true})
	case "apply":
		err = runSteps(cmd, args, pipeline.Steps{Apply: true})
	case "fit":
		err = runSteps(cmd, args, pipeline.Steps{Fit: true})
	case "run":
		err = runSteps(cmd, args, pipeline.AllSteps)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

// commonFlags are shared by every command that runs the pipeline.
type commonFlags struct {
	experiment *string
	config     *string
	envFile    *string
	workers    *int
	lpl        *float64
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		experiment: fs.String("experiment", "", "Experiment YAML file"),
		config:     fs.String("config", "", "Configuration YAML file (defaults when empty)"),
		envFile:    fs.String("env", ".env", "Optional dotenv file with CHANNELDIFFUSION_* overrides"),
		workers:    fs.Int("workers", 0, "Number of concurrent workers (0 keeps the configured value)"),
		lpl:        fs.Float64("lines-per-pixel", 0, "Transects per pixel of channel length (0 keeps the configured value)"),
	}
}

func (c commonFlags) load() (*config.Config, *logger.Logger, error) {
	if *c.experiment == "" {
		return nil, nil, fmt.Errorf("-experiment is required")
	}
	if err := config.LoadDotEnv(*c.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig(*c.config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if *c.workers > 0 {
		cfg.Processing.NumWorkers = *c.workers
	}

	lg, err := logger.New(cfg.Output.LogDir, cfg.Output.Verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, lg, nil
}

func runSteps(name string, args []string, steps pipeline.Steps) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)

	cfg, lg, err := common.load()
	if err != nil {
		return err
	}
	defer lg.Close()

	p, err := pipeline.New(&pipeline.Params{
		ExperimentPath:      *common.experiment,
		Config:              cfg,
		LinesPerPixelLength: *common.lpl,
		Logger:              lg,
	})
	if err != nil {
		return err
	}

	startTime := time.Now()
	if err := p.Process(steps); err != nil {
		return err
	}
	lg.Info("Completed in %.2f seconds, results in %s", time.Since(startTime).Seconds(), p.OutputDir())

	for i, r := range p.Results() {
		fmt.Printf("Box %d: D = %.6g ± %.3g, C = %.6g ± %.3g\n", i, r.D, r.Uncertainties[0], r.C, r.Uncertainties[1])
	}
	return nil
}

func runPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	common := addCommonFlags(fs)
	lines := fs.Int("lines", 0, "Lines drawn per box (0 keeps the configured value)")
	fs.Parse(args)

	cfg, lg, err := common.load()
	if err != nil {
		return err
	}
	defer lg.Close()

	p, err := pipeline.New(&pipeline.Params{
		ExperimentPath:      *common.experiment,
		Config:              cfg,
		LinesPerPixelLength: *common.lpl,
		Logger:              lg,
	})
	if err != nil {
		return err
	}

	path, err := p.Preview(*lines)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	out := fs.String("out", "config.yaml", "Where to write the default configuration")
	fs.Parse(args)

	if err := config.CreateDefaultConfigFile(*out); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to %s\n", *out)
	return nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	name := fs.String("name", "", "Experiment name")
	bf := fs.String("brightfield", "", "Directory of brightfield frames")
	fl := fs.String("fluorescence", "", "Directory of fluorescence frames")
	boxesFile := fs.String("boxes", "", "YAML file with a list of boxes, four [x, y] corners each")
	angle := fs.Float64("angle", 0, "Counter-clockwise rotation applied to every frame, in degrees")
	skip := fs.String("skip", "", "Comma separated frame indices to drop")
	swap := fs.Bool("swap-channels", false, "Exchange the brightfield and fluorescence directories")
	out := fs.String("out", "", "Experiment file to write (defaults to <name>.yaml)")
	fs.Parse(args)

	if *name == "" || *bf == "" || *fl == "" || *boxesFile == "" {
		fs.Usage()
		return fmt.Errorf("-name, -brightfield, -fluorescence and -boxes are required")
	}

	boxes, err := loadBoxes(*boxesFile)
	if err != nil {
		return err
	}
	frames, err := parseIndices(*skip)
	if err != nil {
		return err
	}

	exp := &experiment.Experiment{
		Name:            *name,
		BrightfieldDir:  *bf,
		FluorescenceDir: *fl,
		SwapChannels:    *swap,
		Angle:           *angle,
		FramesToSkip:    frames,
		Boxes:           boxes,
	}
	path := *out
	if path == "" {
		path = *name + ".yaml"
	}
	if err := exp.Save(path); err != nil {
		return err
	}
	fmt.Printf("Experiment with %d boxes written to %s\n", boxes.Len(), path)
	return nil
}

func loadBoxes(path string) (geometry.BoxList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return geometry.BoxList{}, fmt.Errorf("error reading boxes: %w", err)
	}
	var boxes []models.BoundingBox
	if err := yaml.Unmarshal(data, &boxes); err != nil {
		return geometry.BoxList{}, fmt.Errorf("error parsing boxes: %w", err)
	}
	return geometry.NewBoxList(boxes...)
}

func parseIndices(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid frame index %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}
