package diffusion

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// ModelDescription names the fitted function in saved results.
const ModelDescription = "y = sqrt(2 * D * t) + C"

// ErrTooFewPoints is returned when the covariance of the fit is undefined.
var ErrTooFewPoints = errors.New("at least three half-intensity points are needed")

// Result is a fitted diffusion front.
type Result struct {
	Model string `yaml:"model"`

	TimesHP   []float64 `yaml:"timesHP"`
	LengthsHP []float64 `yaml:"lengthsHP"`

	// Times are the frame times the predictions are evaluated at
	Times       []float64 `yaml:"times"`
	Predictions []float64 `yaml:"predictions"`
	Lower       []float64 `yaml:"lowerBoundPrediction"`
	Upper       []float64 `yaml:"upperBoundPrediction"`

	// D is the diffusion coefficient in length²/second, C the offset
	D float64 `yaml:"d"`
	C float64 `yaml:"c"`

	Covariance    [2][2]float64 `yaml:"covariance"`
	Uncertainties [2]float64    `yaml:"uncertainties"`
	RSquared      float64       `yaml:"rSquared"`

	SecondsPerFrame float64 `yaml:"secondsPerFrame,omitempty"`
	LengthPerPixel  float64 `yaml:"lengthPerPixel,omitempty"`
}

// Fit finds D and C minimising the squared residuals of the half points
// and evaluates the model and its one-sigma bands at times.
func Fit(points []HalfPoint, times []float64) (*Result, error) {
	n := len(points)
	if n < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewPoints, n)
	}

	ts := make([]float64, n)
	ls := make([]float64, n)
	for i, p := range points {
		ts[i] = p.Time
		ls[i] = p.Length
	}

	ssr := func(x []float64) float64 {
		var sum float64
		for i := range ts {
			r := ls[i] - Model(ts[i], x[0], x[1])
			sum += r * r
		}
		return sum
	}

	problem := optimize.Problem{Func: ssr}
	settings := &optimize.Settings{
		MajorIterations: 20000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-14,
			Iterations: 200,
		},
	}

	x0 := initialGuess(ts, ls)
	res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("fit did not converge: %w", err)
	}
	// A second start from the first optimum shakes the simplex out of
	// early collapse.
	res, err = optimize.Minimize(problem, res.X, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("fit did not converge: %w", err)
	}
	d, c := res.X[0], res.X[1]

	cov, err := covariance(ts, res.X, res.F)
	if err != nil {
		return nil, err
	}
	sigma := [2]float64{math.Sqrt(cov[0][0]), math.Sqrt(cov[1][1])}

	result := &Result{
		Model:         ModelDescription,
		TimesHP:       ts,
		LengthsHP:     ls,
		Times:         append([]float64(nil), times...),
		D:             d,
		C:             c,
		Covariance:    cov,
		Uncertainties: sigma,
		RSquared:      rSquared(ls, res.F),
	}
	result.Predictions = evaluate(times, d, c)
	result.Lower = evaluate(times, d-sigma[0], c-sigma[1])
	result.Upper = evaluate(times, d+sigma[0], c+sigma[1])
	return result, nil
}

// initialGuess starts C at the earliest front and D from the total spread.
func initialGuess(ts, ls []float64) []float64 {
	first := floats.MinIdx(ts)
	c := ls[first]
	span := floats.Max(ts) - ts[first]
	d := 1.0
	if span > 0 {
		reach := floats.Max(ls) - c
		if reach > 0 {
			d = reach * reach / (2 * span)
		}
	}
	return []float64{d, c}
}

// covariance estimates s²·(JᵀJ)⁻¹ with the Jacobian of the model taken at
// the optimum.
func covariance(ts, x []float64, ssr float64) ([2][2]float64, error) {
	var cov [2][2]float64
	n := len(ts)

	jac := mat.NewDense(n, 2, nil)
	fd.Jacobian(jac, func(y, p []float64) {
		for i, t := range ts {
			y[i] = Model(t, p[0], p[1])
		}
	}, x, &fd.JacobianSettings{Formula: fd.Central})

	var jtj, inv mat.Dense
	jtj.Mul(jac.T(), jac)
	if err := inv.Inverse(&jtj); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return cov, fmt.Errorf("covariance is undefined: %w", err)
		}
	}

	s2 := ssr / float64(n-2)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			cov[i][j] = s2 * inv.At(i, j)
		}
	}
	return cov, nil
}

func rSquared(ls []float64, ssr float64) float64 {
	sst := stat.Variance(ls, nil) * float64(len(ls)-1)
	if sst == 0 {
		return math.NaN()
	}
	return 1 - ssr/sst
}

func evaluate(times []float64, d, c float64) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = Model(t, d, c)
	}
	return out
}

// Save writes the result as YAML.
func (r *Result) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating result directory: %w", err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("error marshaling result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing result: %w", err)
	}
	return nil
}

// LoadResult reads a result written by Save.
func LoadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading result: %w", err)
	}
	r := &Result{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("error parsing result: %w", err)
	}
	return r, nil
}
