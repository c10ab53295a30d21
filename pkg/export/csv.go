// Package export writes intensity profiles as CSV tables and reads them back
// as matrices for analysis.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"channeldiffusion/internal/models"
)

// Table is a profile read back from disk.
type Table struct {
	// Positions[line] is the distance along the channel
	Positions []float64

	// Values is lines × frames
	Values *mat.Dense
}

// Header returns the column names for a profile with the given frame count.
func Header(frames int) []string {
	header := make([]string, 0, frames+2)
	header = append(header, "line", "length")
	for f := 0; f < frames; f++ {
		header = append(header, fmt.Sprintf("frame_%d", f))
	}
	return header
}

// WriteProfile writes one row per line: index, position, then one value per
// frame. The length column is the line's distance in pixels from the start
// of the long axis, not the middle-line length. Floats use the shortest
// representation that parses back exactly.
func WriteProfile(w io.Writer, profile models.IntensityProfile) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(profile.NumFrames())); err != nil {
		return err
	}

	record := make([]string, profile.NumFrames()+2)
	for l, row := range profile.Values {
		record[0] = strconv.Itoa(l)
		record[1] = formatFloat(profile.Positions[l])
		for f, v := range row {
			record[f+2] = formatFloat(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveProfile writes the profile to path, creating its directory.
func SaveProfile(path string, profile models.IntensityProfile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating profile file: %w", err)
	}
	if err := WriteProfile(file, profile); err != nil {
		file.Close()
		return fmt.Errorf("error writing profile: %w", err)
	}
	return file.Close()
}

// ReadProfile parses a table written by WriteProfile.
func ReadProfile(r io.Reader) (*Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading profile: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("profile has no lines")
	}

	header := records[0]
	if len(header) < 3 || header[0] != "line" || header[1] != "length" {
		return nil, fmt.Errorf("unexpected profile header %v", header)
	}
	frames := len(header) - 2
	rows := records[1:]

	table := &Table{
		Positions: make([]float64, len(rows)),
		Values:    mat.NewDense(len(rows), frames, nil),
	}
	for l, rec := range rows {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", l+1, len(rec), len(header))
		}
		if table.Positions[l], err = strconv.ParseFloat(rec[1], 64); err != nil {
			return nil, fmt.Errorf("row %d: invalid length: %w", l+1, err)
		}
		for f := 0; f < frames; f++ {
			v, err := strconv.ParseFloat(rec[f+2], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d, frame %d: %w", l+1, f, err)
			}
			table.Values.Set(l, f, v)
		}
	}
	return table, nil
}

// LoadProfile reads the table at path.
func LoadProfile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening profile: %w", err)
	}
	defer file.Close()
	return ReadProfile(file)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
