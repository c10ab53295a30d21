package experiment

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"channeldiffusion/internal/models"
	"channeldiffusion/pkg/geometry"
)

func testExperiment(t *testing.T) *Experiment {
	boxes, err := geometry.NewBoxList(models.Rectangle(60, 5, 6, 50), models.Rectangle(12, 5, 6, 50))
	if err != nil {
		t.Fatalf("Failed to build boxes: %v", err)
	}
	return &Experiment{
		Name:            "channels",
		BrightfieldDir:  "bf",
		FluorescenceDir: "fl",
		Angle:           1.5,
		FramesToSkip:    []int{4, 1, 4},
		Boxes:           boxes,
	}
}

// TestSaveLoad verifies the experiment survives a round trip with its boxes in order
func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exp", "channels.yaml")

	exp := testExperiment(t)
	if err := exp.Save(path); err != nil {
		t.Fatalf("Failed to save experiment: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load experiment: %v", err)
	}
	if loaded.Name != exp.Name || loaded.Angle != exp.Angle {
		t.Errorf("Expected %q at %f degrees, got %q at %f", exp.Name, exp.Angle, loaded.Name, loaded.Angle)
	}
	if !reflect.DeepEqual(loaded.Boxes.Boxes(), exp.Boxes.Boxes()) {
		t.Errorf("Boxes changed: %v vs %v", loaded.Boxes.Boxes(), exp.Boxes.Boxes())
	}
	if loaded.Boxes.At(0).Leftmost() != 12 {
		t.Errorf("Expected the leftmost box first, got x=%f", loaded.Boxes.At(0).Leftmost())
	}

	bf, fl := loaded.Channels()
	if bf != filepath.Join(dir, "exp", "bf") || fl != filepath.Join(dir, "exp", "fl") {
		t.Errorf("Expected channel dirs resolved next to the file, got %q and %q", bf, fl)
	}

	loaded.SwapChannels = true
	bf, fl = loaded.Channels()
	if filepath.Base(bf) != "fl" || filepath.Base(fl) != "bf" {
		t.Errorf("Expected swapped channels, got %q and %q", bf, fl)
	}
}

// TestLoadSortsBoxes verifies hand-written files are brought into left-to-right order
func TestLoadSortsBoxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exp.yaml")
	doc := `experimentName: manual
brightfield: bf
fluorescence: fl
angle: 0
boxes:
  - [[50, 0], [55, 0], [55, 40], [50, 40]]
  - [[10, 0], [15, 0], [15, 40], [10, 40]]
  - [[30, 0], [35, 0], [35, 40], [30, 40]]
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	exp, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load experiment: %v", err)
	}
	for i, want := range []float64{10, 30, 50} {
		if got := exp.Boxes.At(i).Leftmost(); got != want {
			t.Errorf("Expected box %d at x=%f, got %f", i, want, got)
		}
	}
}

// TestValidate verifies experiments without boxes or names are rejected
func TestValidate(t *testing.T) {
	exp := testExperiment(t)
	exp.Boxes = geometry.BoxList{}
	if err := exp.Validate(); err == nil {
		t.Error("Expected an error for an experiment without boxes")
	}

	exp = testExperiment(t)
	exp.Name = ""
	if err := exp.Validate(); err == nil {
		t.Error("Expected an error for an experiment without a name")
	}
}

// TestSkipped verifies skipped frames are sorted and unique
func TestSkipped(t *testing.T) {
	exp := testExperiment(t)
	if got := exp.Skipped(); !reflect.DeepEqual(got, []int{1, 4}) {
		t.Errorf("Expected [1 4], got %v", got)
	}
}
