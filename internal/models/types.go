package models

// Point is a pixel coordinate. X is the column and Y the row; pixel centres
// sit on integer coordinates.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p scaled by f.
func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

// Lerp interpolates between p (t=0) and q (t=1).
func (p Point) Lerp(q Point, t float64) Point {
	return Point{X: p.X + (q.X-p.X)*t, Y: p.Y + (q.Y-p.Y)*t}
}

// BoundingBox is a user-drawn quadrilateral around one channel.
// Corners are stored in traversal order.
type BoundingBox struct {
	Corners [4]Point `yaml:"corners"`
}

// NewBoundingBox builds a box from four corners given in traversal order.
func NewBoundingBox(c0, c1, c2, c3 Point) BoundingBox {
	return BoundingBox{Corners: [4]Point{c0, c1, c2, c3}}
}

// Rectangle builds an axis-aligned box with its top-left corner at (x, y).
func Rectangle(x, y, width, height float64) BoundingBox {
	return NewBoundingBox(
		Point{X: x, Y: y},
		Point{X: x + width, Y: y},
		Point{X: x + width, Y: y + height},
		Point{X: x, Y: y + height},
	)
}

// Leftmost returns the smallest corner x coordinate.
func (b BoundingBox) Leftmost() float64 {
	left := b.Corners[0].X
	for _, c := range b.Corners[1:] {
		if c.X < left {
			left = c.X
		}
	}
	return left
}

// Translate returns the box shifted by (dx, dy).
func (b BoundingBox) Translate(dx, dy float64) BoundingBox {
	var out BoundingBox
	for i, c := range b.Corners {
		out.Corners[i] = Point{X: c.X + dx, Y: c.Y + dy}
	}
	return out
}

// Shape is the size of a frame in pixels.
type Shape struct {
	Height int `yaml:"height"`
	Width  int `yaml:"width"`
}

// Contains reports whether pixel (x, y) lies inside the shape.
func (s Shape) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.Width && y < s.Height
}

// Frame is a single time point of an image stack.
type Frame struct {
	// Pix holds intensities in row-major order
	Pix []float64

	Width  int
	Height int
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height int) Frame {
	return Frame{
		Pix:    make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// Shape returns the frame dimensions.
func (f Frame) Shape() Shape {
	return Shape{Height: f.Height, Width: f.Width}
}

// At returns the intensity at pixel (x, y).
func (f Frame) At(x, y int) float64 {
	return f.Pix[y*f.Width+x]
}

// Set writes the intensity at pixel (x, y).
func (f Frame) Set(x, y int, v float64) {
	f.Pix[y*f.Width+x] = v
}

// ImageStack is an ordered sequence of frames, one per retained time point.
// Consumers treat it as read-only.
type ImageStack []Frame

// PixelWeight is the contribution of one integer pixel to a transect.
type PixelWeight struct {
	X      int     `yaml:"x"`
	Y      int     `yaml:"y"`
	Weight float64 `yaml:"w"`
}

// Line is a single transect across the channel.
type Line struct {
	// Start and End are the boundary crossings of the transect
	Start Point `yaml:"start"`
	End   Point `yaml:"end"`

	// Length is the distance between Start and End in pixels
	Length float64 `yaml:"length"`

	// Pixels are ordered by first contact while walking from Start to End
	Pixels []PixelWeight `yaml:"pixels"`
}

// TotalWeight returns the sum of all pixel weights on the line.
func (l Line) TotalWeight() float64 {
	var sum float64
	for _, p := range l.Pixels {
		sum += p.Weight
	}
	return sum
}

// WeightMap holds every transect for one bounding box.
type WeightMap struct {
	Box    BoundingBox `yaml:"box"`
	Shape  Shape       `yaml:"shape"`
	Kernel string      `yaml:"kernel"`

	// AxisLength is the pixel length of the box's long axis
	AxisLength float64 `yaml:"axisLength"`

	// Lines are ordered along the long axis from its start to its end
	Lines []Line `yaml:"lines"`
}

// Positions returns the distance of each line centre from the start of the
// long axis. A single line sits at the middle of the axis.
func (w WeightMap) Positions() []float64 {
	n := len(w.Lines)
	pos := make([]float64, n)
	if n == 1 {
		pos[0] = w.AxisLength / 2
		return pos
	}
	for i := range pos {
		pos[i] = float64(i) / float64(n-1) * w.AxisLength
	}
	return pos
}

// IntensityProfile is the reduced line × frame table for one box.
type IntensityProfile struct {
	// Values[line][frame] is the weighted mean intensity
	Values [][]float64

	// Positions[line] is the distance along the channel in pixels
	Positions []float64

	// MiddleLineLength is the width of the channel at its centre in pixels
	MiddleLineLength float64
}

// NumLines returns the number of rows of the profile.
func (p IntensityProfile) NumLines() int {
	return len(p.Values)
}

// NumFrames returns the number of columns of the profile.
func (p IntensityProfile) NumFrames() int {
	if len(p.Values) == 0 {
		return 0
	}
	return len(p.Values[0])
}
