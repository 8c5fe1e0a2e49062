package geometry

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"petsirdrecon/internal/models"
)

// Epsilon is the geometric tolerance in mm (0.1 micron) used to compare
// coordinates
const Epsilon = 1e-4

// CrystalInfo holds the dimensions and orientation of a box-shaped crystal
type CrystalInfo struct {
	// AxialSize is the extent along the scanner axis (Z)
	AxialSize float64

	// TransaxialSize is the extent perpendicular to both Z and Orientation
	TransaxialSize float64

	// Depth is the length of the longest box edge
	Depth float64

	// Orientation is the unit vector along the longest box edge
	Orientation r3.Vec
}

// Centroid returns the mean of the corners of a box
func Centroid(box models.BoxShape) r3.Vec {
	xs, ys, zs := axes(box)
	return r3.Vec{
		X: stat.Mean(xs, nil),
		Y: stat.Mean(ys, nil),
		Z: stat.Mean(zs, nil),
	}
}

func axes(box models.BoxShape) (xs, ys, zs []float64) {
	xs = make([]float64, len(box.Corners))
	ys = make([]float64, len(box.Corners))
	zs = make([]float64, len(box.Corners))
	for i, c := range box.Corners {
		xs[i], ys[i], zs[i] = c[0], c[1], c[2]
	}
	return xs, ys, zs
}

// CrystalInfoOf derives crystal depth, axial and transaxial sizes and the
// depth orientation from the corners of a box. The corners may come in any
// order. Two corners form a box edge when they agree on exactly two axes;
// the longest edge gives depth and orientation, and when several edges are
// equally long the first pair in (i, j>i) order is kept.
//
// Crystals are expected to lie in the transaxial plane: an orientation with
// a Z component is reported on logger but not rejected.
func CrystalInfoOf(box models.BoxShape, logger *slog.Logger) (CrystalInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	corners := box.Corners
	if len(corners) < 4 {
		return CrystalInfo{}, fmt.Errorf("%w: box has %d corners, need at least 4", models.ErrMalformedGeometry, len(corners))
	}

	found := false
	var depth float64
	var orientation r3.Vec
	for i := 0; i < len(corners); i++ {
		for j := i + 1; j < len(corners); j++ {
			a, b := corners[i], corners[j]

			same := 0
			for dim := 0; dim < 3; dim++ {
				if math.Abs(a[dim]-b[dim]) < Epsilon {
					same++
				}
			}
			if same != 2 {
				continue
			}

			edge := r3.Sub(toVec(b), toVec(a))
			length := r3.Norm(edge)
			if !found || length > depth {
				depth = length
				orientation = r3.Unit(edge)
				found = true
			}
		}
	}
	if !found {
		return CrystalInfo{}, fmt.Errorf("%w: no box edge found among %d corners", models.ErrMalformedGeometry, len(corners))
	}

	if math.Abs(orientation.Z) > Epsilon {
		logger.Warn("crystal orientation has a Z component",
			"module", "geometry",
			"orientation", fmt.Sprintf("[%g, %g, %g]", orientation.X, orientation.Y, orientation.Z))
	}

	_, _, zs := axes(box)
	axialSize := floats.Max(zs) - floats.Min(zs)

	third := r3.Cross(r3.Vec{Z: 1}, orientation)
	if r3.Norm(third) < Epsilon {
		return CrystalInfo{}, fmt.Errorf("%w: crystal depth is parallel to the scanner axis", models.ErrMalformedGeometry)
	}
	third = r3.Unit(third)

	projections := make([]float64, len(corners))
	for i, c := range corners {
		projections[i] = r3.Dot(toVec(c), third)
	}
	transaxialSize := floats.Max(projections) - floats.Min(projections)

	return CrystalInfo{
		AxialSize:      axialSize,
		TransaxialSize: transaxialSize,
		Depth:          depth,
		Orientation:    orientation,
	}, nil
}

func (c CrystalInfo) approxEqual(o CrystalInfo) bool {
	return math.Abs(c.AxialSize-o.AxialSize) < Epsilon &&
		math.Abs(c.TransaxialSize-o.TransaxialSize) < Epsilon &&
		math.Abs(c.Depth-o.Depth) < Epsilon
}
