package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"petsirdrecon/internal/models"
)

// crystalPoint is a crystal centroid tagged with its flat id
type crystalPoint struct {
	r3.Vec
	id models.DetID
}

// Compare implements the kdtree.Comparable interface
func (p crystalPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(crystalPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p crystalPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p crystalPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(crystalPoint)
	return r3.Norm2(r3.Sub(p.Vec, q.Vec))
}

// crystalPoints satisfies kdtree.Interface
type crystalPoints []crystalPoint

func (p crystalPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p crystalPoints) Len() int                              { return len(p) }
func (p crystalPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p crystalPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(crystalPlane{crystalPoints: p, Dim: d}, kdtree.MedianOfRandoms(crystalPlane{crystalPoints: p, Dim: d}, 100))
}

// crystalPlane implements sort.Interface and kdtree.SortSlicer
type crystalPlane struct {
	crystalPoints
	kdtree.Dim
}

func (p crystalPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.crystalPoints[i].X < p.crystalPoints[j].X
	case 1:
		return p.crystalPoints[i].Y < p.crystalPoints[j].Y
	case 2:
		return p.crystalPoints[i].Z < p.crystalPoints[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p crystalPlane) Slice(start, end int) kdtree.SortSlicer {
	return crystalPlane{crystalPoints: p.crystalPoints[start:end], Dim: p.Dim}
}

func (p crystalPlane) Swap(i, j int) {
	p.crystalPoints[i], p.crystalPoints[j] = p.crystalPoints[j], p.crystalPoints[i]
}

// detectorIndex answers nearest-crystal queries. It is built once and only
// read afterwards.
type detectorIndex struct {
	tree *kdtree.Tree
}

func newDetectorIndex(positions []r3.Vec) *detectorIndex {
	if len(positions) == 0 {
		return &detectorIndex{}
	}
	points := make(crystalPoints, len(positions))
	for i, p := range positions {
		points[i] = crystalPoint{Vec: p, id: models.DetID(i)}
	}
	return &detectorIndex{tree: kdtree.New(points, false)}
}

// NearestDetector returns the crystal whose centroid is closest to p and
// the distance to it in mm. ok is false for a scanner without detectors.
func (s *Scanner) NearestDetector(p r3.Vec) (id models.DetID, distance float64, ok bool) {
	if s.index == nil || s.index.tree == nil {
		return 0, 0, false
	}
	nearest, dist2 := s.index.tree.Nearest(crystalPoint{Vec: p})
	if nearest == nil {
		return 0, 0, false
	}
	return nearest.(crystalPoint).id, math.Sqrt(dist2), true
}
