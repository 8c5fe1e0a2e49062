package models

import (
	"fmt"
	"math"
)

// TypeOfModule indexes the replicated module types of a scanner
type TypeOfModule = uint32

// DetectionBin is the compact encoding of (module, element, energy) for one
// side of a coincidence
type DetectionBin = uint32

// DetID is the canonical flat detector index, ring-major then transaxial
type DetID uint32

// DetectorPair holds the two flat detector ids of a coincidence
type DetectorPair [2]DetID

// DetectorKey addresses a crystal in the hierarchical scheme of the
// scanner description
type DetectorKey struct {
	// Type is the module type index
	Type uint32

	// Module is the module instance within the type
	Module uint32

	// Element is the detecting element within the module
	Element uint32
}

func (k DetectorKey) String() string {
	return fmt.Sprintf("(type %d, module %d, element %d)", k.Type, k.Module, k.Element)
}

// Coordinate is a point in scanner space in mm
type Coordinate [3]float64

// BoxShape describes a crystal by the corners of its bounding box.
// Corners carry no ordering guarantee.
type BoxShape struct {
	Corners []Coordinate `yaml:"corners"`
}

// RigidTransform is a 3x4 row-major matrix; the translation sits at
// indices 3, 7 and 11
type RigidTransform struct {
	Matrix [12]float64 `yaml:"matrix,flow"`
}

// Identity returns the transform that leaves every point in place
func Identity() RigidTransform {
	return RigidTransform{Matrix: [12]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}}
}

// RotationZ returns a rotation of angle radians about the scanner axis
// followed by a translation. Trigonometric noise below 1e-12 is rounded to
// zero so quarter turns stay exact.
func RotationZ(angle float64, translation Coordinate) RigidTransform {
	s, c := math.Sincos(angle)
	if math.Abs(s) < 1e-12 {
		s = 0
	}
	if math.Abs(c) < 1e-12 {
		c = 0
	}
	return RigidTransform{Matrix: [12]float64{
		c, -s, 0, translation[0],
		s, c, 0, translation[1],
		0, 0, 1, translation[2],
	}}
}

// Translation returns a pure translation
func Translation(v Coordinate) RigidTransform {
	t := Identity()
	t.Matrix[3] = v[0]
	t.Matrix[7] = v[1]
	t.Matrix[11] = v[2]
	return t
}

// DetectingElements is the reference crystal of a module together with
// the placement of every element inside the module
type DetectingElements struct {
	Shape      BoxShape         `yaml:"shape"`
	Transforms []RigidTransform `yaml:"transforms"`
}

// NumberOfObjects returns the number of elements per module
func (d DetectingElements) NumberOfObjects() int {
	return len(d.Transforms)
}

// DetectorModule groups the detecting elements of one module
type DetectorModule struct {
	Elements DetectingElements `yaml:"detectingElements"`
}

// ReplicatedModule is one module type and the placement of all of its
// instances in the scanner
type ReplicatedModule struct {
	Object     DetectorModule   `yaml:"object"`
	Transforms []RigidTransform `yaml:"transforms"`
}

// NumberOfObjects returns the number of module instances of this type
func (r ReplicatedModule) NumberOfObjects() int {
	return len(r.Transforms)
}

// ScannerGeometry lists every module type of the scanner
type ScannerGeometry struct {
	ReplicatedModules []ReplicatedModule `yaml:"replicatedModules"`
}

// BinEdges holds the edges of a histogram axis; n edges make n-1 bins
type BinEdges struct {
	Edges []float64 `yaml:"edges,flow"`
}

// NumberOfBins returns the number of bins described by the edges
func (b BinEdges) NumberOfBins() int {
	if len(b.Edges) < 2 {
		return 0
	}
	return len(b.Edges) - 1
}

// DetectionEfficiencies carries per detection-bin efficiencies for every
// module type. A nil entry means the type has no efficiency data.
type DetectionEfficiencies struct {
	DetectionBinEfficiencies [][]float64 `yaml:"detectionBinEfficiencies"`
}

// ScannerInformation is the part of the scanner description this module
// reads
type ScannerInformation struct {
	// ModelName identifies the scanner model
	ModelName string `yaml:"modelName"`

	// Geometry describes module types, instances and elements
	Geometry ScannerGeometry `yaml:"geometry"`

	// EnergyBinEdges are indexed by module type, in keV
	EnergyBinEdges []BinEdges `yaml:"energyBinEdges"`

	// TOFBinEdges are indexed by [type0][type1], in mm
	TOFBinEdges [][]BinEdges `yaml:"tofBinEdges"`

	// TOFResolution is the FWHM per type pair, in mm
	TOFResolution [][]float64 `yaml:"tofResolution"`

	// Efficiencies feed the sensitivity model
	Efficiencies DetectionEfficiencies `yaml:"detectionEfficiencies"`
}

// NumberOfModuleTypes returns the number of replicated module types
func (s *ScannerInformation) NumberOfModuleTypes() int {
	return len(s.Geometry.ReplicatedModules)
}

// NumberOfDetectingElements returns the number of crystals of one module type
func (s *ScannerInformation) NumberOfDetectingElements(t TypeOfModule) int {
	rm := s.Geometry.ReplicatedModules[t]
	return rm.NumberOfObjects() * rm.Object.Elements.NumberOfObjects()
}

// NumberOfEnergyBins returns the number of energy bins of a module type.
// A type without energy bin edges counts as a single bin.
func (s *ScannerInformation) NumberOfEnergyBins(t TypeOfModule) int {
	if int(t) >= len(s.EnergyBinEdges) {
		return 1
	}
	if n := s.EnergyBinEdges[t].NumberOfBins(); n > 0 {
		return n
	}
	return 1
}

// NumberOfDetectionBins returns the number of detection bins of a module type
func (s *ScannerInformation) NumberOfDetectionBins(t TypeOfModule) int {
	return s.NumberOfDetectingElements(t) * s.NumberOfEnergyBins(t)
}
