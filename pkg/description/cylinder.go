package description

import (
	"fmt"
	"math"

	"petsirdrecon/internal/models"
)

// CylinderParams describes a single-module-type ring scanner. Each ring is
// one module instance; each detector of a ring is one detecting element.
type CylinderParams struct {
	// ModelName is copied into the scanner description
	ModelName string `yaml:"modelName"`

	// Rings is the number of axial rings
	Rings int `yaml:"rings"`

	// DetectorsPerRing is the number of crystals around a ring
	DetectorsPerRing int `yaml:"detectorsPerRing"`

	// Radius is the distance from the axis to the crystal front face, mm
	Radius float64 `yaml:"radius"`

	// RingSpacing is the axial distance between ring centres, mm
	RingSpacing float64 `yaml:"ringSpacing"`

	// Crystal dimensions, mm. Depth must be the largest dimension.
	CrystalDepth      float64 `yaml:"crystalDepth"`
	CrystalTransaxial float64 `yaml:"crystalTransaxial"`
	CrystalAxial      float64 `yaml:"crystalAxial"`

	// StartAngle is the polar angle of element 0 in radians; elements
	// follow counter-clockwise
	StartAngle float64 `yaml:"startAngle"`

	// EnergyBinEdges in keV; empty means a single energy window
	EnergyBinEdges []float64 `yaml:"energyBinEdges,flow"`

	// TOFBinEdges in mm; empty disables TOF information
	TOFBinEdges []float64 `yaml:"tofBinEdges,flow"`

	// TOFResolution is the FWHM in mm
	TOFResolution float64 `yaml:"tofResolution"`
}

// DefaultCylinderParams returns a small clinical-like ring scanner
func DefaultCylinderParams() CylinderParams {
	return CylinderParams{
		ModelName:         "cylinder",
		Rings:             8,
		DetectorsPerRing:  64,
		Radius:            400,
		RingSpacing:       4.2,
		CrystalDepth:      20,
		CrystalTransaxial: 4,
		CrystalAxial:      4,
		EnergyBinEdges:    []float64{430, 650},
		TOFBinEdges:       tofEdges(-300, 300, 25),
		TOFResolution:     60,
	}
}

func tofEdges(lo, hi float64, n int) []float64 {
	edges := make([]float64, n+1)
	for i := range edges {
		edges[i] = lo + (hi-lo)*float64(i)/float64(n)
	}
	return edges
}

// Cylinder builds the scanner description of a ring scanner
func Cylinder(p CylinderParams) (*models.ScannerInformation, error) {
	if p.Rings <= 0 || p.DetectorsPerRing <= 0 {
		return nil, fmt.Errorf("rings and detectors per ring must be positive, got %d and %d", p.Rings, p.DetectorsPerRing)
	}
	if p.CrystalDepth <= p.CrystalTransaxial || p.CrystalDepth <= p.CrystalAxial {
		return nil, fmt.Errorf("crystal depth %g must exceed transaxial %g and axial %g sizes",
			p.CrystalDepth, p.CrystalTransaxial, p.CrystalAxial)
	}

	// Reference crystal on the +X axis, depth along X
	x0, x1 := p.Radius, p.Radius+p.CrystalDepth
	y0, y1 := -p.CrystalTransaxial/2, p.CrystalTransaxial/2
	z0, z1 := -p.CrystalAxial/2, p.CrystalAxial/2
	var corners []models.Coordinate
	for _, x := range []float64{x0, x1} {
		for _, y := range []float64{y0, y1} {
			for _, z := range []float64{z0, z1} {
				corners = append(corners, models.Coordinate{x, y, z})
			}
		}
	}

	elementTransforms := make([]models.RigidTransform, p.DetectorsPerRing)
	for e := range elementTransforms {
		angle := p.StartAngle + 2*math.Pi*float64(e)/float64(p.DetectorsPerRing)
		elementTransforms[e] = models.RotationZ(angle, models.Coordinate{})
	}

	moduleTransforms := make([]models.RigidTransform, p.Rings)
	for r := range moduleTransforms {
		moduleTransforms[r] = models.Translation(models.Coordinate{0, 0, float64(r) * p.RingSpacing})
	}

	info := &models.ScannerInformation{
		ModelName: p.ModelName,
		Geometry: models.ScannerGeometry{ReplicatedModules: []models.ReplicatedModule{{
			Object: models.DetectorModule{Elements: models.DetectingElements{
				Shape:      models.BoxShape{Corners: corners},
				Transforms: elementTransforms,
			}},
			Transforms: moduleTransforms,
		}}},
	}
	if len(p.EnergyBinEdges) > 0 {
		info.EnergyBinEdges = []models.BinEdges{{Edges: p.EnergyBinEdges}}
	}
	if len(p.TOFBinEdges) > 0 {
		info.TOFBinEdges = [][]models.BinEdges{{{Edges: p.TOFBinEdges}}}
		info.TOFResolution = [][]float64{{p.TOFResolution}}
	}
	return info, nil
}
