// Package geometry turns a hierarchical scanner description into a
// canonical ring-ordered detector layout.
package geometry

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"petsirdrecon/internal/models"
	"petsirdrecon/pkg/correspondence"
)

// Summary holds the scanner quantities consumed by a reconstruction engine
type Summary struct {
	ModelName             string
	AxialFOV              float64
	CrystalAxialSize      float64
	CrystalTransaxialSize float64
	CrystalDepth          float64
	MaxRadialDistance     float64
	DetectorsPerRing      int
	RingCount             int
}

// Scanner is the canonical layout of a scanner. Positions and Orientations
// are indexed by flat detector id: ring-major, then ascending polar angle.
type Scanner struct {
	Summary

	// Positions are crystal centroids in scanner space, mm
	Positions []r3.Vec

	// Orientations are unit vectors along the crystal depth
	Orientations []r3.Vec

	index *detectorIndex
}

// NewScanner assembles a Scanner from its summary and per-detector arrays
func NewScanner(summary Summary, positions, orientations []r3.Vec) (*Scanner, error) {
	if len(positions) != len(orientations) {
		return nil, fmt.Errorf("%w: %d positions but %d orientations",
			models.ErrMalformedGeometry, len(positions), len(orientations))
	}
	if summary.RingCount*summary.DetectorsPerRing != len(positions) {
		return nil, fmt.Errorf("%w: %d rings of %d detectors do not cover %d detectors",
			models.ErrMalformedGeometry, summary.RingCount, summary.DetectorsPerRing, len(positions))
	}
	return &Scanner{
		Summary:      summary,
		Positions:    positions,
		Orientations: orientations,
		index:        newDetectorIndex(positions),
	}, nil
}

// NumDetectors returns the total number of crystals
func (s *Scanner) NumDetectors() int {
	return len(s.Positions)
}

// Ring returns the axial ring of a detector
func (s *Scanner) Ring(id models.DetID) int {
	return int(id) / s.DetectorsPerRing
}

// TransaxialIndex returns the angular position of a detector within its ring
func (s *Scanner) TransaxialIndex(id models.DetID) int {
	return int(id) % s.DetectorsPerRing
}

// Option configures Canonicalize
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for geometry warnings
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

type indexedCrystal struct {
	position    r3.Vec
	orientation r3.Vec
	key         models.DetectorKey
}

// Canonicalize places every crystal of the description in scanner space,
// groups crystals into axial rings, orders each ring by polar angle and
// numbers detectors ring by ring. The returned table maps every hierarchical
// (type, module, element) key to its flat id.
//
// Rings with differing detector counts make the whole description invalid;
// nothing is returned in that case.
func Canonicalize(info *models.ScannerInformation, opts ...Option) (*Scanner, *correspondence.Table, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	crystals, crystalInfo, err := placeCrystals(info, o.logger)
	if err != nil {
		return nil, nil, err
	}
	if len(crystals) == 0 {
		return nil, nil, fmt.Errorf("%w: scanner has no detecting elements", models.ErrMalformedGeometry)
	}

	minZ, maxZ := crystals[0].position.Z, crystals[0].position.Z
	maxRadial := 0.0
	for _, c := range crystals {
		minZ = math.Min(minZ, c.position.Z)
		maxZ = math.Max(maxZ, c.position.Z)
		maxRadial = math.Max(maxRadial, math.Hypot(c.position.X, c.position.Y))
	}

	rings, err := groupRings(crystals)
	if err != nil {
		return nil, nil, err
	}

	table := correspondence.New()
	positions := make([]r3.Vec, 0, len(crystals))
	orientations := make([]r3.Vec, 0, len(crystals))
	for _, ring := range rings {
		for _, c := range ring {
			table.AddMapping(c.key, models.DetID(len(positions)))
			positions = append(positions, c.position)
			orientations = append(orientations, c.orientation)
		}
	}

	summary := Summary{
		ModelName:             info.ModelName,
		AxialFOV:              maxZ - minZ,
		CrystalAxialSize:      crystalInfo.AxialSize,
		CrystalTransaxialSize: crystalInfo.TransaxialSize,
		CrystalDepth:          crystalInfo.Depth,
		MaxRadialDistance:     maxRadial,
		DetectorsPerRing:      len(rings[0]),
		RingCount:             len(rings),
	}
	scanner, err := NewScanner(summary, positions, orientations)
	if err != nil {
		return nil, nil, err
	}

	o.logger.Debug("scanner canonicalized",
		"module", "geometry",
		"model", info.ModelName,
		"rings", summary.RingCount,
		"detectorsPerRing", summary.DetectorsPerRing)
	return scanner, table, nil
}

// placeCrystals computes the scanner-space position and orientation of
// every crystal, in (type, module, element) order. The returned CrystalInfo
// is the one of module type 0.
func placeCrystals(info *models.ScannerInformation, logger *slog.Logger) ([]indexedCrystal, CrystalInfo, error) {
	total := 0
	for t := range info.Geometry.ReplicatedModules {
		total += info.NumberOfDetectingElements(models.TypeOfModule(t))
	}
	crystals := make([]indexedCrystal, 0, total)

	var reference CrystalInfo
	for t, rm := range info.Geometry.ReplicatedModules {
		elements := rm.Object.Elements
		centroid := Centroid(elements.Shape)

		ci, err := CrystalInfoOf(elements.Shape, logger)
		if err != nil {
			return nil, CrystalInfo{}, fmt.Errorf("module type %d: %w", t, err)
		}
		if t == 0 {
			reference = ci
		} else if !ci.approxEqual(reference) {
			logger.Warn("module types have different crystal sizes, using type 0",
				"module", "geometry",
				"type", t)
		}

		for m, moduleTransform := range rm.Transforms {
			for e, elementTransform := range elements.Transforms {
				placement := Compose(moduleTransform, elementTransform)
				crystals = append(crystals, indexedCrystal{
					position:    Apply(placement, centroid),
					orientation: Apply(Rotation(placement), ci.Orientation),
					key: models.DetectorKey{
						Type:    uint32(t),
						Module:  uint32(m),
						Element: uint32(e),
					},
				})
			}
		}
	}
	return crystals, reference, nil
}

// groupRings sorts crystals by Z, splits them into rings of coplanar
// crystals and orders each ring by polar angle
func groupRings(crystals []indexedCrystal) ([][]indexedCrystal, error) {
	sort.SliceStable(crystals, func(i, j int) bool {
		return crystals[i].position.Z < crystals[j].position.Z
	})

	var rings [][]indexedCrystal
	start := 0
	refZ := crystals[0].position.Z
	for i, c := range crystals {
		if math.Abs(c.position.Z-refZ) > Epsilon {
			rings = append(rings, crystals[start:i])
			start = i
			refZ = c.position.Z
		}
	}
	rings = append(rings, crystals[start:])

	perRing := len(rings[0])
	for i, ring := range rings {
		if len(ring) != perRing {
			return nil, fmt.Errorf("%w: not all rings have the same number of detectors: ring %d has %d, ring 0 has %d",
				models.ErrMalformedGeometry, i, len(ring), perRing)
		}
	}

	for _, ring := range rings {
		sort.SliceStable(ring, func(i, j int) bool {
			return polarAngle(ring[i].position) < polarAngle(ring[j].position)
		})
	}
	return rings, nil
}

func polarAngle(p r3.Vec) float64 {
	return math.Atan2(p.Y, p.X)
}
