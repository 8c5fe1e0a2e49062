// Package visualization renders per-detector values of a canonical scanner
// as a ring by transaxial-index map.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
)

// Viewer holds one value per flat detector id. Row r of the map is ring r;
// column c is transaxial index c.
type Viewer struct {
	values []float64

	rings   int
	perRing int

	// scale is the side of one detector cell in pixels
	scale int
}

// NewViewer creates a detector map viewer
func NewViewer(values []float64, rings, perRing int) (*Viewer, error) {
	if rings <= 0 || perRing <= 0 {
		return nil, fmt.Errorf("ring layout must be positive, got %d x %d", rings, perRing)
	}
	if len(values) != rings*perRing {
		return nil, fmt.Errorf("got %d values for %d rings of %d detectors", len(values), rings, perRing)
	}
	return &Viewer{
		values:  values,
		rings:   rings,
		perRing: perRing,
		scale:   1,
	}, nil
}

// SetScale sets the side of one detector cell in pixels
func (v *Viewer) SetScale(pixels int) {
	if pixels < 1 {
		pixels = 1
	}
	v.scale = pixels
}

// ExtractRing returns the values of one ring in transaxial order
func (v *Viewer) ExtractRing(ring int) ([]float64, error) {
	if ring < 0 || ring >= v.rings {
		return nil, fmt.Errorf("ring %d out of range (%d rings)", ring, v.rings)
	}
	out := make([]float64, v.perRing)
	copy(out, v.values[ring*v.perRing:(ring+1)*v.perRing])
	return out, nil
}

// ExtractAxialProfile returns the values at one transaxial index across all
// rings
func (v *Viewer) ExtractAxialProfile(index int) ([]float64, error) {
	if index < 0 || index >= v.perRing {
		return nil, fmt.Errorf("transaxial index %d out of range (%d per ring)", index, v.perRing)
	}
	out := make([]float64, v.rings)
	for r := 0; r < v.rings; r++ {
		out[r] = v.values[r*v.perRing+index]
	}
	return out, nil
}

// RenderMap draws the map with intensities scaled to the largest value
func (v *Viewer) RenderMap() image.Image {
	img := image.NewGray16(image.Rect(0, 0, v.perRing*v.scale, v.rings*v.scale))

	maxVal := floats.Max(v.values)
	if maxVal <= 0 {
		return img
	}

	for r := 0; r < v.rings; r++ {
		for c := 0; c < v.perRing; c++ {
			norm := v.values[r*v.perRing+c] / maxVal
			value := uint16(math.Max(0, math.Min(65535, norm*65535)))
			for dy := 0; dy < v.scale; dy++ {
				for dx := 0; dx < v.scale; dx++ {
					img.SetGray16(c*v.scale+dx, r*v.scale+dy, color.Gray16{Y: value})
				}
			}
		}
	}
	return img
}

// SaveMap renders the map and saves it as a JPEG image
func (v *Viewer) SaveMap(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, v.RenderMap(), &jpeg.Options{Quality: 90})
}
