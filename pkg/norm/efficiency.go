package norm

import (
	"fmt"

	"petsirdrecon/internal/models"
)

// EfficiencyModel returns the detection efficiency of a coincidence between
// two expanded detection bins of the given module types
type EfficiencyModel interface {
	Efficiency(types [2]models.TypeOfModule, bins [2]models.ExpandedDetectionBin) (float64, error)
}

// Uniform treats every detector pair as equally sensitive
type Uniform struct{}

// Efficiency implements EfficiencyModel
func (Uniform) Efficiency([2]models.TypeOfModule, [2]models.ExpandedDetectionBin) (float64, error) {
	return 1, nil
}

// BinEfficiencies multiplies the per detection-bin efficiencies of both
// sides of a coincidence, as stored in the scanner description
type BinEfficiencies struct {
	info *models.ScannerInformation
}

// NewBinEfficiencies checks that every module type carrying efficiencies
// has one value per detection bin
func NewBinEfficiencies(info *models.ScannerInformation) (*BinEfficiencies, error) {
	effs := info.Efficiencies.DetectionBinEfficiencies
	if len(effs) > info.NumberOfModuleTypes() {
		return nil, fmt.Errorf("%w: efficiencies given for %d module types, scanner has %d",
			models.ErrMalformedGeometry, len(effs), info.NumberOfModuleTypes())
	}
	for t, values := range effs {
		if values == nil {
			continue
		}
		if want := info.NumberOfDetectionBins(models.TypeOfModule(t)); len(values) != want {
			return nil, fmt.Errorf("%w: module type %d has %d efficiencies, want %d",
				models.ErrMalformedGeometry, t, len(values), want)
		}
	}
	return &BinEfficiencies{info: info}, nil
}

// Efficiency implements EfficiencyModel. A module type without efficiency
// data contributes a factor of 1.
func (b *BinEfficiencies) Efficiency(types [2]models.TypeOfModule, bins [2]models.ExpandedDetectionBin) (float64, error) {
	weight := 1.0
	for side := 0; side < 2; side++ {
		t := types[side]
		if int(t) >= len(b.info.Efficiencies.DetectionBinEfficiencies) {
			continue
		}
		values := b.info.Efficiencies.DetectionBinEfficiencies[t]
		if values == nil {
			continue
		}

		bin, err := b.info.DetectionBinOf(t, bins[side])
		if err != nil {
			return 0, err
		}
		if int(bin) >= len(values) {
			return 0, fmt.Errorf("detection bin %d out of range for module type %d", bin, t)
		}
		weight *= values[bin]
	}
	return weight, nil
}
