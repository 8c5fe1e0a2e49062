package models

import "fmt"

// TimeInterval is a [Start, Stop) range in ms since the start of acquisition
type TimeInterval struct {
	Start uint32 `yaml:"start"`
	Stop  uint32 `yaml:"stop"`
}

// CoincidenceEvent is one prompt or delayed coincidence as recorded by the
// scanner
type CoincidenceEvent struct {
	DetectionBins [2]DetectionBin `yaml:"detectionBins,flow"`
	TOFIdx        uint32          `yaml:"tofIdx"`
}

// ExpandedDetectionBin is a detection bin split into its components
type ExpandedDetectionBin struct {
	Module  uint32
	Element uint32
	Energy  uint32
}

// TimeBlock is one entry of the acquisition stream. The concrete kinds are
// EventTimeBlock, ExternalSignalTimeBlock, BedMovementTimeBlock and
// GantryMovementTimeBlock.
type TimeBlock interface {
	timeBlock()
}

// EventTimeBlock carries the coincidences recorded during its interval,
// indexed by [type of first module][type of second module]
type EventTimeBlock struct {
	Interval      TimeInterval
	PromptEvents  [][][]CoincidenceEvent
	DelayedEvents [][][]CoincidenceEvent
}

// ExternalSignalTimeBlock records external signals such as gating triggers
type ExternalSignalTimeBlock struct {
	Interval TimeInterval
	SignalID uint32
	Values   []float64
}

// BedMovementTimeBlock records a bed position change
type BedMovementTimeBlock struct {
	Interval  TimeInterval
	Transform RigidTransform
}

// GantryMovementTimeBlock records a gantry position change
type GantryMovementTimeBlock struct {
	Interval  TimeInterval
	Transform RigidTransform
}

func (EventTimeBlock) timeBlock()          {}
func (ExternalSignalTimeBlock) timeBlock() {}
func (BedMovementTimeBlock) timeBlock()    {}
func (GantryMovementTimeBlock) timeBlock() {}

// ExpandDetectionBin splits a detection bin of the given module type into
// module, element and energy bin
func (s *ScannerInformation) ExpandDetectionBin(t TypeOfModule, bin DetectionBin) (ExpandedDetectionBin, error) {
	if int(t) >= s.NumberOfModuleTypes() {
		return ExpandedDetectionBin{}, fmt.Errorf("module type %d out of range (%d types)", t, s.NumberOfModuleTypes())
	}
	numEnergy := uint32(s.NumberOfEnergyBins(t))
	numElements := uint32(s.Geometry.ReplicatedModules[t].Object.Elements.NumberOfObjects())
	if numElements == 0 {
		return ExpandedDetectionBin{}, fmt.Errorf("module type %d has no detecting elements", t)
	}

	det := bin / numEnergy
	return ExpandedDetectionBin{
		Module:  det / numElements,
		Element: det % numElements,
		Energy:  bin % numEnergy,
	}, nil
}

// ExpandDetectionBinPair expands both sides of a coincidence
func (s *ScannerInformation) ExpandDetectionBinPair(types [2]TypeOfModule, bins [2]DetectionBin) ([2]ExpandedDetectionBin, error) {
	var result [2]ExpandedDetectionBin
	for i := 0; i < 2; i++ {
		expanded, err := s.ExpandDetectionBin(types[i], bins[i])
		if err != nil {
			return result, err
		}
		result[i] = expanded
	}
	return result, nil
}

// DetectionBinOf is the inverse of ExpandDetectionBin
func (s *ScannerInformation) DetectionBinOf(t TypeOfModule, e ExpandedDetectionBin) (DetectionBin, error) {
	if int(t) >= s.NumberOfModuleTypes() {
		return 0, fmt.Errorf("module type %d out of range (%d types)", t, s.NumberOfModuleTypes())
	}
	numEnergy := uint32(s.NumberOfEnergyBins(t))
	numElements := uint32(s.Geometry.ReplicatedModules[t].Object.Elements.NumberOfObjects())
	if e.Element >= numElements || e.Energy >= numEnergy {
		return 0, fmt.Errorf("expanded bin %+v out of range for module type %d", e, t)
	}
	return (e.Module*numElements+e.Element)*numEnergy + e.Energy, nil
}
