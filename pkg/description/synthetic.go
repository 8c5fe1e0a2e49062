package description

import (
	"fmt"
	"math/rand"

	"petsirdrecon/internal/models"
)

// SyntheticParams controls SyntheticTimeBlocks
type SyntheticParams struct {
	// Blocks is the number of event blocks
	Blocks int

	// EventsPerBlock is the number of prompt coincidences in every block
	EventsPerBlock int

	// BlockDuration is the length of each block interval in ms
	BlockDuration uint32

	// Seed makes the stream reproducible
	Seed int64
}

// SyntheticTimeBlocks draws uniformly distributed prompt coincidences
// between two different crystals of the scanner. Energy and TOF bins are
// drawn uniformly from the bins the description defines.
func SyntheticTimeBlocks(info *models.ScannerInformation, p SyntheticParams) ([]models.TimeBlock, error) {
	numTypes := info.NumberOfModuleTypes()
	if numTypes == 0 {
		return nil, fmt.Errorf("scanner has no module types")
	}
	for t := 0; t < numTypes; t++ {
		if info.NumberOfDetectingElements(models.TypeOfModule(t)) == 0 {
			return nil, fmt.Errorf("module type %d has no detecting elements", t)
		}
	}
	if numTypes == 1 && info.NumberOfDetectingElements(0) < 2 {
		return nil, fmt.Errorf("need at least two crystals to form a coincidence")
	}

	rng := rand.New(rand.NewSource(p.Seed))
	blocks := make([]models.TimeBlock, 0, p.Blocks)
	for b := 0; b < p.Blocks; b++ {
		prompts := make([][][]models.CoincidenceEvent, numTypes)
		for t := range prompts {
			prompts[t] = make([][]models.CoincidenceEvent, numTypes)
		}

		for e := 0; e < p.EventsPerBlock; e++ {
			types := [2]models.TypeOfModule{
				models.TypeOfModule(rng.Intn(numTypes)),
				models.TypeOfModule(rng.Intn(numTypes)),
			}

			var crystals [2]int
			for {
				crystals[0] = rng.Intn(info.NumberOfDetectingElements(types[0]))
				crystals[1] = rng.Intn(info.NumberOfDetectingElements(types[1]))
				if types[0] != types[1] || crystals[0] != crystals[1] {
					break
				}
			}

			var event models.CoincidenceEvent
			for side := 0; side < 2; side++ {
				t := types[side]
				perModule := info.Geometry.ReplicatedModules[t].Object.Elements.NumberOfObjects()
				bin, err := info.DetectionBinOf(t, models.ExpandedDetectionBin{
					Module:  uint32(crystals[side] / perModule),
					Element: uint32(crystals[side] % perModule),
					Energy:  uint32(rng.Intn(info.NumberOfEnergyBins(t))),
				})
				if err != nil {
					return nil, err
				}
				event.DetectionBins[side] = bin
			}
			if n := numTOFBins(info, types); n > 0 {
				event.TOFIdx = uint32(rng.Intn(n))
			}

			prompts[types[0]][types[1]] = append(prompts[types[0]][types[1]], event)
		}

		start := uint32(b) * p.BlockDuration
		blocks = append(blocks, models.EventTimeBlock{
			Interval:     models.TimeInterval{Start: start, Stop: start + p.BlockDuration},
			PromptEvents: prompts,
		})
	}
	return blocks, nil
}

func numTOFBins(info *models.ScannerInformation, types [2]models.TypeOfModule) int {
	if int(types[0]) >= len(info.TOFBinEdges) || int(types[1]) >= len(info.TOFBinEdges[types[0]]) {
		return 0
	}
	return info.TOFBinEdges[types[0]][types[1]].NumberOfBins()
}
