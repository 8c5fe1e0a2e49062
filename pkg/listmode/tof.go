package listmode

import (
	"fmt"

	"petsirdrecon/internal/models"
)

// tofTrack is the TOF state of a ListMode, fixed when it is built
type tofTrack interface {
	enabled() bool
	record(info *models.ScannerInformation, types [2]models.TypeOfModule, idx uint32) error
	at(i int) float64
	truncate(n int)
}

type noTOF struct{}

func (noTOF) enabled() bool { return false }

func (noTOF) record(*models.ScannerInformation, [2]models.TypeOfModule, uint32) error { return nil }

func (noTOF) at(int) float64 { return 0 }

func (noTOF) truncate(int) {}

type tofValues struct {
	values []float64
}

func (*tofValues) enabled() bool { return true }

func (t *tofValues) record(info *models.ScannerInformation, types [2]models.TypeOfModule, idx uint32) error {
	ps, err := TOFPicoseconds(info, types, idx)
	if err != nil {
		return err
	}
	t.values = append(t.values, ps)
	return nil
}

func (t *tofValues) at(i int) float64 { return t.values[i] }

func (t *tofValues) truncate(n int) { t.values = t.values[:n] }

// TOFPicoseconds converts a TOF bin index of a module type pair to a time
// difference in ps. The bin centre is a path difference in mm.
func TOFPicoseconds(info *models.ScannerInformation, types [2]models.TypeOfModule, idx uint32) (float64, error) {
	if int(types[0]) >= len(info.TOFBinEdges) || int(types[1]) >= len(info.TOFBinEdges[types[0]]) {
		return 0, fmt.Errorf("%w: no TOF bin edges for module types %d and %d",
			models.ErrMalformedStream, types[0], types[1])
	}
	edges := info.TOFBinEdges[types[0]][types[1]].Edges
	if int(idx)+1 >= len(edges) {
		return 0, fmt.Errorf("%w: TOF index %d out of range (%d bins)",
			models.ErrMalformedStream, idx, info.TOFBinEdges[types[0]][types[1]].NumberOfBins())
	}

	dx := (edges[idx] + edges[idx+1]) / 2
	return 2 * dx / SpeedOfLight, nil
}
