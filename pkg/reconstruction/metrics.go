package reconstruction

import (
	"math"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"

	"petsirdrecon/internal/models"
	"petsirdrecon/pkg/geometry"
)

// Metrics summarizes a pipeline run
type Metrics struct {
	// Detectors is the number of crystals of the canonical scanner
	Detectors int

	// Events is the number of decoded prompt coincidences
	Events int

	// AcquisitionSpan is the time between the first and the last event, ms
	AcquisitionSpan uint32

	// TOFMean and TOFStdDev describe decoded TOF values in ps; both are 0
	// without TOF
	TOFMean   float64
	TOFStdDev float64

	// HitMean and HitStdDev describe per-detector coincidence counts
	HitMean   float64
	HitStdDev float64

	// HitUniformity is 1 minus the coefficient of variation of the counts,
	// clamped to [0, 1]. A perfectly flat illumination scores 1.
	HitUniformity float64

	// RingHits is the number of detector hits per ring; every coincidence
	// hits two detectors
	RingHits map[int]uint64
}

// SortedRings returns the rings of RingHits in ascending order
func (m Metrics) SortedRings() []int {
	rings := maps.Keys(m.RingHits)
	slices.Sort(rings)
	return rings
}

func calculateMetrics(scanner *geometry.Scanner, events Events, hits []uint64) Metrics {
	m := Metrics{
		Detectors: scanner.NumDetectors(),
		Events:    events.Count(),
		RingHits:  make(map[int]uint64),
	}

	if m.Events > 0 {
		first, last := events.Timestamp(0), events.Timestamp(0)
		for i := 1; i < m.Events; i++ {
			t := events.Timestamp(i)
			if t < first {
				first = t
			}
			if t > last {
				last = t
			}
		}
		m.AcquisitionSpan = last - first
	}

	if events.HasTOF() && m.Events > 0 {
		tofs := make([]float64, m.Events)
		for i := range tofs {
			tofs[i] = events.TOFValue(i)
		}
		m.TOFMean, m.TOFStdDev = stat.PopMeanStdDev(tofs, nil)
	}

	if len(hits) > 0 {
		counts := make([]float64, len(hits))
		for d, c := range hits {
			counts[d] = float64(c)
			m.RingHits[scanner.Ring(models.DetID(d))] += c
		}
		m.HitMean, m.HitStdDev = stat.PopMeanStdDev(counts, nil)
		if m.HitMean > 0 {
			m.HitUniformity = math.Max(0, 1-m.HitStdDev/m.HitMean)
		}
	}

	return m
}
