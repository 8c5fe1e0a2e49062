package reconstruction

import (
	"context"
	"fmt"
	"sync"

	"petsirdrecon/internal/models"
	"petsirdrecon/pkg/geometry"
)

// Events is the list-mode contract a reconstruction engine reads
type Events interface {
	Count() int
	Timestamp(i int) uint32
	DetectorPair(i int) models.DetectorPair
	HasTOF() bool
	TOFValue(i int) float64
}

// Sensitivity gives the detection sensitivity of a detector pair
type Sensitivity interface {
	Value(pair models.DetectorPair) (float64, error)
}

// DataSource bundles everything an engine consumes
type DataSource struct {
	Scanner     *geometry.Scanner
	Events      Events
	Sensitivity Sensitivity
}

// Engine is a reconstruction engine fed by the pipeline
type Engine interface {
	SetDataSource(ds DataSource) error
	Run(ctx context.Context) error
}

// HitCounter is a minimal engine: it counts how often every detector takes
// part in a coincidence, and accumulates the same counts weighted by the
// inverse pair sensitivity.
type HitCounter struct {
	numCores int
	ds       DataSource

	hits      []uint64
	corrected []float64
}

// NewHitCounter returns a HitCounter using numCores goroutines
func NewHitCounter(numCores int) *HitCounter {
	if numCores < 1 {
		numCores = 1
	}
	return &HitCounter{numCores: numCores}
}

// SetDataSource implements Engine
func (h *HitCounter) SetDataSource(ds DataSource) error {
	if ds.Scanner == nil || ds.Events == nil {
		return fmt.Errorf("data source needs a scanner and events")
	}
	h.ds = ds
	return nil
}

// Run implements Engine. Events are split into one contiguous chunk per
// core; each worker counts into its own buffers which are summed at the
// end.
func (h *HitCounter) Run(ctx context.Context) error {
	if h.ds.Scanner == nil {
		return fmt.Errorf("no data source set")
	}
	numDetectors := h.ds.Scanner.NumDetectors()
	count := h.ds.Events.Count()

	type partial struct {
		hits      []uint64
		corrected []float64
		err       error
	}
	results := make([]partial, h.numCores)

	chunk := (count + h.numCores - 1) / h.numCores
	var wg sync.WaitGroup
	for w := 0; w < h.numCores; w++ {
		start := w * chunk
		end := start + chunk
		if end > count {
			end = count
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			p := partial{
				hits:      make([]uint64, numDetectors),
				corrected: make([]float64, numDetectors),
			}
			for i := start; i < end; i++ {
				if (i-start)%4096 == 0 && ctx.Err() != nil {
					p.err = ctx.Err()
					break
				}

				pair := h.ds.Events.DetectorPair(i)
				weight := 1.0
				if h.ds.Sensitivity != nil {
					s, err := h.ds.Sensitivity.Value(pair)
					if err != nil {
						p.err = fmt.Errorf("event %d: %w", i, err)
						break
					}
					if s > 0 {
						weight = 1 / s
					}
				}
				for _, det := range pair {
					p.hits[det]++
					p.corrected[det] += weight
				}
			}
			results[w] = p
		}(w, start, end)
	}
	wg.Wait()

	h.hits = make([]uint64, numDetectors)
	h.corrected = make([]float64, numDetectors)
	for _, p := range results {
		if p.err != nil {
			return p.err
		}
		for d := range p.hits {
			h.hits[d] += p.hits[d]
			h.corrected[d] += p.corrected[d]
		}
	}
	return nil
}

// Hits returns the raw per-detector coincidence counts
func (h *HitCounter) Hits() []uint64 {
	return h.hits
}

// Corrected returns the sensitivity-corrected per-detector counts
func (h *HitCounter) Corrected() []float64 {
	return h.corrected
}
