// Package listmode decodes PET time-block streams into flat list-mode
// events addressed by canonical detector ids.
package listmode

import (
	"fmt"
	"log/slog"

	"petsirdrecon/internal/models"
	"petsirdrecon/pkg/correspondence"
)

// SpeedOfLight in mm/ps
const SpeedOfLight = 0.299792458

// ListMode holds fully decoded prompt events. Every accessor is a plain
// slice read, so a ListMode may be shared by concurrent readers once New
// or AppendTimeBlocks has returned.
type ListMode struct {
	info   *models.ScannerInformation
	table  *correspondence.Table
	logger *slog.Logger

	timestamps []uint32
	pairs      []models.DetectorPair
	tof        tofTrack
}

// Option configures a ListMode
type Option func(*options)

type options struct {
	tof    bool
	logger *slog.Logger
}

// WithTOF enables or disables time-of-flight decoding
func WithTOF(enabled bool) Option {
	return func(o *options) {
		o.tof = enabled
	}
}

// WithLogger sets the logger for decode summaries
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New decodes every event block of blocks against the scanner description
// and the correspondence table built when the scanner was canonicalized.
// Blocks of any other kind are skipped. A stream that disagrees with the
// geometry fails as a whole.
func New(info *models.ScannerInformation, table *correspondence.Table, blocks []models.TimeBlock, opts ...Option) (*ListMode, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	lm := &ListMode{
		info:   info,
		table:  table,
		logger: o.logger,
		tof:    noTOF{},
	}
	if o.tof {
		lm.tof = &tofValues{}
	}

	if err := lm.AppendTimeBlocks(blocks); err != nil {
		return nil, err
	}
	return lm, nil
}

// AppendTimeBlocks decodes further blocks after the events already held.
// On error the ListMode is left as it was before the call.
func (lm *ListMode) AppendTimeBlocks(blocks []models.TimeBlock) error {
	mark := lm.Count()

	skipped := 0
	for i, block := range blocks {
		eb, ok := block.(models.EventTimeBlock)
		if !ok {
			skipped++
			continue
		}
		if err := lm.decodeBlock(eb); err != nil {
			lm.truncate(mark)
			return fmt.Errorf("time block %d: %w", i, err)
		}
	}

	lm.logger.Debug("time blocks decoded",
		"module", "listmode",
		"blocks", len(blocks),
		"skipped", skipped,
		"events", lm.Count()-mark)
	return nil
}

func (lm *ListMode) decodeBlock(block models.EventTimeBlock) error {
	timestamp := block.Interval.Start

	cells, err := typePairs(block.PromptEvents)
	if err != nil {
		return err
	}
	if n := len(block.PromptEvents); n > 0 && n != lm.info.NumberOfModuleTypes() {
		return fmt.Errorf("%w: event matrix covers %d module types, scanner has %d",
			models.ErrMalformedStream, n, lm.info.NumberOfModuleTypes())
	}

	for _, cell := range cells {
		types := cell.types()
		for _, event := range block.PromptEvents[cell.first][cell.second] {
			expanded, err := lm.info.ExpandDetectionBinPair(types, event.DetectionBins)
			if err != nil {
				return fmt.Errorf("%w: %v", models.ErrMalformedStream, err)
			}

			var pair models.DetectorPair
			for side := 0; side < 2; side++ {
				id, err := lm.table.FlatIndexOf(models.DetectorKey{
					Type:    types[side],
					Module:  expanded[side].Module,
					Element: expanded[side].Element,
				})
				if err != nil {
					return fmt.Errorf("failed to resolve detector of event: %w", err)
				}
				pair[side] = id
			}

			if err := lm.tof.record(lm.info, types, event.TOFIdx); err != nil {
				return err
			}
			lm.timestamps = append(lm.timestamps, timestamp)
			lm.pairs = append(lm.pairs, pair)
		}
	}
	return nil
}

func (lm *ListMode) truncate(n int) {
	lm.timestamps = lm.timestamps[:n]
	lm.pairs = lm.pairs[:n]
	lm.tof.truncate(n)
}

// Count returns the number of decoded events
func (lm *ListMode) Count() int {
	return len(lm.timestamps)
}

// Timestamp returns the acquisition time of event i in ms
func (lm *ListMode) Timestamp(i int) uint32 {
	return lm.timestamps[i]
}

// Detector1 returns the first detector of event i
func (lm *ListMode) Detector1(i int) models.DetID {
	return lm.pairs[i][0]
}

// Detector2 returns the second detector of event i
func (lm *ListMode) Detector2(i int) models.DetID {
	return lm.pairs[i][1]
}

// DetectorPair returns both detectors of event i
func (lm *ListMode) DetectorPair(i int) models.DetectorPair {
	return lm.pairs[i]
}

// HasTOF reports whether TOF values were decoded
func (lm *ListMode) HasTOF() bool {
	return lm.tof.enabled()
}

// TOFValue returns the time of flight of event i in ps, or 0 when TOF is
// disabled
func (lm *ListMode) TOFValue(i int) float64 {
	return lm.tof.at(i)
}
