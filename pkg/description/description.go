// Package description reads and writes scanner descriptions and time-block
// streams as YAML documents.
package description

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"petsirdrecon/internal/models"
)

// Time block kinds as written in stream files
const (
	KindEvent          = "event"
	KindExternalSignal = "externalSignal"
	KindBedMovement    = "bedMovement"
	KindGantryMovement = "gantryMovement"
)

// timeBlockRecord is the on-disk form of every time block kind
type timeBlockRecord struct {
	Kind          string                        `yaml:"kind"`
	Interval      models.TimeInterval           `yaml:"interval,flow"`
	PromptEvents  [][][]models.CoincidenceEvent `yaml:"promptEvents,omitempty"`
	DelayedEvents [][][]models.CoincidenceEvent `yaml:"delayedEvents,omitempty"`
	SignalID      uint32                        `yaml:"signalID,omitempty"`
	Values        []float64                     `yaml:"values,omitempty,flow"`
	Transform     *models.RigidTransform        `yaml:"transform,omitempty"`
}

type streamFile struct {
	TimeBlocks []timeBlockRecord `yaml:"timeBlocks"`
}

// LoadScanner reads a scanner description from a YAML file
func LoadScanner(path string) (*models.ScannerInformation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading scanner description: %w", err)
	}

	info := &models.ScannerInformation{}
	if err := yaml.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("error parsing scanner description: %w", err)
	}
	return info, nil
}

// SaveScanner writes a scanner description to a YAML file
func SaveScanner(info *models.ScannerInformation, path string) error {
	data, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("error marshaling scanner description: %w", err)
	}
	return writeFile(path, data)
}

// LoadTimeBlocks reads a time-block stream from a YAML file
func LoadTimeBlocks(path string) ([]models.TimeBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading time blocks: %w", err)
	}

	var file streamFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing time blocks: %w", err)
	}

	blocks := make([]models.TimeBlock, 0, len(file.TimeBlocks))
	for i, rec := range file.TimeBlocks {
		block, err := rec.toTimeBlock()
		if err != nil {
			return nil, fmt.Errorf("time block %d: %w", i, err)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// SaveTimeBlocks writes a time-block stream to a YAML file
func SaveTimeBlocks(blocks []models.TimeBlock, path string) error {
	file := streamFile{TimeBlocks: make([]timeBlockRecord, 0, len(blocks))}
	for i, b := range blocks {
		rec, err := recordOf(b)
		if err != nil {
			return fmt.Errorf("time block %d: %w", i, err)
		}
		file.TimeBlocks = append(file.TimeBlocks, rec)
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("error marshaling time blocks: %w", err)
	}
	return writeFile(path, data)
}

func (r timeBlockRecord) toTimeBlock() (models.TimeBlock, error) {
	transform := models.Identity()
	if r.Transform != nil {
		transform = *r.Transform
	}

	switch r.Kind {
	case KindEvent:
		return models.EventTimeBlock{
			Interval:      r.Interval,
			PromptEvents:  r.PromptEvents,
			DelayedEvents: r.DelayedEvents,
		}, nil
	case KindExternalSignal:
		return models.ExternalSignalTimeBlock{Interval: r.Interval, SignalID: r.SignalID, Values: r.Values}, nil
	case KindBedMovement:
		return models.BedMovementTimeBlock{Interval: r.Interval, Transform: transform}, nil
	case KindGantryMovement:
		return models.GantryMovementTimeBlock{Interval: r.Interval, Transform: transform}, nil
	default:
		return nil, fmt.Errorf("unknown time block kind %q", r.Kind)
	}
}

func recordOf(b models.TimeBlock) (timeBlockRecord, error) {
	switch v := b.(type) {
	case models.EventTimeBlock:
		return timeBlockRecord{Kind: KindEvent, Interval: v.Interval, PromptEvents: v.PromptEvents, DelayedEvents: v.DelayedEvents}, nil
	case models.ExternalSignalTimeBlock:
		return timeBlockRecord{Kind: KindExternalSignal, Interval: v.Interval, SignalID: v.SignalID, Values: v.Values}, nil
	case models.BedMovementTimeBlock:
		t := v.Transform
		return timeBlockRecord{Kind: KindBedMovement, Interval: v.Interval, Transform: &t}, nil
	case models.GantryMovementTimeBlock:
		t := v.Transform
		return timeBlockRecord{Kind: KindGantryMovement, Interval: v.Interval, Transform: &t}, nil
	default:
		return timeBlockRecord{}, fmt.Errorf("unsupported time block type %T", b)
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing file: %w", err)
	}
	return nil
}
