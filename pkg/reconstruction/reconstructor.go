// Package reconstruction wires scanner canonicalization, list-mode decoding
// and the sensitivity view into a data source for a reconstruction engine.
package reconstruction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"petsirdrecon/internal/models"
	"petsirdrecon/pkg/correspondence"
	"petsirdrecon/pkg/description"
	"petsirdrecon/pkg/geometry"
	"petsirdrecon/pkg/listmode"
	"petsirdrecon/pkg/lut"
	"petsirdrecon/pkg/norm"
	"petsirdrecon/pkg/visualization"
)

// Params holds the pipeline parameters
type Params struct {
	// ScannerFile is the YAML scanner description. Ignored when Scanner is set.
	ScannerFile string

	// EventsFile is the YAML time-block stream. Ignored when TimeBlocks is set.
	EventsFile string

	// Scanner and TimeBlocks supply the inputs directly
	Scanner    *models.ScannerInformation
	TimeBlocks []models.TimeBlock

	// NumCores specifies how many goroutines the default engine uses
	NumCores int

	// EnableTOF decodes time-of-flight values
	EnableTOF bool

	// CacheSize is the size of the sensitivity LRU cache; 0 disables it
	CacheSize int

	// UseScannerEfficiencies takes sensitivities from the scanner description
	// instead of a uniform model
	UseScannerEfficiencies bool

	// LUTDatabase is a database URL; when set the canonical layout is stored
	LUTDatabase string

	// DetectorMap is a JPEG path; when set the hit map is saved there
	DetectorMap string

	// Engine runs on the decoded data; nil selects a HitCounter
	Engine Engine

	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// Reconstructor runs the pipeline:
// 1. Loading the scanner description and time blocks
// 2. Canonicalizing the scanner geometry
// 3. Storing the canonical layout (optional)
// 4. Decoding list-mode events
// 5. Building the sensitivity view
// 6. Running the engine
// 7. Calculating metrics and saving the detector map (optional)
type Reconstructor struct {
	params *Params
	logger *slog.Logger

	info    *models.ScannerInformation
	scanner *geometry.Scanner
	table   *correspondence.Table
	events  *listmode.ListMode
	sens    *norm.Norm
	engine  Engine

	lutID   string
	timings map[string]time.Duration
	metrics Metrics
}

// NewReconstructor creates a new reconstructor with the provided parameters
func NewReconstructor(params *Params) *Reconstructor {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	engine := params.Engine
	if engine == nil {
		engine = NewHitCounter(params.NumCores)
	}
	return &Reconstructor{
		params:  params,
		logger:  logger,
		engine:  engine,
		timings: make(map[string]time.Duration),
	}
}

// Process runs the complete pipeline
func (r *Reconstructor) Process(ctx context.Context) error {
	r.logger.Info("Step 1: Loading inputs...", "module", "reconstruction")
	blocks, err := r.loadInputs()
	if err != nil {
		return fmt.Errorf("failed to load inputs: %w", err)
	}

	r.logger.Info("Step 2: Canonicalizing scanner geometry...", "module", "reconstruction")
	start := time.Now()
	r.scanner, r.table, err = geometry.Canonicalize(r.info, geometry.WithLogger(r.logger))
	if err != nil {
		return fmt.Errorf("failed to canonicalize scanner: %w", err)
	}
	r.timings["canonicalize"] = time.Since(start)

	if r.params.LUTDatabase != "" {
		r.logger.Info("Step 3: Storing canonical layout...", "module", "reconstruction")
		if err := r.storeLayout(ctx); err != nil {
			return fmt.Errorf("failed to store canonical layout: %w", err)
		}
	}

	r.logger.Info("Step 4: Decoding list-mode events...", "module", "reconstruction")
	start = time.Now()
	r.events, err = listmode.New(r.info, r.table, blocks,
		listmode.WithTOF(r.params.EnableTOF),
		listmode.WithLogger(r.logger))
	if err != nil {
		return fmt.Errorf("failed to decode events: %w", err)
	}
	r.timings["decode"] = time.Since(start)

	r.logger.Info("Step 5: Building sensitivity view...", "module", "reconstruction")
	var model norm.EfficiencyModel = norm.Uniform{}
	if r.params.UseScannerEfficiencies {
		model, err = norm.NewBinEfficiencies(r.info)
		if err != nil {
			return fmt.Errorf("failed to load scanner efficiencies: %w", err)
		}
	}
	r.sens, err = norm.New(r.info, r.table, model,
		norm.WithCacheSize(r.params.CacheSize),
		norm.WithLogger(r.logger))
	if err != nil {
		return fmt.Errorf("failed to build sensitivity view: %w", err)
	}

	r.logger.Info("Step 6: Running engine...", "module", "reconstruction", "engine", fmt.Sprintf("%T", r.engine))
	start = time.Now()
	if err := r.engine.SetDataSource(DataSource{Scanner: r.scanner, Events: r.events, Sensitivity: r.sens}); err != nil {
		return fmt.Errorf("failed to set engine data source: %w", err)
	}
	if err := r.engine.Run(ctx); err != nil {
		return fmt.Errorf("engine failed: %w", err)
	}
	r.timings["engine"] = time.Since(start)

	r.logger.Info("Step 7: Calculating metrics...", "module", "reconstruction")
	var hits []uint64
	if hc, ok := r.engine.(*HitCounter); ok {
		hits = hc.Hits()
	}
	r.metrics = calculateMetrics(r.scanner, r.events, hits)

	if r.params.DetectorMap != "" && hits != nil {
		if err := r.saveDetectorMap(hits); err != nil {
			return fmt.Errorf("failed to save detector map: %w", err)
		}
	}

	return nil
}

func (r *Reconstructor) loadInputs() ([]models.TimeBlock, error) {
	r.info = r.params.Scanner
	if r.info == nil {
		info, err := description.LoadScanner(r.params.ScannerFile)
		if err != nil {
			return nil, err
		}
		r.info = info
	}

	blocks := r.params.TimeBlocks
	if blocks == nil && r.params.EventsFile != "" {
		var err error
		blocks, err = description.LoadTimeBlocks(r.params.EventsFile)
		if err != nil {
			return nil, err
		}
	}

	r.logger.Info("inputs loaded",
		"module", "reconstruction",
		"model", r.info.ModelName,
		"moduleTypes", r.info.NumberOfModuleTypes(),
		"timeBlocks", len(blocks))
	return blocks, nil
}

func (r *Reconstructor) storeLayout(ctx context.Context) error {
	db, err := lut.Open(r.params.LUTDatabase)
	if err != nil {
		return err
	}
	store, err := lut.NewStore(db, r.logger)
	if err != nil {
		db.Close()
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	r.lutID, err = store.Save(ctx, r.scanner, r.table)
	return err
}

func (r *Reconstructor) saveDetectorMap(hits []uint64) error {
	values := make([]float64, len(hits))
	for i, h := range hits {
		values[i] = float64(h)
	}

	viewer, err := visualization.NewViewer(values, r.scanner.RingCount, r.scanner.DetectorsPerRing)
	if err != nil {
		return err
	}
	viewer.SetScale(4)
	return viewer.SaveMap(r.params.DetectorMap)
}

// GetMetrics returns the metrics of the last Process call
func (r *Reconstructor) GetMetrics() Metrics {
	return r.metrics
}

// Scanner returns the canonical scanner, nil before Process
func (r *Reconstructor) Scanner() *geometry.Scanner {
	return r.scanner
}

// Table returns the correspondence table, nil before Process
func (r *Reconstructor) Table() *correspondence.Table {
	return r.table
}

// Events returns the decoded list-mode events, nil before Process
func (r *Reconstructor) Events() *listmode.ListMode {
	return r.events
}

// Sensitivity returns the sensitivity view, nil before Process
func (r *Reconstructor) Sensitivity() *norm.Norm {
	return r.sens
}

// LUTID returns the id of the stored layout, empty when storage is disabled
func (r *Reconstructor) LUTID() string {
	return r.lutID
}

// Timings returns the duration of the timed pipeline stages
func (r *Reconstructor) Timings() map[string]time.Duration {
	return r.timings
}
