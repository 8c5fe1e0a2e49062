package lut

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"gonum.org/v1/gonum/spatial/r3"

	"petsirdrecon/internal/models"
	"petsirdrecon/pkg/correspondence"
	"petsirdrecon/pkg/geometry"
)

// Record describes one stored scanner layout
type Record struct {
	ID        string
	Summary   geometry.Summary
	CreatedAt time.Time
}

type scannerRow struct {
	ID                    string  `db:"id"`
	ModelName             string  `db:"model_name"`
	AxialFOV              float64 `db:"axial_fov"`
	CrystalAxialSize      float64 `db:"crystal_axial_size"`
	CrystalTransaxialSize float64 `db:"crystal_transaxial_size"`
	CrystalDepth          float64 `db:"crystal_depth"`
	MaxRadialDistance     float64 `db:"max_radial_distance"`
	DetectorsPerRing      int     `db:"detectors_per_ring"`
	RingCount             int     `db:"ring_count"`
	CreatedAt             int64   `db:"created_at"`
}

func (r scannerRow) record() Record {
	return Record{
		ID: r.ID,
		Summary: geometry.Summary{
			ModelName:             r.ModelName,
			AxialFOV:              r.AxialFOV,
			CrystalAxialSize:      r.CrystalAxialSize,
			CrystalTransaxialSize: r.CrystalTransaxialSize,
			CrystalDepth:          r.CrystalDepth,
			MaxRadialDistance:     r.MaxRadialDistance,
			DetectorsPerRing:      r.DetectorsPerRing,
			RingCount:             r.RingCount,
		},
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
}

type detectorRow struct {
	DetID        uint32  `db:"det_id"`
	ModuleType   uint32  `db:"module_type"`
	ModuleIndex  uint32  `db:"module_index"`
	ElementIndex uint32  `db:"element_index"`
	X            float64 `db:"x"`
	Y            float64 `db:"y"`
	Z            float64 `db:"z"`
	OrientationX float64 `db:"orientation_x"`
	OrientationY float64 `db:"orientation_y"`
	OrientationZ float64 `db:"orientation_z"`
}

// Store saves and loads canonical scanners
type Store struct {
	db      *sqlx.DB
	queries *Queries
	logger  *slog.Logger
}

// NewStore wraps an open database
func NewStore(db *sqlx.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	queries, err := LoadQueries()
	if err != nil {
		return nil, err
	}
	return &Store{db: db, queries: queries, logger: logger}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, name := range []string{"create-scanners-table", "create-detectors-table"} {
		if _, err := s.queries.Exec(ctx, s.db, name); err != nil {
			return fmt.Errorf("failed to run %s: %w", name, err)
		}
	}
	return nil
}

// Save stores a scanner and its correspondence table in one transaction
// and returns the new scanner id
func (s *Store) Save(ctx context.Context, scanner *geometry.Scanner, table *correspondence.Table) (string, error) {
	if table.Len() != scanner.NumDetectors() {
		return "", fmt.Errorf("%w: table has %d entries for %d detectors",
			models.ErrMalformedGeometry, table.Len(), scanner.NumDetectors())
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate scanner id: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := s.queries.Exec(ctx, tx, "insert-scanner",
		id.String(), scanner.ModelName, scanner.AxialFOV,
		scanner.CrystalAxialSize, scanner.CrystalTransaxialSize, scanner.CrystalDepth,
		scanner.MaxRadialDistance, scanner.DetectorsPerRing, scanner.RingCount,
		time.Now().UnixMilli(),
	); err != nil {
		tx.Rollback()
		return "", fmt.Errorf("failed to insert scanner: %w", err)
	}

	err = table.Each(func(det models.DetID, key models.DetectorKey) error {
		if int(det) >= scanner.NumDetectors() {
			return fmt.Errorf("%w: flat id %d beyond %d detectors", models.ErrMalformedGeometry, det, scanner.NumDetectors())
		}
		p, o := scanner.Positions[det], scanner.Orientations[det]
		_, err := s.queries.Exec(ctx, tx, "insert-detector",
			id.String(), det, key.Type, key.Module, key.Element,
			p.X, p.Y, p.Z, o.X, o.Y, o.Z)
		return err
	})
	if err != nil {
		tx.Rollback()
		return "", fmt.Errorf("failed to insert detectors: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit scanner: %w", err)
	}

	s.logger.Info("scanner layout stored",
		"module", "lut",
		"id", id.String(),
		"model", scanner.ModelName,
		"detectors", scanner.NumDetectors())
	return id.String(), nil
}

// Load rebuilds a stored scanner and its correspondence table
func (s *Store) Load(ctx context.Context, id string) (*geometry.Scanner, *correspondence.Table, error) {
	var row scannerRow
	if err := s.queries.Get(ctx, s.db, "get-scanner", &row, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: scanner %s", models.ErrNotFound, id)
		}
		return nil, nil, fmt.Errorf("failed to load scanner %s: %w", id, err)
	}

	var detectors []detectorRow
	if err := s.queries.Select(ctx, s.db, "list-detectors", &detectors, id); err != nil {
		return nil, nil, fmt.Errorf("failed to load detectors of scanner %s: %w", id, err)
	}

	table := correspondence.New()
	positions := make([]r3.Vec, len(detectors))
	orientations := make([]r3.Vec, len(detectors))
	for i, d := range detectors {
		if int(d.DetID) != i {
			return nil, nil, fmt.Errorf("%w: scanner %s is missing detector %d", models.ErrMalformedGeometry, id, i)
		}
		table.AddMapping(models.DetectorKey{Type: d.ModuleType, Module: d.ModuleIndex, Element: d.ElementIndex}, models.DetID(d.DetID))
		positions[i] = r3.Vec{X: d.X, Y: d.Y, Z: d.Z}
		orientations[i] = r3.Vec{X: d.OrientationX, Y: d.OrientationY, Z: d.OrientationZ}
	}

	scanner, err := geometry.NewScanner(row.record().Summary, positions, orientations)
	if err != nil {
		return nil, nil, fmt.Errorf("stored scanner %s: %w", id, err)
	}
	return scanner, table, nil
}

// List returns every stored scanner, oldest first
func (s *Store) List(ctx context.Context) ([]Record, error) {
	var rows []scannerRow
	if err := s.queries.Select(ctx, s.db, "list-scanners", &rows); err != nil {
		return nil, fmt.Errorf("failed to list scanners: %w", err)
	}

	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	return records, nil
}

// Delete removes a stored scanner and its detectors
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := s.queries.Exec(ctx, tx, "delete-detectors", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete detectors: %w", err)
	}
	res, err := s.queries.Exec(ctx, tx, "delete-scanner", id)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete scanner: %w", err)
	}
	if err := checkDeleted(res, id); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// checkDeleted fails unless res reports at least one deleted row
func checkDeleted(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted rows of scanner %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: scanner %s", models.ErrNotFound, id)
	}
	return nil
}
