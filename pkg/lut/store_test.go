package lut

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"petsirdrecon/internal/models"
	"petsirdrecon/pkg/description"
	"petsirdrecon/pkg/geometry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open("sqlite://" + filepath.Join(t.TempDir(), "lut.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	store, err := NewStore(db, quietLogger())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	params := description.DefaultCylinderParams()
	params.Rings = 3
	params.DetectorsPerRing = 16
	info, err := description.Cylinder(params)
	if err != nil {
		t.Fatalf("Cylinder() error = %v", err)
	}
	scanner, table, err := geometry.Canonicalize(info, geometry.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}

	id, err := store.Save(ctx, scanner, table)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, loadedTable, err := store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Summary != scanner.Summary {
		t.Errorf("Summary = %+v, want %+v", loaded.Summary, scanner.Summary)
	}
	if loadedTable.Len() != table.Len() {
		t.Fatalf("table has %d entries, want %d", loadedTable.Len(), table.Len())
	}
	for i := 0; i < scanner.NumDetectors(); i++ {
		det := models.DetID(i)
		want, _ := table.HierarchicalKeyOf(det)
		got, err := loadedTable.HierarchicalKeyOf(det)
		if err != nil || got != want {
			t.Errorf("HierarchicalKeyOf(%d) = %v, %v, want %v", i, got, err, want)
		}
		if d := loaded.Positions[i].X - scanner.Positions[i].X; math.Abs(d) > 1e-9 {
			t.Errorf("Positions[%d] = %v, want %v", i, loaded.Positions[i], scanner.Positions[i])
		}
	}

	// The rebuilt scanner answers spatial queries too
	if near, _, ok := loaded.NearestDetector(scanner.Positions[17]); !ok || near != 17 {
		t.Errorf("NearestDetector() = %d, %v, want 17", near, ok)
	}
}

func TestListAndDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	info, err := description.Cylinder(description.DefaultCylinderParams())
	if err != nil {
		t.Fatalf("Cylinder() error = %v", err)
	}
	scanner, table, err := geometry.Canonicalize(info, geometry.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}

	first, err := store.Save(ctx, scanner, table)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, err := store.Save(ctx, scanner, table)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(records))
	}
	if records[0].Summary.ModelName != "cylinder" {
		t.Errorf("ModelName = %q, want cylinder", records[0].Summary.ModelName)
	}

	if err := store.Delete(ctx, first); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, _, err := store.Load(ctx, first); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Load() after delete error = %v, want ErrNotFound", err)
	}
	if _, _, err := store.Load(ctx, second); err != nil {
		t.Errorf("Load() of remaining scanner error = %v", err)
	}
	if err := store.Delete(ctx, first); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestLoadUnknownScanner(t *testing.T) {
	store := openTestStore(t)
	if _, _, err := store.Load(context.Background(), "0190a4d2-0000-7000-8000-000000000000"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestDataSourceOf(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantDSN    string
	}{
		{"sqlite://lut.db", "sqlite3", "lut.db"},
		{"sqlite:///var/lib/lut.db", "sqlite3", "/var/lib/lut.db"},
		{"postgres://user:pw@localhost:5432/lut?sslmode=disable", "postgres", "postgres://user:pw@localhost:5432/lut?sslmode=disable"},
		{"mysql://user:pw@db.local/lut", "mysql", "user:pw@tcp(db.local:3306)/lut"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn, err := dataSourceOf(tt.url)
			if err != nil {
				t.Fatalf("dataSourceOf() error = %v", err)
			}
			if driver != tt.wantDriver {
				t.Errorf("driver = %q, want %q", driver, tt.wantDriver)
			}
			if !strings.HasPrefix(dsn, tt.wantDSN) {
				t.Errorf("dsn = %q, want prefix %q", dsn, tt.wantDSN)
			}
		})
	}

	if _, _, err := dataSourceOf("redis://localhost"); err == nil {
		t.Error("dataSourceOf() expected error for unsupported scheme")
	}
}

// countResult is a sql.Result with a fixed row count or error
type countResult struct {
	n   int64
	err error
}

func (r countResult) LastInsertId() (int64, error) { return 0, r.err }
func (r countResult) RowsAffected() (int64, error) { return r.n, r.err }

func TestCheckDeleted(t *testing.T) {
	errUnsupported := errors.New("RowsAffected not supported")

	if err := checkDeleted(countResult{n: 1}, "a"); err != nil {
		t.Errorf("checkDeleted() with one row error = %v", err)
	}
	if err := checkDeleted(countResult{n: 0}, "a"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("checkDeleted() with no rows error = %v, want ErrNotFound", err)
	}
	err := checkDeleted(countResult{err: errUnsupported}, "a")
	if !errors.Is(err, errUnsupported) {
		t.Errorf("checkDeleted() error = %v, want the RowsAffected error", err)
	}
	if errors.Is(err, models.ErrNotFound) {
		t.Error("a failing row count must not look like a missing scanner")
	}
}
