package listmode

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"petsirdrecon/internal/models"
	"petsirdrecon/pkg/correspondence"
	"petsirdrecon/pkg/description"
	"petsirdrecon/pkg/geometry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// setupScanner canonicalizes a 2-ring, 4-detector scanner whose elements
// 0..3 sit at 270, 0, 90 and 180 degrees
func setupScanner(t *testing.T, energyEdges []float64) (*models.ScannerInformation, *correspondence.Table) {
	t.Helper()
	info, err := description.Cylinder(description.CylinderParams{
		ModelName:         "two-ring",
		Rings:             2,
		DetectorsPerRing:  4,
		Radius:            100,
		RingSpacing:       10,
		CrystalDepth:      20,
		CrystalTransaxial: 4,
		CrystalAxial:      4,
		StartAngle:        -math.Pi / 2,
		EnergyBinEdges:    energyEdges,
		TOFBinEdges:       []float64{-30, -10, 10, 30},
		TOFResolution:     20,
	})
	if err != nil {
		t.Fatalf("Cylinder() error = %v", err)
	}
	_, table, err := geometry.Canonicalize(info, geometry.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}
	return info, table
}

func eventBlock(start uint32, events ...models.CoincidenceEvent) models.EventTimeBlock {
	return models.EventTimeBlock{
		Interval:     models.TimeInterval{Start: start, Stop: start + 100},
		PromptEvents: [][][]models.CoincidenceEvent{{events}},
	}
}

func coincidence(bin0, bin1, tofIdx uint32) models.CoincidenceEvent {
	return models.CoincidenceEvent{DetectionBins: [2]models.DetectionBin{bin0, bin1}, TOFIdx: tofIdx}
}

func TestDecodeEndToEnd(t *testing.T) {
	info, table := setupScanner(t, []float64{430, 650})

	// (type0, mod0, det0) x (type0, mod1, det2)
	blocks := []models.TimeBlock{eventBlock(1500, coincidence(0, 6, 1))}

	lm, err := New(info, table, blocks, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if lm.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", lm.Count())
	}
	if lm.Timestamp(0) != 1500 {
		t.Errorf("Timestamp(0) = %d, want 1500", lm.Timestamp(0))
	}
	if got := lm.DetectorPair(0); got != (models.DetectorPair{0, 6}) {
		t.Errorf("DetectorPair(0) = %v, want [0 6]", got)
	}
	if lm.Detector1(0) != 0 || lm.Detector2(0) != 6 {
		t.Errorf("Detector1/2 = %d/%d, want 0/6", lm.Detector1(0), lm.Detector2(0))
	}
	if lm.HasTOF() {
		t.Error("HasTOF() = true, want false by default")
	}
	if lm.TOFValue(0) != 0 {
		t.Errorf("TOFValue(0) = %f, want 0 without TOF", lm.TOFValue(0))
	}
}

func TestDecodeWithEnergyBins(t *testing.T) {
	info, table := setupScanner(t, []float64{350, 430, 650})

	// Two energy bins: bin = (module*4 + element)*2 + energy
	blocks := []models.TimeBlock{eventBlock(0, coincidence(1, 13, 0), coincidence(6, 8, 0))}

	lm, err := New(info, table, blocks, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	want := []models.DetectorPair{{0, 6}, {3, 4}}
	for i, w := range want {
		if got := lm.DetectorPair(i); got != w {
			t.Errorf("DetectorPair(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestDecodeTOF(t *testing.T) {
	info, table := setupScanner(t, nil)
	blocks := []models.TimeBlock{eventBlock(10,
		coincidence(0, 6, 0),
		coincidence(0, 6, 1),
		coincidence(0, 6, 2),
	)}

	lm, err := New(info, table, blocks, WithTOF(true), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !lm.HasTOF() {
		t.Fatal("HasTOF() = false, want true")
	}

	want := []float64{-40 / SpeedOfLight, 0, 40 / SpeedOfLight}
	for i, w := range want {
		if math.Abs(lm.TOFValue(i)-w) > 1e-9 {
			t.Errorf("TOFValue(%d) = %f, want %f", i, lm.TOFValue(i), w)
		}
	}
}

func TestDecodeTOFIndexOutOfRange(t *testing.T) {
	info, table := setupScanner(t, nil)
	blocks := []models.TimeBlock{eventBlock(10, coincidence(0, 6, 3))}

	_, err := New(info, table, blocks, WithTOF(true), WithLogger(quietLogger()))
	if !errors.Is(err, models.ErrMalformedStream) {
		t.Errorf("New() error = %v, want ErrMalformedStream", err)
	}

	// The index is not looked at without TOF
	if _, err := New(info, table, blocks, WithLogger(quietLogger())); err != nil {
		t.Errorf("New() without TOF error = %v", err)
	}
}

func TestDecodeSkipsOtherBlocks(t *testing.T) {
	info, table := setupScanner(t, nil)
	blocks := []models.TimeBlock{
		models.ExternalSignalTimeBlock{Interval: models.TimeInterval{Start: 0, Stop: 5}},
		eventBlock(5, coincidence(0, 1, 0)),
		models.BedMovementTimeBlock{Interval: models.TimeInterval{Start: 105, Stop: 110}, Transform: models.Identity()},
		models.GantryMovementTimeBlock{Interval: models.TimeInterval{Start: 110, Stop: 120}, Transform: models.Identity()},
		eventBlock(120, coincidence(4, 7, 0), coincidence(2, 5, 0)),
	}

	lm, err := New(info, table, blocks, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	wantTimes := []uint32{5, 120, 120}
	wantPairs := []models.DetectorPair{{0, 1}, {4, 7}, {2, 5}}
	if lm.Count() != len(wantTimes) {
		t.Fatalf("Count() = %d, want %d", lm.Count(), len(wantTimes))
	}
	for i := range wantTimes {
		if lm.Timestamp(i) != wantTimes[i] || lm.DetectorPair(i) != wantPairs[i] {
			t.Errorf("event %d = (%d, %v), want (%d, %v)",
				i, lm.Timestamp(i), lm.DetectorPair(i), wantTimes[i], wantPairs[i])
		}
	}
}

func TestDecodeIgnoresDelayedEvents(t *testing.T) {
	info, table := setupScanner(t, nil)
	block := eventBlock(0, coincidence(0, 6, 0))
	block.DelayedEvents = [][][]models.CoincidenceEvent{{{coincidence(1, 2, 0)}}}

	lm, err := New(info, table, []models.TimeBlock{block}, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if lm.Count() != 1 {
		t.Errorf("Count() = %d, want 1", lm.Count())
	}
}

func TestDecodeNonSquareMatrix(t *testing.T) {
	info, table := setupScanner(t, nil)
	block := models.EventTimeBlock{
		PromptEvents: [][][]models.CoincidenceEvent{
			{{coincidence(0, 1, 0)}, {}},
			{{}},
		},
	}

	_, err := New(info, table, []models.TimeBlock{block}, WithLogger(quietLogger()))
	if !errors.Is(err, models.ErrMalformedStream) {
		t.Errorf("New() error = %v, want ErrMalformedStream", err)
	}
}

func TestDecodeMatrixSizeMismatch(t *testing.T) {
	info, table := setupScanner(t, nil)
	block := models.EventTimeBlock{
		PromptEvents: [][][]models.CoincidenceEvent{{{}, {}}, {{}, {}}},
	}

	_, err := New(info, table, []models.TimeBlock{block}, WithLogger(quietLogger()))
	if !errors.Is(err, models.ErrMalformedStream) {
		t.Errorf("New() error = %v, want ErrMalformedStream", err)
	}
}

func TestDecodeUnregisteredDetector(t *testing.T) {
	info, _ := setupScanner(t, nil)

	// Table from a different canonicalization that misses module 1
	partial := correspondence.New()
	for e := uint32(0); e < 4; e++ {
		partial.AddMapping(models.DetectorKey{Module: 0, Element: e}, models.DetID(e))
	}

	_, err := New(info, partial, []models.TimeBlock{eventBlock(0, coincidence(0, 6, 0))}, WithLogger(quietLogger()))
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("New() error = %v, want ErrNotFound", err)
	}
}

func TestAppendTimeBlocks(t *testing.T) {
	info, table := setupScanner(t, nil)
	lm, err := New(info, table, []models.TimeBlock{eventBlock(0, coincidence(0, 6, 1))},
		WithTOF(true), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := lm.AppendTimeBlocks([]models.TimeBlock{eventBlock(50, coincidence(3, 5, 2))}); err != nil {
		t.Fatalf("AppendTimeBlocks() error = %v", err)
	}
	if lm.Count() != 2 || lm.Timestamp(1) != 50 || lm.DetectorPair(1) != (models.DetectorPair{3, 5}) {
		t.Errorf("appended event = (%d, %v), count %d", lm.Timestamp(1), lm.DetectorPair(1), lm.Count())
	}

	// A failing append leaves earlier events untouched
	bad := []models.TimeBlock{
		eventBlock(60, coincidence(1, 2, 0)),
		eventBlock(70, coincidence(1, 2, 9)),
	}
	if err := lm.AppendTimeBlocks(bad); !errors.Is(err, models.ErrMalformedStream) {
		t.Fatalf("AppendTimeBlocks() error = %v, want ErrMalformedStream", err)
	}
	if lm.Count() != 2 {
		t.Errorf("Count() after failed append = %d, want 2", lm.Count())
	}
	if math.Abs(lm.TOFValue(1)-40/SpeedOfLight) > 1e-9 {
		t.Errorf("TOFValue(1) = %f after failed append", lm.TOFValue(1))
	}
}

func TestTypePairs(t *testing.T) {
	matrix := make([][][]models.CoincidenceEvent, 3)
	for i := range matrix {
		matrix[i] = make([][]models.CoincidenceEvent, 3)
	}

	pairs, err := typePairs(matrix)
	if err != nil {
		t.Fatalf("typePairs() error = %v", err)
	}
	if len(pairs) != 9 {
		t.Fatalf("len(pairs) = %d, want 9", len(pairs))
	}
	if pairs[5] != (typePair{first: 1, second: 2}) {
		t.Errorf("pairs[5] = %+v, want {1 2}", pairs[5])
	}

	empty, err := typePairs(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("typePairs(nil) = %v, %v", empty, err)
	}

	matrix[2] = matrix[2][:1]
	if _, err := typePairs(matrix); !errors.Is(err, models.ErrMalformedStream) {
		t.Errorf("typePairs() error = %v, want ErrMalformedStream", err)
	}
}

type decoded struct {
	Times []uint32
	Pairs []models.DetectorPair
	TOF   []float64
}

func decodeAll(lm *ListMode) decoded {
	var d decoded
	for i := 0; i < lm.Count(); i++ {
		d.Times = append(d.Times, lm.Timestamp(i))
		d.Pairs = append(d.Pairs, lm.DetectorPair(i))
		d.TOF = append(d.TOF, lm.TOFValue(i))
	}
	return d
}

// Property-based test: decoding the same stream twice gives identical events
func TestDecode_PropertyDeterministic(t *testing.T) {
	info, table := setupScanner(t, nil)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	eventGen := gen.Struct(reflect.TypeOf(models.CoincidenceEvent{}), map[string]gopter.Gen{
		"DetectionBins": gen.SliceOfN(2, gen.UInt32Range(0, 7)).Map(func(v []uint32) [2]models.DetectionBin {
			return [2]models.DetectionBin{v[0], v[1]}
		}),
		"TOFIdx": gen.UInt32Range(0, 2),
	})

	properties.Property("decode is deterministic", prop.ForAll(
		func(events []models.CoincidenceEvent, start uint32) bool {
			blocks := []models.TimeBlock{eventBlock(start, events...)}

			first, err := New(info, table, blocks, WithTOF(true), WithLogger(quietLogger()))
			if err != nil {
				return false
			}
			second, err := New(info, table, blocks, WithTOF(true), WithLogger(quietLogger()))
			if err != nil {
				return false
			}
			return first.Count() == len(events) && reflect.DeepEqual(decodeAll(first), decodeAll(second))
		},
		gen.SliceOf(eventGen),
		gen.UInt32Range(0, 1<<20),
	))

	properties.TestingRun(t)
}

// setupTwoTypeScanner canonicalizes a 2-ring scanner with two module types
// of four crystals each; type 1 is type 0 rotated by 45 degrees. Every
// type pair gets its own TOF bin edges.
func setupTwoTypeScanner(t *testing.T) (*models.ScannerInformation, *correspondence.Table) {
	t.Helper()
	params := description.CylinderParams{
		ModelName:         "two-type",
		Rings:             2,
		DetectorsPerRing:  4,
		Radius:            100,
		RingSpacing:       10,
		CrystalDepth:      20,
		CrystalTransaxial: 4,
		CrystalAxial:      4,
		StartAngle:        -math.Pi / 2,
	}
	info, err := description.Cylinder(params)
	if err != nil {
		t.Fatalf("Cylinder() error = %v", err)
	}
	params.StartAngle += math.Pi / 4
	rotated, err := description.Cylinder(params)
	if err != nil {
		t.Fatalf("Cylinder() error = %v", err)
	}
	info.Geometry.ReplicatedModules = append(info.Geometry.ReplicatedModules, rotated.Geometry.ReplicatedModules[0])
	info.TOFBinEdges = [][]models.BinEdges{
		{{Edges: []float64{-30, -10, 10, 30}}, {Edges: []float64{10, 20, 40, 60}}},
		{{Edges: []float64{-60, -40, -20, 0}}, {Edges: []float64{-5, 0, 5}}},
	}

	_, table, err := geometry.Canonicalize(info, geometry.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}
	return info, table
}

func TestDecodeAcrossModuleTypes(t *testing.T) {
	info, table := setupTwoTypeScanner(t)

	// bin 0 of type 0 is (mod0, el0); bin 4 of type 1 is (mod1, el0)
	block := models.EventTimeBlock{
		Interval: models.TimeInterval{Start: 40, Stop: 50},
		PromptEvents: [][][]models.CoincidenceEvent{
			{nil, {coincidence(0, 4, 1)}},
			{nil, nil},
		},
	}

	lm, err := New(info, table, []models.TimeBlock{block}, WithTOF(true), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if lm.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", lm.Count())
	}

	wantKeys := [2]models.DetectorKey{
		{Type: 0, Module: 0, Element: 0},
		{Type: 1, Module: 1, Element: 0},
	}
	pair := lm.DetectorPair(0)
	for side, want := range wantKeys {
		got, err := table.HierarchicalKeyOf(pair[side])
		if err != nil {
			t.Fatalf("HierarchicalKeyOf(%d) error = %v", pair[side], err)
		}
		if got != want {
			t.Errorf("side %d key = %v, want %v", side, got, want)
		}
	}

	// Ring 0 by angle: t1e3, t0e0, t1e0, ...; ring 1 starts at id 8
	if pair != (models.DetectorPair{1, 10}) {
		t.Errorf("DetectorPair(0) = %v, want [1 10]", pair)
	}

	// Bin 1 of the [0][1] edges is centred at 30 mm
	if want := 60 / SpeedOfLight; math.Abs(lm.TOFValue(0)-want) > 1e-9 {
		t.Errorf("TOFValue(0) = %f, want %f", lm.TOFValue(0), want)
	}
}

func TestTOFPicosecondsPerTypePair(t *testing.T) {
	info, _ := setupTwoTypeScanner(t)

	tests := []struct {
		types [2]models.TypeOfModule
		idx   uint32
		want  float64
	}{
		{[2]models.TypeOfModule{0, 0}, 1, 0},
		{[2]models.TypeOfModule{0, 1}, 1, 60 / SpeedOfLight},
		{[2]models.TypeOfModule{1, 0}, 0, -100 / SpeedOfLight},
		{[2]models.TypeOfModule{1, 1}, 1, 5 / SpeedOfLight},
	}
	for _, tt := range tests {
		got, err := TOFPicoseconds(info, tt.types, tt.idx)
		if err != nil {
			t.Fatalf("TOFPicoseconds(%v, %d) error = %v", tt.types, tt.idx, err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("TOFPicoseconds(%v, %d) = %f, want %f", tt.types, tt.idx, got, tt.want)
		}
	}

	if _, err := TOFPicoseconds(info, [2]models.TypeOfModule{1, 1}, 2); !errors.Is(err, models.ErrMalformedStream) {
		t.Errorf("TOFPicoseconds() error = %v, want ErrMalformedStream", err)
	}
}
