package volume

import (
	"errors"
	"math"
	"testing"

	"canalis/internal/domain"
)

// testGeom возвращает геометрию куба 48³ с изотропным вокселем 1 мм.
func testGeom() domain.Geometry {
	return domain.Geometry{
		Dims:    [3]int{48, 48, 48},
		Spacing: [3]float64{1, 1, 1},
	}
}

// sphere возвращает объём со значением value внутри сферы радиуса r
// вокруг центра куба.
func sphere(geom domain.Geometry, r, value float64) domain.Volume {
	v := domain.NewVolume(geom, domain.VolumeProbabilistic)
	cx := float64(geom.Dims[0]) / 2
	cy := float64(geom.Dims[1]) / 2
	cz := float64(geom.Dims[2]) / 2

	for z := 0; z < geom.Dims[2]; z++ {
		for y := 0; y < geom.Dims[1]; y++ {
			for x := 0; x < geom.Dims[0]; x++ {
				dx, dy, dz := float64(x)-cx, float64(y)-cy, float64(z)-cz
				if math.Sqrt(dx*dx+dy*dy+dz*dz) <= r {
					v.Set(x, y, z, value)
				}
			}
		}
	}
	return v
}

func sameData(t *testing.T, a, b domain.Volume) {
	t.Helper()
	if len(a.Data) != len(b.Data) {
		t.Fatalf("volume sizes differ: %d vs %d", len(a.Data), len(b.Data))
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("volumes differ at voxel %d: %v vs %v", i, a.Data[i], b.Data[i])
		}
	}
}

func TestBinarize_Threshold(t *testing.T) {
	geom := domain.Geometry{Dims: [3]int{4, 1, 1}, Spacing: [3]float64{1, 1, 1}}
	v := domain.NewVolume(geom, domain.VolumeProbabilistic)
	v.Data = []float64{0.0, 0.49, 0.5, 0.7}

	out := Binarize(v, Threshold)

	want := []float64{0, 0, 1, 1}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Errorf("voxel %d: expected %v, got %v", i, want[i], out.Data[i])
		}
	}
}

func TestUnion_CordPlusCSFReconstructsCanal(t *testing.T) {
	// Вероятностный cord (0.7 внутри сферы 10) и CSF (0.6 внутри
	// сферы 20 минус внутренняя сфера 10): после бинаризации и union
	// должна получиться заполненная сфера 20.
	geom := testGeom()

	cord := sphere(geom, 10, 0.7)
	inner := sphere(geom, 10, 1)
	outer := sphere(geom, 20, 0.6)
	csf := domain.NewVolume(geom, domain.VolumeProbabilistic)
	for i := range outer.Data {
		if outer.Data[i] != 0 && inner.Data[i] == 0 {
			csf.Data[i] = 0.6
		}
	}

	cordBin := Binarize(cord, Threshold)
	csfBin := Binarize(csf, Threshold)

	got, err := Union(cordBin, csfBin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Binarize(sphere(geom, 20, 1), Threshold)
	sameData(t, got, want)
}

func TestUnion_CommutativeIdempotent(t *testing.T) {
	geom := testGeom()
	a := sphere(geom, 8, 0.9)
	b := sphere(geom, 14, 0.6)

	ab, err := Union(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ba, err := Union(b, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sameData(t, ab, ba)

	// union(a,a) == binarize(a, 0.5)
	aa, err := Union(a, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sameData(t, aa, Binarize(a, Threshold))
}

func TestSubtractFloor_Annulus(t *testing.T) {
	// atlas = заполненная сфера 20, cord = заполненная сфера 10:
	// canal-only должен быть кольцом (в сфере 20, но не в сфере 10).
	geom := testGeom()
	atlas := sphere(geom, 20, 1)
	cord := sphere(geom, 10, 1)

	got, err := SubtractFloor(atlas, cord)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for z := 0; z < geom.Dims[2]; z++ {
		for y := 0; y < geom.Dims[1]; y++ {
			for x := 0; x < geom.Dims[0]; x++ {
				want := 0.0
				if atlas.At(x, y, z) != 0 && cord.At(x, y, z) == 0 {
					want = 1
				}
				if got.At(x, y, z) != want {
					t.Fatalf("voxel (%d,%d,%d): expected %v, got %v", x, y, z, want, got.At(x, y, z))
				}
			}
		}
	}
}

func TestSubtractFloor_CordBeyondAtlasClampsToZero(t *testing.T) {
	// Возмущённый случай: cord выходит за пределы atlas. Отрицательные
	// разности обязаны отсекаться в 0, все значения результата ∈ {0,1}.
	geom := testGeom()
	atlas := sphere(geom, 10, 1)
	cord := sphere(geom, 20, 1)

	got, err := SubtractFloor(atlas, cord)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, val := range got.Data {
		if val != 0 && val != 1 {
			t.Fatalf("voxel %d: non-binary value %v", i, val)
		}
		if val != 0 {
			t.Fatalf("voxel %d: expected empty result, got %v", i, val)
		}
	}
}

func TestSubtractFloor_CordNeverInResult(t *testing.T) {
	geom := testGeom()
	atlas := sphere(geom, 20, 1)
	cord := sphere(geom, 10, 1)

	canalOnly, err := SubtractFloor(atlas, cord)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range cord.Data {
		if cord.Data[i] != 0 && canalOnly.Data[i] != 0 {
			t.Fatal("canal-only mask contains cord voxels")
		}
	}
}

func TestUnion_GeometryMismatch(t *testing.T) {
	a := domain.NewVolume(domain.Geometry{Dims: [3]int{4, 4, 4}, Spacing: [3]float64{1, 1, 1}}, domain.VolumeBinary)
	b := domain.NewVolume(domain.Geometry{Dims: [3]int{8, 8, 8}, Spacing: [3]float64{1, 1, 1}}, domain.VolumeBinary)

	_, err := Union(a, b)
	if !errors.Is(err, ErrGeometryMismatch) {
		t.Fatalf("expected ErrGeometryMismatch, got %v", err)
	}

	var geomErr *GeometryError
	if !errors.As(err, &geomErr) {
		t.Fatal("expected *GeometryError")
	}
	if geomErr.Op != "union" {
		t.Errorf("expected op union, got %s", geomErr.Op)
	}
}

// TestBinaryOps_EmptyVolume — том без вокселей означает оборванное
// чтение и отвергается до поэлементного прохода.
func TestBinaryOps_EmptyVolume(t *testing.T) {
	geom := domain.Geometry{Dims: [3]int{4, 4, 4}, Spacing: [3]float64{1, 1, 1}}
	full := domain.NewVolume(geom, domain.VolumeBinary)
	empty := domain.Volume{Geom: geom}

	if _, err := Union(full, empty); !errors.Is(err, ErrEmptyVolume) {
		t.Errorf("Union: expected ErrEmptyVolume, got %v", err)
	}
	if _, err := SubtractFloor(empty, full); !errors.Is(err, ErrEmptyVolume) {
		t.Errorf("SubtractFloor: expected ErrEmptyVolume, got %v", err)
	}
	if _, err := Contains(empty, full); !errors.Is(err, ErrEmptyVolume) {
		t.Errorf("Contains: expected ErrEmptyVolume, got %v", err)
	}
}

func TestExtractLabel_RoundsFloatArtifacts(t *testing.T) {
	geom := domain.Geometry{Dims: [3]int{3, 1, 1}, Spacing: [3]float64{1, 1, 1}}
	seg := domain.NewVolume(geom, domain.VolumeLabel)
	seg.Data = []float64{1.0001, 2.0, 0.9999}

	got := ExtractLabel(seg, 1)
	want := []float64{1, 0, 1}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Errorf("voxel %d: expected %v, got %v", i, want[i], got.Data[i])
		}
	}
}

func TestExtractLabels_Set(t *testing.T) {
	geom := domain.Geometry{Dims: [3]int{4, 1, 1}, Spacing: [3]float64{1, 1, 1}}
	seg := domain.NewVolume(geom, domain.VolumeLabel)
	seg.Data = []float64{1, 2, 3, 0}

	got := ExtractLabels(seg, []int{1, 2})
	want := []float64{1, 1, 0, 0}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Errorf("voxel %d: expected %v, got %v", i, want[i], got.Data[i])
		}
	}
}

func TestZIntersect(t *testing.T) {
	// Cord (метка 1) на срезах 0..2, canal (метка 2) на срезах 1..3:
	// остаться должны только срезы 1 и 2.
	geom := domain.Geometry{Dims: [3]int{2, 2, 4}, Spacing: [3]float64{1, 1, 1}}
	seg := domain.NewVolume(geom, domain.VolumeLabel)
	for z := 0; z <= 2; z++ {
		seg.Set(0, 0, z, 1)
	}
	for z := 1; z <= 3; z++ {
		seg.Set(1, 1, z, 2)
	}

	got, shared := ZIntersect(seg, 1, 2)

	if shared != 2 {
		t.Errorf("expected 2 shared slices, got %d", shared)
	}
	if got.At(0, 0, 0) != 0 || got.At(1, 1, 3) != 0 {
		t.Error("slices outside the intersection must be zeroed")
	}
	if got.At(0, 0, 1) != 1 || got.At(1, 1, 2) != 2 {
		t.Error("slices inside the intersection must be preserved")
	}

	// Вход не мутируется
	if seg.At(0, 0, 0) != 1 {
		t.Error("input volume was mutated")
	}
}

func TestZIntersect_NoOverlap(t *testing.T) {
	geom := domain.Geometry{Dims: [3]int{1, 1, 4}, Spacing: [3]float64{1, 1, 1}}
	seg := domain.NewVolume(geom, domain.VolumeLabel)
	seg.Set(0, 0, 0, 1)
	seg.Set(0, 0, 3, 2)

	got, shared := ZIntersect(seg, 1, 2)
	if shared != 0 {
		t.Errorf("expected 0 shared slices, got %d", shared)
	}
	if got.CountNonZero() != 0 {
		t.Error("expected empty output when cord and canal share no slices")
	}
}

func TestRelabelLevels(t *testing.T) {
	geom := domain.Geometry{Dims: [3]int{5, 1, 1}, Spacing: [3]float64{1, 1, 1}}
	seg := domain.NewVolume(geom, domain.VolumeLabel)
	seg.Data = []float64{11, 21, 41, 50, 99}

	got := RelabelLevels(seg, domain.VertebralLevelMap)

	want := []float64{1, 8, 20, 25, 0}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Errorf("voxel %d: expected %v, got %v", i, want[i], got.Data[i])
		}
	}
}

func TestFilterDiscLabels(t *testing.T) {
	geom := domain.Geometry{Dims: [3]int{5, 1, 1}, Spacing: [3]float64{1, 1, 1}}
	seg := domain.NewVolume(geom, domain.VolumeLabel)
	seg.Data = []float64{1, 21, 22, 60, 61}

	got := FilterDiscLabels(seg, domain.DiscLabelMax)

	want := []float64{1, 21, 0, 60, 0}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Errorf("voxel %d: expected %v, got %v", i, want[i], got.Data[i])
		}
	}
}

func TestContains(t *testing.T) {
	geom := testGeom()
	outer := Binarize(sphere(geom, 20, 1), Threshold)
	inner := Binarize(sphere(geom, 10, 1), Threshold)

	ok, err := Contains(outer, inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("inner sphere must be contained in outer sphere")
	}

	ok, err = Contains(inner, outer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("outer sphere must not be contained in inner sphere")
	}
}
