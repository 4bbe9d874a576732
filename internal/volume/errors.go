package volume

import (
	"errors"
	"fmt"

	"canalis/internal/domain"
)

// Ошибки алгебры объёмов.
var (
	// ErrGeometryMismatch — входы операции имеют разную воксельную геометрию.
	// Несовпадение фатально для задачи: молчаливый ресемплинг запрещён.
	ErrGeometryMismatch = errors.New("volume geometry mismatch")

	// ErrEmptyVolume — объём без вокселей попал в бинарную операцию.
	// Такой вход означает оборванное чтение, не пустую маску.
	ErrEmptyVolume = errors.New("empty volume")
)

// GeometryError — ошибка несовпадения геометрий с контекстом операции.
type GeometryError struct {
	Op   string          // операция, в которой обнаружено несовпадение
	A, B domain.Geometry // геометрии входов
}

// Error реализует интерфейс error.
func (e *GeometryError) Error() string {
	return fmt.Sprintf("%s: geometry mismatch: dims %v vs %v", e.Op, e.A.Dims, e.B.Dims)
}

// Unwrap возвращает базовую ошибку.
func (e *GeometryError) Unwrap() error {
	return ErrGeometryMismatch
}

// checkGeometry проверяет входы бинарной операции: оба тома непусты
// и имеют одну воксельную геометрию.
func checkGeometry(op string, a, b domain.Volume) error {
	if len(a.Data) == 0 || len(b.Data) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyVolume)
	}
	if !a.Geom.Equal(b.Geom) {
		return &GeometryError{Op: op, A: a.Geom, B: b.Geom}
	}
	return nil
}
