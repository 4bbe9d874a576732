// Пакет nifti — минимальный кодек NIfTI-1 для обмена томами с
// внешними инструментами. Поддерживает одиночные файлы .nii и
// .nii.gz, типы данных uint8/int16/int32/float32/float64, чтение
// геометрии из заголовка. Запись всегда в float32.
package nifti

import (
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"canalis/internal/domain"
)

// Ошибки кодека.
var (
	// ErrBadMagic — файл не является одиночным NIfTI-1.
	ErrBadMagic = errors.New("not a NIfTI-1 single file")

	// ErrUnsupportedDatatype — тип данных вокселей не поддерживается.
	ErrUnsupportedDatatype = errors.New("unsupported NIfTI datatype")

	// ErrBadDimensions — заголовок описывает не трёхмерный том.
	ErrBadDimensions = errors.New("volume is not three-dimensional")
)

// Коды типов данных NIfTI-1.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
)

const headerSize = 348

// header — заголовок NIfTI-1 (348 байт), поля в порядке формата.
type header struct {
	SizeofHdr      int32
	DataType       [10]byte
	DBName         [18]byte
	Extents        int32
	SessionError   int16
	Regular        byte
	DimInfo        byte
	Dim            [8]int16
	IntentP1       float32
	IntentP2       float32
	IntentP3       float32
	IntentCode     int16
	Datatype       int16
	Bitpix         int16
	SliceStart     int16
	Pixdim         [8]float32
	VoxOffset      float32
	SclSlope       float32
	SclInter       float32
	SliceEnd       int16
	SliceCode      byte
	XyztUnits      byte
	CalMax         float32
	CalMin         float32
	SliceDuration  float32
	Toffset        float32
	Glmax          int32
	Glmin          int32
	Descrip        [80]byte
	AuxFile        [24]byte
	QformCode      int16
	SformCode      int16
	QuaternB       float32
	QuaternC       float32
	QuaternD       float32
	QoffsetX       float32
	QoffsetY       float32
	QoffsetZ       float32
	SrowX          [4]float32
	SrowY          [4]float32
	SrowZ          [4]float32
	IntentName     [16]byte
	Magic          [4]byte
}

// Read читает том из потока NIfTI-1 без сжатия.
func Read(r io.Reader) (domain.Volume, error) {
	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return domain.Volume{}, fmt.Errorf("read nifti header: %w", err)
	}
	if hdr.SizeofHdr != headerSize {
		return domain.Volume{}, ErrBadMagic
	}
	if hdr.Magic[0] != 'n' || hdr.Magic[1] != '+' || hdr.Magic[2] != '1' {
		return domain.Volume{}, ErrBadMagic
	}
	if hdr.Dim[0] < 3 {
		return domain.Volume{}, ErrBadDimensions
	}
	// Четвёртое и дальнейшие измерения допустимы только вырожденными.
	for i := 4; i <= int(hdr.Dim[0]); i++ {
		if hdr.Dim[i] > 1 {
			return domain.Volume{}, fmt.Errorf("%w: dim[%d]=%d", ErrBadDimensions, i, hdr.Dim[i])
		}
	}

	geom := domain.Geometry{
		Dims:    [3]int{int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])},
		Spacing: [3]float64{float64(hdr.Pixdim[1]), float64(hdr.Pixdim[2]), float64(hdr.Pixdim[3])},
		Origin:  [3]float64{float64(hdr.QoffsetX), float64(hdr.QoffsetY), float64(hdr.QoffsetZ)},
	}

	// Пропускаем байты между заголовком и данными.
	skip := int64(hdr.VoxOffset) - headerSize
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return domain.Volume{}, fmt.Errorf("skip to voxel data: %w", err)
		}
	}

	n := geom.NumVoxels()
	data := make([]float64, n)
	if err := readVoxels(r, hdr.Datatype, data); err != nil {
		return domain.Volume{}, err
	}

	// Применяем аффинную шкалу интенсивностей, если задана.
	if hdr.SclSlope != 0 && (hdr.SclSlope != 1 || hdr.SclInter != 0) {
		slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	return domain.Volume{Geom: geom, Kind: domain.VolumeProbabilistic, Data: data}, nil
}

// readVoxels читает воксели указанного типа в data.
func readVoxels(r io.Reader, datatype int16, data []float64) error {
	switch datatype {
	case dtUint8:
		buf := make([]byte, len(data))
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read voxel data: %w", err)
		}
		for i, b := range buf {
			data[i] = float64(b)
		}
	case dtInt16:
		buf := make([]int16, len(data))
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return fmt.Errorf("read voxel data: %w", err)
		}
		for i, v := range buf {
			data[i] = float64(v)
		}
	case dtInt32:
		buf := make([]int32, len(data))
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return fmt.Errorf("read voxel data: %w", err)
		}
		for i, v := range buf {
			data[i] = float64(v)
		}
	case dtFloat32:
		buf := make([]float32, len(data))
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return fmt.Errorf("read voxel data: %w", err)
		}
		for i, v := range buf {
			data[i] = float64(v)
		}
	case dtFloat64:
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return fmt.Errorf("read voxel data: %w", err)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedDatatype, datatype)
	}
	return nil
}

// Write пишет том в поток как NIfTI-1 float32.
func Write(w io.Writer, v domain.Volume) error {
	hdr := header{
		SizeofHdr: headerSize,
		Datatype:  dtFloat32,
		Bitpix:    32,
		VoxOffset: 352,
		SclSlope:  1,
		QformCode: 1,
	}
	hdr.Dim[0] = 3
	for i := 0; i < 3; i++ {
		hdr.Dim[i+1] = int16(v.Geom.Dims[i])
		hdr.Pixdim[i+1] = float32(v.Geom.Spacing[i])
	}
	for i := 4; i < 8; i++ {
		hdr.Dim[i] = 1
	}
	hdr.QoffsetX = float32(v.Geom.Origin[0])
	hdr.QoffsetY = float32(v.Geom.Origin[1])
	hdr.QoffsetZ = float32(v.Geom.Origin[2])
	hdr.QuaternD = 1
	hdr.Magic = [4]byte{'n', '+', '1', 0}

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write nifti header: %w", err)
	}
	// Выравнивание до vox_offset.
	if _, err := w.Write(make([]byte, 4)); err != nil {
		return fmt.Errorf("write nifti padding: %w", err)
	}

	buf := make([]float32, len(v.Data))
	for i, val := range v.Data {
		buf[i] = float32(val)
	}
	if err := binary.Write(w, binary.LittleEndian, buf); err != nil {
		return fmt.Errorf("write voxel data: %w", err)
	}
	return nil
}

// ReadFile читает том из файла .nii или .nii.gz.
func ReadFile(path string) (domain.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Volume{}, fmt.Errorf("open nifti: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return domain.Volume{}, fmt.Errorf("open nifti gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return Read(r)
}

// WriteFile пишет том в файл, со сжатием для суффикса .gz.
func WriteFile(path string, v domain.Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create nifti: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		if err := Write(gz, v); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	}
	return Write(f, v)
}
