// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and .nii.gz).
//
// Only what a scalar 3D segmentation pipeline needs is supported: the
// standard integer and floating point datatypes, either byte order on read,
// intensity scaling, and the sform/qform affine rules used by common
// neuroimaging tools. Extensions are skipped on read and never written.
package nifti

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// HeaderSize is sizeof_hdr for NIfTI-1
	HeaderSize = 348

	// headerSize2 is sizeof_hdr for NIfTI-2, which is not supported
	headerSize2 = 540

	// DataOffset is where voxel data starts in files written by this package:
	// the header plus the 4-byte extension flag
	DataOffset = HeaderSize + 4
)

var (
	// ErrNotNifti is returned when the header does not look like NIfTI-1
	ErrNotNifti = errors.New("not a NIfTI-1 file")

	// ErrUnsupportedDatatype is returned for complex, RGB and other non-scalar types
	ErrUnsupportedDatatype = errors.New("unsupported NIfTI datatype")

	// ErrUnsupportedDims is returned for volumes that are not 3D
	ErrUnsupportedDims = errors.New("unsupported NIfTI dimensions")
)

// Datatype is the NIfTI-1 datatype code
type Datatype int16

const (
	Uint8   Datatype = 2
	Int16   Datatype = 4
	Int32   Datatype = 8
	Float32 Datatype = 16
	Float64 Datatype = 64
	Int8    Datatype = 256
	Uint16  Datatype = 512
	Uint32  Datatype = 768
	Int64   Datatype = 1024
	Uint64  Datatype = 1280
)

// Bitpix returns the size of one voxel in bits, or 0 for unsupported types
func (d Datatype) Bitpix() int {
	switch d {
	case Uint8, Int8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32, Float32:
		return 32
	case Int64, Uint64, Float64:
		return 64
	}
	return 0
}

func (d Datatype) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	}
	return fmt.Sprintf("datatype(%d)", int16(d))
}

// Transform codes for qform_code and sform_code
const (
	XformUnknown = 0
	XformScanner = 1
	XformAligned = 2
)

// Units for xyzt_units (spatial part)
const (
	UnitsUnknown = 0
	UnitsMeter   = 1
	UnitsMM      = 2
	UnitsMicron  = 3
)

// Header mirrors the on-disk nifti_1_header field by field. encoding/binary
// packs it without padding, so binary.Size(Header{}) == HeaderSize.
type Header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      Datatype
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// Shape returns the x, y and z extents
func (h *Header) Shape() (int, int, int) {
	return int(h.Dim[1]), int(h.Dim[2]), int(h.Dim[3])
}

// Description returns descrip as a Go string
func (h *Header) Description() string {
	return strings.TrimRight(string(h.Descrip[:]), "\x00")
}

// SetDescription stores s in descrip, truncated to 79 bytes
func (h *Header) SetDescription(s string) {
	h.Descrip = [80]byte{}
	copy(h.Descrip[:79], s)
}

// validate checks that the header describes a 3D scalar volume we can decode
func (h *Header) validate() error {
	if string(h.Magic[:3]) != "n+1" {
		return fmt.Errorf("%w: magic %q (only single-file n+1 is supported)", ErrNotNifti, h.Magic[:3])
	}
	if h.Datatype.Bitpix() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedDatatype, h.Datatype)
	}
	ndim := int(h.Dim[0])
	if ndim < 1 || ndim > 7 {
		return fmt.Errorf("%w: dim[0]=%d", ErrUnsupportedDims, ndim)
	}
	for i := 1; i <= 3; i++ {
		if i <= ndim && h.Dim[i] < 1 {
			return fmt.Errorf("%w: dim[%d]=%d", ErrUnsupportedDims, i, h.Dim[i])
		}
	}
	for i := 4; i <= ndim; i++ {
		if h.Dim[i] > 1 {
			return fmt.Errorf("%w: %dD volume with dim[%d]=%d", ErrUnsupportedDims, ndim, i, h.Dim[i])
		}
	}
	if h.VoxOffset < HeaderSize {
		return fmt.Errorf("%w: vox_offset %v inside header", ErrNotNifti, h.VoxOffset)
	}
	return nil
}

// normalizeDims fills missing trailing extents with 1 so shape is always 3D
func (h *Header) normalizeDims() {
	for i := int(h.Dim[0]) + 1; i <= 3; i++ {
		h.Dim[i] = 1
	}
}

// detectOrder inspects sizeof_hdr to find the byte order of the file
func detectOrder(first4 []byte) (binary.ByteOrder, error) {
	switch {
	case int32(binary.LittleEndian.Uint32(first4)) == HeaderSize:
		return binary.LittleEndian, nil
	case int32(binary.BigEndian.Uint32(first4)) == HeaderSize:
		return binary.BigEndian, nil
	case int32(binary.LittleEndian.Uint32(first4)) == headerSize2,
		int32(binary.BigEndian.Uint32(first4)) == headerSize2:
		return nil, fmt.Errorf("%w: NIfTI-2 headers are not supported", ErrNotNifti)
	}
	return nil, fmt.Errorf("%w: sizeof_hdr is not %d", ErrNotNifti, HeaderSize)
}
