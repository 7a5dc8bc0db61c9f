package nifti

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"

	"ctsegment/internal/models"
)

// NewHeader builds a little-endian single-file header for a 3D volume of the
// given shape and datatype. The affine goes into the sform with the aligned
// code; the qform is filled in with code unknown.
func NewHeader(nx, ny, nz int, dt Datatype, affine mat.Matrix, units uint8) *Header {
	hdr := &Header{
		SizeofHdr: HeaderSize,
		Regular:   'r',
		Datatype:  dt,
		Bitpix:    int16(dt.Bitpix()),
		VoxOffset: DataOffset,
		SclSlope:  1,
		XYZTUnits: units,
	}
	hdr.Dim = [8]int16{3, int16(nx), int16(ny), int16(nz), 1, 1, 1, 1}
	hdr.Pixdim = [8]float32{1, 1, 1, 1, 1, 1, 1, 1}
	hdr.SetAffine(affine, XformAligned)
	hdr.QformCode = XformUnknown
	copy(hdr.Magic[:], "n+1\x00")
	return hdr
}

// WriteMask writes mask as an int8 volume of zeros and ones, using the
// affine and units of ref. ref must have the mask's shape.
func WriteMask(path string, mask *models.Mask, ref *models.Volume) error {
	if mask.Shape() != ref.Shape() {
		return fmt.Errorf("mask shape %v does not match reference %v", mask.Shape(), ref.Shape())
	}

	hdr := NewHeader(mask.Width, mask.Height, mask.Depth, Int8, ref.Affine, ref.Units)
	hdr.CalMin, hdr.CalMax = 0, 1

	payload := make([]byte, len(mask.Data))
	for i, set := range mask.Data {
		if set {
			payload[i] = 1
		}
	}
	return writeFile(path, hdr, payload)
}

// WriteVolume writes vol with the given datatype. Values are converted with
// Go's float to integer conversion, so callers writing integer types should
// pass whole numbers within range.
func WriteVolume(path string, vol *models.Volume, dt Datatype) error {
	if dt.Bitpix() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedDatatype, dt)
	}
	hdr := NewHeader(vol.Width, vol.Height, vol.Depth, dt, vol.Affine, vol.Units)

	order := binary.LittleEndian
	size := dt.Bitpix() / 8
	payload := make([]byte, len(vol.Data)*size)
	for i, v := range vol.Data {
		b := payload[i*size : (i+1)*size]
		switch dt {
		case Uint8:
			b[0] = uint8(v)
		case Int8:
			b[0] = byte(int8(v))
		case Int16:
			order.PutUint16(b, uint16(int16(v)))
		case Uint16:
			order.PutUint16(b, uint16(v))
		case Int32:
			order.PutUint32(b, uint32(int32(v)))
		case Uint32:
			order.PutUint32(b, uint32(v))
		case Int64:
			order.PutUint64(b, uint64(int64(v)))
		case Uint64:
			order.PutUint64(b, uint64(v))
		case Float32:
			order.PutUint32(b, math.Float32bits(float32(v)))
		case Float64:
			order.PutUint64(b, math.Float64bits(v))
		}
	}
	return writeFile(path, hdr, payload)
}

// Encode writes header, the empty extension flag and payload to w
func Encode(w io.Writer, hdr *Header, payload []byte) error {
	var buf bytes.Buffer
	buf.Grow(DataOffset)
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	// extension flag: no extensions follow
	buf.Write([]byte{0, 0, 0, 0})

	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// writeFile writes a complete NIfTI file, gzip-compressed when path ends in .gz.
// The gzip header carries no name or modification time so identical volumes
// produce identical bytes.
func writeFile(path string, hdr *Header, payload []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zw, zerr := gzip.NewWriterLevel(bw, gzip.DefaultCompression)
		if zerr != nil {
			return zerr
		}
		if err := Encode(zw, hdr, payload); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
	} else if err := Encode(bw, hdr, payload); err != nil {
		return err
	}
	return bw.Flush()
}
