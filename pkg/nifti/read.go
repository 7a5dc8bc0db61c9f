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

	"ctsegment/internal/models"
)

var gzipMagic = []byte{0x1f, 0x8b}

// decodeChunk is the number of voxels read per call while decoding, which
// bounds allocation when the stream is shorter than the header claims
const decodeChunk = 1 << 16

// openReader opens path and returns a reader over the uncompressed stream.
// Compression is detected from the content, not the file extension. size is
// the file size for plain files and -1 for gzip streams.
func openReader(path string) (r io.Reader, size int64, closeFn func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, nil, err
	}

	br := bufio.NewReader(f)
	peek, err := br.Peek(2)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, 0, nil, err
	}

	if bytes.Equal(peek, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, 0, nil, fmt.Errorf("gzip: %w", err)
		}
		closeAll := func() error {
			zerr := zr.Close()
			if ferr := f.Close(); ferr != nil {
				return ferr
			}
			return zerr
		}
		return bufio.NewReader(zr), -1, closeAll, nil
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, err
	}
	return br, info.Size(), f.Close, nil
}

// readHeader decodes and validates the header from r
func readHeader(r io.Reader) (*Header, binary.ByteOrder, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	order, err := detectOrder(buf[:4])
	if err != nil {
		return nil, nil, err
	}

	hdr := &Header{}
	if err := binary.Read(bytes.NewReader(buf), order, hdr); err != nil {
		return nil, nil, fmt.Errorf("decode header: %w", err)
	}
	if err := hdr.validate(); err != nil {
		return nil, nil, err
	}
	hdr.normalizeDims()
	return hdr, order, nil
}

// ReadHeader reads only the header of a NIfTI-1 file
func ReadHeader(path string) (*Header, error) {
	r, _, closeFn, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	hdr, _, err := readHeader(r)
	return hdr, err
}

// Load reads a 3D NIfTI-1 volume. Voxel values are converted to float64 and
// scaled by scl_slope/scl_inter when a slope is set. The volume's affine is
// chosen by Header.Affine.
func Load(path string) (*models.Volume, error) {
	r, size, closeFn, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	hdr, order, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	// Skip the extension flag, any extensions and padding up to vox_offset
	skip := int64(hdr.VoxOffset) - HeaderSize
	if _, err := io.CopyN(io.Discard, r, skip); err != nil {
		return nil, fmt.Errorf("seek to voxel data: %w", unexpected(err))
	}

	nx, ny, nz := hdr.Shape()
	n := nx * ny * nz
	if size >= 0 {
		need := int64(hdr.VoxOffset) + int64(n)*int64(hdr.Datatype.Bitpix()/8)
		if size < need {
			return nil, fmt.Errorf("read voxel data: %w: file has %d bytes, header needs %d",
				io.ErrUnexpectedEOF, size, need)
		}
	}

	data, err := decodeVoxels(r, order, hdr.Datatype, n)
	if err != nil {
		return nil, err
	}
	vol := models.NewVolume(0, 0, 0)
	vol.Data, vol.Width, vol.Height, vol.Depth = data, nx, ny, nz

	if slope := float64(hdr.SclSlope); slope != 0 && !math.IsNaN(slope) && !math.IsInf(slope, 0) {
		inter := float64(hdr.SclInter)
		if math.IsNaN(inter) || math.IsInf(inter, 0) {
			inter = 0
		}
		if slope != 1 || inter != 0 {
			for i, v := range vol.Data {
				vol.Data[i] = v*slope + inter
			}
		}
	}

	vol.Affine = hdr.Affine()
	vol.VoxelSize.X = positive(hdr.Pixdim[1])
	vol.VoxelSize.Y = positive(hdr.Pixdim[2])
	vol.VoxelSize.Z = positive(hdr.Pixdim[3])
	vol.Units = hdr.XYZTUnits & 0x07
	return vol, nil
}

// decodeVoxels reads n voxels of type dt from r. Data is read in chunks and
// the result grows as it arrives, so a stream that ends early fails with
// io.ErrUnexpectedEOF before n voxels are ever allocated.
func decodeVoxels(r io.Reader, order binary.ByteOrder, dt Datatype, n int) ([]float64, error) {
	size := dt.Bitpix() / 8
	if size == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatatype, dt)
	}

	out := make([]float64, 0, min(n, decodeChunk))
	raw := make([]byte, min(n, decodeChunk)*size)
	for len(out) < n {
		k := min(n-len(out), decodeChunk)
		chunk := raw[:k*size]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("read voxel data: %w", unexpected(err))
		}
		for i := 0; i < k; i++ {
			out = append(out, decodeVoxel(chunk[i*size:(i+1)*size], order, dt))
		}
	}
	return out, nil
}

// decodeVoxel converts one voxel of a supported datatype to float64
func decodeVoxel(b []byte, order binary.ByteOrder, dt Datatype) float64 {
	switch dt {
	case Uint8:
		return float64(b[0])
	case Int8:
		return float64(int8(b[0]))
	case Int16:
		return float64(int16(order.Uint16(b)))
	case Uint16:
		return float64(order.Uint16(b))
	case Int32:
		return float64(int32(order.Uint32(b)))
	case Uint32:
		return float64(order.Uint32(b))
	case Int64:
		return float64(int64(order.Uint64(b)))
	case Uint64:
		return float64(order.Uint64(b))
	case Float32:
		return float64(math.Float32frombits(order.Uint32(b)))
	}
	return math.Float64frombits(order.Uint64(b))
}

// unexpected turns a clean EOF in the middle of a file into ErrUnexpectedEOF
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
