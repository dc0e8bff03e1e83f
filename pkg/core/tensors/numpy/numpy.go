// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package numpy reads and writes arrays in NumPy's .npy and .npz file formats, used for test
// fixtures: inputs and expected outputs of graphs.
//
// Only little-endian numeric data types supported by the graphs are handled.
package numpy

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"github.com/gomlx/webnn/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// Array is the content of a .npy file: its shape and its data, in row-major order.
type Array struct {
	Shape shapes.Shape
	Data  []byte
}

// Flat returns a view of the data as a flat Go slice of the array data type (e.g. []float32).
func (a *Array) Flat() (any, error) {
	return tensors.ViewAs(a.Shape.DType, a.Data)
}

// Float32s returns the data converted to float32, which is how fixtures are usually compared.
func (a *Array) Float32s() ([]float32, error) {
	flat, err := a.Flat()
	if err != nil {
		return nil, err
	}
	switch values := flat.(type) {
	case []float32:
		return values, nil
	case []float64:
		return convert[float32](values), nil
	case []int8:
		return convert[float32](values), nil
	case []uint8:
		return convert[float32](values), nil
	case []int32:
		return convert[float32](values), nil
	case []uint32:
		return convert[float32](values), nil
	case []int64:
		return convert[float32](values), nil
	}
	return nil, errors.Errorf("cannot convert .npy array of %s to float32", a.Shape.DType)
}

func convert[T, F float32 | float64 | int8 | uint8 | int32 | uint32 | int64](values []F) []T {
	out := make([]T, len(values))
	for ii, v := range values {
		out[ii] = T(v)
	}
	return out
}

const npyMagic = "\x93NUMPY"

// FromNpyFile reads a .npy file. A leading "~" in filePath is expanded to the home directory.
func FromNpyFile(filePath string) (*Array, error) {
	filePath, err := fsutil.ExpandHome(filePath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npy file %q", filePath)
	}
	defer func() { _ = file.Close() }()
	return FromNpyReader(file)
}

// FromNpyReader reads an array in .npy format from r.
func FromNpyReader(r io.Reader) (*Array, error) {
	preamble := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, preamble); err != nil {
		return nil, errors.Wrapf(err, "failed to read .npy magic string and version")
	}
	if string(preamble[:len(npyMagic)]) != npyMagic {
		return nil, errors.Errorf("invalid .npy file format: magic string mismatch")
	}
	major, minor := preamble[len(npyMagic)], preamble[len(npyMagic)+1]

	var headerLen int
	switch major {
	case 1:
		lenBytes := make([]byte, 2)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, errors.Wrapf(err, "failed to read .npy header length")
		}
		headerLen = int(binary.LittleEndian.Uint16(lenBytes))
	case 2, 3:
		lenBytes := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, errors.Wrapf(err, "failed to read .npy header length")
		}
		headerLen = int(binary.LittleEndian.Uint32(lenBytes))
		if headerLen > 1<<20 {
			return nil, errors.Errorf(".npy header length %d is too large", headerLen)
		}
	default:
		return nil, errors.Errorf("unsupported .npy version %d.%d", major, minor)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, errors.Wrapf(err, "failed to read .npy header")
	}
	descr, dims, fortranOrder, err := parseHeader(string(headerBytes))
	if err != nil {
		return nil, err
	}
	dtype, err := dtypeFromDescr(descr)
	if err != nil {
		return nil, err
	}
	shape, err := shapes.MakeChecked(dtype, dims...)
	if err != nil {
		return nil, errors.WithMessagef(err, ".npy shape %v", dims)
	}

	data := tensors.AlignedBytes(int(shape.Memory()))
	if _, err = io.ReadFull(r, data); err != nil {
		return nil, errors.Wrapf(err, "failed to read .npy data of %s (%d bytes)", shape, len(data))
	}
	if fortranOrder && shape.Rank() > 1 {
		data = fortranToRowMajor(shape, data)
	}
	return &Array{Shape: shape, Data: data}, nil
}

// fortranToRowMajor reorders column-major data to row-major.
func fortranToRowMajor(shape shapes.Shape, fortranData []byte) []byte {
	elementSize := int(shape.DType.Memory())
	columnStrides := make([]int, shape.Rank())
	stride := 1
	for axis, dim := range shape.Dimensions {
		columnStrides[axis] = stride
		stride *= dim
	}
	data := tensors.AlignedBytes(len(fortranData))
	for flatIdx, indices := range shape.Iter() {
		var fortranIdx int
		for axis, idx := range indices {
			fortranIdx += idx * columnStrides[axis]
		}
		copy(data[flatIdx*elementSize:(flatIdx+1)*elementSize], fortranData[fortranIdx*elementSize:])
	}
	return data
}

var (
	reDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// parseHeader extracts the fields of a .npy header, a Python dict literal like
// "{'descr': '<f4', 'fortran_order': False, 'shape': (3, 4), }".
func parseHeader(header string) (descr string, dims []int, fortranOrder bool, err error) {
	match := reDescr.FindStringSubmatch(header)
	if match == nil {
		return "", nil, false, errors.Errorf("'descr' not found in .npy header %q", header)
	}
	descr = match[1]
	match = reFortran.FindStringSubmatch(header)
	if match == nil {
		return "", nil, false, errors.Errorf("'fortran_order' not found in .npy header %q", header)
	}
	fortranOrder = match[1] == "True"
	match = reShape.FindStringSubmatch(header)
	if match == nil {
		return "", nil, false, errors.Errorf("'shape' not found in .npy header %q", header)
	}
	dims = []int{}
	for _, part := range strings.Split(match[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dim, err := strconv.Atoi(part)
		if err != nil {
			return "", nil, false, errors.Wrapf(err, "invalid dimension %q in .npy header", part)
		}
		dims = append(dims, dim)
	}
	return descr, dims, fortranOrder, nil
}

var descrToDType = map[string]dtypes.DType{
	"i1": dtypes.Int8,
	"u1": dtypes.Uint8,
	"i4": dtypes.Int32,
	"u4": dtypes.Uint32,
	"i8": dtypes.Int64,
	"f2": dtypes.Float16,
	"f4": dtypes.Float32,
	"f8": dtypes.Float64,
}

func dtypeFromDescr(descr string) (dtypes.DType, error) {
	if strings.HasPrefix(descr, ">") {
		return dtypes.InvalidDType, errors.Errorf("big-endian .npy data type %q is not supported", descr)
	}
	dtype, found := descrToDType[strings.TrimLeft(descr, "<|=")]
	if !found {
		return dtypes.InvalidDType, errors.Errorf("unsupported .npy data type %q", descr)
	}
	return dtype, nil
}

func descrFromDType(dtype dtypes.DType) (string, error) {
	for descr, candidate := range descrToDType {
		if candidate == dtype {
			if dtype.Memory() == 1 {
				return "|" + descr, nil
			}
			return "<" + descr, nil
		}
	}
	return "", errors.Errorf("data type %s can't be written to .npy", dtype)
}

// WriteNpy writes the array in .npy (version 1.0) format to w.
func WriteNpy(w io.Writer, array *Array) error {
	shape := array.Shape
	if len(array.Data) != int(shape.Memory()) {
		return errors.Errorf("array %s requires %d bytes, got %d", shape, shape.Memory(), len(array.Data))
	}
	descr, err := descrFromDType(shape.DType)
	if err != nil {
		return err
	}
	dims := make([]string, shape.Rank())
	for ii, dim := range shape.Dimensions {
		dims[ii] = strconv.Itoa(dim)
	}
	shapeTuple := "(" + strings.Join(dims, ", ") + ")"
	if shape.Rank() == 1 {
		shapeTuple = fmt.Sprintf("(%d,)", shape.Dimensions[0])
	}
	var header bytes.Buffer
	header.WriteString(npyMagic)
	header.Write([]byte{1, 0, 0, 0}) // Version 1.0 and space for the header length.
	_, _ = fmt.Fprintf(&header, "{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeTuple)
	// The data must start at a multiple of 64 bytes, and the header ends with a newline.
	for (header.Len()+1)%64 != 0 {
		header.WriteByte(' ')
	}
	header.WriteByte('\n')
	headerBytes := header.Bytes()
	binary.LittleEndian.PutUint16(headerBytes[len(npyMagic)+2:], uint16(len(headerBytes)-len(npyMagic)-4))
	if _, err = w.Write(headerBytes); err != nil {
		return errors.Wrapf(err, "failed to write .npy header")
	}
	if _, err = w.Write(array.Data); err != nil {
		return errors.Wrapf(err, "failed to write .npy data")
	}
	return nil
}

// WriteNpyFile writes the array to a .npy file.
func WriteNpyFile(filePath string, array *Array) error {
	filePath, err := fsutil.ExpandHome(filePath)
	if err != nil {
		return err
	}
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npy file %q", filePath)
	}
	if err = WriteNpy(file, array); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "failed to close .npy file %q", filePath)
}

// FromNpzFile reads all the arrays of a .npz file (a zip of .npy files), by name.
func FromNpzFile(filePath string) (map[string]*Array, error) {
	filePath, err := fsutil.ExpandHome(filePath)
	if err != nil {
		return nil, err
	}
	reader, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npz file %q", filePath)
	}
	defer func() { _ = reader.Close() }()
	return fromZip(&reader.Reader)
}

// FromNpzReader reads all the arrays of a .npz archive of the given size, by name.
func FromNpzReader(r io.ReaderAt, size int64) (map[string]*Array, error) {
	reader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read .npz archive")
	}
	return fromZip(reader)
}

func fromZip(reader *zip.Reader) (map[string]*Array, error) {
	arrays := make(map[string]*Array)
	for _, f := range reader.File {
		name := path.Clean(f.Name)
		if path.IsAbs(name) || strings.HasPrefix(name, "..") {
			return nil, errors.Errorf("invalid path %q in .npz archive", f.Name)
		}
		if !strings.HasSuffix(name, ".npy") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %q in .npz archive", f.Name)
		}
		array, err := FromNpyReader(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.WithMessagef(err, "array %q of .npz archive", f.Name)
		}
		arrays[strings.TrimSuffix(name, ".npy")] = array
	}
	return arrays, nil
}

// WriteNpz writes the arrays as a .npz archive to w.
func WriteNpz(w io.Writer, arrays map[string]*Array) error {
	zipWriter := zip.NewWriter(w)
	for name, array := range arrays {
		fileWriter, err := zipWriter.Create(name + ".npy")
		if err != nil {
			return errors.Wrapf(err, "failed to create %q in .npz archive", name)
		}
		if err = WriteNpy(fileWriter, array); err != nil {
			return errors.WithMessagef(err, "array %q of .npz archive", name)
		}
	}
	return errors.Wrap(zipWriter.Close(), "failed to close .npz archive")
}
