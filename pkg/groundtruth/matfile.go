package groundtruth

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// MATLAB level 5 data element types
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
)

// MATLAB array classes
const (
	mxCELL   = 1
	mxSTRUCT = 2
	mxCHAR   = 4
	mxDOUBLE = 6
	mxUINT64 = 15
)

const matHeaderSize = 128

// matReader decodes the subset of the MAT 5 format annotation files use:
// numeric arrays, cells, structs and char arrays, optionally zlib
// compressed. Values come out in the same shapes a YAML decoder produces:
// matrices as nested []interface{} rows of float64, cells as flat
// []interface{}, structs as []interface{} of map[string]interface{}.
type matReader struct {
	order binary.ByteOrder
}

func decodeMAT(data []byte) (map[string]interface{}, error) {
	if len(data) < matHeaderSize {
		return nil, errors.New("file shorter than a MAT header")
	}
	var r matReader
	switch string(data[126:128]) {
	case "IM":
		r.order = binary.LittleEndian
	case "MI":
		r.order = binary.BigEndian
	default:
		return nil, errors.New("not a MAT level 5 file")
	}

	vars := map[string]interface{}{}
	if err := r.variables(data[matHeaderSize:], vars); err != nil {
		return nil, err
	}
	return vars, nil
}

func (r matReader) variables(buf []byte, vars map[string]interface{}) error {
	for len(buf) > 0 {
		typ, body, rest, err := r.element(buf)
		if err != nil {
			return err
		}
		buf = rest
		switch typ {
		case miCOMPRESSED:
			inflated, err := inflate(body)
			if err != nil {
				return err
			}
			if err := r.variables(inflated, vars); err != nil {
				return err
			}
		case miMATRIX:
			name, val, err := r.matrix(body)
			if err != nil {
				return errors.Wrapf(err, "variable %q", name)
			}
			vars[name] = val
		}
	}
	return nil
}

func inflate(body []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "compressed element")
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "compressed element")
	}
	return out, nil
}

// element splits one tagged data element off buf
func (r matReader) element(buf []byte) (typ uint32, body, rest []byte, err error) {
	if len(buf) < 8 {
		return 0, nil, nil, errors.New("truncated element tag")
	}
	first := r.order.Uint32(buf[0:4])
	if first>>16 != 0 {
		// small data element: size and type share the first word
		size := int(first >> 16)
		if size > 4 {
			return 0, nil, nil, errors.Errorf("small element of %d bytes", size)
		}
		return first & 0xffff, buf[4 : 4+size], buf[8:], nil
	}

	size := int(r.order.Uint32(buf[4:8]))
	if size < 0 || 8+size > len(buf) {
		return 0, nil, nil, errors.Errorf("element of %d bytes overruns file", size)
	}
	next := 8 + size
	if first != miCOMPRESSED {
		next = 8 + (size+7)/8*8
	}
	if next > len(buf) {
		next = len(buf)
	}
	return first, buf[8 : 8+size], buf[next:], nil
}

func (r matReader) matrix(body []byte) (string, interface{}, error) {
	if len(body) == 0 {
		// empty cell contents or struct fields
		return "", []interface{}{}, nil
	}
	_, flags, rest, err := r.element(body)
	if err != nil {
		return "", nil, err
	}
	if len(flags) < 4 {
		return "", nil, errors.New("short array flags")
	}
	class := r.order.Uint32(flags[0:4]) & 0xff

	typ, dimsRaw, rest, err := r.element(rest)
	if err != nil {
		return "", nil, err
	}
	dimsF, err := r.numbers(typ, dimsRaw)
	if err != nil {
		return "", nil, err
	}
	dims, n, err := elementCount(dimsF, len(body))
	if err != nil {
		return "", nil, err
	}

	_, nameRaw, rest, err := r.element(rest)
	if err != nil {
		return "", nil, err
	}
	name := string(nameRaw)

	switch {
	case class == mxCELL:
		cells := make([]interface{}, 0, n)
		for i := 0; i < n; i++ {
			var cell []byte
			typ, cell, rest, err = r.element(rest)
			if err != nil {
				return name, nil, err
			}
			if typ != miMATRIX {
				return name, nil, errors.Errorf("cell element of type %d", typ)
			}
			_, v, err := r.matrix(cell)
			if err != nil {
				return name, nil, err
			}
			cells = append(cells, v)
		}
		return name, cells, nil

	case class == mxSTRUCT:
		typ, lenRaw, rest, err := r.element(rest)
		if err != nil {
			return name, nil, err
		}
		fl, err := r.numbers(typ, lenRaw)
		if err != nil || len(fl) != 1 || fl[0] <= 0 {
			return name, nil, errors.New("bad struct field name length")
		}
		fieldLen := int(fl[0])
		_, namesRaw, rest, err := r.element(rest)
		if err != nil {
			return name, nil, err
		}
		fields := make([]string, len(namesRaw)/fieldLen)
		for i := range fields {
			fields[i] = strings.TrimRight(string(namesRaw[i*fieldLen:(i+1)*fieldLen]), "\x00")
		}
		if len(fields) == 0 {
			return name, []interface{}{}, nil
		}
		records := make([]interface{}, 0, n)
		for i := 0; i < n; i++ {
			rec := make(map[string]interface{}, len(fields))
			for _, f := range fields {
				var fb []byte
				typ, fb, rest, err = r.element(rest)
				if err != nil {
					return name, nil, err
				}
				if typ != miMATRIX {
					return name, nil, errors.Errorf("field %s of type %d", f, typ)
				}
				_, v, err := r.matrix(fb)
				if err != nil {
					return name, nil, errors.Wrapf(err, "field %s", f)
				}
				rec[f] = v
			}
			records = append(records, rec)
		}
		return name, records, nil

	case class == mxCHAR:
		_, raw, _, err := r.element(rest)
		if err != nil {
			return name, nil, err
		}
		return name, string(bytes.Trim(raw, "\x00")), nil

	case class >= mxDOUBLE && class <= mxUINT64:
		typ, raw, _, err := r.element(rest)
		if err != nil {
			return name, nil, err
		}
		vals, err := r.numbers(typ, raw)
		if err != nil {
			return name, nil, err
		}
		if len(vals) != n {
			return name, nil, errors.Errorf("%d values for dimensions %v", len(vals), dims)
		}
		v, err := shapeColumnMajor(dims, vals)
		return name, v, err
	}

	// sparse matrices, objects and function handles never carry points
	return name, nil, nil
}

// numbers widens a numeric element to float64
func (r matReader) numbers(typ uint32, raw []byte) ([]float64, error) {
	var width int
	switch typ {
	case miINT8, miUINT8:
		width = 1
	case miINT16, miUINT16:
		width = 2
	case miINT32, miUINT32, miSINGLE:
		width = 4
	case miDOUBLE, miINT64, miUINT64:
		width = 8
	default:
		return nil, errors.Errorf("unsupported numeric type %d", typ)
	}
	out := make([]float64, len(raw)/width)
	for i := range out {
		b := raw[i*width : (i+1)*width]
		switch typ {
		case miINT8:
			out[i] = float64(int8(b[0]))
		case miUINT8:
			out[i] = float64(b[0])
		case miINT16:
			out[i] = float64(int16(r.order.Uint16(b)))
		case miUINT16:
			out[i] = float64(r.order.Uint16(b))
		case miINT32:
			out[i] = float64(int32(r.order.Uint32(b)))
		case miUINT32:
			out[i] = float64(r.order.Uint32(b))
		case miSINGLE:
			out[i] = float64(math.Float32frombits(r.order.Uint32(b)))
		case miDOUBLE:
			out[i] = math.Float64frombits(r.order.Uint64(b))
		case miINT64:
			out[i] = float64(int64(r.order.Uint64(b)))
		case miUINT64:
			out[i] = float64(r.order.Uint64(b))
		}
	}
	return out, nil
}

// elementCount validates array dimensions and returns them with their
// product. No dimension and no product may exceed limit, the byte size of the
// array element, since every value or child element takes at least one byte.
func elementCount(dimsF []float64, limit int) ([]int, int, error) {
	if len(dimsF) < 2 {
		return nil, 0, errors.Errorf("array with %d dimensions", len(dimsF))
	}
	dims := make([]int, len(dimsF))
	n := 1
	for i, d := range dimsF {
		if d < 0 || d != math.Trunc(d) || d > float64(limit) {
			return nil, 0, errors.Errorf("invalid dimensions %v", dimsF)
		}
		dims[i] = int(d)
		if dims[i] != 0 && n > limit/dims[i] {
			return nil, 0, errors.Errorf("dimensions %v exceed element size %d", dimsF, limit)
		}
		n *= dims[i]
	}
	return dims, n, nil
}

// shapeColumnMajor turns MATLAB column-major storage into nested rows
func shapeColumnMajor(dims []int, vals []float64) (interface{}, error) {
	n := 1
	for _, d := range dims {
		if d < 0 {
			return nil, errors.Errorf("negative dimension in %v", dims)
		}
		n *= d
	}
	if n != len(vals) {
		return nil, errors.Errorf("%d values for dimensions %v", len(vals), dims)
	}
	switch len(dims) {
	case 2:
		rows := make([]interface{}, dims[0])
		for i := range rows {
			row := make([]interface{}, dims[1])
			for j := range row {
				row[j] = vals[i+dims[0]*j]
			}
			rows[i] = row
		}
		return rows, nil
	case 3:
		out := make([]interface{}, dims[0])
		for i := range out {
			plane := make([]interface{}, dims[1])
			for j := range plane {
				row := make([]interface{}, dims[2])
				for k := range row {
					row[k] = vals[i+dims[0]*(j+dims[1]*k)]
				}
				plane[j] = row
			}
			out[i] = plane
		}
		return out, nil
	}
	return nil, errors.Errorf("%d-dimensional arrays are not supported", len(dims))
}
