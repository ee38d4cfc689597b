package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/born-ml/dnn/tensor"
)

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	if header != nil {
		table.SetHeader(header)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
	}
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(rows)
	table.Render()
}

// formatDims renders declared dimensions, showing dynamic ones as "?".
func formatDims(dims []int) string {
	if dims == nil {
		return "unknown"
	}
	parts := make([]string, len(dims))
	for i, d := range dims {
		if d < 0 {
			parts[i] = "?"
		} else {
			parts[i] = strconv.Itoa(d)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func metadataRows(md map[string]string) [][]string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, md[k]}
	}
	return rows
}

// tensorRows lays a tensor out one row per slice along its last axis.
func tensorRows(t *tensor.Tensor) ([][]string, error) {
	cells, err := formatValues(t)
	if err != nil {
		return nil, err
	}
	width := 1
	if shape := t.Shape(); len(shape) > 0 && shape[len(shape)-1] > 0 {
		width = shape[len(shape)-1]
	}
	var rows [][]string
	for i := 0; i < len(cells); i += width {
		row := []string{strconv.Itoa(i / width)}
		rows = append(rows, append(row, cells[i:min(i+width, len(cells))]...))
	}
	return rows, nil
}

func formatValues(t *tensor.Tensor) ([]string, error) {
	switch t.DType() {
	case tensor.Float32:
		return format[float32](t)
	case tensor.Float64:
		return format[float64](t)
	case tensor.Int32:
		return format[int32](t)
	case tensor.Int64:
		return format[int64](t)
	case tensor.Uint8:
		return format[uint8](t)
	case tensor.Bool:
		return format[bool](t)
	default:
		return nil, errors.Errorf("cannot format %s tensor", t)
	}
}

func format[T tensor.Element](t *tensor.Tensor) ([]string, error) {
	values, err := tensor.Values[T](t)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return out, nil
}

// tensorJSON is the machine-readable form of an output tensor.
type tensorJSON struct {
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Values any    `json:"values"`
}

func toJSON(t *tensor.Tensor) (tensorJSON, error) {
	out := tensorJSON{DType: t.DType().String(), Shape: t.Shape()}
	if out.Shape == nil {
		out.Shape = []int{}
	}
	var err error
	switch t.DType() {
	case tensor.Float32:
		out.Values, err = tensor.Values[float32](t)
	case tensor.Float64:
		out.Values, err = tensor.Values[float64](t)
	case tensor.Int32:
		out.Values, err = tensor.Values[int32](t)
	case tensor.Int64:
		out.Values, err = tensor.Values[int64](t)
	case tensor.Uint8:
		var v []uint8
		v, err = tensor.Values[uint8](t)
		ints := make([]int, len(v))
		for i, b := range v {
			ints[i] = int(b)
		}
		out.Values = ints
	case tensor.Bool:
		out.Values, err = tensor.Values[bool](t)
	default:
		err = errors.Errorf("cannot encode %s tensor", t)
	}
	return out, err
}
