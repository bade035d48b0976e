//go:build !noarrow

package goboreal

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/apache/arrow/go/v16/arrow/ipc"
	"github.com/apache/arrow/go/v16/arrow/memory"
)

// arrowDecoder is the columnar row decoder. The wire format is Arrow IPC:
// each chunk is a self-describing stream of record batches that decodes
// column-by-column into typed arrays, from which row-major access is
// synthesized.
type arrowDecoder struct {
	pool memory.Allocator
}

func init() {
	registerColumnarDecoder(&arrowDecoder{pool: memory.DefaultAllocator})
}

func (ad *arrowDecoder) decodeInline(rowSetBase64 string, rowType []execResponseRowType, dc *decodeContext) ([]Row, []error, error) {
	rowSetBytes, err := base64.StdEncoding.DecodeString(rowSetBase64)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding inline row set: %w", err)
	}
	return ad.decodeChunk(bytes.NewReader(rowSetBytes), rowType, dc)
}

func (ad *arrowDecoder) decodeChunk(r io.Reader, rowType []execResponseRowType, dc *decodeContext) ([]Row, []error, error) {
	rr, err := ipc.NewReader(r, ipc.WithAllocator(ad.pool))
	if err != nil {
		return nil, nil, fmt.Errorf("creating ipc reader: %w", err)
	}
	defer rr.Release()

	var rows []Row
	var rowErrs []error
	for {
		record, err := rr.Read()
		if err == io.EOF {
			return rows, rowErrs, nil
		} else if err != nil {
			return nil, nil, fmt.Errorf("reading record batch: %w", err)
		}

		start := len(rows)
		numRows := int(record.NumRows())
		columns := record.Columns()
		for i := 0; i < numRows; i++ {
			rows = append(rows, make(Row, len(columns)))
			rowErrs = append(rowErrs, nil)
		}

		for colIdx, col := range columns {
			values := make([]interface{}, numRows)
			cellErrs := make([]error, numRows)
			if err = arrowToValue(values, cellErrs, rowType[colIdx], col, dc); err != nil {
				// a structural mismatch poisons this record's rows only;
				// rows decoded from other record batches stay intact
				for i := 0; i < numRows; i++ {
					if rowErrs[start+i] == nil {
						rowErrs[start+i] = err
					}
				}
				continue
			}
			for i := 0; i < numRows; i++ {
				rows[start+i][colIdx] = values[i]
				if cellErrs[i] != nil && rowErrs[start+i] == nil {
					rowErrs[start+i] = cellErrs[i]
				}
			}
		}
	}
}

// arrowToValue converts one typed column into host values. Per-cell failures
// (e.g. a timestamp outside the representable calendar range) land in
// cellErrs so they surface at the row pull that exposes them; the returned
// error is reserved for structural mismatches between the column and its
// metadata.
func arrowToValue(destcol []interface{}, cellErrs []error, srcColumnMeta execResponseRowType, srcValue arrow.Array, dc *decodeContext) error {
	if len(destcol) != srcValue.Len() {
		return fmt.Errorf("column %v: array length mismatch: %v != %v",
			srcColumnMeta.Name, len(destcol), srcValue.Len())
	}
	loc := time.UTC
	higherPrecision := false
	if dc != nil {
		if dc.loc != nil {
			loc = dc.loc
		}
		higherPrecision = dc.higherPrecision
	}

	switch strings.ToUpper(srcColumnMeta.Type) {
	case "FIXED":
		return arrowFixedToValue(destcol, srcColumnMeta, srcValue, higherPrecision)
	case "BOOLEAN":
		boolData, ok := srcValue.(*array.Boolean)
		if !ok {
			return arrowTypeMismatch(srcColumnMeta, srcValue)
		}
		for i := range destcol {
			if !srcValue.IsNull(i) {
				destcol[i] = boolData.Value(i)
			}
		}
	case "REAL", "FLOAT", "DOUBLE":
		floatData, ok := srcValue.(*array.Float64)
		if !ok {
			return arrowTypeMismatch(srcColumnMeta, srcValue)
		}
		for i := range destcol {
			if !srcValue.IsNull(i) {
				destcol[i] = floatData.Value(i)
			}
		}
	case "TEXT", "ARRAY", "VARIANT", "OBJECT", "GEOGRAPHY", "GEOMETRY":
		stringData, ok := srcValue.(*array.String)
		if !ok {
			return arrowTypeMismatch(srcColumnMeta, srcValue)
		}
		for i := range destcol {
			if !srcValue.IsNull(i) {
				destcol[i] = stringData.Value(i)
			}
		}
	case "BINARY":
		binaryData, ok := srcValue.(*array.Binary)
		if !ok {
			return arrowTypeMismatch(srcColumnMeta, srcValue)
		}
		for i := range destcol {
			if !srcValue.IsNull(i) {
				destcol[i] = binaryData.Value(i)
			}
		}
	case "DATE":
		dateData, ok := srcValue.(*array.Date32)
		if !ok {
			return arrowTypeMismatch(srcColumnMeta, srcValue)
		}
		for i := range destcol {
			if !srcValue.IsNull(i) {
				t0 := time.Unix(int64(dateData.Value(i))*86400, 0).UTC()
				destcol[i], cellErrs[i] = checkCalendarRange(t0)
			}
		}
	case "TIME":
		return arrowTimeToValue(destcol, srcColumnMeta, srcValue)
	case "TIMESTAMP_NTZ":
		return arrowTimestampToValue(destcol, cellErrs, srcColumnMeta, srcValue, time.UTC, false)
	case "TIMESTAMP_LTZ":
		return arrowTimestampToValue(destcol, cellErrs, srcColumnMeta, srcValue, loc, false)
	case "TIMESTAMP_TZ":
		return arrowTimestampToValue(destcol, cellErrs, srcColumnMeta, srcValue, nil, true)
	case "VECTOR":
		return arrowVectorToValue(destcol, srcColumnMeta, srcValue)
	default:
		return fmt.Errorf("unsupported data type: %v", srcColumnMeta.Type)
	}
	return nil
}

func arrowTypeMismatch(meta execResponseRowType, col arrow.Array) error {
	return fmt.Errorf("column %v: unexpected arrow type %v for %v data",
		meta.Name, col.DataType(), meta.Type)
}

func arrowFixedToValue(destcol []interface{}, meta execResponseRowType, srcValue arrow.Array, higherPrecision bool) error {
	scale := int(meta.Scale)
	putInt := func(i int, v int64) {
		if scale == 0 {
			if higherPrecision {
				destcol[i] = big.NewInt(v)
			} else {
				destcol[i] = v
			}
		} else {
			if higherPrecision {
				f := new(big.Float).SetInt64(v)
				destcol[i] = f.Quo(f, big.NewFloat(math.Pow10(scale)))
			} else {
				destcol[i] = float64(v) / math.Pow10(scale)
			}
		}
	}
	switch col := srcValue.(type) {
	case *array.Decimal128:
		for i := range destcol {
			if srcValue.IsNull(i) {
				continue
			}
			num := col.Value(i)
			if scale == 0 {
				if higherPrecision {
					destcol[i] = num.BigInt()
				} else {
					destcol[i] = num.BigInt().Int64()
				}
			} else {
				if higherPrecision {
					f := new(big.Float).SetInt(num.BigInt())
					destcol[i] = f.Quo(f, big.NewFloat(math.Pow10(scale)))
				} else {
					destcol[i] = num.ToFloat64(int32(scale))
				}
			}
		}
	case *array.Int64:
		for i := range destcol {
			if !srcValue.IsNull(i) {
				putInt(i, col.Value(i))
			}
		}
	case *array.Int32:
		for i := range destcol {
			if !srcValue.IsNull(i) {
				putInt(i, int64(col.Value(i)))
			}
		}
	case *array.Int16:
		for i := range destcol {
			if !srcValue.IsNull(i) {
				putInt(i, int64(col.Value(i)))
			}
		}
	case *array.Int8:
		for i := range destcol {
			if !srcValue.IsNull(i) {
				putInt(i, int64(col.Value(i)))
			}
		}
	default:
		return arrowTypeMismatch(meta, srcValue)
	}
	return nil
}

func arrowTimeToValue(destcol []interface{}, meta execResponseRowType, srcValue arrow.Array) error {
	t0 := time.Time{}
	switch col := srcValue.(type) {
	case *array.Int64:
		for i := range destcol {
			if !srcValue.IsNull(i) {
				destcol[i] = t0.Add(time.Duration(col.Value(i)))
			}
		}
	case *array.Int32:
		for i := range destcol {
			if !srcValue.IsNull(i) {
				destcol[i] = t0.Add(time.Duration(int64(col.Value(i)) * int64(math.Pow10(9-int(meta.Scale)))))
			}
		}
	default:
		return arrowTypeMismatch(meta, srcValue)
	}
	return nil
}

// arrowTimestampToValue decodes the three timestamp variants. Values arrive
// either as a plain int64 epoch scaled by the column's scale or as a struct
// of (epoch, fraction[, timezone]); TIMESTAMP_TZ always carries the per-value
// timezone offset in minutes biased by 1440.
func arrowTimestampToValue(destcol []interface{}, cellErrs []error, meta execResponseRowType, srcValue arrow.Array, loc *time.Location, withTz bool) error {
	switch col := srcValue.(type) {
	case *array.Struct:
		epochCol, ok := col.Field(0).(*array.Int64)
		if !ok {
			return arrowTypeMismatch(meta, srcValue)
		}
		var fractionCol, tzCol *array.Int32
		switch col.NumField() {
		case 2:
			second, ok := col.Field(1).(*array.Int32)
			if !ok {
				return arrowTypeMismatch(meta, srcValue)
			}
			if withTz {
				tzCol = second
			} else {
				fractionCol = second
			}
		case 3:
			fractionCol, ok = col.Field(1).(*array.Int32)
			if !ok {
				return arrowTypeMismatch(meta, srcValue)
			}
			tzCol, ok = col.Field(2).(*array.Int32)
			if !ok {
				return arrowTypeMismatch(meta, srcValue)
			}
		default:
			return arrowTypeMismatch(meta, srcValue)
		}
		for i := range destcol {
			if srcValue.IsNull(i) {
				continue
			}
			var nsec int64
			if fractionCol != nil {
				nsec = int64(fractionCol.Value(i))
			}
			tt := time.Unix(epochCol.Value(i), nsec)
			if withTz {
				tt = tt.In(Location(int(tzCol.Value(i)) - 1440))
			} else {
				tt = tt.In(loc)
			}
			destcol[i], cellErrs[i] = checkCalendarRange(tt)
		}
	case *array.Int64:
		if withTz {
			return arrowTypeMismatch(meta, srcValue)
		}
		for i := range destcol {
			if srcValue.IsNull(i) {
				continue
			}
			v := col.Value(i)
			q := v / int64(math.Pow10(int(meta.Scale)))
			r := v % int64(math.Pow10(int(meta.Scale)))
			nsec := r * int64(math.Pow10(9-int(meta.Scale)))
			destcol[i], cellErrs[i] = checkCalendarRange(time.Unix(q, nsec).In(loc))
		}
	default:
		return arrowTypeMismatch(meta, srcValue)
	}
	return nil
}

// arrowVectorToValue decodes VECTOR columns, delivered as fixed-size lists of
// a numeric element type, into typed numeric slices.
func arrowVectorToValue(destcol []interface{}, meta execResponseRowType, srcValue arrow.Array) error {
	listData, ok := srcValue.(*array.FixedSizeList)
	if !ok {
		return arrowTypeMismatch(meta, srcValue)
	}
	listType, ok := listData.DataType().(*arrow.FixedSizeListType)
	if !ok {
		return arrowTypeMismatch(meta, srcValue)
	}
	n := int(listType.Len())
	switch values := listData.ListValues().(type) {
	case *array.Int32:
		for i := range destcol {
			if srcValue.IsNull(i) {
				continue
			}
			vec := make([]int64, n)
			for j := 0; j < n; j++ {
				vec[j] = int64(values.Value(i*n + j))
			}
			destcol[i] = vec
		}
	case *array.Int64:
		for i := range destcol {
			if srcValue.IsNull(i) {
				continue
			}
			vec := make([]int64, n)
			for j := 0; j < n; j++ {
				vec[j] = values.Value(i*n + j)
			}
			destcol[i] = vec
		}
	case *array.Float32:
		for i := range destcol {
			if srcValue.IsNull(i) {
				continue
			}
			vec := make([]float64, n)
			for j := 0; j < n; j++ {
				vec[j] = float64(values.Value(i*n + j))
			}
			destcol[i] = vec
		}
	case *array.Float64:
		for i := range destcol {
			if srcValue.IsNull(i) {
				continue
			}
			vec := make([]float64, n)
			for j := 0; j < n; j++ {
				vec[j] = values.Value(i*n + j)
			}
			destcol[i] = vec
		}
	default:
		return arrowTypeMismatch(meta, srcValue)
	}
	return nil
}
