package goboreal

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Row is one decoded result row, cells in SELECT-list order. A cell is nil
// when the column value is SQL NULL.
type Row []interface{}

// decodeContext carries the session-level settings the codec needs: the
// session timezone used to normalize TIMESTAMP_LTZ values and the
// higher-precision flag controlling FIXED decoding.
type decodeContext struct {
	loc             *time.Location
	higherPrecision bool
}

const (
	// timestamps outside this calendar range are not representable in the
	// text wire format and fail decode as a Data-class condition
	minCalendarYear = 1
	maxCalendarYear = 9999
)

// goTypeToBoreal translates a Go bind value to the wire type name used in the
// bindings map.
func goTypeToBoreal(v interface{}, tsmode string) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "FIXED"
	case float32, float64:
		return "REAL"
	case bool:
		return "BOOLEAN"
	case string:
		return "TEXT"
	case []byte:
		return "BINARY"
	case time.Time:
		if tsmode == "" {
			return "TIMESTAMP_NTZ"
		}
		return tsmode
	}
	if tsmode != "" {
		return tsmode
	}
	return "TEXT"
}

// valueToString converts a bind value to its server-side wire representation.
// This is used for the qmark/numeric binding path where values travel in the
// request's bindings map: dates as epoch days in milliseconds, times as
// nanoseconds of day, timestamps as epoch nanoseconds, TIMESTAMP_TZ with the
// offset appended. nil is returned for a NULL bind.
func valueToString(v interface{}, tsmode string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	if tv, ok := v.(TypedValue); ok {
		mode, err := dataTypeMode(tv.Type)
		if err != nil {
			return nil, err
		}
		return valueToString(tv.Value, mode)
	}
	v1 := reflect.ValueOf(v)
	switch v1.Kind() {
	case reflect.Bool:
		s := strconv.FormatBool(v1.Bool())
		return &s, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		s := strconv.FormatInt(v1.Int(), 10)
		return &s, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		s := strconv.FormatUint(v1.Uint(), 10)
		return &s, nil
	case reflect.Float32, reflect.Float64:
		s := strconv.FormatFloat(v1.Float(), 'g', -1, 64)
		return &s, nil
	case reflect.String:
		s := v1.String()
		return &s, nil
	case reflect.Slice:
		if bd, ok := v.([]byte); ok {
			if bd == nil {
				return nil, nil
			}
			s := hex.EncodeToString(bd)
			return &s, nil
		}
	case reflect.Struct:
		if tm, ok := v.(time.Time); ok {
			switch tsmode {
			case "DATE":
				_, offset := tm.Zone()
				tm = tm.Add(time.Second * time.Duration(offset))
				s := strconv.FormatInt(tm.Unix()*1000, 10)
				return &s, nil
			case "TIME":
				s := fmt.Sprintf("%d",
					(tm.Hour()*3600+tm.Minute()*60+tm.Second())*1e9+tm.Nanosecond())
				return &s, nil
			case "TIMESTAMP_NTZ", "TIMESTAMP_LTZ", "":
				s := strconv.FormatInt(tm.UnixNano(), 10)
				return &s, nil
			case "TIMESTAMP_TZ":
				_, offset := tm.Zone()
				s := fmt.Sprintf("%v %v", tm.UnixNano(), offset/60+1440)
				return &s, nil
			}
		}
	}
	return nil, &BorealError{
		Number:      ErrUnsupportedBindType,
		Class:       ClassProgramming,
		Message:     errMsgUnsupportedBindType,
		MessageArgs: []interface{}{v},
	}
}

// valueToLiteral converts a bind value to a SQL literal for client-side
// placeholder substitution (the pyformat path). Values that cannot be
// expressed as a literal, such as nested containers, fail with a
// Programming-class condition rather than being silently stringified.
func valueToLiteral(v interface{}, tsmode string) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	if tv, ok := v.(TypedValue); ok {
		mode, err := dataTypeMode(tv.Type)
		if err != nil {
			return "", err
		}
		return valueToLiteral(tv.Value, mode)
	}
	switch s := v.(type) {
	case bool:
		if s {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.FormatInt(int64(s), 10), nil
	case int8:
		return strconv.FormatInt(int64(s), 10), nil
	case int16:
		return strconv.FormatInt(int64(s), 10), nil
	case int32:
		return strconv.FormatInt(int64(s), 10), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case uint:
		return strconv.FormatUint(uint64(s), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(s), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(s), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(s), 10), nil
	case uint64:
		return strconv.FormatUint(s, 10), nil
	case float32:
		return floatToLiteral(float64(s)), nil
	case float64:
		return floatToLiteral(s), nil
	case string:
		return quoteString(s), nil
	case []byte:
		if s == nil {
			return "NULL", nil
		}
		return fmt.Sprintf("TO_BINARY('%s')", hex.EncodeToString(s)), nil
	case time.Time:
		return timeToLiteral(s, tsmode), nil
	case *big.Int:
		return s.String(), nil
	case *big.Float:
		return s.Text('g', -1), nil
	}
	return "", &BorealError{
		Number:      ErrUnsupportedBindType,
		Class:       ClassProgramming,
		Message:     errMsgUnsupportedBindType,
		MessageArgs: []interface{}{v},
	}
}

func floatToLiteral(f float64) string {
	switch {
	case math.IsNaN(f):
		return "'NaN'::FLOAT"
	case math.IsInf(f, 1):
		return "'Inf'::FLOAT"
	case math.IsInf(f, -1):
		return "'-Inf'::FLOAT"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func timeToLiteral(tm time.Time, tsmode string) string {
	switch tsmode {
	case "DATE":
		return fmt.Sprintf("'%s'::DATE", tm.Format("2006-01-02"))
	case "TIME":
		return fmt.Sprintf("'%s'::TIME", tm.Format("15:04:05.000000000"))
	case "TIMESTAMP_LTZ":
		return fmt.Sprintf("'%s'::TIMESTAMP_LTZ", tm.Format("2006-01-02 15:04:05.000000000"))
	case "TIMESTAMP_TZ":
		return fmt.Sprintf("'%s'::TIMESTAMP_TZ", tm.Format("2006-01-02 15:04:05.000000000 -0700"))
	}
	return fmt.Sprintf("'%s'::TIMESTAMP_NTZ", tm.Format("2006-01-02 15:04:05.000000000"))
}

// quoteString escapes and quotes a string for inline literal substitution.
func quoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("''")
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0:
			b.WriteString(`\0`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// extractTimestamp extracts the internal timestamp data to epoch time in
// seconds and nanoseconds.
func extractTimestamp(srcValue *string) (sec int64, nsec int64, err error) {
	var i int
	for i = 0; i < len(*srcValue); i++ {
		if (*srcValue)[i] == '.' {
			sec, err = strconv.ParseInt((*srcValue)[0:i], 10, 64)
			if err != nil {
				return 0, 0, err
			}
			break
		}
	}
	if i == len(*srcValue) {
		// no fraction
		sec, err = strconv.ParseInt(*srcValue, 10, 64)
		if err != nil {
			return 0, 0, err
		}
		nsec = 0
	} else {
		s := (*srcValue)[i+1:]
		if len(s) > 9 {
			// nanosecond precision is the wire maximum; a longer fraction is
			// malformed data, not a host limitation
			return 0, 0, &BorealError{
				Number:      ErrValueOutOfRange,
				Class:       ClassData,
				SQLState:    SQLStateInvalidDataTimeFormat,
				Message:     "invalid timestamp fraction: %v",
				MessageArgs: []interface{}{s},
			}
		}
		nsec, err = strconv.ParseInt(s+strings.Repeat("0", 9-len(s)), 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if sec < 0 {
			nsec = -nsec
		}
	}
	return sec, nsec, nil
}

// checkCalendarRange fails with a Data-class condition when t falls outside
// the representable calendar range of the text wire format.
func checkCalendarRange(t time.Time) (time.Time, error) {
	if y := t.Year(); y < minCalendarYear || y > maxCalendarYear {
		return time.Time{}, &BorealError{
			Number:      ErrValueOutOfRange,
			Class:       ClassData,
			SQLState:    SQLStateNumericValueOutOfRange,
			Message:     "timestamp out of representable range. year: %v",
			MessageArgs: []interface{}{y},
		}
	}
	return t, nil
}

// stringToValue converts one text-format cell to a host value using the
// column metadata and the session decode context. This is the JSON row
// decoder's per-cell codec; it is pure given (cell, metadata, context).
func stringToValue(srcColumnMeta execResponseRowType, srcValue *string, dc *decodeContext) (interface{}, error) {
	if srcValue == nil {
		return nil, nil
	}
	switch srcColumnMeta.Type {
	case "text", "variant", "object", "array", "geography", "geometry":
		return *srcValue, nil
	case "fixed":
		return decodeFixed(srcColumnMeta, *srcValue, dc)
	case "real", "float", "double":
		v, err := strconv.ParseFloat(*srcValue, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing REAL value: %w", err)
		}
		return v, nil
	case "boolean":
		switch strings.ToLower(*srcValue) {
		case "1", "true":
			return true, nil
		}
		return false, nil
	case "vector":
		return decodeVector(srcColumnMeta, *srcValue)
	case "date":
		v, err := strconv.ParseInt(*srcValue, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing DATE value: %w", err)
		}
		return checkCalendarRange(time.Unix(v*86400, 0).UTC())
	case "time":
		sec, nsec, err := extractTimestamp(srcValue)
		if err != nil {
			return nil, fmt.Errorf("parsing TIME value: %w", err)
		}
		t0 := time.Time{}
		return t0.Add(time.Duration(sec*1e9 + nsec)), nil
	case "timestamp_ntz":
		sec, nsec, err := extractTimestamp(srcValue)
		if err != nil {
			return nil, fmt.Errorf("parsing TIMESTAMP_NTZ value: %w", err)
		}
		return checkCalendarRange(time.Unix(sec, nsec).UTC())
	case "timestamp_ltz":
		sec, nsec, err := extractTimestamp(srcValue)
		if err != nil {
			return nil, fmt.Errorf("parsing TIMESTAMP_LTZ value: %w", err)
		}
		loc := time.UTC
		if dc != nil && dc.loc != nil {
			loc = dc.loc
		}
		return checkCalendarRange(time.Unix(sec, nsec).In(loc))
	case "timestamp_tz":
		tm := strings.Split(*srcValue, " ")
		if len(tm) != 2 {
			return nil, &BorealError{
				Number:   ErrInvalidTimestampTz,
				Class:    ClassData,
				SQLState: SQLStateInvalidDataTimeFormat,
				Message:  fmt.Sprintf("invalid TIMESTAMP_TZ data. The value doesn't consist of two numeric values separated by a space: %v", *srcValue),
			}
		}
		sec, nsec, err := extractTimestamp(&tm[0])
		if err != nil {
			return nil, fmt.Errorf("parsing TIMESTAMP_TZ value: %w", err)
		}
		offset, err := strconv.ParseInt(tm[1], 10, 64)
		if err != nil {
			return nil, &BorealError{
				Number:   ErrInvalidTimestampTz,
				Class:    ClassData,
				SQLState: SQLStateInvalidDataTimeFormat,
				Message:  fmt.Sprintf("invalid TIMESTAMP_TZ data. The offset value is not integer: %v", tm[1]),
			}
		}
		loc := Location(int(offset) - 1440)
		return checkCalendarRange(time.Unix(sec, nsec).In(loc))
	case "binary":
		b, err := hex.DecodeString(*srcValue)
		if err != nil {
			return nil, &BorealError{
				Number:   ErrInvalidBinaryHexForm,
				Class:    ClassData,
				SQLState: SQLStateNumericValueOutOfRange,
				Message:  err.Error(),
			}
		}
		return b, nil
	}
	return *srcValue, nil
}

// decodeFixed decodes a FIXED cell. Scale zero yields an exact integer,
// non-zero scale a fixed-point value: float64 by default, arbitrary
// precision when the session requests it.
func decodeFixed(meta execResponseRowType, src string, dc *decodeContext) (interface{}, error) {
	higherPrecision := dc != nil && dc.higherPrecision
	if meta.Scale == 0 {
		if higherPrecision {
			v, ok := new(big.Int).SetString(src, 10)
			if !ok {
				return nil, fixedOutOfRangeError(src)
			}
			return v, nil
		}
		v, err := strconv.ParseInt(src, 10, 64)
		if err != nil {
			return nil, fixedOutOfRangeError(src)
		}
		return v, nil
	}
	if higherPrecision {
		v, ok := new(big.Float).SetString(src)
		if !ok {
			return nil, fixedOutOfRangeError(src)
		}
		return v, nil
	}
	v, err := strconv.ParseFloat(src, 64)
	if err != nil {
		return nil, fixedOutOfRangeError(src)
	}
	return v, nil
}

func fixedOutOfRangeError(src string) error {
	return &BorealError{
		Number:      ErrValueOutOfRange,
		Class:       ClassData,
		SQLState:    SQLStateNumericValueOutOfRange,
		Message:     "cannot represent FIXED value: %v",
		MessageArgs: []interface{}{src},
	}
}

// decodeVector parses a VECTOR cell into a typed numeric sequence. The
// element type rides in the column's extended type name, e.g.
// VECTOR(INT,3) or VECTOR(FLOAT,5).
func decodeVector(meta execResponseRowType, src string) (interface{}, error) {
	elem := vectorElementType(meta.ExtType)
	switch elem {
	case "INT":
		var v []int64
		if err := json.Unmarshal([]byte(src), &v); err != nil {
			return nil, invalidVectorError(src, err)
		}
		return v, nil
	case "FLOAT":
		var v []float64
		if err := json.Unmarshal([]byte(src), &v); err != nil {
			return nil, invalidVectorError(src, err)
		}
		return v, nil
	}
	// non-numeric element type: hand back the raw JSON text
	return src, nil
}

func vectorElementType(extType string) string {
	open := strings.Index(extType, "(")
	if !strings.HasPrefix(strings.ToUpper(extType), "VECTOR") || open < 0 {
		return ""
	}
	inner := extType[open+1:]
	if comma := strings.Index(inner, ","); comma >= 0 {
		inner = inner[:comma]
	}
	return strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(inner, ")")))
}

func invalidVectorError(src string, err error) error {
	return &BorealError{
		Number:      ErrInvalidVector,
		Class:       ClassData,
		SQLState:    SQLStateNumericValueOutOfRange,
		Message:     "invalid VECTOR value %v: %v",
		MessageArgs: []interface{}{src, err},
	}
}
