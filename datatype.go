package goboreal

import (
	"bytes"
	"fmt"
)

const (
	fixedType byte = iota
	realType
	textType
	dateType
	variantType
	timestampLtzType
	timestampNtzType
	timestampTzType
	objectType
	arrayType
	binaryType
	timeType
	booleanType
	vectorType
	geographyType
	geometryType
)

var (
	// DataTypeFixed is a FIXED datatype.
	DataTypeFixed = []byte{fixedType}
	// DataTypeReal is a REAL datatype.
	DataTypeReal = []byte{realType}
	// DataTypeText is a TEXT datatype.
	DataTypeText = []byte{textType}
	// DataTypeDate is a DATE datatype.
	DataTypeDate = []byte{dateType}
	// DataTypeVariant is a VARIANT datatype.
	DataTypeVariant = []byte{variantType}
	// DataTypeTimestampLtz is a TIMESTAMP_LTZ datatype.
	DataTypeTimestampLtz = []byte{timestampLtzType}
	// DataTypeTimestampNtz is a TIMESTAMP_NTZ datatype.
	DataTypeTimestampNtz = []byte{timestampNtzType}
	// DataTypeTimestampTz is a TIMESTAMP_TZ datatype.
	DataTypeTimestampTz = []byte{timestampTzType}
	// DataTypeObject is an OBJECT datatype.
	DataTypeObject = []byte{objectType}
	// DataTypeArray is an ARRAY datatype.
	DataTypeArray = []byte{arrayType}
	// DataTypeBinary is a BINARY datatype.
	DataTypeBinary = []byte{binaryType}
	// DataTypeTime is a TIME datatype.
	DataTypeTime = []byte{timeType}
	// DataTypeBoolean is a BOOLEAN datatype.
	DataTypeBoolean = []byte{booleanType}
)

// TypedValue carries a bind value together with an explicit wire-type
// override, disambiguating host types that map to more than one SQL type
// (e.g. which timestamp variant a time.Time should bind as).
type TypedValue struct {
	Type  []byte
	Value interface{}
}

// dataTypeMode returns the wire type name for a one-byte datatype tag.
func dataTypeMode(v []byte) (tsmode string, err error) {
	switch {
	case bytes.Equal(v, DataTypeFixed):
		tsmode = "FIXED"
	case bytes.Equal(v, DataTypeReal):
		tsmode = "REAL"
	case bytes.Equal(v, DataTypeText):
		tsmode = "TEXT"
	case bytes.Equal(v, DataTypeDate):
		tsmode = "DATE"
	case bytes.Equal(v, DataTypeTime):
		tsmode = "TIME"
	case bytes.Equal(v, DataTypeVariant):
		tsmode = "VARIANT"
	case bytes.Equal(v, DataTypeTimestampLtz):
		tsmode = "TIMESTAMP_LTZ"
	case bytes.Equal(v, DataTypeTimestampNtz):
		tsmode = "TIMESTAMP_NTZ"
	case bytes.Equal(v, DataTypeTimestampTz):
		tsmode = "TIMESTAMP_TZ"
	case bytes.Equal(v, DataTypeArray):
		tsmode = "ARRAY"
	case bytes.Equal(v, DataTypeObject):
		tsmode = "OBJECT"
	case bytes.Equal(v, DataTypeBinary):
		tsmode = "BINARY"
	case bytes.Equal(v, DataTypeBoolean):
		tsmode = "BOOLEAN"
	default:
		return "", fmt.Errorf("invalid datatype tag: %v", v)
	}
	return tsmode, nil
}
