package goboreal

import "io"

// ClientCategory identifies the kind of client consuming results. Thin
// SQL-shell style clients cannot consume columnar results and must be kept on
// the JSON format.
type ClientCategory string

const (
	// ClientCategoryDriver is the regular programmatic driver client.
	ClientCategoryDriver ClientCategory = "GoDriver"
	// ClientCategorySQLShell is the interactive shell client category,
	// excluded from columnar results.
	ClientCategorySQLShell ClientCategory = "SQLShell"
)

// columnarDecoder decodes a columnar-binary batch into rows. Exactly one
// implementation registers itself at init time unless the build excludes it.
type columnarDecoder interface {
	// decodeChunk decodes a downloaded columnar chunk. The second return
	// value carries per-row decode failures aligned with the rows, surfaced
	// only when the affected row is pulled.
	decodeChunk(r io.Reader, rowType []execResponseRowType, dc *decodeContext) ([]Row, []error, error)
	// decodeInline decodes the base64-encoded columnar row set that arrived
	// inline with the statement response.
	decodeInline(rowSetBase64 string, rowType []execResponseRowType, dc *decodeContext) ([]Row, []error, error)
}

var registeredColumnarDecoder columnarDecoder

func registerColumnarDecoder(d columnarDecoder) {
	registeredColumnarDecoder = d
}

// assertColumnarCapability verifies that this environment can decode columnar
// results, before any statement is submitted or fetch attempted. The two
// failure conditions are distinct: the decoder not being compiled into the
// binary and the client category being excluded from columnar results.
func assertColumnarCapability(cfg *Config) error {
	if cfg != nil && cfg.ClientCategory == ClientCategorySQLShell {
		return &BorealError{
			Number:      ErrNoColumnarClient,
			Class:       ClassNotSupported,
			SQLState:    SQLStateFeatureNotSupported,
			Message:     errMsgNoColumnarClient,
			MessageArgs: []interface{}{cfg.ClientCategory},
		}
	}
	if registeredColumnarDecoder == nil {
		return &BorealError{
			Number:   ErrNoColumnarDecoder,
			Class:    ClassNotSupported,
			SQLState: SQLStateFeatureNotSupported,
			Message:  errMsgNoColumnarDecoder,
		}
	}
	return nil
}
