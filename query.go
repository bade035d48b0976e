package goboreal

import "encoding/json"

// resultFormat is the wire encoding of a result set, declared by the server
// per statement.
type resultFormat string

const (
	jsonFormat  resultFormat = "json"
	arrowFormat resultFormat = "arrow"
)

type execBindParameter struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

type execRequest struct {
	SQLText      string                       `json:"sqlText"`
	AsyncExec    bool                         `json:"asyncExec"`
	SequenceID   uint64                       `json:"sequenceId"`
	IsInternal   bool                         `json:"isInternal"`
	DescribeOnly bool                         `json:"describeOnly,omitempty"`
	Parameters   map[string]interface{}       `json:"parameters,omitempty"`
	Bindings     map[string]execBindParameter `json:"bindings,omitempty"`
	BindStage    string                       `json:"bindStage,omitempty"`
}

// execResponseRowType describes one column of a statement result, in
// SELECT-list order.
type execResponseRowType struct {
	Name       string `json:"name"`
	ByteLength int64  `json:"byteLength"`
	Length     int64  `json:"length"`
	Type       string `json:"type"`
	ExtType    string `json:"extTypeName,omitempty"`
	Precision  int64  `json:"precision"`
	Scale      int64  `json:"scale"`
	Nullable   bool   `json:"nullable"`
}

// execResponseChunk describes one remotely hosted result batch.
type execResponseChunk struct {
	URL              string `json:"url"`
	RowCount         int    `json:"rowCount"`
	UncompressedSize int64  `json:"uncompressedSize"`
	CompressedSize   int64  `json:"compressedSize"`
}

type execResponseData struct {
	Parameters        json.RawMessage       `json:"parameters,omitempty"`
	RowType           []execResponseRowType `json:"rowtype"`
	RowSet            [][]*string           `json:"rowset"`
	RowSetBase64      string                `json:"rowsetBase64,omitempty"`
	Total             int64                 `json:"total"`
	Returned          int64                 `json:"returned"`
	QueryID           string                `json:"queryId"`
	SQLState          string                `json:"sqlState"`
	NumberOfBinds     int                   `json:"numberOfBinds"`
	StatementTypeID   int64                 `json:"statementTypeId"`
	Version           int64                 `json:"version"`
	Chunks            []execResponseChunk   `json:"chunks,omitempty"`
	Qrmk              string                `json:"qrmk,omitempty"`
	ChunkHeaders      map[string]string     `json:"chunkHeaders,omitempty"`
	QueryResultFormat string                `json:"queryResultFormat,omitempty"`
}

type execResponse struct {
	Data    execResponseData `json:"data"`
	Message string           `json:"message"`
	Code    string           `json:"code"`
	Success bool             `json:"success"`
}

const (
	statementTypeIDDml              = int64(0x3000)
	statementTypeIDInsert           = statementTypeIDDml + int64(0x100)
	statementTypeIDUpdate           = statementTypeIDDml + int64(0x200)
	statementTypeIDDelete           = statementTypeIDDml + int64(0x300)
	statementTypeIDMerge            = statementTypeIDDml + int64(0x400)
	statementTypeIDMultiTableInsert = statementTypeIDDml + int64(0x500)
)

// isDml returns true if the statement type code is in the range of DML.
func isDml(v int64) bool {
	return statementTypeIDDml <= v && v <= statementTypeIDMultiTableInsert
}
