package goboreal

import (
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// cursorState tracks where a cursor is in its lifecycle.
type cursorState int

const (
	cursorIdle cursorState = iota
	cursorExecuting
	cursorHasResult
	cursorClosed
)

func (s cursorState) String() string {
	return [...]string{"IDLE", "EXECUTING", "HAS_RESULT", "CLOSED"}[s]
}

// maxMessages bounds the cursor's raised-condition log.
const maxMessages = 128

var descRe = regexp.MustCompile(`(?i)^\s*desc\s+`)

// ColumnDescription describes one column of the current result, in
// SELECT-list order.
type ColumnDescription struct {
	Name         string
	TypeCode     string
	DisplaySize  int64
	InternalSize int64
	Precision    int64
	Scale        int64
	Nullable     bool
}

// ErrorHandler intercepts every condition a cursor raises. Returning nil
// suppresses the raise; the condition is recorded in Messages either way.
type ErrorHandler func(err error) error

// Cursor executes statements on one session and iterates their results.
// All fetch variants share a single forward-only position. A Cursor is not
// safe for concurrent use.
type Cursor struct {
	conn *Conn

	state    cursorState
	rs       *ResultSet
	query    string
	queryID  string
	rowCount int64
	rowNum   int64
	fetched  bool
	desc     []ColumnDescription

	// Messages records every condition this cursor raised, oldest first,
	// bounded at maxMessages.
	Messages []error

	// Handler, when set, intercepts raised conditions. The default re-raises.
	Handler ErrorHandler
}

// raise records err once and passes it through the configured handler.
func (cur *Cursor) raise(err error) error {
	if err == nil {
		return nil
	}
	if len(cur.Messages) < maxMessages {
		cur.Messages = append(cur.Messages, err)
	}
	if cur.Handler != nil {
		return cur.Handler(err)
	}
	return err
}

func (cur *Cursor) closedError() error {
	return &BorealError{
		Number:   ErrCursorClosed,
		Class:    ClassInterface,
		SQLState: SQLStateFeatureNotSupported,
		Message:  errMsgCursorClosed,
	}
}

// rewriteDescribe turns a "desc X" statement into "describe table X", the
// form the server accepts, and logs the rewrite.
func rewriteDescribe(ctx context.Context, query string) string {
	if loc := descRe.FindStringIndex(query); loc != nil {
		rewritten := "describe table " + query[loc[1]:]
		logger.WithContext(ctx).Infof("query was rewritten: org=%v, new=%v", query, rewritten)
		return rewritten
	}
	return query
}

// resetResult drops the previous statement's result before a new execution.
func (cur *Cursor) resetResult() {
	if cur.rs != nil {
		cur.rs.Close()
		cur.rs = nil
	}
	cur.query = ""
	cur.queryID = ""
	cur.rowCount = -1
	cur.rowNum = 0
	cur.fetched = false
	cur.desc = nil
}

// prepare renders query and params into the wire shape for the configured
// placeholder style.
func (cur *Cursor) prepare(query string, params interface{}) (string, map[string]execBindParameter, error) {
	cfg := cur.conn.cfg
	if cfg.ParamStyle == ParamStyleQmark {
		var positional []interface{}
		switch p := params.(type) {
		case nil:
		case []interface{}:
			positional = p
		default:
			return "", nil, &BorealError{
				Number:      ErrUnsupportedBindType,
				Class:       ClassProgramming,
				Message:     errMsgUnsupportedBindType,
				MessageArgs: []interface{}{params},
			}
		}
		bindings, err := buildQmarkBindings(query, positional)
		if err != nil {
			return "", nil, err
		}
		return query, bindings, nil
	}
	rendered, err := renderPyformat(query, params)
	if err != nil {
		return "", nil, err
	}
	return rendered, nil, nil
}

// Execute submits one statement and, on success, makes its result available
// for fetching. Params follow the session's placeholder style: a
// []interface{} for positional placeholders or a map[string]interface{} for
// named ones.
func (cur *Cursor) Execute(ctx context.Context, query string, params interface{}) error {
	return cur.execInternal(ctx, query, params, execOptions{})
}

// ExecuteAsync submits one statement without waiting for its result. The
// query ID is available immediately for status polling through the session.
func (cur *Cursor) ExecuteAsync(ctx context.Context, query string, params interface{}) error {
	return cur.execInternal(ctx, query, params, execOptions{asyncExec: true})
}

// Describe runs a zero-row dry-run of query and returns the column
// description without materializing any data. The cursor's row count is left
// untouched.
func (cur *Cursor) Describe(ctx context.Context, query string, params interface{}) ([]ColumnDescription, error) {
	if cur.state == cursorClosed {
		return nil, cur.raise(cur.closedError())
	}
	rendered, bindings, err := cur.prepare(query, params)
	if err != nil {
		return nil, cur.raise(err)
	}
	respd, err := cur.conn.exec(ctx, rewriteDescribe(ctx, rendered), execOptions{
		describeOnly: true,
		bindings:     bindings,
	})
	if err != nil {
		return nil, cur.raise(err)
	}
	desc := describeColumns(respd.Data.RowType)
	cur.desc = desc
	return desc, nil
}

func (cur *Cursor) execInternal(ctx context.Context, query string, params interface{}, opts execOptions) error {
	if cur.state == cursorClosed {
		return cur.raise(cur.closedError())
	}
	if cur.conn.cfg.ResultFormat == string(arrowFormat) {
		if err := assertColumnarCapability(cur.conn.cfg); err != nil {
			return cur.raise(err)
		}
	}
	cur.resetResult()
	rendered := query
	// bulk paths arrive with their bindings (or a stage) already built
	if opts.bindings == nil && opts.bindStage == "" {
		var bindings map[string]execBindParameter
		var err error
		rendered, bindings, err = cur.prepare(query, params)
		if err != nil {
			return cur.raise(err)
		}
		opts.bindings = bindings
	}
	rendered = rewriteDescribe(ctx, rendered)
	cur.state = cursorExecuting
	respd, err := cur.conn.exec(ctx, rendered, opts)
	if err != nil {
		cur.state = cursorIdle
		return cur.raise(err)
	}
	cur.finishExec(ctx, rendered, respd)
	return nil
}

// finishExec installs a successful response on the cursor.
func (cur *Cursor) finishExec(ctx context.Context, query string, respd *execResponse) {
	data := &respd.Data
	cur.query = query
	cur.queryID = data.QueryID
	cur.desc = describeColumns(data.RowType)
	if isDml(data.StatementTypeID) {
		cur.rowCount = affectedRows(data)
	} else {
		cur.rowCount = data.Total
	}
	cur.rs = cur.conn.buildResultSet(ctx, data)
	cur.state = cursorHasResult
}

// affectedRows sums the counts a DML statement reports in its single result
// row.
func affectedRows(data *execResponseData) int64 {
	if len(data.RowSet) == 0 {
		return 0
	}
	var total int64
	for _, cell := range data.RowSet[0] {
		if cell == nil {
			continue
		}
		n, err := strconv.ParseInt(*cell, 10, 64)
		if err != nil {
			return -1
		}
		total += n
	}
	return total
}

func describeColumns(rowType []execResponseRowType) []ColumnDescription {
	desc := make([]ColumnDescription, len(rowType))
	for i, rt := range rowType {
		desc[i] = ColumnDescription{
			Name:         rt.Name,
			TypeCode:     rt.Type,
			DisplaySize:  rt.Length,
			InternalSize: rt.ByteLength,
			Precision:    rt.Precision,
			Scale:        rt.Scale,
			Nullable:     rt.Nullable,
		}
	}
	return desc
}

// ExecuteMany executes query once per parameter set. An empty input submits
// nothing and succeeds. Under pyformat a recognized single-row INSERT is
// rewritten into one multi-row INSERT; under qmark the sets travel as bulk
// bindings, staged when they cross the configured threshold.
func (cur *Cursor) ExecuteMany(ctx context.Context, query string, paramSets [][]interface{}) error {
	if cur.state == cursorClosed {
		return cur.raise(cur.closedError())
	}
	if len(paramSets) == 0 {
		return nil
	}
	if cur.conn.cfg.ParamStyle == ParamStyleQmark {
		return cur.executeManyQmark(ctx, query, paramSets)
	}
	arity := len(paramSets[0])
	for _, row := range paramSets {
		if len(row) != arity {
			return cur.raise(&BorealError{
				Number:      ErrBulkDataSizeMismatch,
				SQLState:    SQLStateFeatureNotSupported,
				Class:       ClassInterface,
				Message:     errMsgBulkDataSizeMismatch,
				MessageArgs: []interface{}{arity, len(row)},
			})
		}
	}
	rewritten, err := rewriteMultiRowInsert(query, paramSets)
	if err != nil {
		return cur.raise(err)
	}
	return cur.execInternal(ctx, rewritten, nil, execOptions{})
}

// ExecuteManyNamed is ExecuteMany for named parameter sets under pyformat.
func (cur *Cursor) ExecuteManyNamed(ctx context.Context, query string, paramSets []map[string]interface{}) error {
	if cur.state == cursorClosed {
		return cur.raise(cur.closedError())
	}
	if len(paramSets) == 0 {
		return nil
	}
	stripped := trailingSemiRe.ReplaceAllString(query, "")
	m := valuesTailRe.FindStringSubmatchIndex(stripped)
	if !insertRe.MatchString(stripped) || m == nil {
		return cur.raise(rewriteError(query))
	}
	template := stripped[m[2]:m[3]]
	rendered := make([]string, len(paramSets))
	for i, params := range paramSets {
		row, err := renderPyformatNamed(template, params)
		if err != nil {
			return cur.raise(err)
		}
		rendered[i] = row
	}
	return cur.execInternal(ctx, stripped[:m[2]]+strings.Join(rendered, ","), nil, execOptions{})
}

// ParamProducer yields parameter sets one at a time. It returns false when
// exhausted. A producer is consumed exactly once, in order.
type ParamProducer func() ([]interface{}, bool)

// ExecuteManyFromProducer drains a single-pass producer of parameter sets and
// executes them as ExecuteMany would.
func (cur *Cursor) ExecuteManyFromProducer(ctx context.Context, query string, produce ParamProducer) error {
	var paramSets [][]interface{}
	for {
		row, ok := produce()
		if !ok {
			break
		}
		paramSets = append(paramSets, row)
	}
	return cur.ExecuteMany(ctx, query, paramSets)
}

func (cur *Cursor) executeManyQmark(ctx context.Context, query string, paramSets [][]interface{}) error {
	bindings, bindCount, err := buildQmarkBulkBindings(query, paramSets)
	if err != nil {
		return cur.raise(err)
	}
	opts := execOptions{bindings: bindings}
	if bindCount >= cur.conn.cfg.BindStageThreshold {
		stage, err := uploadBindStage(ctx, cur.conn.transport, paramSets)
		if err != nil {
			return cur.raise(err)
		}
		opts = execOptions{bindStage: stage}
	}
	return cur.execInternal(ctx, query, nil, opts)
}

// ensureResult verifies a fetch is legal in the current state.
func (cur *Cursor) ensureResult() error {
	if cur.state == cursorClosed {
		return cur.closedError()
	}
	if cur.rs == nil {
		return &BorealError{
			Number:  ErrNoResultSet,
			Class:   ClassData,
			Message: errMsgNoResultSet,
		}
	}
	return nil
}

// FetchOne returns the next row, or (nil, nil) at exhaustion. Fetching before
// any statement was executed is an error.
func (cur *Cursor) FetchOne() (Row, error) {
	if err := cur.ensureResult(); err != nil {
		return nil, cur.raise(err)
	}
	row, err := cur.rs.Next()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, cur.raise(err)
	}
	cur.advance()
	return row, nil
}

func (cur *Cursor) advance() {
	if cur.fetched {
		cur.rowNum++
	} else {
		cur.fetched = true
		cur.rowNum = 0
	}
}

// FetchMany returns up to size rows, fewer at exhaustion and an empty slice
// when nothing remains. Size must be positive.
func (cur *Cursor) FetchMany(size int) ([]Row, error) {
	if size <= 0 {
		return nil, cur.raise(&BorealError{
			Number:      ErrNotPositiveSize,
			Class:       ClassProgramming,
			Message:     errMsgNotPositiveSize,
			MessageArgs: []interface{}{size},
		})
	}
	if err := cur.ensureResult(); err != nil {
		return nil, cur.raise(err)
	}
	rows := make([]Row, 0, size)
	for len(rows) < size {
		row, err := cur.rs.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cur.raise(err)
		}
		cur.advance()
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchAll drains the remaining rows in order.
func (cur *Cursor) FetchAll() ([]Row, error) {
	if err := cur.ensureResult(); err != nil {
		return nil, cur.raise(err)
	}
	var rows []Row
	for {
		row, err := cur.rs.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, cur.raise(err)
		}
		cur.advance()
		rows = append(rows, row)
	}
}

// Next makes the cursor usable as a row iterator, producing the same sequence
// as repeated FetchOne. It returns io.EOF at exhaustion.
func (cur *Cursor) Next() (Row, error) {
	row, err := cur.FetchOne()
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, io.EOF
	}
	return row, nil
}

// Scroll is not supported.
func (cur *Cursor) Scroll(offset int, mode string) error {
	return cur.raise(&BorealError{
		Number:   ErrScrollNotSupported,
		Class:    ClassNotSupported,
		SQLState: SQLStateFeatureNotSupported,
		Message:  errMsgScrollNotSupported,
	})
}

// Reset clears the iteration position and row count without closing the
// cursor. With reuse-results configured, a subsequent fetch replays the
// already-materialized rows from the start; otherwise the result is dropped.
func (cur *Cursor) Reset() {
	if cur.state == cursorClosed {
		return
	}
	cur.rowCount = -1
	cur.rowNum = 0
	cur.fetched = false
	if cur.rs == nil {
		return
	}
	if cur.conn.cfg.ReuseResults {
		cur.rs.Rewind()
		return
	}
	// without reuse-results a fetch after reset finds nothing
	cur.rs.Close()
	cur.rs = &ResultSet{queryID: cur.queryID}
}

// Close releases the cursor and its result. It is idempotent; the last
// observed row count stays readable after close.
func (cur *Cursor) Close() error {
	if cur.state == cursorClosed {
		return nil
	}
	if cur.rs != nil {
		cur.rs.Close()
		cur.rs = nil
	}
	cur.query = ""
	cur.state = cursorClosed
	return nil
}

// IsClosed reports whether the cursor was closed.
func (cur *Cursor) IsClosed() bool {
	return cur.state == cursorClosed
}

// RowCount returns the total row count of the last executed statement, or -1
// when unknown. For DML this is the number of affected rows.
func (cur *Cursor) RowCount() int64 {
	return cur.rowCount
}

// RowNumber returns the zero-based index of the most recently fetched row, or
// nil before any row was fetched.
func (cur *Cursor) RowNumber() *int64 {
	if !cur.fetched {
		return nil
	}
	n := cur.rowNum
	return &n
}

// Query returns the text of the last executed statement, empty once closed.
func (cur *Cursor) Query() string {
	return cur.query
}

// QueryID returns the server-assigned identifier of the last executed
// statement.
func (cur *Cursor) QueryID() string {
	return cur.queryID
}

// Description returns the column description of the current result.
func (cur *Cursor) Description() []ColumnDescription {
	return cur.desc
}

// ResultSet exposes the underlying result set of the current statement, e.g.
// to distribute batch descriptors.
func (cur *Cursor) ResultSet() *ResultSet {
	return cur.rs
}
