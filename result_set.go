package goboreal

import (
	"context"
	"io"
	"sync"
)

// ResultSet presents the ordered batches of one statement result as a single
// row stream. While the consumer reads, a bounded number of upcoming remote
// batches is fetched in the background so network latency overlaps with
// consumption. The look-ahead never runs more than the configured window
// beyond the consumer's position.
type ResultSet struct {
	queryID   string
	totalRows int64
	schema    []execResponseRowType
	format    resultFormat
	batches   []*ResultBatch

	ctx    context.Context
	cancel context.CancelFunc
	window int
	wg     sync.WaitGroup

	mu          sync.Mutex
	cur         int
	curIter     *batchRows
	nextToFetch int
	closed      bool
}

func newResultSet(ctx context.Context, data *execResponseData, fetcher BlobFetcher, cfg *Config) *ResultSet {
	childCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	format := resultFormat(data.QueryResultFormat)
	if format == "" {
		format = jsonFormat
	}
	rs := &ResultSet{
		queryID:   data.QueryID,
		totalRows: data.Total,
		schema:    data.RowType,
		format:    format,
		batches:   buildResultBatches(data, fetcher, cfg.decodeContext()),
		ctx:       childCtx,
		cancel:    cancel,
		window:    cfg.PrefetchLookahead,
	}
	rs.mu.Lock()
	rs.scheduleLocked()
	rs.mu.Unlock()
	return rs
}

// QueryID returns the server-assigned identifier of the statement.
func (rs *ResultSet) QueryID() string {
	return rs.queryID
}

// TotalRows returns the row count the server declared for the result.
func (rs *ResultSet) TotalRows() int64 {
	return rs.totalRows
}

// Schema returns the column descriptions in SELECT-list order.
func (rs *ResultSet) Schema() []execResponseRowType {
	return rs.schema
}

// Batches returns the underlying batches so callers can distribute their
// descriptors for out-of-band consumption.
func (rs *ResultSet) Batches() []*ResultBatch {
	return rs.batches
}

// TotalUncompressedSize returns the declared uncompressed byte size of all
// remote batches, for consumers sizing buffers ahead of the download.
func (rs *ResultSet) TotalUncompressedSize() (acc int64) {
	for _, rb := range rs.batches {
		acc += rb.uncompressedSize
	}
	return
}

// ColumnarBatches returns the batches for columnar consumption. It fails when
// the statement result did not arrive in the columnar format.
func (rs *ResultSet) ColumnarBatches() ([]*ResultBatch, error) {
	if rs.format != arrowFormat {
		return nil, &BorealError{
			Number:   ErrNonColumnarResult,
			Class:    ClassNotSupported,
			SQLState: SQLStateFeatureNotSupported,
			QueryID:  rs.queryID,
			Message:  errMsgNonColumnarResult,
		}
	}
	return rs.batches, nil
}

// scheduleLocked starts background fetches for remote batches within the
// look-ahead window. Callers must hold rs.mu.
func (rs *ResultSet) scheduleLocked() {
	if rs.closed {
		return
	}
	limit := intMin(len(rs.batches), rs.cur+rs.window+1)
	for rs.nextToFetch < limit {
		rb := rs.batches[rs.nextToFetch]
		rs.nextToFetch++
		if !rb.remote() {
			continue
		}
		rs.wg.Add(1)
		go func(rb *ResultBatch) {
			defer rs.wg.Done()
			if err := rb.ensureDecoded(rs.ctx); err != nil {
				// surfaced to the consumer when the batch is pulled
				logger.WithContext(rs.ctx).Debugf("background fetch of batch %v failed: %v", rb.idx, err)
			}
		}(rb)
	}
}

// Next returns the next row in result order, crossing batch boundaries
// transparently. It returns io.EOF after the last row. A batch whose download
// failed raises that failure here, attributed to the batch, without any retry.
func (rs *ResultSet) Next() (Row, error) {
	rs.mu.Lock()
	for {
		if rs.closed {
			rs.mu.Unlock()
			return nil, io.EOF
		}
		if rs.cur >= len(rs.batches) {
			rs.mu.Unlock()
			return nil, io.EOF
		}
		if rs.curIter == nil {
			rb := rs.batches[rs.cur]
			rs.scheduleLocked()
			rs.mu.Unlock()
			iter, err := rb.Rows(rs.ctx)
			if err != nil {
				return nil, err
			}
			rs.mu.Lock()
			if rs.curIter == nil {
				rs.curIter = iter
			}
			continue
		}
		row, err := rs.curIter.Next()
		if err == io.EOF {
			rs.cur++
			rs.curIter = nil
			rs.scheduleLocked()
			continue
		}
		rs.mu.Unlock()
		return row, err
	}
}

// Rewind restarts consumption from the first row. Batches already decoded
// replay from cache without refetching.
func (rs *ResultSet) Rewind() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.cur = 0
	rs.curIter = nil
}

// Close cancels any in-flight background fetches and releases the result set.
// Prefetch failures discovered during shutdown are dropped, not raised.
func (rs *ResultSet) Close() error {
	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return nil
	}
	rs.closed = true
	rs.mu.Unlock()
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.wg.Wait()
	return nil
}
