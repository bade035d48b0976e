package goboreal

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"
)

// chunkedData builds a response with two inline rows and n remote chunks of
// three rows each, blobs registered on ff.
func chunkedData(ff *fakeFetcher, n int) *execResponseData {
	data := &execResponseData{
		RowType: []execResponseRowType{fixedRowType("C1")},
		RowSet:  intRows(0, 2),
		QueryID: "test-query-id",
	}
	next := 2
	for i := 0; i < n; i++ {
		url := fmt.Sprintf("chunk%d", i+1)
		ff.blobs[url] = jsonChunkBody(intRows(next, 3))
		next += 3
		data.Chunks = append(data.Chunks, execResponseChunk{
			URL:              url,
			RowCount:         3,
			CompressedSize:   10,
			UncompressedSize: 30,
		})
	}
	data.Total = int64(next)
	return data
}

func drainResultSet(t *testing.T, rs *ResultSet) []Row {
	t.Helper()
	var rows []Row
	for {
		row, err := rs.Next()
		if err == io.EOF {
			return rows
		}
		assertNilF(t, err)
		rows = append(rows, row)
	}
}

func TestResultSetOrderAcrossBatches(t *testing.T) {
	ff := newFakeFetcher()
	data := chunkedData(ff, 3)
	rs := newResultSet(context.Background(), data, ff, testConfig())
	defer rs.Close()

	rows := drainResultSet(t, rs)
	assertEqualF(t, int64(len(rows)), rs.TotalRows())
	for i, row := range rows {
		assertEqualE(t, row[0], int64(i))
	}
}

func TestResultSetRowCountInvariant(t *testing.T) {
	ff := newFakeFetcher()
	data := chunkedData(ff, 4)
	rs := newResultSet(context.Background(), data, ff, testConfig())
	defer rs.Close()

	var sum int64
	for _, rb := range rs.Batches() {
		sum += int64(rb.RowCount())
	}
	assertEqualE(t, sum, rs.TotalRows())
}

func TestResultSetTotalUncompressedSize(t *testing.T) {
	ff := newFakeFetcher()
	data := chunkedData(ff, 3)
	rs := newResultSet(context.Background(), data, ff, testConfig())
	defer rs.Close()

	assertEqualE(t, rs.TotalUncompressedSize(), int64(90))
}

func TestResultSetPrefetchBounded(t *testing.T) {
	ff := newFakeFetcher()
	ff.delay = 50 * time.Millisecond
	data := chunkedData(ff, 6)
	cfg := testConfig() // look-ahead 2
	rs := newResultSet(context.Background(), data, ff, cfg)
	defer rs.Close()

	time.Sleep(10 * time.Millisecond)
	// only batches within the look-ahead window may have been started
	assertTrueE(t, ff.fetchCount() <= cfg.PrefetchLookahead,
		fmt.Sprintf("%v fetches in flight with window %v", ff.fetchCount(), cfg.PrefetchLookahead))

	rows := drainResultSet(t, rs)
	assertEqualE(t, int64(len(rows)), rs.TotalRows())
	assertEqualE(t, ff.fetchCount(), 6)
}

func TestResultSetRewindReplaysFromCache(t *testing.T) {
	ff := newFakeFetcher()
	data := chunkedData(ff, 2)
	rs := newResultSet(context.Background(), data, ff, testConfig())
	defer rs.Close()

	first := drainResultSet(t, rs)
	fetchesAfterFirst := ff.fetchCount()
	rs.Rewind()
	second := drainResultSet(t, rs)
	assertDeepEqualE(t, second, first)
	assertEqualE(t, ff.fetchCount(), fetchesAfterFirst)
}

func TestResultSetCloseDropsPrefetch(t *testing.T) {
	ff := newFakeFetcher()
	ff.delay = 50 * time.Millisecond
	data := chunkedData(ff, 4)
	rs := newResultSet(context.Background(), data, ff, testConfig())

	assertNilE(t, rs.Close())
	_, err := rs.Next()
	assertErrIsE(t, err, io.EOF)
	// closing again is a no-op
	assertNilE(t, rs.Close())
}

func TestResultSetBatchFailureSurfaces(t *testing.T) {
	ff := newFakeFetcher()
	data := chunkedData(ff, 2)
	delete(ff.blobs, "chunk2")
	ff.fails["chunk2"] = true
	rs := newResultSet(context.Background(), data, ff, testConfig())
	defer rs.Close()

	var err error
	for {
		_, err = rs.Next()
		if err != nil {
			break
		}
	}
	assertEqualE(t, ErrorNumber(err), ErrFailedToGetChunk)
}

func TestResultSetColumnarBatchesOnJSON(t *testing.T) {
	ff := newFakeFetcher()
	data := chunkedData(ff, 1)
	rs := newResultSet(context.Background(), data, ff, testConfig())
	defer rs.Close()

	_, err := rs.ColumnarBatches()
	assertNotNilF(t, err)
	assertEqualE(t, ErrorNumber(err), ErrNonColumnarResult)
	assertTrueE(t, IsNotSupportedError(err))
}
