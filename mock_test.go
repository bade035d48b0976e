package goboreal

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// fakeTransport is an in-memory SessionTransport that records every request
// and answers from scripted responses.
type fakeTransport struct {
	mu        sync.Mutex
	submitted []*execRequest
	respond   func(req *execRequest) (*execResponse, error)
	polls     []pollResult
	pollCount int
	uploaded  [][]byte
	stage     string
	deleted   bool
}

type pollResult struct {
	status QueryStatus
	err    error
}

func (ft *fakeTransport) Submit(_ context.Context, req *execRequest) (*execResponse, error) {
	ft.mu.Lock()
	ft.submitted = append(ft.submitted, req)
	ft.mu.Unlock()
	if ft.respond == nil {
		return selectResponse("fake-query-id", nil, nil), nil
	}
	return ft.respond(req)
}

func (ft *fakeTransport) PollStatus(_ context.Context, _ string) (QueryStatus, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.polls) == 0 {
		return QueryStatusNoData, nil
	}
	i := ft.pollCount
	if i >= len(ft.polls) {
		i = len(ft.polls) - 1
	}
	ft.pollCount++
	return ft.polls[i].status, ft.polls[i].err
}

func (ft *fakeTransport) UploadBindings(_ context.Context, data []byte) (string, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.uploaded = append(ft.uploaded, data)
	if ft.stage == "" {
		ft.stage = "stage/bindings/1"
	}
	return ft.stage, nil
}

func (ft *fakeTransport) DeleteSession(_ context.Context) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.deleted = true
	return nil
}

func (ft *fakeTransport) lastSubmitted() *execRequest {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.submitted) == 0 {
		return nil
	}
	return ft.submitted[len(ft.submitted)-1]
}

// fakeFetcher is an in-memory BlobFetcher serving canned blobs keyed by URL.
// It tracks fetch order and how far ahead of the consumer fetches run.
type fakeFetcher struct {
	mu          sync.Mutex
	blobs       map[string][]byte
	fails       map[string]bool
	fetched     []string
	headers     map[string]map[string]string
	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		blobs:   make(map[string][]byte),
		fails:   make(map[string]bool),
		headers: make(map[string]map[string]string),
	}
}

func (ff *fakeFetcher) Fetch(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	ff.mu.Lock()
	ff.fetched = append(ff.fetched, url)
	ff.headers[url] = headers
	ff.inFlight++
	if ff.inFlight > ff.maxInFlight {
		ff.maxInFlight = ff.inFlight
	}
	fail := ff.fails[url]
	blob, ok := ff.blobs[url]
	delay := ff.delay
	ff.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}

	ff.mu.Lock()
	ff.inFlight--
	ff.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail || !ok {
		return nil, fmt.Errorf("no blob at %v", url)
	}
	return io.NopCloser(bytes.NewReader(blob)), nil
}

func (ff *fakeFetcher) fetchCount() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.fetched)
}

// fakeDecoder is a no-op columnarDecoder for capability tests.
type fakeDecoder struct{}

func (fakeDecoder) decodeChunk(_ io.Reader, _ []execResponseRowType, _ *decodeContext) ([]Row, []error, error) {
	return nil, nil, nil
}

func (fakeDecoder) decodeInline(_ string, _ []execResponseRowType, _ *decodeContext) ([]Row, []error, error) {
	return nil, nil, nil
}

func testConfig() *Config {
	cfg := &Config{
		Account:           "testaccount",
		User:              "testuser",
		Host:              "testaccount.borealdata.test",
		ParamStyle:        ParamStylePyformat,
		PrefetchLookahead: 2,
	}
	cfg.fillDefaults()
	return cfg
}

func newTestConn(cfg *Config, ft *fakeTransport, ff *fakeFetcher) *Conn {
	if cfg == nil {
		cfg = testConfig()
	}
	if ft == nil {
		ft = &fakeTransport{}
	}
	if ff == nil {
		ff = newFakeFetcher()
	}
	return NewConnWithTransport(cfg, ft, ff)
}

func sp(s string) *string {
	return &s
}

func fixedRowType(name string) execResponseRowType {
	return execResponseRowType{Name: name, Type: "fixed", Precision: 38}
}

func textRowType(name string) execResponseRowType {
	return execResponseRowType{Name: name, Type: "text", Length: 16777216, Nullable: true}
}

// selectResponse builds a successful SELECT response with an inline row set
// and optional remote chunks.
func selectResponse(queryID string, rows [][]*string, chunks []execResponseChunk) *execResponse {
	total := int64(len(rows))
	for _, c := range chunks {
		total += int64(c.RowCount)
	}
	return &execResponse{
		Data: execResponseData{
			RowType: []execResponseRowType{fixedRowType("C1")},
			RowSet:  rows,
			Total:   total,
			QueryID: queryID,
			Chunks:  chunks,
		},
		Success: true,
	}
}

// dmlResponse builds a successful DML response reporting count affected rows.
func dmlResponse(queryID string, count int64) *execResponse {
	c := fmt.Sprintf("%d", count)
	return &execResponse{
		Data: execResponseData{
			RowType:         []execResponseRowType{{Name: "number of rows inserted", Type: "fixed"}},
			RowSet:          [][]*string{{&c}},
			Total:           1,
			QueryID:         queryID,
			StatementTypeID: statementTypeIDInsert,
		},
		Success: true,
	}
}

// intRows renders a column of increasing integers starting at from.
func intRows(from, n int) [][]*string {
	rows := make([][]*string, n)
	for i := 0; i < n; i++ {
		rows[i] = []*string{sp(fmt.Sprintf("%d", from+i))}
	}
	return rows
}

// jsonChunkBody encodes rows the way chunk blobs carry them: concatenated
// JSON rows without the enclosing array brackets.
func jsonChunkBody(rows [][]*string) []byte {
	full, err := json.Marshal(rows)
	if err != nil {
		panic(err)
	}
	return full[1 : len(full)-1]
}

func gzipBytes(b []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
