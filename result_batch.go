package goboreal

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	headerSseCAlgorithm = "x-amz-server-side-encryption-customer-algorithm"
	headerSseCKey       = "x-amz-server-side-encryption-customer-key"
	headerSseCAes       = "AES256"
)

var gzipMagic = []byte{0x1f, 0x8b}

// ResultBatch is one ordered portion of a statement result: either the rows
// that arrived inline with the response or a remotely hosted chunk fetched on
// demand. Once decoded, the rows stay cached so iteration is restartable.
type ResultBatch struct {
	idx      int
	rowCount int
	schema   []execResponseRowType
	format   resultFormat

	// inline payload, exactly one of these is set for the first batch
	cells        [][]*string
	inlineBase64 string

	// remote chunk location
	url              string
	chunkHeaders     map[string]string
	qrmk             string
	compressedSize   int64
	uncompressedSize int64

	fetcher BlobFetcher
	dc      *decodeContext

	mu        sync.Mutex
	decoded   bool
	decodeErr error
	rows      []Row
	rowErrs   []error
}

// remote reports whether the batch must be downloaded before iteration.
func (rb *ResultBatch) remote() bool {
	return rb.url != ""
}

// RowCount returns the number of rows the batch holds.
func (rb *ResultBatch) RowCount() int {
	return rb.rowCount
}

// ensureDecoded downloads and decodes the batch exactly once. Concurrent
// callers block until the first decode finishes.
func (rb *ResultBatch) ensureDecoded(ctx context.Context) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.decoded {
		return nil
	}
	if rb.decodeErr != nil {
		return rb.decodeErr
	}
	var err error
	if rb.remote() {
		err = rb.downloadAndDecode(ctx)
	} else {
		err = rb.decodeInline()
	}
	if err != nil {
		rb.decodeErr = err
		return err
	}
	rb.decoded = true
	return nil
}

func (rb *ResultBatch) downloadAndDecode(ctx context.Context) error {
	logger.WithContext(ctx).Debugf("fetching result batch %v. url: %v", rb.idx, rb.url)
	body, err := rb.fetcher.Fetch(ctx, rb.url, rb.fetchHeaders())
	if err != nil {
		return &BorealError{
			Number:      ErrFailedToGetChunk,
			SQLState:    SQLStateConnectionFailure,
			Class:       ClassOperational,
			Message:     errMsgFailedToGetChunk,
			MessageArgs: []interface{}{rb.idx},
		}
	}
	defer body.Close()

	bufStream := bufio.NewReader(body)
	gzipMagicBytes, err := bufStream.Peek(2)
	var source io.Reader = bufStream
	if err == nil && gzipMagicBytes[0] == gzipMagic[0] && gzipMagicBytes[1] == gzipMagic[1] {
		// detects and uncompresses gzip format data
		bufStream0, err := gzip.NewReader(bufStream)
		if err != nil {
			return err
		}
		defer bufStream0.Close()
		source = bufStream0
	}

	if rb.format == arrowFormat {
		if registeredColumnarDecoder == nil {
			return &BorealError{
				Number:   ErrNoColumnarDecoder,
				Class:    ClassNotSupported,
				SQLState: SQLStateFeatureNotSupported,
				Message:  errMsgNoColumnarDecoder,
			}
		}
		rb.rows, rb.rowErrs, err = registeredColumnarDecoder.decodeChunk(source, rb.schema, rb.dc)
		if err != nil {
			return fmt.Errorf("failed to decode result batch %v: %w", rb.idx, err)
		}
		rb.rowCount = len(rb.rows)
		return nil
	}
	return rb.decodeJSONChunk(source)
}

// decodeJSONChunk decodes a chunk body holding concatenated JSON rows without
// the enclosing array brackets.
func (rb *ResultBatch) decodeJSONChunk(source io.Reader) error {
	var cells [][]*string
	dec := json.NewDecoder(io.MultiReader(
		strings.NewReader("["), source, strings.NewReader("]")))
	if err := dec.Decode(&cells); err != nil {
		return fmt.Errorf("failed to decode result batch %v: %w", rb.idx, err)
	}
	return rb.decodeCells(cells)
}

func (rb *ResultBatch) decodeInline() error {
	if rb.format == arrowFormat {
		if registeredColumnarDecoder == nil {
			return &BorealError{
				Number:   ErrNoColumnarDecoder,
				Class:    ClassNotSupported,
				SQLState: SQLStateFeatureNotSupported,
				Message:  errMsgNoColumnarDecoder,
			}
		}
		var err error
		rb.rows, rb.rowErrs, err = registeredColumnarDecoder.decodeInline(rb.inlineBase64, rb.schema, rb.dc)
		if err != nil {
			return fmt.Errorf("failed to decode inline result: %w", err)
		}
		rb.rowCount = len(rb.rows)
		return nil
	}
	return rb.decodeCells(rb.cells)
}

// decodeCells converts JSON text cells into typed rows. A cell that fails to
// decode poisons only its own row; the error is surfaced when that row is
// pulled.
func (rb *ResultBatch) decodeCells(cells [][]*string) error {
	rb.rows = make([]Row, len(cells))
	rb.rowErrs = make([]error, len(cells))
	for i, rawRow := range cells {
		row := make(Row, len(rawRow))
		for j, raw := range rawRow {
			if j >= len(rb.schema) {
				break
			}
			v, err := stringToValue(rb.schema[j], raw, rb.dc)
			if err != nil {
				if rb.rowErrs[i] == nil {
					rb.rowErrs[i] = err
				}
				continue
			}
			row[j] = v
		}
		rb.rows[i] = row
	}
	rb.rowCount = len(cells)
	return nil
}

func (rb *ResultBatch) fetchHeaders() map[string]string {
	if len(rb.chunkHeaders) > 0 {
		return rb.chunkHeaders
	}
	if rb.qrmk != "" {
		return map[string]string{
			headerSseCAlgorithm: headerSseCAes,
			headerSseCKey:       rb.qrmk,
		}
	}
	return nil
}

// Rows returns a fresh iterator over the batch, decoding it first if needed.
// Each call starts at the first row.
func (rb *ResultBatch) Rows(ctx context.Context) (*batchRows, error) {
	if err := rb.ensureDecoded(ctx); err != nil {
		return nil, err
	}
	return &batchRows{batch: rb}, nil
}

// batchRows iterates the decoded rows of one batch.
type batchRows struct {
	batch *ResultBatch
	next  int
}

// Next returns the next row or io.EOF past the end. A row whose decode failed
// raises that failure here instead of a row.
func (br *batchRows) Next() (Row, error) {
	rb := br.batch
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if br.next >= len(rb.rows) {
		return nil, io.EOF
	}
	i := br.next
	br.next++
	if rb.rowErrs[i] != nil {
		return nil, rb.rowErrs[i]
	}
	return rb.rows[i], nil
}

// BatchDescriptor is a serializable handle to a result batch. A descriptor for
// a remote batch can be shipped to another process and rebuilt there with
// NewResultBatchFromDescriptor, which re-fetches the chunk on first iteration.
type BatchDescriptor struct {
	Index            int                   `json:"index"`
	RowCount         int                   `json:"rowCount"`
	Format           string                `json:"format"`
	Schema           []execResponseRowType `json:"schema"`
	URL              string                `json:"url,omitempty"`
	ChunkHeaders     map[string]string     `json:"chunkHeaders,omitempty"`
	Qrmk             string                `json:"qrmk,omitempty"`
	CompressedSize   int64                 `json:"compressedSize,omitempty"`
	UncompressedSize int64                 `json:"uncompressedSize,omitempty"`
	Cells            [][]*string           `json:"cells,omitempty"`
	InlineBase64     string                `json:"inlineBase64,omitempty"`
}

// Descriptor returns the serializable handle of the batch.
func (rb *ResultBatch) Descriptor() BatchDescriptor {
	return BatchDescriptor{
		Index:            rb.idx,
		RowCount:         rb.rowCount,
		Format:           string(rb.format),
		Schema:           rb.schema,
		URL:              rb.url,
		ChunkHeaders:     rb.chunkHeaders,
		Qrmk:             rb.qrmk,
		CompressedSize:   rb.compressedSize,
		UncompressedSize: rb.uncompressedSize,
		Cells:            rb.cells,
		InlineBase64:     rb.inlineBase64,
	}
}

// NewResultBatchFromDescriptor rebuilds a batch from its serialized handle.
func NewResultBatchFromDescriptor(desc BatchDescriptor, fetcher BlobFetcher, cfg *Config) *ResultBatch {
	return &ResultBatch{
		idx:              desc.Index,
		rowCount:         desc.RowCount,
		format:           resultFormat(desc.Format),
		schema:           desc.Schema,
		url:              desc.URL,
		chunkHeaders:     desc.ChunkHeaders,
		qrmk:             desc.Qrmk,
		compressedSize:   desc.CompressedSize,
		uncompressedSize: desc.UncompressedSize,
		cells:            desc.Cells,
		inlineBase64:     desc.InlineBase64,
		fetcher:          fetcher,
		dc:               cfg.decodeContext(),
	}
}

// buildResultBatches lays out the batches of a statement response in order:
// the inline row set first, then one batch per remote chunk.
func buildResultBatches(data *execResponseData, fetcher BlobFetcher, dc *decodeContext) []*ResultBatch {
	format := resultFormat(data.QueryResultFormat)
	if format == "" {
		format = jsonFormat
	}
	var batches []*ResultBatch
	if len(data.RowSet) > 0 || data.RowSetBase64 != "" {
		batches = append(batches, &ResultBatch{
			idx:          0,
			rowCount:     len(data.RowSet),
			schema:       data.RowType,
			format:       format,
			cells:        data.RowSet,
			inlineBase64: data.RowSetBase64,
			dc:           dc,
		})
	}
	for _, chunk := range data.Chunks {
		batches = append(batches, &ResultBatch{
			idx:              len(batches),
			rowCount:         chunk.RowCount,
			schema:           data.RowType,
			format:           format,
			url:              chunk.URL,
			chunkHeaders:     data.ChunkHeaders,
			qrmk:             data.Qrmk,
			compressedSize:   chunk.CompressedSize,
			uncompressedSize: chunk.UncompressedSize,
			fetcher:          fetcher,
			dc:               dc,
		})
	}
	return batches
}
