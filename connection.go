package goboreal

import (
	"context"
	"strconv"
	"sync/atomic"
)

const (
	sessionParamQueryResultFormat = "QUERY_RESULT_FORMAT"
	sessionParamTimezone          = "TIMEZONE"
	sessionParamApplication       = "APPLICATION"
)

// Conn is one session against the warehouse. It owns the transport, issues
// monotonically increasing statement sequence numbers and hands out cursors.
// A Conn is safe for concurrent use; each Cursor is not.
type Conn struct {
	cfg       *Config
	transport SessionTransport
	fetcher   BlobFetcher
	sequence  uint64
	closed    int32
}

// NewConn builds a session over HTTP from cfg. Session establishment
// (authentication) must already have produced cfg.Token.
func NewConn(cfg *Config) *Conn {
	cfg.fillDefaults()
	return &Conn{
		cfg:       cfg,
		transport: newHTTPTransport(cfg),
		fetcher:   newHTTPBlobFetcher(),
	}
}

// NewConnWithTransport builds a session over a caller-supplied transport and
// blob fetcher.
func NewConnWithTransport(cfg *Config, st SessionTransport, fetcher BlobFetcher) *Conn {
	cfg.fillDefaults()
	return &Conn{
		cfg:       cfg,
		transport: st,
		fetcher:   fetcher,
	}
}

// Config returns the session configuration.
func (c *Conn) Config() *Config {
	return c.cfg
}

// NewCursor returns a cursor bound to this session.
func (c *Conn) NewCursor() *Cursor {
	return &Cursor{conn: c, rowCount: -1}
}

// Close tears down the server-side session. Further statements fail with an
// invalid-connection condition.
func (c *Conn) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	logger.WithContext(ctx).Info("closing session")
	return c.transport.DeleteSession(ctx)
}

func (c *Conn) isClosed() bool {
	return atomic.LoadInt32(&c.closed) != 0
}

// resultFormatRequest resolves the wire format to ask the server for. The
// columnar format is requested only when this process can decode it.
func (c *Conn) resultFormatRequest() string {
	switch c.cfg.ResultFormat {
	case string(jsonFormat):
		return string(jsonFormat)
	case string(arrowFormat):
		return string(arrowFormat)
	}
	if registeredColumnarDecoder != nil && c.cfg.ClientCategory != ClientCategorySQLShell {
		return string(arrowFormat)
	}
	return string(jsonFormat)
}

type execOptions struct {
	describeOnly bool
	asyncExec    bool
	isInternal   bool
	bindings     map[string]execBindParameter
	bindStage    string
}

// exec submits one statement and returns the raw server response. A failed
// response is turned into a BorealError classed by its SQLState.
func (c *Conn) exec(ctx context.Context, query string, opts execOptions) (*execResponse, error) {
	if c.isClosed() {
		return nil, errInvalidConn
	}
	params := make(map[string]interface{})
	params[sessionParamQueryResultFormat] = c.resultFormatRequest()
	if c.cfg.Timezone != nil {
		params[sessionParamTimezone] = c.cfg.Timezone.String()
	}
	if c.cfg.Application != "" {
		params[sessionParamApplication] = c.cfg.Application
	}
	for k, v := range c.cfg.Params {
		if v != nil {
			params[k] = *v
		}
	}
	req := &execRequest{
		SQLText:      query,
		AsyncExec:    opts.asyncExec,
		SequenceID:   atomic.AddUint64(&c.sequence, 1),
		IsInternal:   opts.isInternal,
		DescribeOnly: opts.describeOnly,
		Parameters:   params,
		Bindings:     opts.bindings,
		BindStage:    opts.bindStage,
	}
	logger.WithContext(ctx).Infof("exec: sequence: %v, describeOnly: %v, async: %v",
		req.SequenceID, req.DescribeOnly, req.AsyncExec)
	respd, err := c.transport.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if !respd.Success {
		code := -1
		if respd.Code != "" {
			if n, convErr := strconv.Atoi(respd.Code); convErr == nil {
				code = n
			}
		}
		logger.WithContext(ctx).Errorf("statement failed. code: %v, state: %v", code, respd.Data.SQLState)
		return nil, &BorealError{
			Number:         code,
			SQLState:       respd.Data.SQLState,
			Class:          classifyServerError(respd.Data.SQLState),
			Message:        respd.Message,
			QueryID:        respd.Data.QueryID,
			IncludeQueryID: true,
		}
	}
	return respd, nil
}

// buildResultSet materializes the batch layout of a successful statement
// response, ready for ordered consumption with background prefetch.
func (c *Conn) buildResultSet(ctx context.Context, data *execResponseData) *ResultSet {
	return newResultSet(ctx, data, c.fetcher, c.cfg)
}

// QueryStatus returns the current server-side status of a previously
// submitted query.
func (c *Conn) QueryStatus(ctx context.Context, queryID string) (QueryStatus, error) {
	if c.isClosed() {
		return QueryStatusNoData, errInvalidConn
	}
	return c.transport.PollStatus(ctx, queryID)
}

// WaitForQueryCompletion polls queryID until it reaches a terminal state,
// using the default interval and attempt budget.
func (c *Conn) WaitForQueryCompletion(ctx context.Context, queryID string) error {
	if c.isClosed() {
		return errInvalidConn
	}
	return waitForQueryCompletion(ctx, c.transport, queryID, defaultPollInterval, defaultPollBudget)
}
