package goboreal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	queryRequestPath   = "/queries/v1/query-request"
	statusRequestPath  = "/monitoring/queries/"
	sessionRequestPath = "/session"
	stageRequestPath   = "/stage/v1/bindings"

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerUserAgent     = "User-Agent"

	headerContentTypeApplicationJSON = "application/json"
	headerAcceptTypeApplicationJSON  = "application/json"
)

// SessionTransport carries statement and monitoring requests for one session.
// The driver core is transport-agnostic; tests substitute an in-memory
// implementation.
type SessionTransport interface {
	// Submit sends a statement for execution and returns the server response.
	// With req.AsyncExec set the response carries a query ID and no rows.
	Submit(ctx context.Context, req *execRequest) (*execResponse, error)
	// PollStatus returns the current server-side status of a query.
	PollStatus(ctx context.Context, queryID string) (QueryStatus, error)
	// UploadBindings stages serialized bulk bindings and returns the stage
	// path to reference from the statement request.
	UploadBindings(ctx context.Context, data []byte) (string, error)
	// DeleteSession tears down the server-side session.
	DeleteSession(ctx context.Context) error
}

// BlobFetcher retrieves result chunk blobs from the URLs named in a statement
// response. Chunk URLs are pre-signed; the fetcher sends only the headers the
// response dictates.
type BlobFetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error)
}

type statusQueryRecord struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type statusResponseData struct {
	Queries []statusQueryRecord `json:"queries"`
}

type statusResponse struct {
	Data    statusResponseData `json:"data"`
	Message string             `json:"message"`
	Code    string             `json:"code"`
	Success bool               `json:"success"`
}

type stageResponse struct {
	Data struct {
		StageLocation string `json:"stageLocation"`
	} `json:"data"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Success bool   `json:"success"`
}

// httpTransport is the production SessionTransport over HTTP.
type httpTransport struct {
	cfg    *Config
	client *http.Client
}

func newHTTPTransport(cfg *Config) *httpTransport {
	return &httpTransport{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

func (st *httpTransport) baseURL() *url.URL {
	return &url.URL{
		Scheme: st.cfg.Protocol,
		Host:   st.cfg.Host + ":" + strconv.Itoa(st.cfg.Port),
	}
}

func (st *httpTransport) setCommonHeaders(req *http.Request) {
	req.Header.Set(headerContentType, headerContentTypeApplicationJSON)
	req.Header.Set(headerAccept, headerAcceptTypeApplicationJSON)
	req.Header.Set(headerUserAgent, userAgent())
	if st.cfg.Token != "" {
		req.Header.Set(headerAuthorization, fmt.Sprintf("Boreal Token=\"%v\"", st.cfg.Token))
	}
}

func (st *httpTransport) post(ctx context.Context, fullURL string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	st.setCommonHeaders(req)
	resp, err := st.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		logger.WithContext(ctx).Errorf("failed to post request. HTTP: %v, URL: %v", resp.StatusCode, fullURL)
		return nil, fmt.Errorf("failed to post request. HTTP: %v", resp.StatusCode)
	}
	return respBody, nil
}

func (st *httpTransport) get(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	st.setCommonHeaders(req)
	resp, err := st.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		logger.WithContext(ctx).Errorf("failed to get request. HTTP: %v, URL: %v", resp.StatusCode, fullURL)
		return nil, fmt.Errorf("failed to get request. HTTP: %v", resp.StatusCode)
	}
	return respBody, nil
}

func (st *httpTransport) Submit(ctx context.Context, execReq *execRequest) (*execResponse, error) {
	requestID := uuid.New()
	u := st.baseURL()
	u.Path = queryRequestPath
	u.RawQuery = url.Values{
		"requestId": {requestID.String()},
	}.Encode()

	body, err := json.Marshal(execReq)
	if err != nil {
		return nil, err
	}
	logger.WithContext(ctx).Infof("submitting statement. requestID: %v", requestID)
	respBody, err := st.post(ctx, u.String(), body)
	if err != nil {
		return nil, err
	}
	var respd execResponse
	if err = json.Unmarshal(respBody, &respd); err != nil {
		logger.WithContext(ctx).Errorf("failed to decode JSON. err: %v", err)
		return nil, err
	}
	return &respd, nil
}

func (st *httpTransport) PollStatus(ctx context.Context, queryID string) (QueryStatus, error) {
	u := st.baseURL()
	u.Path = statusRequestPath + queryID
	respBody, err := st.get(ctx, u.String())
	if err != nil {
		return QueryStatusNoData, err
	}
	var respd statusResponse
	if err = json.Unmarshal(respBody, &respd); err != nil {
		logger.WithContext(ctx).Errorf("failed to decode JSON. err: %v", err)
		return QueryStatusNoData, err
	}
	if !respd.Success {
		return QueryStatusNoData, &BorealError{
			Number:      ErrQueryStatus,
			SQLState:    SQLStateConnectionFailure,
			Class:       ClassOperational,
			QueryID:     queryID,
			Message:     errMsgQueryStatus,
			MessageArgs: []interface{}{respd.Code, respd.Message},
		}
	}
	if len(respd.Data.Queries) == 0 {
		return QueryStatusNoData, nil
	}
	q := respd.Data.Queries[0]
	status := strToQueryStatus(q.Status)
	if status.isError() {
		code := 0
		if q.ErrorCode != "" {
			if c, convErr := strconv.Atoi(q.ErrorCode); convErr == nil {
				code = c
			}
		}
		return status, &BorealError{
			Number:      ErrQueryReportedError,
			SQLState:    SQLStateConnectionFailure,
			Class:       ClassOperational,
			QueryID:     queryID,
			Message:     errMsgQueryReportedError,
			MessageArgs: []interface{}{code, q.ErrorMessage},
		}
	}
	return status, nil
}

func (st *httpTransport) UploadBindings(ctx context.Context, data []byte) (string, error) {
	requestID := uuid.New()
	u := st.baseURL()
	u.Path = stageRequestPath
	u.RawQuery = url.Values{
		"requestId": {requestID.String()},
	}.Encode()
	respBody, err := st.post(ctx, u.String(), data)
	if err != nil {
		return "", err
	}
	var respd stageResponse
	if err = json.Unmarshal(respBody, &respd); err != nil {
		return "", err
	}
	if !respd.Success {
		return "", fmt.Errorf("failed to upload bindings. code: %v, message: %v", respd.Code, respd.Message)
	}
	return respd.Data.StageLocation, nil
}

func (st *httpTransport) DeleteSession(ctx context.Context) error {
	u := st.baseURL()
	u.Path = sessionRequestPath
	u.RawQuery = url.Values{
		"delete":    {"true"},
		"requestId": {uuid.New().String()},
	}.Encode()
	_, err := st.post(ctx, u.String(), []byte("{}"))
	return err
}

// httpBlobFetcher retrieves chunk blobs with a dedicated client so that large
// downloads are not bounded by the statement request timeout.
type httpBlobFetcher struct {
	client *http.Client
}

func newHTTPBlobFetcher() *httpBlobFetcher {
	return &httpBlobFetcher{
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (f *httpBlobFetcher) Fetch(ctx context.Context, fullURL string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch chunk. HTTP: %v, URL: %v", resp.StatusCode, fullURL)
	}
	return resp.Body, nil
}

func userAgent() string {
	return "GoBoreal/" + BorealGoDriverVersion
}
