// Package bitable implements the upload transport client: one bounded
// batch of normalized records per network call to the remote table's
// batch-create endpoint.
package bitable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/lark"
)

// RecordFields maps one tracked record onto the remote table's columns.
type RecordFields struct {
	Summary   string `json:"Summary"`
	StartTime int64  `json:"Start Time"`
	EndTime   int64  `json:"End Time"`
	Person    string `json:"Person"`
}

// Result is the structured outcome of one batch-create call. OK reports
// transport-level success (HTTP 200); Code is the application-level code
// from the response envelope, where 0 means the batch was accepted.
type Result struct {
	OK      bool
	Code    int
	Msg     string
	Created int
}

// Success reports whether the batch was wholly accepted by the remote
// table: transport success with application code zero.
func (r Result) Success() bool {
	return r.OK && r.Code == 0
}

// Client uploads record batches to one table, authenticating each call
// with a tenant token from the shared token source.
type Client struct {
	baseURL  string
	appToken string
	tableID  string
	tokens   *lark.TokenSource
	httpc    *http.Client
	log      *zap.Logger
}

// NewClient creates an upload client for the table identified by appToken
// and tableID. If httpc is nil a client with a 30 second timeout is used.
func NewClient(baseURL, appToken, tableID string, tokens *lark.TokenSource, httpc *http.Client, log *zap.Logger) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:  baseURL,
		appToken: appToken,
		tableID:  tableID,
		tokens:   tokens,
		httpc:    httpc,
		log:      log,
	}
}

type batchCreateRequest struct {
	Records []recordEnvelope `json:"records"`
}

type recordEnvelope struct {
	Fields RecordFields `json:"fields"`
}

type batchCreateResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Records []struct {
			RecordID string `json:"record_id"`
		} `json:"records"`
	} `json:"data"`
}

// BatchCreate performs a single batch-create call for the given records.
//
// The returned error covers transport-level failures only (token refresh,
// connection, timeout, unreadable response). HTTP and application-level
// rejections come back in the Result so the caller can extract the message;
// a non-Success result fails the whole batch, as the endpoint does not
// report per-record outcomes.
func (c *Client) BatchCreate(ctx context.Context, records []RecordFields) (Result, error) {
	if len(records) == 0 {
		return Result{OK: true}, nil
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to acquire tenant token: %w", err)
	}

	payload := batchCreateRequest{Records: make([]recordEnvelope, 0, len(records))}
	for _, r := range records {
		payload.Records = append(payload.Records, recordEnvelope{Fields: r})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal batch: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bitable/v1/apps/%s/tables/%s/records/batch_create",
		c.baseURL, url.PathEscape(c.appToken), url.PathEscape(c.tableID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	c.log.Debug("uploading batch", zap.Int("records", len(records)))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("batch create request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a little of the body for the failure message; the
		// payload is diagnostic only at this point.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{
			OK:   false,
			Code: -1,
			Msg:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)),
		}, nil
	}

	var out batchCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("failed to decode batch create response: %w", err)
	}

	return Result{
		OK:      true,
		Code:    out.Code,
		Msg:     out.Msg,
		Created: len(out.Data.Records),
	}, nil
}
