package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/calendar"
)

// Calendar is one entry from the calendar list endpoint.
type Calendar struct {
	CalendarID string `json:"calendar_id"`
	Summary    string `json:"summary"`
	Type       string `json:"type"`
	Role       string `json:"role"`
}

// Client fetches calendars and events from the Lark calendar API on behalf
// of a user, authenticated with the user's OAuth access token.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *zap.Logger
}

// NewClient creates a calendar API client. If httpc is nil a client with a
// 30 second timeout is used.
func NewClient(baseURL string, httpc *http.Client, log *zap.Logger) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{baseURL: baseURL, httpc: httpc, log: log}
}

// ListCalendars returns the calendars visible to the user token.
func (c *Client) ListCalendars(ctx context.Context, userToken string) ([]Calendar, error) {
	var out struct {
		Data struct {
			CalendarList []Calendar `json:"calendar_list"`
		} `json:"data"`
	}

	endpoint := c.baseURL + "/calendar/v4/calendars"
	if err := c.getJSON(ctx, endpoint, userToken, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	return out.Data.CalendarList, nil
}

// ListEvents returns the raw events of one calendar within [from, to].
// The API is queried with epoch-second bounds and a single large page;
// the sync window is small enough that pagination is not needed.
func (c *Client) ListEvents(ctx context.Context, userToken, calendarID string, from, to time.Time) ([]calendar.RawEvent, error) {
	var out struct {
		Data struct {
			Items []calendar.RawEvent `json:"items"`
		} `json:"data"`
	}

	params := url.Values{}
	params.Set("page_size", "1000")
	params.Set("start_time", strconv.FormatInt(from.Unix(), 10))
	params.Set("end_time", strconv.FormatInt(to.Unix(), 10))

	endpoint := c.baseURL + "/calendar/v4/calendars/" + url.PathEscape(calendarID) + "/events"
	if err := c.getJSON(ctx, endpoint, userToken, params, &out); err != nil {
		return nil, fmt.Errorf("failed to list events for %s: %w", calendarID, err)
	}

	return out.Data.Items, nil
}

// getJSON performs an authenticated GET and decodes the standard Lark
// envelope, treating non-200 status or a non-zero envelope code as failure.
func (c *Client) getJSON(ctx context.Context, endpoint, userToken string, params url.Values, out interface{}) error {
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+userToken)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// Decode the envelope code first, then the caller's shape from the
	// same payload.
	var envelope struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("API error: code=%d msg=%s", envelope.Code, envelope.Msg)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
