// Package remote talks to the spreadsheet-backed web app that stores visits,
// gyms and chat. Every call swallows its failure at this boundary: fetches
// return nil and mutations return false.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sadopc/cragboard/internal/board"
)

// JSONPTimeout bounds the fallback chat transport.
const JSONPTimeout = 10 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 8 << 20

// Config holds the endpoints and transport settings.
type Config struct {
	VisitsURL string
	GymsURL   string
	ChatURL   string
	ChatName  string
	ChatSheet string

	HTTP   *http.Client
	Logger *slog.Logger
}

// Client implements board.VisitAPI, board.GymAPI and board.ChatAPI.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var (
	_ board.VisitAPI = (*Client)(nil)
	_ board.GymAPI   = (*Client)(nil)
	_ board.ChatAPI  = (*Client)(nil)
)

// New creates a client. A nil HTTP client gets a 30 second timeout.
func New(cfg Config) *Client {
	hc := cfg.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: hc, logger: logger.With("component", "remote")}
}

// FetchVisits returns the visits snapshot, or nil on failure.
func (c *Client) FetchVisits(ctx context.Context) []board.VisitEvent {
	var payload any
	if err := c.getJSON(ctx, c.cfg.VisitsURL, nil, &payload); err != nil {
		c.logger.Debug("fetch visits failed", "error", err)
		return nil
	}
	return board.NormalizeVisits(listOf(payload))
}

// CreateVisit posts a new visit. The name carries the unsure mark.
func (c *Client) CreateVisit(ctx context.Context, v board.VisitEvent) bool {
	return c.post(ctx, c.cfg.VisitsURL, map[string]any{
		"date":   v.Date,
		"name":   v.SheetName(),
		"gym":    v.Gym,
		"time":   v.Time,
		"unsure": v.Unsure,
	})
}

// DeleteVisit asks the server to delete a sheet row.
func (c *Client) DeleteVisit(ctx context.Context, row string) bool {
	var rowValue any = row
	if n, err := strconv.Atoi(row); err == nil {
		rowValue = n
	}
	return c.post(ctx, c.cfg.VisitsURL, map[string]any{"action": "delete", "row": rowValue})
}

// FetchGyms returns the gym catalog, or nil on failure.
func (c *Client) FetchGyms(ctx context.Context) []board.GymEntry {
	var payload any
	if err := c.getJSON(ctx, c.cfg.GymsURL, url.Values{"action": {"list"}}, &payload); err != nil {
		c.logger.Debug("fetch gyms failed", "error", err)
		return nil
	}
	return board.NormalizeGyms(listOf(payload))
}

// SaveGym posts a gym without its local bookkeeping fields.
func (c *Client) SaveGym(ctx context.Context, g board.GymEntry) bool {
	details := g.Details
	if details == nil {
		details = map[string]any{}
	}
	return c.post(ctx, c.cfg.GymsURL, map[string]any{
		"action": "saveGym",
		"gym": map[string]any{
			"id":      g.ID,
			"name":    g.Name,
			"icon":    g.Icon,
			"details": details,
		},
	})
}

type chatPage struct {
	Items      []any `json:"items"`
	NextOffset any   `json:"nextOffset"`
	HasMore    any   `json:"hasMore"`
	Total      any   `json:"total"`
}

// FetchChat loads one page of chat, newest first by offset. When the plain
// request fails it retries once through the JSONP endpoint.
func (c *Client) FetchChat(ctx context.Context, offset, limit int) (board.ChatChunk, bool) {
	params := url.Values{
		"mode":     {"chat"},
		"chatName": {c.cfg.ChatName},
		"sheet":    {c.cfg.ChatSheet},
		"offset":   {strconv.Itoa(offset)},
		"limit":    {strconv.Itoa(limit)},
	}

	var page chatPage
	if err := c.getJSON(ctx, c.cfg.ChatURL, params, &page); err != nil {
		c.logger.Debug("fetch chat failed, trying jsonp", "error", err)
		page = chatPage{}
		if err := c.getJSONP(ctx, c.cfg.ChatURL, params, &page); err != nil {
			c.logger.Debug("fetch chat via jsonp failed", "error", err)
			return board.ChatChunk{}, false
		}
	}

	items := board.NormalizeChat(page.Items)
	next := toInt(page.NextOffset)
	if next == 0 {
		next = offset + len(page.Items)
	}
	return board.ChatChunk{
		Items:      items,
		NextOffset: next,
		HasMore:    board.Truthy(page.HasMore),
		Total:      toInt(page.Total),
	}, true
}

// SendChat posts a message with its client id so the server echoes it back.
func (c *Client) SendChat(ctx context.Context, m board.ChatMessage) bool {
	return c.post(ctx, c.cfg.ChatURL, map[string]any{
		"action":     "chat_send",
		"sheet":      c.cfg.ChatSheet,
		"chat_name":  c.cfg.ChatName,
		"message_id": m.ID,
		"author":     m.Author,
		"text":       m.Text,
	})
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, v any) error {
	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("no endpoint configured")
	}
	u, err := withQuery(endpoint, params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: %s", endpoint, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// post sends payload as text/plain JSON, the only content type the web app
// accepts without a preflight. Any 2xx answer counts as success.
func (c *Client) post(ctx context.Context, endpoint string, payload any) bool {
	if endpoint == "" {
		return false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("encode request failed", "error", err)
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		c.logger.Warn("build request failed", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("post failed", "endpoint", endpoint, "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("post rejected", "endpoint", endpoint, "status", resp.Status)
		return false
	}
	return true
}

func withQuery(endpoint string, params url.Values) (string, error) {
	if len(params) == 0 {
		return endpoint, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// listOf accepts either a bare array or an object wrapping it in "items".
func listOf(payload any) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		for _, k := range []string{"items", "data", "events"} {
			if list, ok := v[k].([]any); ok {
				return list
			}
		}
	}
	return []any{}
}

func toInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	}
	return 0
}
