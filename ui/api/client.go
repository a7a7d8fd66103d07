// Package api talks to the support-chat backend's REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTimeout = 10 * time.Second
	userAgent      = "supportdesk/1.0"
	maxErrorBody   = 512
)

// ErrDecode wraps every failure to parse a response body.
var ErrDecode = errors.New("decode response")

// StatusError is returned when the backend answers with a status the call
// cannot use.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.getJSON(ctx, "/api/stats", &out)
	return out, err
}

func (c *Client) Chats(ctx context.Context) ([]ChatSummary, error) {
	var out []ChatSummary
	if err := c.getJSON(ctx, "/api/chats", &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []ChatSummary{}
	}
	return out, nil
}

func (c *Client) Messages(ctx context.Context, userID int64) ([]Message, error) {
	var out []Message
	if err := c.getJSON(ctx, "/api/messages/"+strconv.FormatInt(userID, 10), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Message{}
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, userID int64, text string) (SendResult, error) {
	return c.postSend(ctx, "/api/send_message", sendMessageRequest{UserID: userID, MessageText: text})
}

func (c *Client) SendReply(ctx context.Context, messageID string, text string) (SendResult, error) {
	return c.postSend(ctx, "/api/send_reply", sendReplyRequest{MessageID: messageID, ReplyText: text})
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, reqID, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: read body: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: http.MethodGet, Path: path, Status: resp.StatusCode, Body: clip(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Debug("api.decode_failed", "path", path, "request_id", reqID, "error", err)
		return fmt.Errorf("%w: GET %s: %v", ErrDecode, path, err)
	}
	return nil
}

// postSend decodes the body whatever the status: the backend reports
// rejected sends as {success:false,error} with a 4xx/5xx code.
func (c *Client) postSend(ctx context.Context, path string, body any) (SendResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return SendResult{}, err
	}
	resp, reqID, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return SendResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, fmt.Errorf("POST %s: read body: %w", path, err)
	}
	var out SendResult
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return SendResult{}, &StatusError{Method: http.MethodPost, Path: path, Status: resp.StatusCode, Body: clip(raw)}
		}
		c.log.Debug("api.decode_failed", "path", path, "request_id", reqID, "error", err)
		return SendResult{}, fmt.Errorf("%w: POST %s: %v", ErrDecode, path, err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body []byte) (*http.Response, string, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, "", err
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, reqID, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.log.Debug("api.request", "method", method, "path", path, "status", resp.StatusCode, "request_id", reqID, "elapsed", time.Since(start))
	return resp, reqID, nil
}

func clip(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
