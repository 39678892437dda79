package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a notedrop server's JSON API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an API client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// APIError is a non-transport failure reported by the server's
// {ok:false, error} envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type SubmitResponse struct {
	OK             bool   `json:"ok"`
	Ref            string `json:"ref"`
	ReceiptURL     string `json:"receiptUrl"`
	Message        string `json:"message"`
	Counter        int64  `json:"counter"`
	RemainingToday int    `json:"remainingToday"`
	Error          string `json:"error"`
}

type ReceiptResponse struct {
	OK          bool   `json:"ok"`
	Ref         string `json:"ref"`
	Timestamp   string `json:"timestamp"`
	Message     string `json:"message"`
	Fingerprint string `json:"fingerprint"`
	Error       string `json:"error"`
}

type VerifyResponse struct {
	OK    bool   `json:"ok"`
	Ref   string `json:"ref"`
	Match bool   `json:"match"`
	Error string `json:"error"`
}

type CounterResponse struct {
	OK      bool   `json:"ok"`
	Counter int64  `json:"counter"`
	Error   string `json:"error"`
}

// Submit sends a note and returns the issued receipt details.
func (c *Client) Submit(ctx context.Context, note string) (*SubmitResponse, error) {
	var out SubmitResponse
	if err := c.post(ctx, "/api/submit", map[string]string{"note": note}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Receipt fetches receipt metadata by reference.
func (c *Client) Receipt(ctx context.Context, ref string) (*ReceiptResponse, error) {
	var out ReceiptResponse
	if err := c.get(ctx, "/api/receipt/"+url.PathEscape(ref), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks the server whether text matches the fingerprint of a receipt.
func (c *Client) Verify(ctx context.Context, ref, note string) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.post(ctx, "/api/verify", map[string]string{"ref": ref, "note": note}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Counter fetches the public all-time submission counter.
func (c *Client) Counter(ctx context.Context) (*CounterResponse, error) {
	var out CounterResponse
	if err := c.get(ctx, "/api/counter", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// envelope is the minimal shape shared by all API responses.
type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.OK {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}

	if err := json.Unmarshal(buf.Bytes(), out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
