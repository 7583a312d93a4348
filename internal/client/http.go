// ABOUTME: HTTP calls against a recorder's control API
// ABOUTME: Capture control, transcode requests and status
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/protocol"
)

type httpClient struct {
	base string
	hc   *http.Client
}

func newHTTPClient(addr string) *httpClient {
	return &httpClient{
		base: "http://" + addr,
		hc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("recorder returned %d: %s", e.Code, e.Message)
}

func (h *httpClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var perr protocol.Error
		json.NewDecoder(resp.Body).Decode(&perr)
		return &APIError{Code: resp.StatusCode, Message: perr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// StartCapture arms a capture on the recorder
func (c *Client) StartCapture(ctx context.Context) (protocol.CaptureStarted, error) {
	var out protocol.CaptureStarted
	err := c.http.do(ctx, http.MethodPost, "/capture/start", nil, &out)
	return out, err
}

// StopCapture finalizes the running capture
func (c *Client) StopCapture(ctx context.Context) (protocol.Record, error) {
	var out protocol.Record
	err := c.http.do(ctx, http.MethodPost, "/capture/stop", nil, &out)
	return out, err
}

// StopAndTranscode finalizes the running capture and queues its transcode
func (c *Client) StopAndTranscode(ctx context.Context, req protocol.TranscodeRequest) (protocol.JobResponse, error) {
	var out protocol.JobResponse
	err := c.http.do(ctx, http.MethodPost, "/capture/stop", req, &out)
	return out, err
}

// Transcode queues a transcode of a file on the recorder's host
func (c *Client) Transcode(ctx context.Context, req protocol.TranscodeRequest) (protocol.JobResponse, error) {
	var out protocol.JobResponse
	err := c.http.do(ctx, http.MethodPost, "/transcode", req, &out)
	return out, err
}

// Status fetches the capture state and jobs
func (c *Client) Status(ctx context.Context) (protocol.Status, error) {
	var out protocol.Status
	err := c.http.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}
