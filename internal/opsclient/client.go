// Package opsclient is a small Go SDK for talking to one vault node's
// HTTP surface, the library vaultctl is built on.
package opsclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/safevault/vault/internal/ids"
)

// Client talks to exactly one node. It does not itself resolve which
// node owns a given key — that is the Data Manager's job once the
// request lands.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client against baseURL (e.g. "http://localhost:8080").
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// PutResponse is returned after a successful Put.
type PutResponse struct {
	Cost uint64 `json:"cost"`
}

// GetAcceptedResponse is returned when a Get has been issued but not
// yet resolved; vaultctl reports the message id.
type GetAcceptedResponse struct {
	MessageID ids.MessageID `json:"message_id"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("opsclient: marshal: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("opsclient: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opsclient: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("opsclient: %s %s: HTTP %d: %s", method, path, resp.StatusCode, raw)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ParseDataID decodes a hex-encoded data id as produced by
// ids.DataID.MarshalText.
func ParseDataID(s string) (ids.DataID, error) {
	var d ids.DataID
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != ids.Width {
		return d, fmt.Errorf("opsclient: invalid data id %q", s)
	}
	copy(d[:], raw)
	return d, nil
}

// Put stores content under dataID/tag, naming candidate as the
// preferred initial holder if this node is closest to dataID (the
// zero HolderID lets the Placement Engine choose freely).
func (c *Client) Put(ctx context.Context, dataID ids.DataID, tag ids.TypeTag, content []byte, candidate ids.HolderID) (*PutResponse, error) {
	var out PutResponse
	body := map[string]any{
		"data_id":   dataID,
		"tag":       tag,
		"content":   content,
		"candidate": candidate,
	}
	if err := c.do(ctx, http.MethodPost, "/dm/put", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get issues a read for dataID/tag, returning the message id the node
// assigned the in-flight Get Operation.
func (c *Client) Get(ctx context.Context, dataID ids.DataID, tag ids.TypeTag, requestor ids.HolderID) (*GetAcceptedResponse, error) {
	var out GetAcceptedResponse
	body := map[string]any{"data_id": dataID, "tag": tag, "requestor": requestor}
	if err := c.do(ctx, http.MethodPost, "/dm/get", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete drops one reference to dataID/tag.
func (c *Client) Delete(ctx context.Context, dataID ids.DataID, tag ids.TypeTag) error {
	body := map[string]any{"data_id": dataID, "tag": tag}
	return c.do(ctx, http.MethodPost, "/dm/delete", body, nil)
}

// Nodes fetches the node's /healthz report (its status and node id).
func (c *Client) Nodes(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
