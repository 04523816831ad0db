// Package ipfs is a thin client for the kubo HTTP RPC API, covering the
// subset the propagation engine needs: add, ls, name publish and key
// management.
package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
)

// The RPC accepts everything as POST with query-string arguments.
const apiPrefix = "/api/v0/"

type Client struct {
	endpoint string
	http     *http.Client
}

func New(endpoint string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		// Add calls on big batches legitimately run long, so the
		// client itself has no deadline. Liveness checks pass their
		// own short context instead.
		http: &http.Client{},
	}
}

func (c *Client) post(ctx context.Context, command string, args url.Values, body io.Reader, contentType string) (*http.Response, error) {
	u := c.endpoint + apiPrefix + command
	if len(args) > 0 {
		u += "?" + args.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs rpc call %s failed, %w", command, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

		var rpcErr struct {
			Message string `json:"Message"`
		}
		if json.Unmarshal(msg, &rpcErr) == nil && rpcErr.Message != "" {
			return nil, fmt.Errorf("ipfs rpc %s: %s", command, rpcErr.Message)
		}

		return nil, fmt.Errorf("ipfs rpc %s: unexpected status %d", command, resp.StatusCode)
	}

	return resp, nil
}

// Version probes the node. Used as a liveness check, so the timeout is
// short regardless of what the caller passes in.
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := c.post(ctx, "version", nil, nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Version string `json:"Version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode version response, %w", err)
	}

	return out.Version, nil
}

// ToV1 converts any valid CID string to its v1 base32 form. v1 input
// passes through re-encoded.
func ToV1(s string) (string, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("invalid cid %q, %w", s, err)
	}

	return cid.NewCidV1(c.Type(), c.Hash()).String(), nil
}

// Valid reports whether s parses as a CID.
func Valid(s string) bool {
	_, err := cid.Decode(s)
	return err == nil
}
