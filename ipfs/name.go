package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Key is one name-network keypair known to the node.
type Key struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

// PublishResult is the outcome of a name publish: the IPNS name and the
// path it now resolves to.
type PublishResult struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// IsKeyNotFound matches the node's "no key by the given name was found"
// failure, which the naming publisher self-heals by regenerating the key.
func IsKeyNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no key by the given name")
}

// NamePublish points the IPNS name owned by key at the given CID.
func (c *Client) NamePublish(ctx context.Context, cidStr, key string) (*PublishResult, error) {
	args := url.Values{}
	args.Set("arg", "/ipfs/"+cidStr)
	args.Set("key", key)
	args.Set("resolve", "false")

	resp, err := c.post(ctx, "name/publish", args, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out PublishResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode publish response, %w", err)
	}

	return &out, nil
}

// KeyList returns every key present on the node.
func (c *Client) KeyList(ctx context.Context) ([]Key, error) {
	resp, err := c.post(ctx, "key/list", nil, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Keys []Key `json:"Keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode key list response, %w", err)
	}

	return out.Keys, nil
}

// KeyGen creates a new key under the given name.
func (c *Client) KeyGen(ctx context.Context, name string) (*Key, error) {
	args := url.Values{}
	args.Set("arg", name)
	args.Set("type", "rsa")
	args.Set("size", "2048")

	resp, err := c.post(ctx, "key/gen", args, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out Key
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode key gen response, %w", err)
	}

	return &out, nil
}
