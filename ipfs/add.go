package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strconv"
)

// AddItem is one file handed to Add/AddAll. Path is the relative path
// inside the batch, including the file name.
type AddItem struct {
	Path    string
	Content []byte
}

// AddResult is one entry of the add stream. An empty Path denotes the
// wrapping directory when wrap-with-directory was requested.
type AddResult struct {
	Path string
	CID  string
	Size int64
}

// Add pushes a single file and returns its CID and size.
func (c *Client) Add(ctx context.Context, path string, content []byte) (*AddResult, error) {
	results, err := c.AddAll(ctx, []AddItem{{Path: path, Content: content}}, false)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("ipfs add returned no entries for %s", path)
	}

	return &results[len(results)-1], nil
}

// AddAll pushes a batch of files in one request. With wrap enabled the
// node emits one extra entry whose path is empty: the synthetic parent
// directory representing the whole batch. Intermediate directories
// implied by the item paths get entries of their own as well.
func (c *Client) AddAll(ctx context.Context, items []AddItem, wrap bool) ([]AddResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, item := range items {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+url.QueryEscape(item.Path)+`"`)
		h.Set("Content-Type", "application/octet-stream")
		h.Set("Abspath", item.Path)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to build multipart body, %w", err)
		}
		if _, err := part.Write(item.Content); err != nil {
			return nil, fmt.Errorf("failed to write multipart body, %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body, %w", err)
	}

	args := url.Values{}
	args.Set("cid-version", "0")
	args.Set("wrap-with-directory", strconv.FormatBool(wrap))
	args.Set("pin", "true")

	resp, err := c.post(ctx, "add", args, &buf, w.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The node streams one JSON object per line as files finish
	var (
		results []AddResult
		dec     = json.NewDecoder(resp.Body)
	)

	for {
		var entry struct {
			Name string `json:"Name"`
			Hash string `json:"Hash"`
			Size string `json:"Size"`
		}

		if err := dec.Decode(&entry); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode add stream, %w", err)
		}

		size, _ := strconv.ParseInt(entry.Size, 10, 64)

		name, err := url.QueryUnescape(entry.Name)
		if err != nil {
			name = entry.Name
		}

		results = append(results, AddResult{
			Path: name,
			CID:  entry.Hash,
			Size: size,
		})
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("ipfs add returned an empty stream")
	}

	return results, nil
}

// LsEntry is one child of a directory CID.
type LsEntry struct {
	Name string
	CID  string
	Size int64
	Dir  bool
}

// Ls lists the immediate children of a directory CID.
func (c *Client) Ls(ctx context.Context, cidStr string) ([]LsEntry, error) {
	args := url.Values{}
	args.Set("arg", cidStr)

	resp, err := c.post(ctx, "ls", args, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Objects []struct {
			Links []struct {
				Name string `json:"Name"`
				Hash string `json:"Hash"`
				Size int64  `json:"Size"`
				Type int    `json:"Type"`
			} `json:"Links"`
		} `json:"Objects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ls response, %w", err)
	}

	var entries []LsEntry
	for _, obj := range out.Objects {
		for _, link := range obj.Links {
			entries = append(entries, LsEntry{
				Name: link.Name,
				CID:  link.Hash,
				Size: link.Size,
				Dir:  link.Type == 1,
			})
		}
	}

	return entries, nil
}
