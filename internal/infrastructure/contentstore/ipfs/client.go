// Package ipfs implements the content store contract against the Kubo RPC
// API. Content is addressed by CID; publishing places a copy-on-write
// reference under the mutable files (MFS) tree so operators can browse
// custodied content by owner.
package ipfs

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/trustdoc/custody/internal/core/domain"
)

type Client struct {
	baseURL    string
	httpClient httpDoer
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(60 * time.Second),
	}
}

// Add stores data and returns its content address. Byte-identical content
// always yields the same address; callers must not assume a fresh one.
func (c *Client) Add(ctx context.Context, data []byte) (string, error) {
	query := url.Values{}
	query.Set("pin", "false")
	query.Set("cid-version", "0")

	var response struct {
		Hash string `json:"Hash"`
	}
	if err := c.postFile(ctx, "/api/v0/add", query, data, &response, "add"); err != nil {
		return "", domain.WrapError(domain.ErrContentStore, "ipfs add", err)
	}
	if response.Hash == "" {
		return "", domain.WrapError(domain.ErrContentStore, "ipfs add", errEmptyHash)
	}
	return response.Hash, nil
}

func (c *Client) Pin(ctx context.Context, address string) error {
	query := url.Values{}
	query.Set("arg", address)
	if err := c.post(ctx, "/api/v0/pin/add", query, nil, "pin"); err != nil {
		return domain.WrapError(domain.ErrContentStore, "ipfs pin", err)
	}
	return nil
}

// Publish exposes address under an MFS path. Re-publishing the same path is
// not an error.
func (c *Client) Publish(ctx context.Context, address, mfsPath string) error {
	dirQuery := url.Values{}
	dirQuery.Set("arg", path.Dir(mfsPath))
	dirQuery.Set("parents", "true")
	if err := c.post(ctx, "/api/v0/files/mkdir", dirQuery, nil, "mkdir"); err != nil && !isAlreadyExists(err) {
		return domain.WrapError(domain.ErrContentStore, "ipfs files mkdir", err)
	}

	cpQuery := url.Values{}
	cpQuery.Add("arg", "/ipfs/"+address)
	cpQuery.Add("arg", mfsPath)
	if err := c.post(ctx, "/api/v0/files/cp", cpQuery, nil, "cp"); err != nil && !isAlreadyExists(err) {
		return domain.WrapError(domain.ErrContentStore, "ipfs files cp", err)
	}
	return nil
}

// List returns the entries under an MFS path; an absent path yields an
// empty result.
func (c *Client) List(ctx context.Context, mfsPath string) ([]domain.ContentEntry, error) {
	query := url.Values{}
	query.Set("arg", mfsPath)
	query.Set("long", "true")

	var response struct {
		Entries []struct {
			Name string `json:"Name"`
			Hash string `json:"Hash"`
			Size uint64 `json:"Size"`
		} `json:"Entries"`
	}
	err := c.postJSON(ctx, "/api/v0/files/ls", query, &response, "ls")
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrContentStore, "ipfs files ls", err)
	}

	entries := make([]domain.ContentEntry, 0, len(response.Entries))
	for _, e := range response.Entries {
		entries = append(entries, domain.ContentEntry{
			Name:    e.Name,
			Address: e.Hash,
			Size:    e.Size,
		})
	}
	return entries, nil
}

// Unpin releases the local pin. Unpinning content that is not pinned is
// tolerated so deletion stays idempotent.
func (c *Client) Unpin(ctx context.Context, address string) error {
	query := url.Values{}
	query.Set("arg", address)
	if err := c.post(ctx, "/api/v0/pin/rm", query, nil, "unpin"); err != nil && !isNotPinned(err) {
		return domain.WrapError(domain.ErrContentReclaim, "ipfs unpin", err)
	}
	return nil
}

// Reclaim triggers garbage collection on the local node. Unpinned content
// may still be reachable via other replicas.
func (c *Client) Reclaim(ctx context.Context) error {
	if err := c.post(ctx, "/api/v0/repo/gc", nil, nil, "gc"); err != nil {
		return domain.WrapError(domain.ErrContentReclaim, "ipfs repo gc", err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	return apiErrorContains(err, "already has entry", "already exists")
}

func isNotFound(err error) bool {
	return apiErrorContains(err, "does not exist", "not found")
}

func isNotPinned(err error) bool {
	return apiErrorContains(err, "not pinned", "is not pinned")
}
