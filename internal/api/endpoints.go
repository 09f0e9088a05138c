package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sealpost/sealpost/internal/contentstore"
	"github.com/sealpost/sealpost/internal/ledger"
)

// Submit sends a candidate message. It is never retried.
func (c *Client) Submit(ctx context.Context, cand ledger.Candidate) (*ledger.MessageMeta, error) {
	var resp Message
	err := c.doJSON(ctx, http.MethodPost, "/v1/messages", false, candidateToRequest(cand), &resp)
	if err != nil {
		return nil, rejectOrErr(err)
	}
	return resp.meta(), nil
}

// RegisterSignedKey registers or rotates the owner's key. sig must be the
// owner's signature over f. It is never retried.
func (c *Client) RegisterSignedKey(ctx context.Context, f ledger.KeyCommitmentFields, sig ledger.Signed) (*ledger.KeyRecord, error) {
	req := keyRegistrationToRequest(f, sig)
	var resp KeyRecord
	if err := c.doJSON(ctx, http.MethodPost, "/v1/keys", false, req, &resp); err != nil {
		return nil, rejectOrErr(err)
	}
	return resp.toLedger(), nil
}

// KeyRecord returns owner's key record, or nil if none is registered.
func (c *Client) KeyRecord(ctx context.Context, owner ledger.Identity) (*ledger.KeyRecord, error) {
	var resp KeyRecord
	err := c.doJSON(ctx, http.MethodGet, "/v1/keys/"+owner.Hex(), true, nil, &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, WithResourceType(err, ResourceKey)
	}
	return resp.toLedger(), nil
}

// Message returns a ledger record, or nil if the id is unknown.
func (c *Client) Message(ctx context.Context, id uint64) (*ledger.MessageMeta, error) {
	var resp Message
	err := c.doJSON(ctx, http.MethodGet, "/v1/messages/"+strconv.FormatUint(id, 10), true, nil, &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, WithResourceType(err, ResourceMessage)
	}
	return resp.meta(), nil
}

// InboxIDs returns ids of messages addressed to id.
func (c *Client) InboxIDs(ctx context.Context, id ledger.Identity) ([]uint64, error) {
	var resp idsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/identities/"+id.Hex()+"/inbox", true, nil, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// OutboxIDs returns ids of messages sent by id.
func (c *Client) OutboxIDs(ctx context.Context, id ledger.Identity) ([]uint64, error) {
	var resp idsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/identities/"+id.Hex()+"/outbox", true, nil, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// Nonce returns the last accepted nonce of sender.
func (c *Client) Nonce(ctx context.Context, sender ledger.Identity) (uint64, error) {
	var resp nonceResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/identities/"+sender.Hex()+"/nonce", true, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Nonce, nil
}

// IsIVUsed reports whether the (sender, recipient, iv) triple is taken.
func (c *Client) IsIVUsed(ctx context.Context, sender, recipient ledger.Identity, iv ledger.IV) (bool, error) {
	path := fmt.Sprintf("/v1/iv/%s/%s/%s", sender.Hex(), recipient.Hex(), iv)
	var resp ivUsedResponse
	if err := c.doJSON(ctx, http.MethodGet, path, true, nil, &resp); err != nil {
		return false, err
	}
	return resp.Used, nil
}

// Now returns the ledger clock.
func (c *Client) Now(ctx context.Context) (uint64, error) {
	var resp timeResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/time", true, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Now, nil
}

// Put stores a blob and returns its locator. Put is content-addressed and
// therefore safe to retry.
func (c *Client) Put(ctx context.Context, data []byte) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/blobs", true, "application/octet-stream", data)
	if err != nil {
		return "", WithResourceType(err, ResourceBlob)
	}
	defer resp.Body.Close()

	var out blobResponse
	if err := decodeJSON(resp.Body, &out); err != nil {
		return "", err
	}
	if out.Locator != contentstore.Locator(data) {
		return "", fmt.Errorf("%w: server returned %q", contentstore.ErrContentMismatch, out.Locator)
	}
	return out.Locator, nil
}

// Get fetches a blob and verifies it against its locator.
func (c *Client) Get(ctx context.Context, locator string) ([]byte, error) {
	if _, err := contentstore.ParseLocator(locator); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodGet, "/v1/blobs/"+url.PathEscape(locator), true, "", nil)
	if err != nil {
		return nil, WithResourceType(err, ResourceBlob)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err, URL: c.baseURL + "/v1/blobs/" + locator}
	}
	if err := contentstore.Verify(locator, data); err != nil {
		return nil, err
	}
	return data, nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
