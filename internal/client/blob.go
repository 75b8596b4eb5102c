package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/roach88/jmap/internal/transport"
)

// DefaultBlobType is used when a download or upload has no known type.
const DefaultBlobType = "application/octet-stream"

// Blob describes an uploaded blob as the upload endpoint reports it.
type Blob struct {
	AccountID string `json:"accountId"`
	BlobID    string `json:"blobId"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
}

// DownloadURL expands the session download template.
func (c *Client) DownloadURL(accountID, blobID, name, contentType string) (string, error) {
	snap := c.Session()
	if snap == nil {
		return "", ErrNotConnected
	}
	return snap.DownloadURLFor(accountID, blobID, name, contentType)
}

// UploadURL expands the session upload template.
func (c *Client) UploadURL(accountID string) (string, error) {
	snap := c.Session()
	if snap == nil {
		return "", ErrNotConnected
	}
	return snap.UploadURLFor(accountID)
}

// Upload posts data to the account's upload endpoint.
func (c *Client) Upload(ctx context.Context, accountID, contentType string, data []byte) (*Blob, error) {
	url, err := c.UploadURL(accountID)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = DefaultBlobType
	}
	resp, err := c.transport.Exchange(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    url,
		Body:   data,
		Header: http.Header{"Content-Type": []string{contentType}},
	})
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if err := transport.CheckStatus(url, resp); err != nil {
		return nil, err
	}

	var blob Blob
	if err := json.Unmarshal(resp.Body, &blob); err != nil {
		return nil, fmt.Errorf("parse upload response: %w", err)
	}
	if blob.BlobID == "" {
		return nil, fmt.Errorf("upload response has no blobId")
	}
	c.logger.Debug("blob uploaded", "account_id", accountID, "blob_id", blob.BlobID, "size", blob.Size)
	return &blob, nil
}

// Download fetches a blob. An empty name or type uses "none" and
// DefaultBlobType.
func (c *Client) Download(ctx context.Context, accountID, blobID, name, contentType string) ([]byte, error) {
	if name == "" {
		name = "none"
	}
	if contentType == "" {
		contentType = DefaultBlobType
	}
	url, err := c.DownloadURL(accountID, blobID, name, contentType)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Exchange(ctx, &transport.Request{
		Method: http.MethodGet,
		URL:    url,
		Header: http.Header{"Accept": []string{contentType}},
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", blobID, err)
	}
	if err := transport.CheckStatus(url, resp); err != nil {
		return nil, err
	}
	return resp.Body, nil
}
