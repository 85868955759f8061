// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package drive is a Google Drive REST API client for the archive side of
// the pipeline: folder lookup/creation and resumable file upload.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const (
	// DefaultBaseURL is the production Drive API endpoint.
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"
	// DefaultUploadBaseURL is the production upload endpoint.
	DefaultUploadBaseURL = "https://www.googleapis.com/upload/drive/v3"

	folderMimeType = "application/vnd.google-apps.folder"

	// uploadChunkSize is the resumable-upload chunk size. Drive requires a
	// multiple of 256 KiB.
	uploadChunkSize = 8 * 1024 * 1024
)

// Client calls the Google Drive REST API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	uploadBaseURL string
}

// NewClient creates a Drive client. httpClient must carry OAuth credentials
// with Drive scope.
func NewClient(httpClient *http.Client, baseURL, uploadBaseURL string) *Client {
	return &Client{
		httpClient:    httpClient,
		baseURL:       baseURL,
		uploadBaseURL: uploadBaseURL,
	}
}

type fileResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fileListResponse struct {
	Files []fileResource `json:"files"`
}

// FindFolder looks up a non-trashed folder by exact name under parentID.
// Returns "" when no such folder exists.
func (c *Client) FindFolder(ctx context.Context, parentID, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), escapeQuery(parentID), folderMimeType)
	return c.findFirst(ctx, q)
}

// CreateFolder creates a folder named name under parentID and returns its ID.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	body := map[string]any{
		"name":     name,
		"mimeType": folderMimeType,
		"parents":  []string{parentID},
	}

	var created fileResource
	if err := c.postJSON(ctx, c.baseURL+"/files?fields=id", body, &created); err != nil {
		return "", fmt.Errorf("create folder %s: %w", name, err)
	}
	return created.ID, nil
}

// FindFile looks up a non-trashed, non-folder file by exact name under
// parentID. Returns "" when absent.
func (c *Client) FindFile(ctx context.Context, parentID, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType != '%s' and trashed = false",
		escapeQuery(name), escapeQuery(parentID), folderMimeType)
	return c.findFirst(ctx, q)
}

// DeleteFile permanently removes a file by ID.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/files/"+url.PathEscape(fileID), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete file %s: HTTP %d", fileID, resp.StatusCode)
	}
	return nil
}

// Upload sends localPath to Drive as remoteName under parentID using a
// resumable session: an initiation request followed by sequential chunk
// PUTs. A failure at any chunk aborts the whole file; Drive does not
// surface the partial object by name.
func (c *Client) Upload(ctx context.Context, parentID, localPath, remoteName string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}
	total := info.Size()

	sessionURL, err := c.initiateUpload(ctx, parentID, remoteName, total)
	if err != nil {
		return "", err
	}

	var offset int64
	buf := make([]byte, uploadChunkSize)

	for {
		n, readErr := io.ReadFull(f, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return "", fmt.Errorf("read %s: %w", localPath, readErr)
		}

		id, done, err := c.putChunk(ctx, sessionURL, buf[:n], offset, total)
		if err != nil {
			return "", fmt.Errorf("upload %s: %w", remoteName, err)
		}
		if done {
			return id, nil
		}

		offset += int64(n)
	}

	// Zero-byte file: a single empty chunk completes the session.
	id, done, err := c.putChunk(ctx, sessionURL, nil, 0, 0)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", remoteName, err)
	}
	if !done {
		return "", fmt.Errorf("upload %s: session did not complete", remoteName)
	}
	return id, nil
}

func (c *Client) initiateUpload(ctx context.Context, parentID, remoteName string, total int64) (string, error) {
	meta, err := json.Marshal(map[string]any{
		"name":    remoteName,
		"parents": []string{parentID},
	})
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	u := c.uploadBaseURL + "/files?uploadType=resumable"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(meta))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", total))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("initiate upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("initiate upload: HTTP %d", resp.StatusCode)
	}

	session := resp.Header.Get("Location")
	if session == "" {
		return "", fmt.Errorf("initiate upload: no session URI returned")
	}
	return session, nil
}

// putChunk sends one chunk. It returns the file ID and done=true on the
// final 200/201; HTTP 308 means the session expects more bytes.
func (c *Client) putChunk(ctx context.Context, sessionURL string, chunk []byte, offset, total int64) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, bytes.NewReader(chunk))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}

	if total == 0 {
		req.Header.Set("Content-Range", "bytes */0")
	} else {
		req.Header.Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", offset, offset+int64(len(chunk))-1, total))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var created fileResource
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return "", false, fmt.Errorf("decode upload response: %w", err)
		}
		return created.ID, true, nil
	case 308: // Resume Incomplete
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", false, nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}

func (c *Client) findFirst(ctx context.Context, query string) (string, error) {
	u := fmt.Sprintf("%s/files?q=%s&fields=%s",
		c.baseURL, url.QueryEscape(query), url.QueryEscape("files(id, name)"))

	var list fileListResponse
	if err := c.getJSON(ctx, u, &list); err != nil {
		return "", fmt.Errorf("list files: %w", err)
	}

	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].ID, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("drive API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// escapeQuery escapes single quotes in Drive query string literals.
func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
