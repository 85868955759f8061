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

// Package mailbox is a Gmail REST API client covering the operations the
// pipeline needs: search, attachment download, and label mutation. Labels
// are the system's durable processed/failed state; there is no other
// work-queue.
package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBaseURL is the production Gmail API endpoint for a single user.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// Client calls the Gmail REST API on behalf of one mailbox user.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userID     string

	// labelIDs memoises label name -> ID for the run. Label creation is
	// idempotent, so a stale miss only costs an extra round trip.
	labelIDs map[string]string
}

// NewClient creates a mailbox client. httpClient must carry OAuth
// credentials for userID ("me" acts as the authenticated user).
func NewClient(httpClient *http.Client, baseURL, userID string) *Client {
	if userID == "" {
		userID = "me"
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		userID:     userID,
		labelIDs:   make(map[string]string),
	}
}

// BuildQuery composes the Gmail search expression for one report type:
// subject substring, attachment presence, filename suffix, and exclusion of
// the already-processed label, all ANDed.
func BuildQuery(subject, filenameSuffix, processedLabel string) string {
	parts := []string{
		fmt.Sprintf("subject:(%q)", subject),
		"has:attachment",
	}
	if filenameSuffix != "" {
		parts = append(parts, "filename:"+strings.TrimPrefix(filenameSuffix, "."))
	}
	if processedLabel != "" {
		parts = append(parts, "-label:"+processedLabel)
	}
	return strings.Join(parts, " ")
}

type messageRef struct {
	ID string `json:"id"`
}

type messageListResponse struct {
	Messages      []messageRef `json:"messages"`
	NextPageToken string       `json:"nextPageToken"`
}

// Search returns the IDs of all messages matching the query, exhausting
// every result page.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		u := fmt.Sprintf("%s/users/%s/messages?q=%s", c.baseURL, c.userID, url.QueryEscape(query))
		if pageToken != "" {
			u += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var page messageListResponse
		if err := c.getJSON(ctx, u, &page); err != nil {
			return nil, fmt.Errorf("search messages: %w", err)
		}

		for _, m := range page.Messages {
			ids = append(ids, m.ID)
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	slog.Info("mailbox search complete", "query", query, "matches", len(ids))
	return ids, nil
}

// messagePart mirrors the recursive MIME part structure of a Gmail message.
type messagePart struct {
	Filename string `json:"filename"`
	Body     struct {
		AttachmentID string `json:"attachmentId"`
		Data         string `json:"data"`
	} `json:"body"`
	Parts []messagePart `json:"parts"`
}

type messageResponse struct {
	ID      string      `json:"id"`
	Payload messagePart `json:"payload"`
}

type attachmentResponse struct {
	Data string `json:"data"`
}

// AttachmentFile is one downloaded attachment.
type AttachmentFile struct {
	Filename string
	Path     string
}

// DownloadAttachments fetches the attachments of a message whose filenames
// end with suffix (case-insensitive; empty matches all) and writes them into
// dir.
func (c *Client) DownloadAttachments(ctx context.Context, messageID, dir, suffix string) ([]AttachmentFile, error) {
	var msg messageResponse
	u := fmt.Sprintf("%s/users/%s/messages/%s", c.baseURL, c.userID, messageID)
	if err := c.getJSON(ctx, u, &msg); err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	var files []AttachmentFile
	if err := c.walkParts(ctx, messageID, msg.Payload, dir, suffix, &files); err != nil {
		return nil, err
	}

	return files, nil
}

func (c *Client) walkParts(ctx context.Context, messageID string, part messagePart, dir, suffix string, files *[]AttachmentFile) error {
	if part.Filename != "" && (suffix == "" || strings.HasSuffix(strings.ToLower(part.Filename), strings.ToLower(suffix))) {
		data := part.Body.Data

		if data == "" && part.Body.AttachmentID != "" {
			var att attachmentResponse
			u := fmt.Sprintf("%s/users/%s/messages/%s/attachments/%s",
				c.baseURL, c.userID, messageID, part.Body.AttachmentID)
			if err := c.getJSON(ctx, u, &att); err != nil {
				return fmt.Errorf("get attachment %s: %w", part.Filename, err)
			}
			data = att.Data
		}

		if data != "" {
			raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
			if err != nil {
				return fmt.Errorf("decode attachment %s: %w", part.Filename, err)
			}

			path := filepath.Join(dir, filepath.Base(part.Filename))
			if err := os.WriteFile(path, raw, 0o644); err != nil {
				return fmt.Errorf("write attachment %s: %w", part.Filename, err)
			}

			slog.Info("downloaded attachment",
				"message_id", messageID,
				"filename", part.Filename,
				"bytes", len(raw),
			)
			*files = append(*files, AttachmentFile{Filename: part.Filename, Path: path})
		}
	}

	for _, child := range part.Parts {
		if err := c.walkParts(ctx, messageID, child, dir, suffix, files); err != nil {
			return err
		}
	}

	return nil
}

type labelResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type labelListResponse struct {
	Labels []labelResource `json:"labels"`
}

// GetOrCreateLabel resolves a label name to its ID, creating the label when
// it does not exist. Creation is idempotent from the pipeline's point of
// view: a concurrent creation simply resolves on the next lookup.
func (c *Client) GetOrCreateLabel(ctx context.Context, name string) (string, error) {
	if id, ok := c.labelIDs[name]; ok {
		return id, nil
	}

	var list labelListResponse
	u := fmt.Sprintf("%s/users/%s/labels", c.baseURL, c.userID)
	if err := c.getJSON(ctx, u, &list); err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}

	for _, l := range list.Labels {
		if l.Name == name {
			c.labelIDs[name] = l.ID
			return l.ID, nil
		}
	}

	slog.Info("creating mailbox label", "label", name)

	body := map[string]string{
		"name":                  name,
		"labelListVisibility":   "labelShow",
		"messageListVisibility": "show",
	}

	var created labelResource
	if err := c.postJSON(ctx, u, body, &created); err != nil {
		return "", fmt.Errorf("create label %s: %w", name, err)
	}

	c.labelIDs[name] = created.ID
	return created.ID, nil
}

// AddLabel attaches a label (by name) to a message.
func (c *Client) AddLabel(ctx context.Context, messageID, name string) error {
	id, err := c.GetOrCreateLabel(ctx, name)
	if err != nil {
		return err
	}
	return c.modify(ctx, messageID, []string{id}, nil)
}

// RemoveLabel detaches a label (by name) from a message. Removing a label
// the message does not carry is a no-op.
func (c *Client) RemoveLabel(ctx context.Context, messageID, name string) error {
	id, err := c.GetOrCreateLabel(ctx, name)
	if err != nil {
		return err
	}
	return c.modify(ctx, messageID, nil, []string{id})
}

// MarkRead removes the built-in UNREAD label.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.modify(ctx, messageID, nil, []string{"UNREAD"})
}

func (c *Client) modify(ctx context.Context, messageID string, add, remove []string) error {
	body := map[string][]string{}
	if len(add) > 0 {
		body["addLabelIds"] = add
	}
	if len(remove) > 0 {
		body["removeLabelIds"] = remove
	}

	u := fmt.Sprintf("%s/users/%s/messages/%s/modify", c.baseURL, c.userID, messageID)
	if err := c.postJSON(ctx, u, body, nil); err != nil {
		return fmt.Errorf("modify message %s: %w", messageID, err)
	}
	return nil
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
		return fmt.Errorf("gmail API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
