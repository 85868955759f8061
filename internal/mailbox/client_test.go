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

package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQuery(t *testing.T) {
	q := BuildQuery("K-Merchant Reports as of", ".zip", "KMERCHANT_PROCESSED")

	assert.Equal(t, `subject:("K-Merchant Reports as of") has:attachment filename:zip -label:KMERCHANT_PROCESSED`, q)

	// Only the processed label is excluded: items carrying just the failed
	// label stay eligible, which is the retry mechanism.
	assert.NotContains(t, q, "FAILED")
}

func TestSearchExhaustsPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Query().Get("pageToken") {
		case "":
			json.NewEncoder(w).Encode(messageListResponse{
				Messages:      []messageRef{{ID: "msg-1"}, {ID: "msg-2"}},
				NextPageToken: "page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(messageListResponse{
				Messages: []messageRef{{ID: "msg-3"}},
			})
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "me")

	ids, err := c.Search(context.Background(), "subject:(x)")
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-1", "msg-2", "msg-3"}, ids)
}

func TestDownloadAttachments(t *testing.T) {
	zipContent := []byte("PK\x03\x04 fake zip bytes")
	pdfContent := []byte("%PDF-1.4 fake")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/attachments/att-1"):
			json.NewEncoder(w).Encode(attachmentResponse{
				Data: base64.URLEncoding.EncodeToString(zipContent),
			})
		case strings.Contains(r.URL.Path, "/messages/msg-1"):
			json.NewEncoder(w).Encode(map[string]any{
				"id": "msg-1",
				"payload": map[string]any{
					"filename": "",
					"parts": []map[string]any{
						{"filename": "body.txt", "body": map[string]any{"data": base64.URLEncoding.EncodeToString([]byte("hi"))}},
						{"filename": "401016061365001_Card_20250508.zip", "body": map[string]any{"attachmentId": "att-1"}},
						{"filename": "invoice.pdf", "body": map[string]any{"data": base64.URLEncoding.EncodeToString(pdfContent)}},
					},
				},
			})
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "me")
	dir := t.TempDir()

	files, err := c.DownloadAttachments(context.Background(), "msg-1", dir, ".zip")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "401016061365001_Card_20250508.zip", files[0].Filename)

	got, err := os.ReadFile(files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, zipContent, got)
	assert.Equal(t, dir, filepath.Dir(files[0].Path))
}

func TestGetOrCreateLabel(t *testing.T) {
	var createCalls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodPost {
			createCalls++
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "KMERCHANT_PROCESSED", body["name"])
			json.NewEncoder(w).Encode(labelResource{ID: "Label_77", Name: body["name"]})
			return
		}

		json.NewEncoder(w).Encode(labelListResponse{
			Labels: []labelResource{{ID: "Label_1", Name: "INBOX"}},
		})
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "me")
	ctx := context.Background()

	id, err := c.GetOrCreateLabel(ctx, "KMERCHANT_PROCESSED")
	require.NoError(t, err)
	assert.Equal(t, "Label_77", id)

	// Second resolution hits the per-run memo, not the API.
	id, err = c.GetOrCreateLabel(ctx, "KMERCHANT_PROCESSED")
	require.NoError(t, err)
	assert.Equal(t, "Label_77", id)
	assert.Equal(t, 1, createCalls)
}

func TestModifyAndMarkRead(t *testing.T) {
	var modifications []map[string][]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/modify"):
			var body map[string][]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			modifications = append(modifications, body)
			json.NewEncoder(w).Encode(map[string]string{"id": "msg-1"})
		case strings.HasSuffix(r.URL.Path, "/labels"):
			json.NewEncoder(w).Encode(labelListResponse{
				Labels: []labelResource{{ID: "Label_9", Name: "KMERCHANT_PROCESSING_FAILED"}},
			})
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "me")
	ctx := context.Background()

	require.NoError(t, c.AddLabel(ctx, "msg-1", "KMERCHANT_PROCESSING_FAILED"))
	require.NoError(t, c.RemoveLabel(ctx, "msg-1", "KMERCHANT_PROCESSING_FAILED"))
	require.NoError(t, c.MarkRead(ctx, "msg-1"))

	require.Len(t, modifications, 3)
	assert.Equal(t, []string{"Label_9"}, modifications[0]["addLabelIds"])
	assert.Equal(t, []string{"Label_9"}, modifications[1]["removeLabelIds"])
	assert.Equal(t, []string{"UNREAD"}, modifications[2]["removeLabelIds"])
}
