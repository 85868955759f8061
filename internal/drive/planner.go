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

package drive

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Planner places archived report files into a deterministic
// Year/YearMonth/Date folder chain under a fixed root folder.
//
// Folder resolution is memoised for the lifetime of the planner (one run) to
// avoid redundant existence checks within a batch; nothing is persisted
// across runs because find-or-create keyed by name-under-parent is already
// idempotent.
type Planner struct {
	client *Client
	rootID string

	folderIDs map[string]string // "parentID/name" -> folderID
}

// NewPlanner creates a placement planner rooted at rootID.
func NewPlanner(client *Client, rootID string) *Planner {
	return &Planner{
		client:    client,
		rootID:    rootID,
		folderIDs: make(map[string]string),
	}
}

// EnsureFolderPath resolves (creating as needed) the Year/YearMonth/Date
// folder chain for the given report date and returns the deepest folder's
// ID. A failure at any level fails the whole chain.
func (p *Planner) EnsureFolderPath(ctx context.Context, date time.Time) (string, error) {
	segments := []string{
		date.Format("2006"),
		date.Format("200601"),
		date.Format("2006-01-02"),
	}

	parentID := p.rootID
	for _, segment := range segments {
		id, err := p.ensureFolder(ctx, parentID, segment)
		if err != nil {
			return "", fmt.Errorf("ensure folder %s: %w", segment, err)
		}
		parentID = id
	}

	return parentID, nil
}

func (p *Planner) ensureFolder(ctx context.Context, parentID, name string) (string, error) {
	key := parentID + "/" + name
	if id, ok := p.folderIDs[key]; ok {
		return id, nil
	}

	id, err := p.client.FindFolder(ctx, parentID, name)
	if err != nil {
		return "", err
	}

	if id == "" {
		id, err = p.client.CreateFolder(ctx, parentID, name)
		if err != nil {
			return "", err
		}
		slog.Info("created archive folder", "name", name, "id", id)
	}

	p.folderIDs[key] = id
	return id, nil
}

// PlaceFile uploads localPath into folderID as remoteName with replace
// semantics: an existing file with the same name is deleted first, so
// reprocessing a report leaves exactly one archived copy instead of
// accumulating duplicates.
func (p *Planner) PlaceFile(ctx context.Context, folderID, localPath, remoteName string) error {
	existingID, err := p.client.FindFile(ctx, folderID, remoteName)
	if err != nil {
		return fmt.Errorf("look up existing %s: %w", remoteName, err)
	}

	if existingID != "" {
		slog.Info("replacing previously archived file", "name", remoteName, "id", existingID)
		if err := p.client.DeleteFile(ctx, existingID); err != nil {
			return fmt.Errorf("delete existing %s: %w", remoteName, err)
		}
	}

	fileID, err := p.client.Upload(ctx, folderID, localPath, remoteName)
	if err != nil {
		return err
	}

	slog.Info("archived file", "name", remoteName, "id", fileID, "folder", folderID)
	return nil
}
