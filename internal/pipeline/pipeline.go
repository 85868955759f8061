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

// Package pipeline orchestrates one ingestion run: per configured report
// type it searches the mailbox, downloads matching attachments, runs the
// type's parse/load/archive handler, and records the outcome as mailbox
// labels. Failures never propagate past the item they originate from.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kmops/ingestion/internal/mailbox"
	"github.com/kmops/ingestion/internal/models"
)

// Mailbox is the subset of the mailbox client the orchestrator needs.
type Mailbox interface {
	Search(ctx context.Context, query string) ([]string, error)
	DownloadAttachments(ctx context.Context, messageID, dir, suffix string) ([]mailbox.AttachmentFile, error)
	AddLabel(ctx context.Context, messageID, name string) error
	RemoveLabel(ctx context.Context, messageID, name string) error
	MarkRead(ctx context.Context, messageID string) error
}

// Archiver places report artifacts into the cloud archive. Implemented by
// drive.Planner.
type Archiver interface {
	EnsureFolderPath(ctx context.Context, date time.Time) (string, error)
	PlaceFile(ctx context.Context, folderID, localPath, remoteName string) error
}

// RecordLoader upserts canonical records into the relational store.
// Implemented by store.Loader.
type RecordLoader interface {
	Upsert(ctx context.Context, records []models.CanonicalRecord) (succeeded, failed int)
}

// HandlerFunc is one report type's processing pipeline. A nil return means
// the item fully succeeded (store load and archive placement included).
type HandlerFunc func(ctx context.Context, run *Run, item models.ReportItem) error

// TypeConfig declares one report type: its mailbox search predicate, the
// attachment it wants, its outcome labels, and its handler. Adding a report
// type means adding an entry here. The orchestrator loop does not change.
type TypeConfig struct {
	Source           models.ReportSource
	Subject          string
	AttachmentSuffix string
	ProcessedLabel   string
	FailedLabel      string
	Handler          HandlerFunc
}

// Run carries the per-run service clients and settings. It is constructed
// once, passed by reference into every pipeline function, and never mutated
// after construction.
type Run struct {
	ID          string
	Mailbox     Mailbox
	Archive     Archiver
	Loader      RecordLoader
	Types       []TypeConfig
	ZipPassword string
	DownloadDir string
}

// NewRun builds a run context with a fresh run ID.
func NewRun(mb Mailbox, archive Archiver, loader RecordLoader, types []TypeConfig, zipPassword, downloadDir string) *Run {
	return &Run{
		ID:          uuid.New().String(),
		Mailbox:     mb,
		Archive:     archive,
		Loader:      loader,
		Types:       types,
		ZipPassword: zipPassword,
		DownloadDir: downloadDir,
	}
}

// Summary aggregates per-item outcomes for one run.
type Summary struct {
	Fetched   int
	Processed int
	Failed    int
}

// Execute processes every configured report type in declared order and
// returns the run summary. It never returns an error: item failures are
// absorbed into the summary, and a type whose mailbox search fails simply
// contributes nothing to this run (its items stay unlabelled and are picked
// up next run).
func (r *Run) Execute(ctx context.Context) Summary {
	slog.Info("starting ingestion run", "run_id", r.ID, "report_types", len(r.Types))

	var summary Summary

	for _, tc := range r.Types {
		query := mailbox.BuildQuery(tc.Subject, tc.AttachmentSuffix, tc.ProcessedLabel)

		messageIDs, err := r.Mailbox.Search(ctx, query)
		if err != nil {
			slog.Error("mailbox search failed, skipping report type",
				"report_type", tc.Source,
				"error", err,
			)
			continue
		}

		for _, messageID := range messageIDs {
			files, err := r.Mailbox.DownloadAttachments(ctx, messageID, r.DownloadDir, tc.AttachmentSuffix)
			if err != nil {
				slog.Error("attachment download failed",
					"report_type", tc.Source,
					"message_id", messageID,
					"error", err,
				)
				summary.Failed++
				r.labelFailed(ctx, tc, messageID)
				continue
			}

			if len(files) == 0 {
				slog.Warn("message matched but carried no usable attachment",
					"report_type", tc.Source,
					"message_id", messageID,
				)
				continue
			}

			for _, f := range files {
				summary.Fetched++

				item := models.ReportItem{
					MessageID:        messageID,
					Source:           tc.Source,
					LocalPath:        f.Path,
					OriginalFilename: f.Filename,
				}

				if r.processItem(ctx, tc, item) {
					summary.Processed++
				} else {
					summary.Failed++
				}
			}
		}
	}

	if summary.Fetched == 0 {
		slog.Info("no new reports found", "run_id", r.ID)
	}

	slog.Info("ingestion run complete",
		"run_id", r.ID,
		"fetched", summary.Fetched,
		"processed", summary.Processed,
		"failed", summary.Failed,
	)

	return summary
}

// processItem drives one item to its terminal state and reports success.
// The local file is deleted on every path; nothing is retained across runs.
func (r *Run) processItem(ctx context.Context, tc TypeConfig, item models.ReportItem) (ok bool) {
	defer func() {
		// The item boundary: a panicking handler fails the item, not the run.
		if rec := recover(); rec != nil {
			slog.Error("panic while processing report item",
				"report_type", item.Source,
				"message_id", item.MessageID,
				"file", item.OriginalFilename,
				"panic", rec,
			)
			r.labelFailed(ctx, tc, item.MessageID)
			ok = false
		}

		if err := os.Remove(item.LocalPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("could not delete local file", "path", item.LocalPath, "error", err)
		}
	}()

	slog.Info("processing report item",
		"report_type", item.Source,
		"message_id", item.MessageID,
		"file", item.OriginalFilename,
	)

	if err := tc.Handler(ctx, r, item); err != nil {
		slog.Error("report item failed",
			"report_type", item.Source,
			"message_id", item.MessageID,
			"file", item.OriginalFilename,
			"error", err,
		)
		r.labelFailed(ctx, tc, item.MessageID)
		return false
	}

	r.labelProcessed(ctx, tc, item.MessageID)
	return true
}

// labelProcessed records success: processed label on, item read, any stale
// failed label from an earlier attempt removed.
func (r *Run) labelProcessed(ctx context.Context, tc TypeConfig, messageID string) {
	if err := r.Mailbox.AddLabel(ctx, messageID, tc.ProcessedLabel); err != nil {
		slog.Error("could not add processed label", "message_id", messageID, "error", err)
	}
	if err := r.Mailbox.MarkRead(ctx, messageID); err != nil {
		slog.Warn("could not mark message read", "message_id", messageID, "error", err)
	}
	if err := r.Mailbox.RemoveLabel(ctx, messageID, tc.FailedLabel); err != nil {
		slog.Warn("could not remove failed label", "message_id", messageID, "error", err)
	}
}

// labelFailed records failure. The processed label is never added here, so
// the item stays eligible for the next run's search. Label state is the
// retry queue.
func (r *Run) labelFailed(ctx context.Context, tc TypeConfig, messageID string) {
	if err := r.Mailbox.AddLabel(ctx, messageID, tc.FailedLabel); err != nil {
		slog.Error("could not add failed label", "message_id", messageID, "error", err)
	}
}

// scratchDir returns a fresh extraction directory exclusively owned by one
// item.
func (r *Run) scratchDir() string {
	return filepath.Join(os.TempDir(), "report-extract-"+uuid.New().String())
}

// archiveDate parses a canonical YYYY-MM-DD date for folder placement.
func archiveDate(date string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("archive date %q: %w", date, err)
	}
	return t, nil
}
