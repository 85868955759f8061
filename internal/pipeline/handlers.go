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

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kmops/ingestion/internal/archive"
	"github.com/kmops/ingestion/internal/models"
	"github.com/kmops/ingestion/internal/reports"
	"github.com/kmops/ingestion/internal/store"
	"github.com/kmops/ingestion/internal/textenc"
)

// taxSummaryMarker identifies the tabular member inside the merchant report
// archive. The other members (raw transaction exports, marker files) are
// archived but never parsed.
const taxSummaryMarker = "tax_summary_by_tax_id_csv"

// DefaultTypes returns the production report type registry. Order matters
// only for log readability; the types are independent.
func DefaultTypes() []TypeConfig {
	return []TypeConfig{
		{
			Source:           models.SourceMerchantZip,
			Subject:          "K-Merchant Reports as of",
			AttachmentSuffix: ".zip",
			ProcessedLabel:   "KMERCHANT_PROCESSED",
			FailedLabel:      "KMERCHANT_PROCESSING_FAILED",
			Handler:          HandleMerchantZip,
		},
		{
			Source:           models.SourceSettlementCSV,
			Subject:          "K-Merchant Settlement Summary",
			AttachmentSuffix: ".csv",
			ProcessedLabel:   "SETTLEMENT_PROCESSED",
			FailedLabel:      "SETTLEMENT_PROCESSING_FAILED",
			Handler:          HandleSettlementCSV,
		},
		{
			Source:           models.SourceTaxInvoicePDF,
			Subject:          "K-Merchant Tax Invoice",
			AttachmentSuffix: ".pdf",
			ProcessedLabel:   "TAX_INVOICE_PROCESSED",
			FailedLabel:      "TAX_INVOICE_PROCESSING_FAILED",
			Handler:          HandleInvoicePDF,
		},
	}
}

// HandleMerchantZip processes one password-protected merchant report
// archive: extract, parse the tax summary member if present, load its
// records, then archive the original archive and every extracted member. A
// missing tax summary member is not a failure; the archive step still runs.
func HandleMerchantZip(ctx context.Context, run *Run, item models.ReportItem) error {
	merchantID, reportDate := reports.DeriveFromFilename(item.OriginalFilename)
	if merchantID == "" || reportDate == "" {
		return fmt.Errorf("cannot derive merchant ID and report date from %q", item.OriginalFilename)
	}
	meta := reports.FileMeta{
		MerchantID:     merchantID,
		ReportDate:     reportDate,
		SourceFilename: item.OriginalFilename,
	}

	scratch := run.scratchDir()
	defer os.RemoveAll(scratch)

	members, err := archive.Extract(item.LocalPath, run.ZipPassword, scratch)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", item.OriginalFilename, err)
	}

	if path := findTaxSummary(members); path != "" {
		if err := loadTaxSummary(ctx, run, path, meta); err != nil {
			return err
		}
	} else {
		slog.Warn("archive carries no tax summary member, archiving only",
			"file", item.OriginalFilename,
			"members", len(members),
		)
	}

	toPlace := map[string]string{item.LocalPath: item.OriginalFilename}
	for _, m := range members {
		toPlace[m] = filepath.Base(m)
	}
	return placeInArchive(ctx, run, reportDate, toPlace)
}

// HandleSettlementCSV processes one flat settlement export: parse the
// row-tagged summary, load the derived record if one was found, archive the
// file.
func HandleSettlementCSV(ctx context.Context, run *Run, item models.ReportItem) error {
	merchantID, reportDate := reports.DeriveFromFilename(item.OriginalFilename)
	meta := reports.FileMeta{
		MerchantID:     merchantID,
		ReportDate:     reportDate,
		SourceFilename: item.OriginalFilename,
	}

	f, err := os.Open(item.LocalPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", item.OriginalFilename, err)
	}

	rec, err := func() (*models.CanonicalRecord, error) {
		defer f.Close()
		src, err := textenc.NewUTF8Reader(f)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", item.OriginalFilename, err)
		}
		return reports.ParseSettlementSummary(src, meta)
	}()
	if err != nil {
		return err
	}

	folderDate := reportDate
	if rec != nil {
		folderDate = rec.ReportDate

		if _, failed := run.Loader.Upsert(ctx, []models.CanonicalRecord{*rec}); failed > 0 {
			return fmt.Errorf("storing settlement summary from %s: %d row(s) not persisted", item.OriginalFilename, failed)
		}
	} else {
		slog.Warn("settlement file carries no summary row, archiving only", "file", item.OriginalFilename)
	}
	if folderDate == "" {
		return fmt.Errorf("no report date available for %q", item.OriginalFilename)
	}

	return placeInArchive(ctx, run, folderDate, map[string]string{item.LocalPath: item.OriginalFilename})
}

// HandleInvoicePDF archives a standalone invoice document. Invoices carry no
// tabular content; placement in the dated folder hierarchy is the whole job.
func HandleInvoicePDF(ctx context.Context, run *Run, item models.ReportItem) error {
	_, reportDate := reports.DeriveFromFilename(item.OriginalFilename)
	if reportDate == "" {
		return fmt.Errorf("cannot derive report date from %q", item.OriginalFilename)
	}

	return placeInArchive(ctx, run, reportDate, map[string]string{item.LocalPath: item.OriginalFilename})
}

// findTaxSummary picks the tax summary CSV out of the extracted members.
func findTaxSummary(members []string) string {
	for _, m := range members {
		base := strings.ToLower(filepath.Base(m))
		if strings.Contains(base, taxSummaryMarker) && strings.HasSuffix(base, ".csv") {
			return m
		}
	}
	return ""
}

// loadTaxSummary parses one extracted tax summary CSV and upserts its
// records. Records sharing a conflict key are collapsed last-wins before the
// upsert so the statement never fights itself.
func loadTaxSummary(ctx context.Context, run *Run, path string, meta reports.FileMeta) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening extracted member %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	src, err := textenc.NewUTF8Reader(f)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}

	records, err := reports.ParseTaxSummary(src, meta)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		slog.Warn("tax summary parsed to zero records", "file", meta.SourceFilename)
		return nil
	}

	records = store.Deduplicate(records)
	succeeded, failed := run.Loader.Upsert(ctx, records)
	if failed > 0 {
		return fmt.Errorf("storing records from %s: %d of %d row(s) not persisted",
			meta.SourceFilename, failed, failed+succeeded)
	}

	slog.Info("tax summary records stored", "file", meta.SourceFilename, "records", succeeded)
	return nil
}

// placeInArchive resolves the dated folder chain once and places every file
// in it. Any placement failure fails the item; a rerun replaces whatever was
// already placed by name.
func placeInArchive(ctx context.Context, run *Run, dateStr string, files map[string]string) error {
	date, err := archiveDate(dateStr)
	if err != nil {
		return err
	}

	folderID, err := run.Archive.EnsureFolderPath(ctx, date)
	if err != nil {
		return fmt.Errorf("resolving archive folder for %s: %w", dateStr, err)
	}

	for localPath, remoteName := range files {
		if err := run.Archive.PlaceFile(ctx, folderID, localPath, remoteName); err != nil {
			return fmt.Errorf("archiving %s: %w", remoteName, err)
		}
	}
	return nil
}
