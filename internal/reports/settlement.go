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

package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kmops/ingestion/internal/models"
	"github.com/kmops/ingestion/internal/textenc"
)

// The settlement export is a row-tagged file: the leading column of each row
// carries a record-type tag, and the figures we need live at fixed offsets
// in two marker rows rather than under named headers.
const (
	// headerTag marks the row that carries the settlement date.
	headerTag = "HDR"
	// headerDateOffset is the column holding the settlement date in the
	// header row, formatted day/month/2-digit-year (read as 20xx).
	headerDateOffset = 6

	// summaryMarker identifies the totals row by exact match in a fixed
	// column.
	summaryMarker    = "TOTAL SETTLEMENT"
	summaryMarkerCol = 14

	// Positional offsets of the authoritative figures in the summary row.
	offTotalAmount = 15
	offCommission  = 16
	offVAT         = 17
	offNetCredit   = 18
	offCurrency    = 19
	offItemCount   = 20
)

var headerDateLayout = "02/01/06"

// whtRate is the fixed withholding-tax rate applied to the commission.
var whtRate = decimal.RequireFromString("0.03")

// ParseSettlementSummary reads a row-tagged settlement export and emits at
// most one canonical record: the file represents a single merchant-day
// summary.
//
// The settlement date comes from the header marker row; when that row is
// absent or its date unparseable, the date embedded in the filename is used
// instead. Any positional or parse error in the summary row invalidates the
// whole summary and no record is emitted.
func ParseSettlementSummary(r io.Reader, meta FileMeta) (*models.CanonicalRecord, error) {
	utf8r, err := textenc.NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	reader := csv.NewReader(utf8r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	settleDate := findSettlementDate(rows, meta)
	if settleDate == "" {
		return nil, fmt.Errorf("settlement date unresolvable for %s (no header row, no filename date)", meta.SourceFilename)
	}

	for _, row := range rows {
		if cell(row, summaryMarkerCol) != summaryMarker {
			continue
		}

		rec, err := summaryRecord(row, meta, settleDate)
		if err != nil {
			slog.Error("invalid settlement summary row",
				"file", meta.SourceFilename,
				"row", strings.Join(row, ","),
				"error", err,
			)
			return nil, fmt.Errorf("summary row: %w", err)
		}

		return rec, nil
	}

	slog.Warn("no settlement summary row found", "file", meta.SourceFilename)
	return nil, nil
}

// findSettlementDate reads the date from the header marker row, falling back
// to the filename-embedded date.
func findSettlementDate(rows [][]string, meta FileMeta) string {
	for _, row := range rows {
		if cell(row, 0) != headerTag {
			continue
		}

		raw := cell(row, headerDateOffset)
		if t, err := time.Parse(headerDateLayout, raw); err == nil {
			return t.Format("2006-01-02")
		}

		slog.Warn("header row date unparseable, falling back to filename date",
			"file", meta.SourceFilename,
			"value", raw,
		)
		break
	}

	return meta.ReportDate
}

// summaryRecord builds the single canonical record from the totals row. The
// net debit and withholding tax are not present verbatim in the export:
// net debit = commission + VAT and WHT = 3% of commission, both rounded to
// 2 decimals. The rate and rounding are fixed contract with the downstream
// reconciliation.
func summaryRecord(row []string, meta FileMeta, settleDate string) (*models.CanonicalRecord, error) {
	total, err := strictAmount(row, offTotalAmount)
	if err != nil {
		return nil, err
	}

	commission, err := strictAmount(row, offCommission)
	if err != nil {
		return nil, err
	}

	vat, err := strictAmount(row, offVAT)
	if err != nil {
		return nil, err
	}

	netCredit, err := strictAmount(row, offNetCredit)
	if err != nil {
		return nil, err
	}

	currency := cell(row, offCurrency)
	if currency == "" {
		return nil, fmt.Errorf("column %d: missing settlement currency", offCurrency)
	}

	if _, err := strictAmount(row, offItemCount); err != nil {
		return nil, err
	}

	desc := summaryMarker

	return &models.CanonicalRecord{
		MerchantID:               meta.MerchantID,
		ReportDate:               settleDate,
		ProcessDate:              settleDate,
		LineDescription:          &desc,
		TotalAmount:              total,
		TotalFeeCommissionAmount: commission,
		VATOnFeeAmount:           vat,
		NetDebitAmount:           commission.Add(vat).Round(2),
		NetCreditAmount:          netCredit,
		WHTTaxAmount:             commission.Mul(whtRate).Round(2),
		SettlementCurrency:       &currency,
		SourceFilename:           meta.SourceFilename,
		ReportSourceType:         models.SourceSettlementCSV,
	}, nil
}

// strictAmount parses a summary-row figure. Unlike normalize.Amount it does
// not default: a malformed or out-of-range cell invalidates the summary.
func strictAmount(row []string, idx int) (decimal.Decimal, error) {
	if idx >= len(row) {
		return decimal.Zero, fmt.Errorf("column %d: row too short (%d columns)", idx, len(row))
	}

	raw := strings.TrimSpace(row[idx])
	clean := strings.ReplaceAll(raw, ",", "")

	negative := strings.HasSuffix(clean, "-")
	clean = strings.TrimSuffix(clean, "-")

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("column %d: bad amount %q", idx, raw)
	}

	if negative {
		d = d.Neg()
	}

	return d, nil
}
