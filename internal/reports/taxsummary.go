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

	"github.com/kmops/ingestion/internal/models"
	"github.com/kmops/ingestion/internal/normalize"
	"github.com/kmops/ingestion/internal/textenc"
)

// processDateLayouts are the day-first layouts accepted for the PROCESS DATE
// column.
var processDateLayouts = []string{"02/01/2006", "2006-01-02"}

// Normalized names of the columns the tax summary export must carry. A file
// missing any of these fails whole; there is no partial-column tolerance.
var requiredTaxSummaryColumns = []string{
	"process_date",
	"trans__item",
	"total_amt",
	"total_fee_commission_amount",
	"vat_7%",
	"net_debit_amt",
	"net_credit_amt",
	"w_h_tax",
	"settlement_account_currency",
}

// optional column holding the withholding-tax code.
const colWHTCode = "vat_code"

// ParseTaxSummary reads the header-driven TAX_SUMMARY_BY_TAX_ID CSV export
// and emits one canonical record per data row.
//
// Rows whose PROCESS DATE does not resolve to a calendar date are dropped
// individually with a warning; a missing required column fails the whole
// file.
func ParseTaxSummary(r io.Reader, meta FileMeta) ([]models.CanonicalRecord, error) {
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

	if len(rows) == 0 {
		return nil, fmt.Errorf("csv file %s is empty", meta.SourceFilename)
	}

	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[normalizeColumn(name)] = i
	}

	var missing []string
	for _, name := range requiredTaxSummaryColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv file %s missing required columns: %s",
			meta.SourceFilename, strings.Join(missing, ", "))
	}

	var records []models.CanonicalRecord

	for i, row := range rows[1:] {
		rowNum := i + 2 // 1-based, after the header

		if isBlankRow(row) {
			continue
		}

		processDate := normalize.Date(cell(row, cols["process_date"]), processDateLayouts)
		if processDate == "" {
			slog.Warn("dropping row with unresolvable process date",
				"file", meta.SourceFilename,
				"row", rowNum,
				"value", cell(row, cols["process_date"]),
			)
			continue
		}

		records = append(records, models.CanonicalRecord{
			MerchantID:               meta.MerchantID,
			ReportDate:               meta.ReportDate,
			ProcessDate:              processDate,
			LineDescription:          textCell(row, cols, "trans__item"),
			TotalAmount:              normalize.Amount(cell(row, cols["total_amt"])),
			TotalFeeCommissionAmount: normalize.Amount(cell(row, cols["total_fee_commission_amount"])),
			VATOnFeeAmount:           normalize.Amount(cell(row, cols["vat_7%"])),
			NetDebitAmount:           normalize.Amount(cell(row, cols["net_debit_amt"])),
			NetCreditAmount:          normalize.Amount(cell(row, cols["net_credit_amt"])),
			WHTTaxAmount:             normalize.Amount(cell(row, cols["w_h_tax"])),
			WHTCode:                  textCell(row, cols, colWHTCode),
			SettlementCurrency:       textCell(row, cols, "settlement_account_currency"),
			SourceFilename:           meta.SourceFilename,
			ReportSourceType:         models.SourceMerchantZip,
		})
	}

	slog.Info("parsed tax summary csv",
		"file", meta.SourceFilename,
		"records", len(records),
	)

	return records, nil
}

// normalizeColumn lowercases a header cell and maps spaces, dots, and
// slashes to underscores, so "TOTAL FEE/COMMISSION AMOUNT" becomes
// "total_fee_commission_amount".
func normalizeColumn(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", ".", "_", "/", "_").Replace(s)
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// cell safely gets a trimmed cell value from a row.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// textCell returns a pointer to the cell value, or nil when the column is
// absent or the cell empty. Text fields pass through as null rather than "".
func textCell(row []string, cols map[string]int, name string) *string {
	idx, ok := cols[name]
	if !ok {
		return nil
	}

	v := cell(row, idx)
	if v == "" {
		return nil
	}

	return &v
}
