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

package store

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmops/ingestion/internal/models"
)

func record(merchant, processDate, filename string) models.CanonicalRecord {
	return models.CanonicalRecord{
		MerchantID:       merchant,
		ReportDate:       "2025-05-08",
		ProcessDate:      processDate,
		TotalAmount:      decimal.NewFromInt(100),
		SourceFilename:   filename,
		ReportSourceType: models.SourceMerchantZip,
	}
}

func TestDeduplicateLastWins(t *testing.T) {
	records := []models.CanonicalRecord{
		record("m1", "2025-05-08", "first.csv"),
		record("m1", "2025-05-08", "second.csv"), // same key, must win
		record("m2", "2025-05-08", "other.csv"),
	}

	out := Deduplicate(records)
	require.Len(t, out, 2)

	// Last occurrence wins, at the position of the key's first appearance.
	assert.Equal(t, "second.csv", out[0].SourceFilename)
	assert.Equal(t, "m2", out[1].MerchantID)
}

func TestDeduplicateKeepsDistinctKeys(t *testing.T) {
	records := []models.CanonicalRecord{
		record("m1", "2025-05-07", "a.csv"),
		record("m1", "2025-05-08", "a.csv"),
	}

	out := Deduplicate(records)
	assert.Len(t, out, 2)
}

func TestDeduplicateTaxInvoiceNoDiscriminates(t *testing.T) {
	a := record("m1", "2025-05-08", "a.csv")
	a.TaxInvoiceNo = "INV-001"
	b := record("m1", "2025-05-08", "a.csv")
	b.TaxInvoiceNo = "INV-002"

	out := Deduplicate([]models.CanonicalRecord{a, b})
	assert.Len(t, out, 2)
}

func TestDeduplicateEmpty(t *testing.T) {
	assert.Empty(t, Deduplicate(nil))
}

func TestBuildUpsert(t *testing.T) {
	records := []models.CanonicalRecord{
		record("m1", "2025-05-08", "a.csv"),
		record("m2", "2025-05-08", "a.csv"),
	}

	sql, args := buildUpsert(records)

	assert.Len(t, args, 2*len(insertColumns))
	assert.Contains(t, sql, "INSERT INTO merchant_transaction_summaries")
	assert.Contains(t, sql, "ON CONFLICT (merchant_id, report_date, process_date, tax_invoice_no) DO UPDATE SET")
	assert.Contains(t, sql, "$1")
	assert.Contains(t, sql, "$30")
	assert.NotContains(t, sql, "$31")

	// Two value tuples, 15 placeholders each.
	assert.Equal(t, 2, strings.Count(sql, "), ($")+1)
	assert.Equal(t, "m1", args[0])
	assert.Equal(t, "m2", args[len(insertColumns)])
}
