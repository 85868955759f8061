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

// Package models defines the data structures shared across the ingestion
// pipeline.
package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ReportSource identifies which configured report type produced a record.
type ReportSource string

const (
	SourceMerchantZip   ReportSource = "MERCHANT_ZIP"
	SourceSettlementCSV ReportSource = "SETTLEMENT_CSV"
	SourceTaxInvoicePDF ReportSource = "TAX_INVOICE_PDF"
)

// CanonicalRecord is one normalized row of financial data ready for the
// relational store, independent of the source file format.
//
// Dates are canonical YYYY-MM-DD strings. A record is only valid if
// ProcessDate resolved to a real calendar date; parsers drop rows where it
// did not.
type CanonicalRecord struct {
	MerchantID               string
	ReportDate               string
	ProcessDate              string
	LineDescription          *string
	TotalAmount              decimal.Decimal
	TotalFeeCommissionAmount decimal.Decimal
	VATOnFeeAmount           decimal.Decimal
	NetDebitAmount           decimal.Decimal
	NetCreditAmount          decimal.Decimal
	WHTTaxAmount             decimal.Decimal
	WHTCode                  *string
	SettlementCurrency       *string

	// TaxInvoiceNo is part of the declared conflict key but is not populated
	// by every parser. Rows without it degrade to a three-column key and may
	// collide; see DESIGN.md.
	TaxInvoiceNo string

	SourceFilename   string
	ReportSourceType ReportSource
}

// ConflictKey returns the uniqueness-key tuple used both for in-batch
// deduplication and as the upsert conflict target.
func (r CanonicalRecord) ConflictKey() string {
	return strings.Join([]string{r.MerchantID, r.ReportDate, r.ProcessDate, r.TaxInvoiceNo}, "\x1f")
}

// ReportItem is one fetched email attachment pending processing. It is owned
// by exactly one pipeline invocation and reaches a terminal state of
// processed or failed within that invocation.
type ReportItem struct {
	MessageID        string
	Source           ReportSource
	LocalPath        string
	OriginalFilename string
}
