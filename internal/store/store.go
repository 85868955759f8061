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

// Package store loads canonical records into Postgres with idempotent
// upsert semantics keyed on (merchant_id, report_date, process_date,
// tax_invoice_no). Reprocessing a report replays the same rows onto the
// same keys instead of double-counting them.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmops/ingestion/internal/models"
)

const tableName = "merchant_transaction_summaries"

// insertColumns lists the columns written per record, in placeholder order.
var insertColumns = []string{
	"merchant_id",
	"report_date",
	"process_date",
	"tax_invoice_no",
	"line_description",
	"total_amount",
	"total_fee_commission_amount",
	"vat_on_fee_amount",
	"net_debit_amount",
	"net_credit_amount",
	"wht_tax_amount",
	"wht_code",
	"settlement_currency",
	"source_filename",
	"report_source_type",
}

// Loader writes canonical records to the transaction-summary table.
type Loader struct {
	pool *pgxpool.Pool
}

// NewLoader creates a loader backed by the given Postgres pool. It ensures
// the target table and its uniqueness constraint exist on creation.
func NewLoader(ctx context.Context, pool *pgxpool.Pool) (*Loader, error) {
	l := &Loader{pool: pool}
	if err := l.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure summary schema: %w", err)
	}
	slog.Info("record loader initialised", "table", tableName)
	return l, nil
}

func (l *Loader) ensureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+tableName+` (
			id                          BIGSERIAL PRIMARY KEY,
			merchant_id                 TEXT NOT NULL,
			report_date                 DATE NOT NULL,
			process_date                DATE NOT NULL,
			tax_invoice_no              TEXT NOT NULL DEFAULT '',
			line_description            TEXT,
			total_amount                NUMERIC(18,2) NOT NULL DEFAULT 0,
			total_fee_commission_amount NUMERIC(18,2) NOT NULL DEFAULT 0,
			vat_on_fee_amount           NUMERIC(18,2) NOT NULL DEFAULT 0,
			net_debit_amount            NUMERIC(18,2) NOT NULL DEFAULT 0,
			net_credit_amount           NUMERIC(18,2) NOT NULL DEFAULT 0,
			wht_tax_amount              NUMERIC(18,2) NOT NULL DEFAULT 0,
			wht_code                    TEXT,
			settlement_currency         TEXT,
			source_filename             TEXT NOT NULL,
			report_source_type          TEXT NOT NULL,
			created_at                  TIMESTAMPTZ DEFAULT NOW(),
			updated_at                  TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(merchant_id, report_date, process_date, tax_invoice_no)
		);
		CREATE INDEX IF NOT EXISTS idx_summaries_merchant ON `+tableName+`(merchant_id);
		CREATE INDEX IF NOT EXISTS idx_summaries_report_date ON `+tableName+`(report_date);
	`)
	return err
}

// Deduplicate collapses records sharing a conflict key, keeping the last
// occurrence per key in the batch. Postgres rejects an upsert that touches
// the same conflict key twice in one statement, so duplicates must be folded
// before Upsert. Output order is stable: each key keeps the position of its
// first appearance.
func Deduplicate(records []models.CanonicalRecord) []models.CanonicalRecord {
	out := make([]models.CanonicalRecord, 0, len(records))
	position := make(map[string]int, len(records))

	for _, r := range records {
		key := r.ConflictKey()
		if idx, seen := position[key]; seen {
			out[idx] = r
			continue
		}
		position[key] = len(out)
		out = append(out, r)
	}

	if dropped := len(records) - len(out); dropped > 0 {
		slog.Info("deduplicated batch before upsert",
			"input", len(records),
			"dropped", dropped,
		)
	}

	return out
}

// Upsert writes a batch of records with INSERT ... ON CONFLICT DO UPDATE and
// returns per-batch success/failure counts.
//
// Outcomes: an empty batch is (0, 0) with no call made; a transport or
// statement error is (0, len); an affected-row shortfall with no explicit
// error is counted conservatively as partial failure and logged.
func (l *Loader) Upsert(ctx context.Context, records []models.CanonicalRecord) (succeeded, failed int) {
	if len(records) == 0 {
		return 0, 0
	}

	sql, args := buildUpsert(records)

	tag, err := l.pool.Exec(ctx, sql, args...)
	if err != nil {
		slog.Error("upsert failed", "table", tableName, "records", len(records), "error", err)
		return 0, len(records)
	}

	affected := int(tag.RowsAffected())
	if affected < len(records) {
		slog.Warn("upsert affected fewer rows than submitted",
			"table", tableName,
			"submitted", len(records),
			"affected", affected,
		)
		return affected, len(records) - affected
	}

	slog.Info("loaded records", "table", tableName, "count", affected)
	return len(records), 0
}

// buildUpsert renders a multi-row insert with the conflict target matching
// the table's uniqueness constraint.
func buildUpsert(records []models.CanonicalRecord) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(records)*len(insertColumns))

	sb.WriteString("INSERT INTO " + tableName + " (" + strings.Join(insertColumns, ", ") + ")\nVALUES ")

	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}

		placeholders := make([]string, len(insertColumns))
		for j := range insertColumns {
			placeholders[j] = fmt.Sprintf("$%d", i*len(insertColumns)+j+1)
		}
		sb.WriteString("(" + strings.Join(placeholders, ", ") + ")")

		args = append(args,
			r.MerchantID,
			r.ReportDate,
			r.ProcessDate,
			r.TaxInvoiceNo,
			r.LineDescription,
			r.TotalAmount.String(),
			r.TotalFeeCommissionAmount.String(),
			r.VATOnFeeAmount.String(),
			r.NetDebitAmount.String(),
			r.NetCreditAmount.String(),
			r.WHTTaxAmount.String(),
			r.WHTCode,
			r.SettlementCurrency,
			r.SourceFilename,
			string(r.ReportSourceType),
		)
	}

	sb.WriteString(`
		ON CONFLICT (merchant_id, report_date, process_date, tax_invoice_no) DO UPDATE SET
			line_description            = EXCLUDED.line_description,
			total_amount                = EXCLUDED.total_amount,
			total_fee_commission_amount = EXCLUDED.total_fee_commission_amount,
			vat_on_fee_amount           = EXCLUDED.vat_on_fee_amount,
			net_debit_amount            = EXCLUDED.net_debit_amount,
			net_credit_amount           = EXCLUDED.net_credit_amount,
			wht_tax_amount              = EXCLUDED.wht_tax_amount,
			wht_code                    = EXCLUDED.wht_code,
			settlement_currency         = EXCLUDED.settlement_currency,
			source_filename             = EXCLUDED.source_filename,
			report_source_type          = EXCLUDED.report_source_type,
			updated_at                  = NOW()`)

	return sb.String(), args
}
