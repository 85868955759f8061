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

// Package normalize converts messy textual fields from bank exports into
// canonical numeric and date values. The source data is human-entered or
// export-tool-generated and inconsistently formatted, so these functions are
// maximally permissive and never return an error: a single bad cell must not
// abort a batch.
package normalize

import (
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Amount parses a currency string into a decimal value. It strips thousands
// separators and normalizes a single trailing minus (a negative-as-suffix
// convention in the source exports) to a leading sign. Any value that still
// fails to parse yields zero.
func Amount(raw string) decimal.Decimal {
	return AmountOr(raw, decimal.Zero)
}

// AmountOr is Amount with a caller-supplied default for unparseable input.
func AmountOr(raw string, def decimal.Decimal) decimal.Decimal {
	clean := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")

	negative := false
	if strings.HasSuffix(clean, "-") {
		negative = true
		clean = strings.TrimSpace(strings.TrimSuffix(clean, "-"))
	}

	if clean == "" {
		return def
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return def
	}

	if negative {
		d = d.Neg()
	}

	return d
}

// Date tries each candidate layout in order and returns the first successful
// parse as a canonical YYYY-MM-DD string. It returns "" when no layout
// matches; callers decide whether that is fatal for their record.
func Date(raw string, layouts []string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	for _, layout := range layouts {
		// time.Parse rejects impossible calendar dates (e.g. 31/02), which
		// is exactly the behaviour callers rely on.
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}

	slog.Warn("could not parse date", "value", s, "layouts", layouts)
	return ""
}
