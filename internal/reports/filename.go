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

// Package reports parses vendor report files into canonical records. Each
// report type has its own parsing strategy: a header-driven CSV parser for
// the tax summary export and a row-tag-driven parser for the settlement
// export.
package reports

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// cardZipPattern matches the primary report archive naming scheme,
// e.g. 401016061365001_Card_20250508.zip.
var cardZipPattern = regexp.MustCompile(`(?i)^(\d+)_Card_(\d{8})\.zip$`)

// FileMeta carries the identifiers derived from a report's filename or
// email, shared by every record the file produces.
type FileMeta struct {
	MerchantID     string
	ReportDate     string // YYYY-MM-DD
	SourceFilename string
}

// DeriveFromFilename extracts the merchant ID and report date embedded in a
// report filename. It returns empty strings for whichever part it cannot
// determine.
//
// The primary pattern is <merchant>_Card_<YYYYMMDD>.zip. Other report
// filenames carry the same identifiers as underscore-separated tokens, so
// the fallback scans tokens for a long digit run (merchant ID) and an
// 8-digit YYYYMMDD or 6-digit YYMMDD (read as 20xx) date.
func DeriveFromFilename(name string) (merchantID, reportDate string) {
	base := filepath.Base(name)

	if m := cardZipPattern.FindStringSubmatch(base); m != nil {
		return m[1], formatYMD(m[2])
	}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for _, token := range strings.Split(stem, "_") {
		if !isDigits(token) {
			continue
		}

		switch {
		case len(token) > 10:
			merchantID = token
		case len(token) == 8:
			if d := formatYMD(token); d != "" {
				reportDate = d
			}
		case len(token) == 6 && reportDate == "":
			if d := formatYMD("20" + token); d != "" {
				reportDate = d
			}
		}
	}

	if merchantID == "" || reportDate == "" {
		slog.Warn("could not fully derive report identity from filename",
			"filename", base,
			"merchant_id", merchantID,
			"report_date", reportDate,
		)
	}

	return merchantID, reportDate
}

func formatYMD(s string) string {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
