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

package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAmount(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "5.00", "5"},
		{"thousands separators", "1,234.50", "1234.5"},
		{"trailing minus", "5.00-", "-5"},
		{"trailing minus with separators", "1,202.47-", "-1202.47"},
		{"leading minus", "-12.92", "-12.92"},
		{"whitespace", "  184.55 ", "184.55"},
		{"empty", "", "0"},
		{"bare dash", "-", "0"},
		{"garbage", "N/A", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := decimal.NewFromString(tt.want)
			assert.NoError(t, err)
			assert.True(t, Amount(tt.raw).Equal(want), "Amount(%q) = %s, want %s", tt.raw, Amount(tt.raw), want)
		})
	}
}

func TestAmountOr(t *testing.T) {
	def := decimal.NewFromInt(-1)

	assert.True(t, AmountOr("", def).Equal(def))
	assert.True(t, AmountOr("x", def).Equal(def))
	assert.True(t, AmountOr("7", def).Equal(decimal.NewFromInt(7)))
}

func TestDate(t *testing.T) {
	dayFirst := []string{"02/01/2006"}

	assert.Equal(t, "2025-05-08", Date("08/05/2025", dayFirst))
	assert.Equal(t, "", Date("31/02/2025", dayFirst), "invalid calendar dates must not parse")
	assert.Equal(t, "", Date("", dayFirst))
	assert.Equal(t, "", Date("not a date", dayFirst))
}

func TestDate_LayoutOrder(t *testing.T) {
	// First matching layout wins: 03/04 is ambiguous, day-first listed first.
	got := Date("03/04/2025", []string{"02/01/2006", "01/02/2006"})
	assert.Equal(t, "2025-04-03", got)
}
