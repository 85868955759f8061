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

package textenc

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()

	utf8r, err := NewUTF8Reader(r)
	require.NoError(t, err)

	out, err := io.ReadAll(utf8r)
	require.NoError(t, err)

	return string(out)
}

func TestPlainUTF8PassesThrough(t *testing.T) {
	in := "PROCESS DATE,TOTAL AMT\n08/05/2025,7280\n"
	assert.Equal(t, in, readAll(t, strings.NewReader(in)))
}

func TestUTF8BOMIsStripped(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("MERCHANT")...)
	assert.Equal(t, "MERCHANT", readAll(t, bytes.NewReader(in)))
}

func TestWindows874Decodes(t *testing.T) {
	// "บาท" (baht) encoded as Windows-874.
	enc := charmap.Windows874.NewEncoder()
	raw, err := enc.String("สกุลเงิน บาท")
	require.NoError(t, err)

	assert.Equal(t, "สกุลเงิน บาท", readAll(t, strings.NewReader(raw)))
}
