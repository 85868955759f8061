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

package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeka/zip"
)

const testPassword = "s3cret"

// writeTestArchive creates an AES-encrypted ZIP with the given members.
func writeTestArchive(t *testing.T, members map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "report.zip")

	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	for name, content := range members {
		mw, err := w.Encrypt(name, testPassword, zip.AES256Encryption)
		require.NoError(t, err)

		_, err = mw.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	return path
}

func TestExtract(t *testing.T) {
	archivePath := writeTestArchive(t, map[string]string{
		"TAX_SUMMARY_BY_TAX_ID_CSV_0105566207013_20250508.csv": "PROCESS DATE,TOTAL AMT\n",
		"KB1P554V2_SUM_401016061365001_20250508.pdf":           "%PDF-1.4",
	})

	outDir := filepath.Join(t.TempDir(), "out")

	files, err := Extract(archivePath, testPassword, outDir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	for _, f := range files {
		content, err := os.ReadFile(f)
		require.NoError(t, err)
		assert.NotEmpty(t, content)
	}
}

func TestExtractWrongPassword(t *testing.T) {
	archivePath := writeTestArchive(t, map[string]string{"data.csv": "a,b\n"})

	files, err := Extract(archivePath, "wrong", t.TempDir())
	assert.Error(t, err)
	assert.Empty(t, files)
}

func TestExtractMissingArchive(t *testing.T) {
	files, err := Extract(filepath.Join(t.TempDir(), "nope.zip"), testPassword, t.TempDir())
	assert.Error(t, err)
	assert.Empty(t, files)
}

func TestExtractEmptyPassword(t *testing.T) {
	archivePath := writeTestArchive(t, map[string]string{"data.csv": "a,b\n"})

	_, err := Extract(archivePath, "", t.TempDir())
	assert.Error(t, err)
}

func TestExtractCorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip at all"), 0o644))

	_, err := Extract(path, testPassword, t.TempDir())
	assert.Error(t, err)
}
