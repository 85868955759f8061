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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAMLWithEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
mailbox:
  user: reports@example.com
  service_account_key: /secrets/sa.json
drive:
  root_folder_id: folder-123
database:
  url: ${TEST_DB_URL}
reports:
  zip_password: ${TEST_ZIP_PW}
  download_dir: /tmp/dl
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("TEST_DB_URL", "postgres://localhost/ingest")
	t.Setenv("TEST_ZIP_PW", "hunter2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "reports@example.com", cfg.MailboxUser)
	assert.Equal(t, "/secrets/sa.json", cfg.ServiceAccountKeyPath)
	assert.Equal(t, "folder-123", cfg.DriveRootFolderID)
	assert.Equal(t, "postgres://localhost/ingest", cfg.DatabaseURL)
	assert.Equal(t, "hunter2", cfg.ZipPassword)
	assert.Equal(t, "/tmp/dl", cfg.DownloadDir)
}

func TestLoadFromEnvironmentOnly(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("GMAIL_USER_EMAIL", "reports@example.com")
	t.Setenv("GDRIVE_ROOT_FOLDER_ID", "folder-123")
	t.Setenv("DATABASE_URL", "postgres://localhost/ingest")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "downloaded_reports", cfg.DownloadDir)
	assert.Equal(t, "service_account.json", cfg.ServiceAccountKeyPath)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("GMAIL_USER_EMAIL", "")
	t.Setenv("GDRIVE_ROOT_FOLDER_ID", "")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GMAIL_USER_EMAIL")
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
