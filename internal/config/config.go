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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for one ingestion run.
type Config struct {
	// Mailbox
	MailboxUser           string // mailbox identity to act as
	ServiceAccountKeyPath string // Google service-account JSON key

	// Archive storage
	DriveRootFolderID string

	// Relational store
	DatabaseURL string

	// Reports
	ZipPassword string
	DownloadDir string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Mailbox struct {
		User              string `yaml:"user"`
		ServiceAccountKey string `yaml:"service_account_key"`
	} `yaml:"mailbox"`
	Drive struct {
		RootFolderID string `yaml:"root_folder_id"`
	} `yaml:"drive"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Reports struct {
		ZipPassword string `yaml:"zip_password"`
		DownloadDir string `yaml:"download_dir"`
	} `yaml:"reports"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for overrides. A missing config.yaml is not an
// error: everything can come from the environment.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		MailboxUser:           firstNonEmpty(raw.Mailbox.User, os.Getenv("GMAIL_USER_EMAIL")),
		ServiceAccountKeyPath: firstNonEmpty(raw.Mailbox.ServiceAccountKey, envOrDefault("GOOGLE_SERVICE_ACCOUNT_KEY_PATH", "service_account.json")),
		DriveRootFolderID:     firstNonEmpty(raw.Drive.RootFolderID, os.Getenv("GDRIVE_ROOT_FOLDER_ID")),
		DatabaseURL:           firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		ZipPassword:           firstNonEmpty(raw.Reports.ZipPassword, os.Getenv("ZIP_PASSWORD")),
		DownloadDir:           firstNonEmpty(raw.Reports.DownloadDir, envOrDefault("DOWNLOAD_REPORTS_DIR", "downloaded_reports")),
	}

	var missing []string
	if cfg.MailboxUser == "" {
		missing = append(missing, "mailbox.user / GMAIL_USER_EMAIL")
	}
	if cfg.DriveRootFolderID == "" {
		missing = append(missing, "drive.root_folder_id / GDRIVE_ROOT_FOLDER_ID")
	}
	if cfg.DatabaseURL == "" {
		missing = append(missing, "database.url / DATABASE_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
