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

// Merchant Report Ingestion Command
//
// Batch entrypoint intended to run under a scheduler (cron or similar). One
// invocation polls the report mailbox once, processes every new report item,
// and exits. All processed/failed state lives in mailbox labels, so repeated
// invocations are safe.
//
// Usage:
//
//	go run ./cmd/ingest/
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2/google"

	"github.com/kmops/ingestion/internal/config"
	"github.com/kmops/ingestion/internal/drive"
	"github.com/kmops/ingestion/internal/mailbox"
	"github.com/kmops/ingestion/internal/pipeline"
	"github.com/kmops/ingestion/internal/store"
)

const (
	gmailScope = "https://www.googleapis.com/auth/gmail.modify"
	driveScope = "https://www.googleapis.com/auth/drive"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Local development convenience; absent .env is not an error.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded environment from .env")
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to Postgres ---
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("invalid DATABASE_URL", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to connect to Postgres", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Postgres")

	loader, err := store.NewLoader(ctx, pool)
	if err != nil {
		slog.Error("failed to prepare record store", "error", err)
		os.Exit(1)
	}

	// --- Service Account Credentials ---
	keyData, err := os.ReadFile(cfg.ServiceAccountKeyPath)
	if err != nil {
		slog.Error("failed to read service account key", "path", cfg.ServiceAccountKeyPath, "error", err)
		os.Exit(1)
	}

	// Gmail requires domain-wide delegation onto the report mailbox; Drive is
	// accessed as the service account itself, which owns the archive root.
	gmailJWT, err := google.JWTConfigFromJSON(keyData, gmailScope)
	if err != nil {
		slog.Error("invalid service account key", "error", err)
		os.Exit(1)
	}
	gmailJWT.Subject = cfg.MailboxUser

	driveJWT, err := google.JWTConfigFromJSON(keyData, driveScope)
	if err != nil {
		slog.Error("invalid service account key", "error", err)
		os.Exit(1)
	}

	mb := mailbox.NewClient(gmailJWT.Client(ctx), mailbox.DefaultBaseURL, cfg.MailboxUser)
	driveClient := drive.NewClient(driveJWT.Client(ctx), drive.DefaultBaseURL, drive.DefaultUploadBaseURL)
	planner := drive.NewPlanner(driveClient, cfg.DriveRootFolderID)

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		slog.Error("failed to create download directory", "path", cfg.DownloadDir, "error", err)
		os.Exit(1)
	}

	// --- Run Ingestion ---
	run := pipeline.NewRun(mb, planner, loader, pipeline.DefaultTypes(), cfg.ZipPassword, cfg.DownloadDir)
	summary := run.Execute(ctx)

	// --- Summary ---
	slog.Info("ingestion finished",
		"fetched", summary.Fetched,
		"processed", summary.Processed,
		"failed", summary.Failed,
	)
}
