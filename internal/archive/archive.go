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

// Package archive extracts password-protected ZIP containers into a scratch
// directory. Extraction is all-or-nothing: any member failure (wrong
// password, corrupt data) fails the whole archive and yields zero usable
// files.
package archive

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yeka/zip"
)

// Extract opens the ZIP at archivePath using password and writes every
// member under outputDir, preserving the paths stored in the container.
// It returns the extracted file paths in archive order.
func Extract(archivePath, password, outputDir string) ([]string, error) {
	if _, err := os.Stat(archivePath); err != nil {
		return nil, fmt.Errorf("archive not found: %w", err)
	}

	if password == "" {
		return nil, fmt.Errorf("archive password is not configured")
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", filepath.Base(archivePath), err)
	}
	defer reader.Close()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var extracted []string

	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}

		dest, err := memberPath(outputDir, member.Name)
		if err != nil {
			return nil, err
		}

		if member.IsEncrypted() {
			member.SetPassword(password)
		}

		if err := writeMember(member, dest); err != nil {
			return nil, fmt.Errorf("extract %s: %w", member.Name, err)
		}

		extracted = append(extracted, dest)
	}

	slog.Info("extracted archive",
		"archive", filepath.Base(archivePath),
		"members", len(extracted),
	)

	return extracted, nil
}

// memberPath resolves a member name under outputDir and rejects names that
// would escape it.
func memberPath(outputDir, name string) (string, error) {
	dest := filepath.Join(outputDir, filepath.FromSlash(name))

	if !strings.HasPrefix(dest, filepath.Clean(outputDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive member %q escapes output directory", name)
	}

	return dest, nil
}

// writeMember copies one archive member to dest. A wrong password or corrupt
// member surfaces here as a read or CRC error.
func writeMember(member *zip.File, dest string) error {
	rc, err := member.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return err
	}

	return out.Close()
}
