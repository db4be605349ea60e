// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package testutil contains common testing helpers.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/tools/txtar"
)

// UnmarshalJSON parses the JSON data into v, failing the test in case of failure.
func UnmarshalJSON[V any](t *testing.T, b []byte) V {
	t.Helper()
	var v V
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatal(err)
	}
	return v
}

// AssertEqual compares two values and if they differ, fails the test and
// prints the difference between them.
func AssertEqual(t *testing.T, got, want any) {
	t.Helper()
	if diff := cmp.Diff(got, want); diff != "" {
		t.Fatalf("(-got +want):\n%s", diff)
	}
}

// ExtractTxtar extracts a txtar archive to dir.
func ExtractTxtar(t *testing.T, ar *txtar.Archive, dir string) {
	t.Helper()
	for _, file := range ar.Files {
		if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(file.Name)), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, file.Name), file.Data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// Site writes the files of the txtar archive src into a fresh temporary
// directory and returns its path. Directories named in the archive (names
// ending with a slash) are created empty.
func Site(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	ar := txtar.Parse([]byte(src))
	var files []txtar.File
	for _, f := range ar.Files {
		if len(f.Name) > 0 && f.Name[len(f.Name)-1] == '/' {
			if err := os.MkdirAll(filepath.Join(dir, f.Name), 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		files = append(files, f)
	}
	ExtractTxtar(t, &txtar.Archive{Files: files}, dir)
	return dir
}
