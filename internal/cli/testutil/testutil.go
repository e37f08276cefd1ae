// Package testutil holds fixtures shared by the CLI tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	corpustest "github.com/leapstack-labs/dsablate/internal/testutil"
)

// SetupTestProject creates a temporary project whose dsablate.yaml points at
// a corpus of n images and a fake trainer script. It returns the project root.
func SetupTestProject(t *testing.T, n int) string {
	t.Helper()

	tmpDir := t.TempDir()
	corpus := corpustest.SetupCorpus(t, n)

	script := filepath.Join(tmpDir, "train.sh")
	trainScript := `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --outputpath) out="$2"; shift ;;
  esac
  shift
done
echo "trained $out"
`
	if err := os.WriteFile(script, []byte(trainScript), 0o600); err != nil {
		t.Fatalf("failed to create train.sh: %v", err)
	}

	cfg := fmt.Sprintf(`corpus_dir: %s
dest_dir: datasets
state_path: .dsablate/state.db
val_ratio: 0.25
experiment:
  name: smoke
  seeds: [1]
  qualities: [10]
trainer:
  interpreter: sh
  script: train.sh
`, corpus)
	if err := os.WriteFile(filepath.Join(tmpDir, "dsablate.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatalf("failed to create dsablate.yaml: %v", err)
	}

	return tmpDir
}

// Chdir switches into dir for the rest of the test.
func Chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI fails when s carries terminal escape sequences.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if loc := ansiEscape.FindStringIndex(s); loc != nil {
		t.Errorf("unexpected ANSI escape at offset %d in %q", loc[0], s)
	}
}

// AssertValidMarkdown checks that code fences are closed and that no
// heading is empty.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()
	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unclosed code fence: %d fence markers", n)
	}
	for i, line := range strings.Split(md, "\n") {
		heading := strings.TrimSpace(line)
		if strings.HasPrefix(heading, "#") && strings.Trim(heading, "# ") == "" {
			t.Errorf("line %d: empty heading", i+1)
		}
	}
}
