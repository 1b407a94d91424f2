package main

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRejectsWrongArgCount(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"only-one-arg"})
	err := cmd.Execute()
	assert.Error(t, err)
}

func TestRootCommandRejectsUnknownFlag(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--bogus-flag", "a", "b", "c"})
	err := cmd.Execute()
	assert.Error(t, err, "spec.md §6 names no flags beyond the three positional arguments")
}

func TestRunEmitsExactlyOneDiagnosticLineOnFailure(t *testing.T) {
	dir := t.TempDir()
	missingSource := filepath.Join(dir, "no-such-source.img")
	missingTarget := filepath.Join(dir, "no-such-target.img")
	patchOut := filepath.Join(dir, "out.patch")

	origArgs := os.Args
	os.Args = []string{"squashdelta", missingSource, missingTarget, patchOut}
	defer func() { os.Args = origArgs }()

	var stderr bytes.Buffer
	code := run(&stderr)
	require.Equal(t, 1, code)

	lines := 0
	scanner := bufio.NewScanner(&stderr)
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 1, lines, "spec.md §7 requires a single diagnostic line on failure, got: %q", stderr.String())
}
