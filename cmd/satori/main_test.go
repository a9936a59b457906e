package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	root := rootCommand()
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("store:\n  backend: ram\n"), 0o600))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("store:\n  backend: floppy\n"), 0o600))

	out, err := runCommand(t, "check", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration OK")

	_, err = runCommand(t, "check", "-c", bad)
	assert.Error(t, err)

	_, err = runCommand(t, "check", "extra")
	assert.Error(t, err)
}
