package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CopyStruct returns a shallow copy so a test can change a shared fixture.
func CopyStruct[T any](original *T) *T {
	if original == nil {
		return nil
	}
	clone := *original
	return &clone
}

// WriteScript writes an executable shell script standing in for an external tool.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))
	return path
}
