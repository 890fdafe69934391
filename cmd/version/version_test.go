package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionOutput(t *testing.T) {
	SetVersionInfo("1.2.0", "abc123", "2026-01-02", "ci")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown", "unknown") })

	var out bytes.Buffer
	VersionCmd.SetOut(&out)
	VersionCmd.Run(VersionCmd, nil)

	assert.Contains(t, out.String(), "shadow-sync version 1.2.0")
	assert.Contains(t, out.String(), "commit: abc123")
	assert.Equal(t, "1.2.0 (commit: abc123, date: 2026-01-02)", GetVersion())
}
