package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiagnostics(t *testing.T) {
	stderr := `
psql:/var/lib/shadow-sync/sync/main_db_dump.sql:21: NOTICE:  table "events" does not exist, skipping
psql:/var/lib/shadow-sync/sync/main_db_dump.sql:30: WARNING:  no privileges were granted for "public"
some unrelated output
psql: error: connection to server at "db" (10.0.0.2), port 5432 failed: FATAL:  password authentication failed
`

	diagnostics := ParseDiagnostics(stderr)

	require.Len(t, diagnostics, 4)
	assert.Equal(t, SeverityNotice, diagnostics[0].Severity)
	assert.Equal(t, SeverityWarning, diagnostics[1].Severity)
	assert.Equal(t, SeverityUnknown, diagnostics[2].Severity)
	assert.Equal(t, SeverityFatal, diagnostics[3].Severity)
}

func TestClassifyImport(t *testing.T) {
	tests := []struct {
		name           string
		exitCode       int
		stderr         string
		expectFatal    bool
		reasonContains string
	}{
		{
			name:        "clean run",
			exitCode:    0,
			stderr:      "",
			expectFatal: false,
		},
		{
			name:     "only notices are benign",
			exitCode: 0,
			stderr: `psql:dump.sql:10: NOTICE:  table "users" does not exist, skipping
psql:dump.sql:11: NOTICE:  sequence "users_id_seq" does not exist, skipping`,
			expectFatal: false,
		},
		{
			name:        "warnings are benign",
			exitCode:    0,
			stderr:      `psql:dump.sql:99: WARNING:  there is no transaction in progress`,
			expectFatal: false,
		},
		{
			name:           "fatal severity fails",
			exitCode:       2,
			stderr:         `psql:dump.sql:5: FATAL:  terminating connection due to administrator command`,
			expectFatal:    true,
			reasonContains: "FATAL",
		},
		{
			name:           "panic severity fails even with a zero exit",
			exitCode:       0,
			stderr:         `PANIC:  could not write to file "pg_wal/xlogtemp.123"`,
			expectFatal:    true,
			reasonContains: "PANIC",
		},
		{
			name:           "script error under ON_ERROR_STOP fails",
			exitCode:       3,
			stderr:         `psql:dump.sql:40: ERROR:  relation "rooms" already exists`,
			expectFatal:    true,
			reasonContains: "rolled back",
		},
		{
			name:           "error inside the single transaction fails without ON_ERROR_STOP",
			exitCode:       0,
			stderr:         `psql:dump.sql:40: ERROR:  syntax error at or near "CREAT"`,
			expectFatal:    true,
			reasonContains: "transaction rolled back",
		},
		{
			name:           "lost connection fails",
			exitCode:       2,
			stderr:         `psql:dump.sql:7: server closed the connection unexpectedly`,
			expectFatal:    true,
			reasonContains: "connection",
		},
		{
			name:           "psql own failure",
			exitCode:       1,
			stderr:         `psql: error: dump.sql: No such file or directory`,
			expectFatal:    true,
			reasonContains: "No such file",
		},
		{
			name:           "unexpected exit status",
			exitCode:       137,
			expectFatal:    true,
			reasonContains: "status 137",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ClassifyImport(tt.exitCode, tt.stderr)

			assert.Equal(t, tt.expectFatal, report.Fatal)
			if tt.reasonContains != "" {
				assert.Contains(t, report.Reason, tt.reasonContains)
			}
		})
	}
}

func TestImportReportCount(t *testing.T) {
	report := ClassifyImport(0, "NOTICE:  a\nNOTICE:  b\nWARNING:  c")

	assert.Equal(t, 2, report.Count(SeverityNotice))
	assert.Equal(t, 1, report.Count(SeverityWarning))
	assert.Equal(t, 0, report.Count(SeverityError))
}
