package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityNotice
	SeverityWarning
	SeverityError
	SeverityFatal
	SeverityPanic
)

var severityNames = map[string]Severity{
	"DEBUG":   SeverityDebug,
	"LOG":     SeverityInfo,
	"INFO":    SeverityInfo,
	"NOTICE":  SeverityNotice,
	"WARNING": SeverityWarning,
	"ERROR":   SeverityError,
	"FATAL":   SeverityFatal,
	"PANIC":   SeverityPanic,
}

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityNotice:
		return "NOTICE"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityFatal:
		return "FATAL"
	case SeverityPanic:
		return "PANIC"
	default:
		return "UNKNOWN"
	}
}

// Server messages relayed by psql carry the severity as an upper-case tag followed by a colon,
// e.g. `psql:dump.sql:42: NOTICE:  table "x" does not exist, skipping`.
var severityPattern = regexp.MustCompile(`\b(DEBUG|LOG|INFO|NOTICE|WARNING|ERROR|FATAL|PANIC):`)

// psql exit statuses, see psql(1).
const (
	psqlExitOK          = 0
	psqlExitFatal       = 1
	psqlExitConnection  = 2
	psqlExitScriptError = 3
)

type Diagnostic struct {
	Severity Severity
	Line     string
}

// ImportReport is the classified outcome of a restore.
type ImportReport struct {
	ExitCode    int
	Diagnostics []Diagnostic
	Fatal       bool
	Reason      string
}

func (r *ImportReport) Count(severity Severity) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == severity {
			n++
		}
	}
	return n
}

// ParseDiagnostics picks the highest severity tag on every non-empty stderr line. Lines without
// a tag are kept as SeverityUnknown.
func ParseDiagnostics(stderr string) []Diagnostic {
	var diagnostics []Diagnostic
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d := Diagnostic{Line: line}
		for _, match := range severityPattern.FindAllStringSubmatch(line, -1) {
			if sev := severityNames[match[1]]; sev > d.Severity {
				d.Severity = sev
			}
		}
		diagnostics = append(diagnostics, d)
	}
	return diagnostics
}

// ClassifyImport decides whether a restore failed. The restore runs as a single transaction, so
// any ERROR means the transaction was rolled back and nothing was applied. FATAL and PANIC mean
// the session died. A non-zero exit is always fatal. NOTICE and WARNING lines are benign.
func ClassifyImport(exitCode int, stderr string) *ImportReport {
	report := &ImportReport{
		ExitCode:    exitCode,
		Diagnostics: ParseDiagnostics(stderr),
	}

	worst := SeverityUnknown
	var worstLine string
	for _, d := range report.Diagnostics {
		if d.Severity > worst {
			worst = d.Severity
			worstLine = d.Line
		}
	}

	switch {
	case worst >= SeverityFatal:
		report.Fatal = true
		report.Reason = fmt.Sprintf("server reported %s: %s", worst, worstLine)
	case exitCode == psqlExitConnection:
		report.Fatal = true
		report.Reason = "connection to the secondary was lost"
	case exitCode == psqlExitScriptError:
		report.Fatal = true
		report.Reason = fmt.Sprintf("script error, transaction rolled back: %s", worstLine)
	case exitCode == psqlExitFatal:
		report.Fatal = true
		report.Reason = "psql failed: " + lastLine(stderr)
	case exitCode != psqlExitOK:
		report.Fatal = true
		report.Reason = fmt.Sprintf("psql exited with status %d", exitCode)
	case worst == SeverityError:
		report.Fatal = true
		report.Reason = "transaction rolled back: " + worstLine
	}
	return report
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
