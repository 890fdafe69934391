package log

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{input: "debug", expected: zerolog.DebugLevel},
		{input: "WARN", expected: zerolog.WarnLevel},
		{input: " error ", expected: zerolog.ErrorLevel},
		{input: "trace", expected: zerolog.TraceLevel},
		{input: "", expected: zerolog.InfoLevel},
		{input: "verbose", expected: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}
