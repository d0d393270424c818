package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"all", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" warning ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentTagsLogger(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	Configure("debug")
	defer Configure("info")
	var buf bytes.Buffer
	l := Component("roster").Output(&buf)
	l.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"component":"roster"`) {
		t.Fatalf("component field missing: %s", buf.String())
	}
}
