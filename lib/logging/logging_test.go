package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug":   logger.DEBUG,
		"INFO":    logger.INFO,
		"":        logger.INFO,
		"warn":    logger.WARNING,
		"warning": logger.WARNING,
		"error":   logger.ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q): unexpected error %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Errorf("expected an error for an unknown level")
	}
}

func TestInitWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWriter(&buf, "warn"); err != nil {
		t.Fatalf("init: %v", err)
	}

	log := logger.GetLogger("bstore")
	log.Infof("hidden %d", 1)
	log.Warningf("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Errorf("expected warning in output, got %q", out)
	}
	if !strings.Contains(out, "pkg=bstore") {
		t.Errorf("expected package attribute, got %q", out)
	}
}

func TestInitWriterTwice(t *testing.T) {
	var first, second bytes.Buffer
	if err := InitWriter(&first, "info"); err != nil {
		t.Fatalf("first init: %v", err)
	}
	log := logger.GetLogger("session")
	log.Infof("before %d", 1)

	if err := InitWriter(&second, "debug"); err != nil {
		t.Fatalf("second init: %v", err)
	}
	log.Debugf("after %d", 2)

	if !strings.Contains(first.String(), "before 1") {
		t.Errorf("expected first message in first writer, got %q", first.String())
	}
	if strings.Contains(first.String(), "after 2") {
		t.Errorf("second message leaked into first writer: %q", first.String())
	}
	if !strings.Contains(second.String(), "after 2") {
		t.Errorf("expected second message in second writer, got %q", second.String())
	}
}
