package loggy

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"debug":  zerolog.DebugLevel,
		" WARN ": zerolog.WarnLevel,
		"Error":  zerolog.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("%q: got %s %v", in, got, err)
		}
	}
	if lvl, err := ParseLevel("chatty"); err == nil || lvl != zerolog.InfoLevel {
		t.Errorf("chatty: got %s %v", lvl, err)
	}
}

func TestLogFile(t *testing.T) {
	LogFolder = t.TempDir()
	SILENT = false
	defer func() { SILENT = true }()

	l := NewLogger(7, "unit")
	l.Logf("hello %d", 42)
	if l.logFile == nil {
		t.Fatal("no log file opened")
	}
	l.logFile.Close()

	entries, err := os.ReadDir(LogFolder)
	if err != nil || len(entries) != 1 {
		t.Fatalf("%d log files, %v", len(entries), err)
	}
	data, _ := os.ReadFile(l.logFile.Name())
	if len(data) == 0 {
		t.Error("nothing written")
	}
}

func TestGetCachesLoggers(t *testing.T) {
	SILENT = true
	defer Close()

	a := Get(1)
	if Get(1) != a {
		t.Error("Get(1) returned a new logger")
	}
	if Get(2) == a {
		t.Error("Get(2) returned logger 1")
	}
	if a.logFile != nil {
		t.Error("silent logger opened a file")
	}
	Close()
	if Get(1) == a {
		t.Error("Close kept the logger")
	}
}
