package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warning", LevelWarning, false},
		{"WARN", LevelWarning, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"verbose", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestSetLevelFromEnv(t *testing.T) {
	defer SetLevel(LevelInfo)

	t.Setenv("CASEWORK_TEST_LEVEL", "debug")
	SetLevelFromEnv("CASEWORK_TEST_LEVEL", LevelInfo)
	if GetLevel() != LevelDebug {
		t.Errorf("expected DEBUG, got %v", GetLevel())
	}

	t.Setenv("CASEWORK_TEST_LEVEL", "nonsense")
	SetLevelFromEnv("CASEWORK_TEST_LEVEL", LevelWarning)
	if GetLevel() != LevelWarning {
		t.Errorf("invalid value should fall back to default, got %v", GetLevel())
	}
}

func TestErrorWritesJSONAndCounts(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetSampleRate(1)
	defer SetOutput(os.Stdout)

	before := TotalErrors.Load()
	Error("transition failed", "case_id", "case-1")

	if TotalErrors.Load() != before+1 {
		t.Error("error counter should be incremented")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "transition failed" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["case_id"] != "case-1" {
		t.Errorf("expected case_id attribute, got %v", entry["case_id"])
	}
}

func TestWarnHttp4xxCounters(t *testing.T) {
	before409 := Total409Errors.Load()
	before422 := Total422Errors.Load()
	before4xx := Total4xxErrors.Load()

	WarnHttp4xx(409)
	WarnHttp4xx(422)

	if Total409Errors.Load() != before409+1 || Total422Errors.Load() != before422+1 {
		t.Error("specific 4xx counters should be incremented")
	}
	if Total4xxErrors.Load() != before4xx+2 {
		t.Error("4xx total should count both responses")
	}
}
