package monitoring

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestDefaultLogfWritesThroughLogrus(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(logrus.New().Out)

	Logf("tick skipped: %s", "device busy")
	if !strings.Contains(buf.String(), "tick skipped: device busy") {
		t.Errorf("expected log line in output, got %q", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	defer Logger().SetLevel(logrus.InfoLevel)

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel(debug): %v", err)
	}
	if Logger().GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", Logger().GetLevel())
	}
	if err := SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSetJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(logrus.New().Out)
	defer SetJSON(false)

	SetJSON(true)
	Logger().WithField("session", "abc").Info("started")
	if !strings.Contains(buf.String(), `"session":"abc"`) {
		t.Errorf("expected JSON field in output, got %q", buf.String())
	}
}
