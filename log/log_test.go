package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"flag absolute", "/tmp/coachlog", "", "/tmp/coachlog"},
		{"flag relative", "logs", "", filepath.Join(wd, "logs")},
		{"env", "", "/tmp/coach-env-log", "/tmp/coach-env-log"},
		{"flag beats env", "/tmp/a", "/tmp/b", "/tmp/a"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COACH_LOG_PATH", tt.env)
			got, err := ResolveDir(tt.flag)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("COACH_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "coach") {
		t.Errorf("default dir %q should mention coach", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{diagName, feedbackName} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestFeedbackText(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	FeedbackText("sess-1", "7/10")

	data, err := os.ReadFile(filepath.Join(tmp, feedbackName))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "sess-1\t7/10") {
		t.Errorf("feedback log missing entry, got: %q", line)
	}
}

func TestDiagnosticsWritten(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	StateChange("s1", "recording", "stopped")
	ExportResult("saveAudio", false, errors.New("boom"))
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, diagName))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"state", "to=stopped", "export", "op=saveAudio", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics missing %q:\n%s", want, out)
		}
	}
}

func TestLoggingBeforeInitIsNoop(t *testing.T) {
	Close()
	Info("not written")
	FeedbackText("x", "1/10")
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close()
}
