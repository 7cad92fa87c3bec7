package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateCommand(t *testing.T) {
	path := writeScenario(t, dummyScenario)

	out, err := execute(t, "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate returned error: %v\n%s", err, out)
	}

	for _, want := range []string{"is valid", "Dummy", "20 iterations", "fixed, up to 2 threads", "dummy, pool of 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got:\n%s", want, out)
		}
	}
}

func TestValidateCommand_CustomProfile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "profile.csv"), []byte("0;1;0\n10;4;20\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	scenario := `run:
  type: iteration
  iterations: 30
generator:
  type: custom-profile
  profile:
    file: profile.csv
messages:
  - payload: ping
`
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(scenario), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate returned error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 entries") || !strings.Contains(out, "up to 4 threads") {
		t.Errorf("output should describe the profile, got:\n%s", out)
	}
}

func TestValidateCommand_InvalidScenario(t *testing.T) {
	scenario := `run:
  type: iteration
  iterations: 0
generator:
  type: warp-speed
sender:
  type: http
`
	path := writeScenario(t, scenario)

	_, err := execute(t, "validate", "-c", path)
	if err == nil {
		t.Fatal("expected validation errors")
	}

	msg := err.Error()
	for _, want := range []string{"generator.type", "sender.target", "messages"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error should mention %q, got:\n%s", want, msg)
		}
	}
}

func TestValidateCommand_RequiresConfig(t *testing.T) {
	_, err := execute(t, "validate")
	if err == nil || !strings.Contains(err.Error(), "config") {
		t.Errorf("error = %v, want the required config flag", err)
	}
}
