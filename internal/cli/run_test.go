package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesleyorama2/pacer/internal/performance/config"
)

const dummyScenario = `name: Dummy
run:
  type: iteration
  iterations: 20
generator:
  type: fixed
  threads: 2
sender:
  type: dummy
messages:
  - payload: "ping {{n}}"
sequences:
  - name: n
`

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write scenario: %v", err)
	}
	return path
}

func TestBuildConfigFromCLI(t *testing.T) {
	tests := []struct {
		name        string
		opts        runOptions
		wantRun     config.RunConfig
		wantThreads int
		wantType    string
		wantErr     bool
	}{
		{
			name:        "defaults",
			opts:        runOptions{url: "https://example.com"},
			wantRun:     config.RunConfig{Type: config.RunTime, Duration: config.Duration(30 * time.Second)},
			wantThreads: 10,
			wantType:    "fixed",
		},
		{
			name:        "iterations",
			opts:        runOptions{url: "https://example.com", iterations: 500, threads: 4},
			wantRun:     config.RunConfig{Type: config.RunIteration, Iterations: 500},
			wantThreads: 4,
			wantType:    "fixed",
		},
		{
			name:        "constant speed for a minute",
			opts:        runOptions{url: "https://example.com", generator: "constant-speed", speed: 50, duration: "1m"},
			wantRun:     config.RunConfig{Type: config.RunTime, Duration: config.Duration(time.Minute)},
			wantThreads: 10,
			wantType:    "constant-speed",
		},
		{
			name:        "duration in seconds",
			opts:        runOptions{url: "https://example.com", duration: "45"},
			wantRun:     config.RunConfig{Type: config.RunTime, Duration: config.Duration(45 * time.Second)},
			wantThreads: 10,
			wantType:    "fixed",
		},
		{
			name:    "iterations and duration",
			opts:    runOptions{url: "https://example.com", iterations: 10, duration: "1m"},
			wantErr: true,
		},
		{
			name:    "invalid duration",
			opts:    runOptions{url: "https://example.com", duration: "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := buildConfigFromCLI(&tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildConfigFromCLI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if cfg.Run != tt.wantRun {
				t.Errorf("Run = %+v, want %+v", cfg.Run, tt.wantRun)
			}
			if cfg.Generator.Threads != tt.wantThreads {
				t.Errorf("Threads = %d, want %d", cfg.Generator.Threads, tt.wantThreads)
			}
			if cfg.Generator.Type != tt.wantType {
				t.Errorf("Generator = %q, want %q", cfg.Generator.Type, tt.wantType)
			}
			if cfg.Sender.Type != "http" || cfg.Sender.Target != tt.opts.url {
				t.Errorf("Sender = %+v", cfg.Sender)
			}
			if len(cfg.Messages) != 1 {
				t.Fatalf("Messages = %d, want 1", len(cfg.Messages))
			}

			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				t.Errorf("generated config is invalid: %v", err)
			}
		})
	}
}

func TestRunCommand_RequiresConfigOrURL(t *testing.T) {
	_, err := execute(t, "run")
	if err == nil || !strings.Contains(err.Error(), "--config or --url") {
		t.Errorf("error = %v, want a hint about --config or --url", err)
	}

	_, err = execute(t, "run", "-c", "a.yaml", "--url", "http://localhost")
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("error = %v, want mutually exclusive", err)
	}
}

func TestRunCommand_Quiet(t *testing.T) {
	path := writeScenario(t, dummyScenario)

	out, err := execute(t, "run", "-c", path, "--quiet", "--log-level", "error")
	if err != nil {
		t.Fatalf("run returned error: %v\n%s", err, out)
	}
	if got := strings.TrimSpace(out); got != "PASSED" {
		t.Errorf("output = %q, want PASSED", got)
	}
}

func TestRunCommand_JSONWithOverrides(t *testing.T) {
	path := writeScenario(t, dummyScenario)
	dir := t.TempDir()
	resultFile := filepath.Join(dir, "result.json")
	htmlFile := filepath.Join(dir, "report.html")

	out, err := execute(t, "run", "-c", path, "--json", "--iterations", "7", "--threads", "3",
		"-o", resultFile, "--html", htmlFile, "--log-level", "error")
	if err != nil {
		t.Fatalf("run returned error: %v\n%s", err, out)
	}

	var result struct {
		Generator string `json:"generator"`
		Period    string `json:"period"`
		Passed    bool   `json:"passed"`
		Metrics   struct {
			Iterations int64 `json:"iterations"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, out)
	}
	if !result.Passed {
		t.Error("run should pass")
	}
	if result.Metrics.Iterations != 7 {
		t.Errorf("iterations = %d, want 7", result.Metrics.Iterations)
	}
	if result.Period != "7 iterations" {
		t.Errorf("period = %q", result.Period)
	}

	if _, err := os.Stat(resultFile); err != nil {
		t.Errorf("result file not written: %v", err)
	}
	html, err := os.ReadFile(htmlFile)
	if err != nil {
		t.Fatalf("HTML report not written: %v", err)
	}
	if !strings.Contains(string(html), "PASSED") {
		t.Error("HTML report should show the run passed")
	}
}

func TestRunCommand_URL(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out, err := execute(t, "run", "--url", server.URL, "--iterations", "15", "--threads", "3",
		"--quiet", "--log-level", "error")
	if err != nil {
		t.Fatalf("run returned error: %v\n%s", err, out)
	}
	if hits.Load() != 15 {
		t.Errorf("server hits = %d, want 15", hits.Load())
	}
}

func TestRunCommand_FailFastReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	out, err := execute(t, "run", "--url", server.URL, "--iterations", "5", "--threads", "1",
		"--fail-fast", "--quiet", "--log-level", "error")
	if err == nil {
		t.Fatal("an aborted run should return an error")
	}
	if !strings.Contains(err.Error(), "run aborted") {
		t.Errorf("error = %v", err)
	}
	if got := strings.TrimSpace(out); !strings.HasPrefix(got, "FAILED") {
		t.Errorf("output = %q, want FAILED first", got)
	}
}
