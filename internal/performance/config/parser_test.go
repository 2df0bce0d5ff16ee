package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "standard seconds", input: "30s", expected: 30 * time.Second},
		{name: "standard minutes", input: "2m", expected: 2 * time.Minute},
		{name: "milliseconds", input: "500ms", expected: 500 * time.Millisecond},
		{name: "combined duration", input: "1h30m", expected: 90 * time.Minute},
		{name: "integer as seconds", input: "30", expected: 30 * time.Second},
		{name: "empty string", input: "", expected: 0},
		{name: "invalid format", input: "abc", wantErr: true},
		{name: "trailing garbage", input: "30x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDurationString() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseDurationString() = %v, want %v", got, tt.expected)
			}
		})
	}
}

const stressYAML = `
name: stress
description: stepped stress test
target:
  url: http://localhost:3000/api/hello
  headers:
    Accept: application/json
  expect:
    status: [200]
    json:
      - path: $.message
        equals: Hello from Fiber!
thinkTime: 50ms
load:
  stages:
    - duration: 10s
      target: 50
    - duration: 10
      target: 100
      name: peak
    - duration: 0s
      target: 0
thresholds:
  - failure_rate < 0.05
  - metric: p95
    comparator: "<"
    bound: 2000ms
  - metric: requests
    comparator: ">"
    bound: 10
settings:
  maxVUs: 150
  gracefulStop: 5s
  maxSamples: 10000
`

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(stressYAML), FormatYAML)
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}

	if cfg.Name != "stress" {
		t.Errorf("Name = %q, want stress", cfg.Name)
	}
	if cfg.Target.Method != DefaultMethod {
		t.Errorf("Method = %q, want default %q", cfg.Target.Method, DefaultMethod)
	}
	if cfg.Target.Timeout.Std() != DefaultRequestTimeout {
		t.Errorf("Timeout = %v, want default %v", cfg.Target.Timeout, DefaultRequestTimeout)
	}
	if cfg.ThinkTime.Min.Std() != 50*time.Millisecond || !cfg.ThinkTime.IsFixed() {
		t.Errorf("ThinkTime = %+v, want fixed 50ms", cfg.ThinkTime)
	}
	if len(cfg.Load.Stages) != 3 {
		t.Fatalf("len(Stages) = %d, want 3", len(cfg.Load.Stages))
	}
	if cfg.Load.Stages[1].Duration.Std() != 10*time.Second {
		t.Errorf("integer stage duration = %v, want 10s", cfg.Load.Stages[1].Duration)
	}
	if len(cfg.Thresholds) != 3 {
		t.Fatalf("len(Thresholds) = %d, want 3", len(cfg.Thresholds))
	}
	if cfg.Thresholds[0].Expression != "failure_rate < 0.05" {
		t.Errorf("Thresholds[0] = %+v", cfg.Thresholds[0])
	}
	if cfg.Thresholds[2].Bound != "10" {
		t.Errorf("numeric bound = %q, want 10", cfg.Thresholds[2].Bound)
	}
	if cfg.Settings.MaxVUs != 150 || cfg.Settings.GracefulStop.Std() != 5*time.Second || cfg.Settings.MaxSamples != 10000 {
		t.Errorf("Settings = %+v", cfg.Settings)
	}
	if cfg.Target.Expect.JSON[0].Equals != "Hello from Fiber!" {
		t.Errorf("json check = %+v", cfg.Target.Expect.JSON[0])
	}
}

func TestParseConfig_JSON(t *testing.T) {
	doc := `{
		"name": "load",
		"target": {"url": "https://example.com/health", "method": "post", "timeout": 5},
		"thinkTime": {"min": "100ms", "max": "300ms"},
		"load": {"vus": 10, "duration": "30s"},
		"thresholds": ["p95 < 500ms", {"metric": "failure_rate", "comparator": "<=", "bound": 0.01}]
	}`

	cfg, err := ParseConfig([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}

	if cfg.Target.Method != "POST" {
		t.Errorf("Method = %q, want POST", cfg.Target.Method)
	}
	if cfg.Target.Timeout.Std() != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Target.Timeout)
	}
	if cfg.ThinkTime.Min.Std() != 100*time.Millisecond || cfg.ThinkTime.Max.Std() != 300*time.Millisecond {
		t.Errorf("ThinkTime = %+v", cfg.ThinkTime)
	}
	if cfg.Load.VUs != 10 || cfg.Load.Duration.Std() != 30*time.Second {
		t.Errorf("Load = %+v", cfg.Load)
	}
	if cfg.Thresholds[1].Bound != "0.01" {
		t.Errorf("Thresholds[1].Bound = %q, want 0.01", cfg.Thresholds[1].Bound)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantFields []string
	}{
		{
			name:       "unknown threshold metric",
			doc:        "target: {url: http://x}\nload: {vus: 1, duration: 1s}\nthresholds: [\"p999 < 100ms\"]",
			wantFields: []string{"thresholds[0]"},
		},
		{
			name:       "missing target",
			doc:        "load: {vus: 1, duration: 1s}",
			wantFields: []string{""},
		},
		{
			name:       "negative stage target",
			doc:        "target: {url: http://x}\nload: {stages: [{duration: 1s, target: -1}]}",
			wantFields: []string{"load.stages[0].target"},
		},
		{
			name:       "unknown key",
			doc:        "target: {url: http://x}\nload: {vus: 1, duration: 1s}\nvu: 3",
			wantFields: []string{""},
		},
		{
			name:       "bad scheme",
			doc:        "target: {url: ftp://x}\nload: {vus: 1, duration: 1s}",
			wantFields: []string{"target.url"},
		},
		{
			name:       "bad duration",
			doc:        "target: {url: http://x}\nload: {vus: 1, duration: soon}",
			wantFields: nil,
		},
		{
			name:       "constant without duration",
			doc:        "target: {url: http://x}\nload: {vus: 3}",
			wantFields: []string{"load.duration"},
		},
		{
			name:       "both profiles",
			doc:        "target: {url: http://x}\nload: {vus: 3, duration: 1s, stages: [{duration: 1s, target: 1}]}",
			wantFields: []string{"load"},
		},
		{
			name:       "inverted think-time",
			doc:        "target: {url: http://x}\nthinkTime: {min: 2s, max: 1s}\nload: {vus: 1, duration: 1s}",
			wantFields: []string{"thinkTime"},
		},
		{
			name:       "unsupported method",
			doc:        "target: {url: http://x, method: FETCH}\nload: {vus: 1, duration: 1s}",
			wantFields: []string{"target.method"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.doc), FormatYAML)
			if err == nil {
				t.Fatal("expected error")
			}

			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("error %T is not a *ConfigError", err)
			}

			if len(tt.wantFields) == 0 {
				return
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error does not carry ValidationErrors: %v", err)
			}
			fields := strings.Join(verrs.Fields(), ",")
			for _, f := range tt.wantFields {
				found := false
				for _, got := range verrs.Fields() {
					if got == f {
						found = true
					}
				}
				if !found {
					t.Errorf("fields = [%s], want %q among them (%v)", fields, f, err)
				}
			}
		})
	}
}

func TestParseConfig_Empty(t *testing.T) {
	_, err := ParseConfig([]byte("  \n"), FormatYAML)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("ParseConfig(empty) error = %v, want *ConfigError", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "stress.yaml")
	if err := os.WriteFile(yamlPath, []byte(stressYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(yamlPath); err != nil {
		t.Errorf("LoadConfig(yaml) error: %v", err)
	}

	jsonPath := filepath.Join(dir, "load.JSON")
	if err := os.WriteFile(jsonPath, []byte(`{"target":{"url":"http://x"},"load":{"vus":1,"duration":1}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(jsonPath); err != nil {
		t.Errorf("LoadConfig(json) error: %v", err)
	}

	badPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(badPath, []byte("target: {url: http://x}\nload: {vus: 0, duration: 1s}"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(badPath)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("LoadConfig(bad) error = %v, want *ConfigError", err)
	}
	if cerr.File != badPath {
		t.Errorf("ConfigError.File = %q, want %q", cerr.File, badPath)
	}

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	if !errors.As(err, &cerr) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig(missing) error = %v, want *ConfigError wrapping ErrNotExist", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"a.json": FormatJSON,
		"a.JSON": FormatJSON,
		"a.yaml": FormatYAML,
		"a.yml":  FormatYAML,
		"a":      FormatYAML,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoadConfig_ShippedExamples(t *testing.T) {
	tests := []struct {
		file       string
		staged     bool
		peak       int
		duration   time.Duration
		thresholds int
	}{
		{file: "load-test.yaml", peak: 10, duration: 30 * time.Second},
		{file: "stress-test.yaml", staged: true, peak: 400, duration: 50 * time.Second, thresholds: 2},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			cfg, err := LoadConfig(filepath.Join("..", "..", "..", "examples", tt.file))
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if cfg.Load.IsStaged() != tt.staged {
				t.Errorf("IsStaged() = %v, want %v", cfg.Load.IsStaged(), tt.staged)
			}

			exec := cfg.ExecutorConfig()
			if got := exec.MaxVUs(); got != tt.peak {
				t.Errorf("MaxVUs() = %d, want %d", got, tt.peak)
			}
			if got := exec.TotalDuration(); got != tt.duration {
				t.Errorf("TotalDuration() = %v, want %v", got, tt.duration)
			}
			thresholds, err := cfg.BuildThresholds()
			if err != nil {
				t.Errorf("BuildThresholds() error = %v", err)
			}
			if len(thresholds) != tt.thresholds {
				t.Errorf("len(thresholds) = %d, want %d", len(thresholds), tt.thresholds)
			}
			// A slow target must end in a threshold verdict, not a drain fault.
			if cfg.Settings.GracefulStop.Std() != 0 {
				t.Errorf("settings.gracefulStop = %v, want 0 (wait for every VU)", cfg.Settings.GracefulStop.Std())
			}
		})
	}
}
