package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Feature: cuecam, Property 10: Config merge precedence
func TestConfigMergePrecedence(t *testing.T) {
	nonEmptyString := rapid.StringMatching(`[a-zA-Z0-9/_.:-]{1,20}`)

	configGen := rapid.Custom(func(t *rapid.T) *Config {
		cfg := &Config{}
		if rapid.Bool().Draw(t, "hasServerURL") {
			cfg.ServerURL = nonEmptyString.Draw(t, "serverURL")
		}
		if rapid.Bool().Draw(t, "hasPromptPath") {
			cfg.PromptPath = nonEmptyString.Draw(t, "promptPath")
		}
		if rapid.Bool().Draw(t, "hasMimeProfile") {
			cfg.MimeProfile = nonEmptyString.Draw(t, "mimeProfile")
		}
		if rapid.Bool().Draw(t, "hasFrameRate") {
			cfg.FrameRate = rapid.IntRange(1, 60).Draw(t, "frameRate")
		}
		return cfg
	})

	rapid.Check(t, func(t *rapid.T) {
		global := configGen.Draw(t, "global")
		project := configGen.Draw(t, "project")

		merged := Merge(global, project)
		defaults := Defaults()

		checkStringField(t, "ServerURL",
			global.ServerURL, project.ServerURL, defaults.ServerURL,
			merged.ServerURL)
		checkStringField(t, "PromptPath",
			global.PromptPath, project.PromptPath, defaults.PromptPath,
			merged.PromptPath)
		checkStringField(t, "MimeProfile",
			global.MimeProfile, project.MimeProfile, defaults.MimeProfile,
			merged.MimeProfile)

		want := defaults.FrameRate
		switch {
		case project.FrameRate > 0:
			want = project.FrameRate
		case global.FrameRate > 0:
			want = global.FrameRate
		}
		if merged.FrameRate != want {
			t.Fatalf("FrameRate: expected %d, got %d", want, merged.FrameRate)
		}
	})
}

// checkStringField asserts the merge precedence rule for a single string field:
//   - project non-empty  → merged == project
//   - project empty, global non-empty → merged == global
//   - both empty → merged == defaultVal
func checkStringField(t *rapid.T, name, globalVal, projectVal, defaultVal, mergedVal string) {
	t.Helper()
	switch {
	case projectVal != "":
		if mergedVal != projectVal {
			t.Fatalf("%s: both set, expected project value %q, got %q", name, projectVal, mergedVal)
		}
	case globalVal != "":
		if mergedVal != globalVal {
			t.Fatalf("%s: only global set, expected global value %q, got %q", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: neither set, expected default %q, got %q", name, defaultVal, mergedVal)
		}
	}
}

func TestDefaultsValues(t *testing.T) {
	d := Defaults()
	if d.PromptPath != "prerecorded/prerecorded.mp4" {
		t.Errorf("PromptPath: got %q", d.PromptPath)
	}
	if d.AutoStopThreshold != 99.5 {
		t.Errorf("AutoStopThreshold: got %v", d.AutoStopThreshold)
	}
	if d.PollInterval() != 100*time.Millisecond {
		t.Errorf("PollInterval: got %v", d.PollInterval())
	}
	if d.MergeTimeout() != 0 {
		t.Errorf("MergeTimeout: want unbounded, got %v", d.MergeTimeout())
	}
}

func TestMergeIgnoresOutOfRangeThreshold(t *testing.T) {
	got := Merge(&Config{AutoStopThreshold: 150}, nil)
	if got.AutoStopThreshold != 99.5 {
		t.Errorf("AutoStopThreshold: got %v", got.AutoStopThreshold)
	}
	got = Merge(nil, &Config{AutoStopThreshold: 98})
	if got.AutoStopThreshold != 98 {
		t.Errorf("AutoStopThreshold: got %v", got.AutoStopThreshold)
	}
}

func TestLoadGlobalMissingFileReturnsDefaults(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config, got nil")
	}
	if *cfg != Defaults() {
		t.Errorf("want defaults, got %+v", cfg)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoadProjectMissingFileReturnsNil(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadProject()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}
}

func TestLoadLayersAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgDir := filepath.Join(home, ".config", "cuecam")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	global := `{"server_url":"http://global:5000","frame_rate":24,"log_level":"debug"}`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(global), 0o644); err != nil {
		t.Fatal(err)
	}
	proj := t.TempDir()
	chdir(t, proj)
	if err := os.WriteFile(".cuecamconfig", []byte(`{"frame_rate":15}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "http://global:5000" || cfg.FrameRate != 15 || cfg.LogLevel != "debug" {
		t.Errorf("unexpected merge %+v", cfg)
	}

	t.Setenv(EnvServerURL, "http://env:9000")
	cfg, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "http://env:9000" {
		t.Errorf("env override ignored: %q", cfg.ServerURL)
	}
}

func TestLoadGlobalParseError(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	cfgDir := tmp + "/.config/cuecam"
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfgDir+"/config.json", []byte("{invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGlobal()
	if err == nil {
		t.Fatal("expected an error for invalid JSON, got nil")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected *ParseError, got %T: %v", err, err)
	}
}
