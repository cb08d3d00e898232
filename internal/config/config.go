package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// EnvServerURL overrides server_url from every config file.
const EnvServerURL = "CUECAM_SERVER_URL"

// Config holds all configurable cuecam settings.
type Config struct {
	ServerURL    string `json:"server_url"`
	PromptPath   string `json:"prompt_path"`
	CameraDevice string `json:"camera_device"` // /dev/video0, or an avfoundation index
	MicDevice    string `json:"mic_device"`
	InputFormat  string `json:"input_format"` // ffmpeg demuxer: v4l2 | avfoundation | dshow
	AudioFormat  string `json:"audio_format"` // alsa | pulse
	MimeProfile  string `json:"mime_profile"`
	FrameRate    int    `json:"frame_rate"`

	PollIntervalMS      int     `json:"poll_interval_ms"`
	AutoStopThreshold   float64 `json:"auto_stop_threshold"`
	MergeTimeoutSeconds int     `json:"merge_timeout_seconds"` // 0 waits indefinitely

	LogDir   string `json:"log_dir"`
	LogLevel string `json:"log_level"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		PromptPath:        "prerecorded/prerecorded.mp4",
		MimeProfile:       "video/webm;codecs=vp9,opus",
		FrameRate:         30,
		PollIntervalMS:    100,
		AutoStopThreshold: 99.5,
		LogLevel:          "info",
	}
}

// PollInterval is the prompt progress poll period.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// MergeTimeout bounds the merge request. Zero means no deadline.
func (c Config) MergeTimeout() time.Duration {
	return time.Duration(c.MergeTimeoutSeconds) * time.Second
}

// LoadGlobal reads ~/.config/cuecam/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".config", "cuecam", "config.json")
	return loadFile(path, true)
}

// LoadProject reads .cuecamconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".cuecamconfig", false)
}

// Load reads both layers, merges them and applies the environment.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, err
	}
	cfg := Merge(global, project)
	if v := os.Getenv(EnvServerURL); v != "" {
		cfg.ServerURL = v
	}
	return cfg, nil
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	overlay(&result, global)
	overlay(&result, project)
	return result
}

// overlay copies every set field of src over dst.
func overlay(dst, src *Config) {
	if src == nil {
		return
	}
	str := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	str(&dst.ServerURL, src.ServerURL)
	str(&dst.PromptPath, src.PromptPath)
	str(&dst.CameraDevice, src.CameraDevice)
	str(&dst.MicDevice, src.MicDevice)
	str(&dst.InputFormat, src.InputFormat)
	str(&dst.AudioFormat, src.AudioFormat)
	str(&dst.MimeProfile, src.MimeProfile)
	str(&dst.LogDir, src.LogDir)
	str(&dst.LogLevel, src.LogLevel)

	if src.FrameRate > 0 {
		dst.FrameRate = src.FrameRate
	}
	if src.PollIntervalMS > 0 {
		dst.PollIntervalMS = src.PollIntervalMS
	}
	if src.AutoStopThreshold > 0 && src.AutoStopThreshold <= 100 {
		dst.AutoStopThreshold = src.AutoStopThreshold
	}
	if src.MergeTimeoutSeconds > 0 {
		dst.MergeTimeoutSeconds = src.MergeTimeoutSeconds
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
