// Package profile manages the user's persistent cuecam profile.
// The profile is stored at ~/.config/cuecam/profile.json and is created
// once via the interactive setup flow, then referenced on every command.
package profile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables that override stored credentials.
const (
	EnvToken  = "CUECAM_TOKEN"
	EnvUserID = "CUECAM_USER_ID"
)

// Profile holds the interview server account used for uploads.
type Profile struct {
	Name      string `json:"name"`
	ServerURL string `json:"server_url"`
	UserID    string `json:"user_id"`
	Token     string `json:"access_token"`
}

// SessionContext carries the credentials attached to server calls.
type SessionContext struct {
	Token  string
	UserID string
}

// SessionContext returns the profile's credentials with environment
// overrides applied. A nil profile yields credentials from the environment only.
func (p *Profile) SessionContext() SessionContext {
	var sc SessionContext
	if p != nil {
		sc = SessionContext{Token: p.Token, UserID: p.UserID}
	}
	if v := os.Getenv(EnvToken); v != "" {
		sc.Token = v
	}
	if v := os.Getenv(EnvUserID); v != "" {
		sc.UserID = v
	}
	return sc
}

// profilePath returns the path to the profile file.
func profilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

// ConfigDir returns the cuecam config directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cuecam"), nil
}

// Exists reports whether a profile file is present on disk.
func Exists() bool {
	p, err := profilePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Load reads the profile from disk. Returns an error if the file is missing or malformed.
func Load() (*Profile, error) {
	p, err := profilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("profile not found, run 'cuecam setup' to configure: %w", err)
	}
	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil, fmt.Errorf("malformed profile at %s: %w", p, err)
	}
	return &prof, nil
}

// Save writes the profile to disk, creating the config directory if needed.
// The file holds a bearer token, so it is private to the user.
func Save(prof *Profile) error {
	p, err := profilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}

// RunSetup runs the interactive setup wizard and returns the resulting profile.
// If existing is non-nil, it is used as the default for each prompt (edit mode).
func RunSetup(in io.Reader, out io.Writer, existing *Profile) (*Profile, error) {
	r := bufio.NewReader(in)

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	prof := &Profile{ServerURL: "http://localhost:5000"}
	if existing != nil {
		*prof = *existing
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │   cuecam · first-time setup     │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error

	prof.Name, err = ask("  Your name", prof.Name)
	if err != nil {
		return nil, err
	}

	prof.ServerURL, err = ask("  Interview server URL", prof.ServerURL)
	if err != nil {
		return nil, err
	}
	prof.ServerURL = strings.TrimRight(prof.ServerURL, "/")

	prof.UserID, err = ask("  User ID", prof.UserID)
	if err != nil {
		return nil, err
	}

	prof.Token, err = ask("  Access token", prof.Token)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(out)
	return prof, nil
}
