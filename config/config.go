package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TrackConfig defines one loop track and its optional bindings. The
// binding fields name peer signals to connect to when they appear.
type TrackConfig struct {
	Name       string `json:"name"`
	Kind       string `json:"kind,omitempty"`  // float32, int32 or float64
	Width      int    `json:"width,omitempty"` // vector width, default 1
	Record     string `json:"record,omitempty"`
	Length     string `json:"length,omitempty"`
	Modulation string `json:"modulation,omitempty"`
	Input      string `json:"input,omitempty"`
	Output     string `json:"output,omitempty"`
}

// OSCConfig defines graph peering over OSC
type OSCConfig struct {
	Listen     string   `json:"listen,omitempty"` // local host:port, empty disables
	Peers      []string `json:"peers,omitempty"`  // remote host:port addresses
	AnnounceMS int      `json:"announceMs,omitempty"`
}

// ClockConfig selects the beat source
type ClockConfig struct {
	Source   string  `json:"source,omitempty"` // internal or midi
	Tempo    float64 `json:"tempo,omitempty"`
	MIDIPort string  `json:"midiPort,omitempty"`
}

// MIDIConfig wires a control change to the first track's input and its
// output back to a control change
type MIDIConfig struct {
	InputPort     string `json:"inputPort,omitempty"`
	InputChannel  int    `json:"inputChannel,omitempty"`
	InputCC       int    `json:"inputCC,omitempty"`
	OutputPort    string `json:"outputPort,omitempty"`
	OutputChannel int    `json:"outputChannel,omitempty"`
	OutputCC      int    `json:"outputCC,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Device   string        `json:"device,omitempty"`
	UpdateMS int           `json:"updateMs,omitempty"`
	OSC      OSCConfig     `json:"osc,omitempty"`
	Clock    ClockConfig   `json:"clock,omitempty"`
	MIDI     MIDIConfig    `json:"midi,omitempty"`
	Tracks   []TrackConfig `json:"tracks,omitempty"`
}

// DefaultConfig returns a config with sensible defaults: one scalar
// track on the internal clock at 120 BPM, no peering
func DefaultConfig() *Config {
	return &Config{
		Device:   "gesturelooper",
		UpdateMS: 5,
		Clock: ClockConfig{
			Source: "internal",
			Tempo:  120,
		},
		Tracks: []TrackConfig{
			{Name: "track1"},
		},
	}
}

// Validate checks the parts that would otherwise fail deep inside
// startup
func (c *Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("device name is empty")
	}
	if len(c.Tracks) == 0 {
		return fmt.Errorf("no tracks configured")
	}
	seen := make(map[string]bool)
	for _, t := range c.Tracks {
		if t.Name == "" {
			return fmt.Errorf("track without a name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate track %s", t.Name)
		}
		seen[t.Name] = true
	}
	switch c.Clock.Source {
	case "", "internal", "midi":
	default:
		return fmt.Errorf("unknown clock source %q", c.Clock.Source)
	}
	return nil
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "gesturelooper"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads a config from an explicit path, or returns defaults
// if the file does not exist
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config to its default location
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to an explicit path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Announce returns the announce interval with its default applied
func (c *OSCConfig) Announce() int {
	if c.AnnounceMS <= 0 {
		return 1000
	}
	return c.AnnounceMS
}

// Interval returns the update interval with its default applied
func (c *Config) Interval() int {
	if c.UpdateMS <= 0 {
		return 5
	}
	return c.UpdateMS
}
