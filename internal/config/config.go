// ABOUTME: Show configuration loaded from YAML
// ABOUTME: Holds file locations, playback policy, server and UI settings
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lumenshow/lumen-go/internal/framefile"
)

// Config is the complete player configuration
type Config struct {
	Show       Show   `yaml:"show"`
	Soundtrack string `yaml:"soundtrack"`
	Server     Server `yaml:"server"`
	UI         UI     `yaml:"ui"`
	Log        Log    `yaml:"log"`
}

// Show locates the show files and sets the playback policy
type Show struct {
	Dir      string `yaml:"dir"`
	Control  string `yaml:"control"`
	Frames   string `yaml:"frames"`
	Checksum string `yaml:"checksum"`
	FPS      int    `yaml:"fps"`
	Loop     bool   `yaml:"loop"`
	// ResyncMs is how far the clock may run ahead of the stream before
	// playback seeks instead of reading sequentially.
	ResyncMs int `yaml:"resync_ms"`
	// SkipCorrupt keeps playing past records that fail their checksum.
	SkipCorrupt bool `yaml:"skip_corrupt"`
}

// Server configures the node broadcast server
type Server struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Port    int    `yaml:"port"`
	MDNS    bool   `yaml:"mdns"`
}

// UI configures the terminal interface
type UI struct {
	TUI bool `yaml:"tui"`
}

// Log configures logging
type Log struct {
	File  string `yaml:"file"`
	Debug bool   `yaml:"debug"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Show: Show{
			Control:     "control.dat",
			Frames:      "frame.dat",
			Checksum:    "full",
			FPS:         30,
			Loop:        true,
			ResyncMs:    200,
			SkipCorrupt: true,
		},
		Server: Server{
			Name: "lumen-show",
			Port: 8927,
			MDNS: true,
		},
		UI:  UI{TUI: true},
		Log: Log{File: "lumen.log"},
	}
}

// Load reads a YAML file over the defaults. Relative show and soundtrack
// paths resolve against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	base := filepath.Dir(path)
	if cfg.Show.Dir == "" {
		cfg.Show.Dir = base
	} else if !filepath.IsAbs(cfg.Show.Dir) {
		cfg.Show.Dir = filepath.Join(base, cfg.Show.Dir)
	}
	if cfg.Soundtrack != "" && !filepath.IsAbs(cfg.Soundtrack) {
		cfg.Soundtrack = filepath.Join(base, cfg.Soundtrack)
	}

	return cfg, cfg.Validate()
}

// Validate reports every invalid setting
func (c Config) Validate() error {
	var errs []error

	if c.Show.Control == "" {
		errs = append(errs, errors.New("show.control is required"))
	}
	if c.Show.Frames == "" {
		errs = append(errs, errors.New("show.frames is required"))
	}
	if _, err := framefile.ParseChecksumScope(c.Show.Checksum); err != nil {
		errs = append(errs, fmt.Errorf("show.checksum: %w", err))
	}
	if c.Show.FPS < 1 || c.Show.FPS > 1000 {
		errs = append(errs, fmt.Errorf("show.fps must be between 1 and 1000, got %d", c.Show.FPS))
	}
	if c.Show.ResyncMs < 0 {
		errs = append(errs, fmt.Errorf("show.resync_ms must not be negative, got %d", c.Show.ResyncMs))
	}
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}

// ChecksumScope returns the parsed checksum scope
func (c Config) ChecksumScope() framefile.ChecksumScope {
	scope, _ := framefile.ParseChecksumScope(c.Show.Checksum)
	return scope
}

// TickInterval returns the frame delivery period
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Show.FPS)
}

// ResyncWindow returns the resync threshold
func (c Config) ResyncWindow() time.Duration {
	return time.Duration(c.Show.ResyncMs) * time.Millisecond
}
