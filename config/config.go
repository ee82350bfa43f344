// config/config.go
//
// This package handles the rapd.yaml configuration file: where the server
// listens, where state lives, how to reach Canvas, and which RAP sources
// each course reconciles from.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adapt/rap-engine/rap"
)

const (
	defaultListenAddr = ":8095"
	defaultDatabase   = "rapd.db"
	defaultPageSize   = 100
	defaultTimeout    = "30s"
)

// CanvasConfig locates the Canvas instance and its credentials. The token
// lives in its own file so the config can be committed or shared.
type CanvasConfig struct {
	BaseURL   string `yaml:"base_url"`
	TokenFile string `yaml:"token_file"`
	PageSize  int    `yaml:"page_size,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
}

// CourseConfig names the RAP sources for one course. Either source may be
// absent; a course with neither cannot be reconciled.
type CourseConfig struct {
	CourseID string `yaml:"course_id"`

	// TabularExport is the path to the current CSV export.
	TabularExport string `yaml:"tabular_export,omitempty"`

	// LegacyDir is a directory of extracted per-student document texts.
	LegacyDir string `yaml:"legacy_dir,omitempty"`
}

// Sourced reports whether the course has at least one RAP source.
func (c CourseConfig) Sourced() bool {
	return c.TabularExport != "" || c.LegacyDir != ""
}

// Config models rapd.yaml.
type Config struct {
	ListenAddr       string         `yaml:"listen_addr,omitempty"`
	Database         string         `yaml:"database,omitempty"`
	Canvas           CanvasConfig   `yaml:"canvas"`
	ApplyConcurrency int            `yaml:"apply_concurrency,omitempty"`
	Courses          []CourseConfig `yaml:"courses,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr:       defaultListenAddr,
		Database:         defaultDatabase,
		ApplyConcurrency: rap.DefaultApplyConcurrency,
		Canvas: CanvasConfig{
			PageSize: defaultPageSize,
			Timeout:  defaultTimeout,
		},
	}
}

// Load reads and validates a config file, filling unset fields with
// defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.ApplyConcurrency == 0 {
		c.ApplyConcurrency = rap.DefaultApplyConcurrency
	}
	if c.Canvas.PageSize == 0 {
		c.Canvas.PageSize = defaultPageSize
	}
	if c.Canvas.Timeout == "" {
		c.Canvas.Timeout = defaultTimeout
	}
}

// Validate checks the structural invariants a run would trip over later.
func (c *Config) Validate() error {
	if _, err := c.CanvasTimeout(); err != nil {
		return err
	}
	if c.ApplyConcurrency < 0 {
		return fmt.Errorf("apply_concurrency must not be negative")
	}

	seen := make(map[string]bool, len(c.Courses))
	for i, course := range c.Courses {
		if course.CourseID == "" {
			return fmt.Errorf("courses[%d]: course_id is required", i)
		}
		if seen[course.CourseID] {
			return fmt.Errorf("courses[%d]: duplicate course_id %s", i, course.CourseID)
		}
		seen[course.CourseID] = true
		if !course.Sourced() {
			return fmt.Errorf("course %s: needs tabular_export or legacy_dir", course.CourseID)
		}
	}
	return nil
}

// CanvasTimeout parses the configured per-request timeout.
func (c *Config) CanvasTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Canvas.Timeout)
	if err != nil {
		return 0, fmt.Errorf("canvas.timeout %q: %w", c.Canvas.Timeout, err)
	}
	return d, nil
}

// Course returns the source configuration for one course, if present.
func (c *Config) Course(id rap.CourseID) (CourseConfig, bool) {
	for _, course := range c.Courses {
		if course.CourseID == string(id) {
			return course, true
		}
	}
	return CourseConfig{}, false
}
