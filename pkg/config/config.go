// Package config loads the harness configuration from a YAML file,
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	harnesserrors "github.com/thc1006/nmeta-systemtest/pkg/errors"
	"github.com/thc1006/nmeta-systemtest/pkg/logging"
	"github.com/thc1006/nmeta-systemtest/pkg/plan"
	"github.com/thc1006/nmeta-systemtest/pkg/playbook"
)

// Environment variables read by ApplyEnv
const (
	EnvResultsRoot = "NMETA_RESULTS_ROOT"
	EnvPlaybookDir = "NMETA_PLAYBOOK_DIR"
	EnvAnsibleBin  = "NMETA_ANSIBLE_BIN"
	EnvLogLevel    = "NMETA_LOG_LEVEL"
)

// Config holds all configuration values for a regression run
type Config struct {
	// Filesystem layout
	ResultsRoot string `yaml:"results_root"`
	PlaybookDir string `yaml:"playbook_dir"`

	// Automation tool
	AnsibleBin             string        `yaml:"ansible_bin"`
	PlaybookTimeout        time.Duration `yaml:"playbook_timeout"`
	IgnorePlaybookFailures bool          `yaml:"ignore_playbook_failures"`

	// Logging and status
	LogLevel   string `yaml:"log_level"`
	StatusAddr string `yaml:"status_addr"`

	PerformanceBeforeEnvironment bool `yaml:"performance_before_environment"`

	Static      FamilyConfig `yaml:"static"`
	Identity    FamilyConfig `yaml:"identity"`
	Statistical FamilyConfig `yaml:"statistical"`
	Performance FamilyConfig `yaml:"performance"`
}

// FamilyConfig tunes one regression family. Parameters a family's playbook
// does not take are ignored.
type FamilyConfig struct {
	Repeats    int             `yaml:"repeats"`
	Duration   int             `yaml:"duration,omitempty"`
	TCPPort    int             `yaml:"tcp_port,omitempty"`
	Count      int             `yaml:"count,omitempty"`
	Pause1     int             `yaml:"pause1,omitempty"`
	Pause2     int             `yaml:"pause2,omitempty"`
	Pause3     int             `yaml:"pause3,omitempty"`
	Sleep      time.Duration   `yaml:"sleep"`
	Thresholds plan.Thresholds `yaml:"thresholds,omitempty"`
}

// Default returns the configuration the regression environment is built for
func Default() *Config {
	return &Config{
		ResultsRoot: "~/nmeta_systemtest_results",
		PlaybookDir: "~/automated_tests",
		AnsibleBin:  playbook.DefaultBinary,
		LogLevel:    "debug",
		Static: FamilyConfig{
			Repeats:    1,
			Duration:   10,
			Pause1:     30,
			Sleep:      plan.DefaultSleep,
			Thresholds: plan.Thresholds{Constrained: 200000, Unconstrained: 1000000},
		},
		Identity: FamilyConfig{
			Repeats:    1,
			Duration:   10,
			TCPPort:    5555,
			Pause1:     10,
			Pause2:     30,
			Pause3:     6,
			Sleep:      plan.DefaultSleep,
			Thresholds: plan.Thresholds{Constrained: 200000, Unconstrained: 1000000},
		},
		Statistical: FamilyConfig{
			Repeats:    1,
			Duration:   10,
			TCPPort:    5555,
			Pause1:     10,
			Sleep:      plan.DefaultSleep,
			Thresholds: plan.Thresholds{Constrained: 280000, Unconstrained: 1000000},
		},
		Performance: FamilyConfig{
			Repeats: 1,
			Count:   30,
			Pause1:  10,
			Sleep:   plan.DefaultSleep,
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults; a
// path that does not exist is a ConfigError.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != ".yaml" && ext != ".yml" {
		return nil, harnesserrors.NewConfigError("config", fmt.Sprintf("unsupported config file extension %q", ext))
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, harnesserrors.NewConfigError("config", fmt.Sprintf("config file %s does not exist", path))
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// ApplyEnv overrides fields from NMETA_* environment variables
func (c *Config) ApplyEnv() {
	c.ResultsRoot = getEnvString(EnvResultsRoot, c.ResultsRoot)
	c.PlaybookDir = getEnvString(EnvPlaybookDir, c.PlaybookDir)
	c.AnsibleBin = getEnvString(EnvAnsibleBin, c.AnsibleBin)
	c.LogLevel = getEnvString(EnvLogLevel, c.LogLevel)
}

// Validate checks that the configuration can drive a run
func (c *Config) Validate() error {
	var problems []string

	if c.ResultsRoot == "" {
		problems = append(problems, "results_root is required")
	}
	if c.PlaybookDir == "" {
		problems = append(problems, "playbook_dir is required")
	}
	if c.AnsibleBin == "" {
		problems = append(problems, "ansible_bin is required")
	}
	if c.PlaybookTimeout < 0 {
		problems = append(problems, "playbook_timeout must be non-negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}

	for _, f := range c.families() {
		if f.config.Repeats < 1 {
			problems = append(problems, fmt.Sprintf("%s.repeats must be at least 1", f.name))
		}
		if f.config.Sleep < 0 {
			problems = append(problems, fmt.Sprintf("%s.sleep must be non-negative", f.name))
		}
	}

	if len(problems) > 0 {
		return harnesserrors.NewConfigError("config", "validation errors: "+strings.Join(problems, ", "))
	}
	return nil
}

// Resolve expands a leading "~" in the configured directories
func (c *Config) Resolve() error {
	var err error
	if c.ResultsRoot, err = expandHome(c.ResultsRoot); err != nil {
		return err
	}
	if c.PlaybookDir, err = expandHome(c.PlaybookDir); err != nil {
		return err
	}
	return nil
}

// GetLogLevel returns the slog.Level for the configured log level
func (c *Config) GetLogLevel() slog.Level {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// Plan builds the regression plan with this configuration's tunables
func (c *Config) Plan() *plan.Plan {
	p := plan.Default()
	p.PerformanceBeforeEnvironment = c.PerformanceBeforeEnvironment

	for _, f := range c.families() {
		if family, ok := p.Family(f.name); ok {
			f.config.apply(family)
		}
	}
	return p
}

// PrintConfig logs the effective configuration
func (c *Config) PrintConfig(logger *slog.Logger) {
	logger.Debug("configuration loaded",
		"results_root", c.ResultsRoot,
		"playbook_dir", c.PlaybookDir,
		"ansible_bin", c.AnsibleBin,
		"playbook_timeout", c.PlaybookTimeout,
		"ignore_playbook_failures", c.IgnorePlaybookFailures,
		"log_level", c.LogLevel,
		"status_addr", c.StatusAddr,
		"performance_before_environment", c.PerformanceBeforeEnvironment,
	)
}

type namedFamily struct {
	name   string
	config FamilyConfig
}

func (c *Config) families() []namedFamily {
	return []namedFamily{
		{plan.FamilyStatic, c.Static},
		{plan.FamilyIdentity, c.Identity},
		{plan.FamilyStatistical, c.Statistical},
		{plan.FamilyPerformance, c.Performance},
	}
}

func (fc FamilyConfig) apply(family *plan.Family) {
	family.Repeats = fc.Repeats
	family.Sleep = fc.Sleep
	if family.Validated() {
		family.Thresholds = fc.Thresholds
	}

	setVar(family.Vars, playbook.VarDuration, fc.Duration)
	setVar(family.Vars, playbook.VarTCPPort, fc.TCPPort)
	setVar(family.Vars, playbook.VarCount, fc.Count)
	setVar(family.Vars, playbook.VarPause1, fc.Pause1)
	setVar(family.Vars, playbook.VarPause2, fc.Pause2)
	setVar(family.Vars, playbook.VarPause3, fc.Pause3)
}

// setVar only touches parameters the family's playbook already takes
func setVar(vars playbook.Vars, key string, value int) {
	if _, ok := vars[key]; ok && value > 0 {
		vars[key] = strconv.Itoa(value)
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
