package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".steptest"
	configFile string = "config.yml"
)

const (
	DefaultDlvPath        = "dlv"
	DefaultStepTimeout    = 30 * time.Second
	DefaultFinishTimeout  = 30 * time.Second
	DefaultMaxFilterSteps = 64
)

// SubstitutePathRule describes a rule for substitution of path to source code file.
type SubstitutePathRule struct {
	// Directory path will be substituted if it matches `From`.
	From string
	// Path to which substitution is performed.
	To string
}

// SubstitutePathRules is a slice of source code path substitution rules.
type SubstitutePathRules []SubstitutePathRule

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// DlvPath is the delve executable used to start debug adapters.
	DlvPath string `yaml:"dlv-path,omitempty"`
	// BuildFlags are passed to 'go build' when compiling a script.
	BuildFlags string `yaml:"build-flags,omitempty"`

	// StepTimeout bounds the wait for the suspension that follows a single
	// command.
	StepTimeout time.Duration `yaml:"step-timeout,omitempty"`
	// FinishTimeout bounds the wait for the debuggee to terminate once all
	// directives have been executed.
	FinishTimeout time.Duration `yaml:"finish-timeout,omitempty"`
	// MaxFilterSteps is the number of engine steps a filtered step-into may
	// take before giving up on reaching its target.
	MaxFilterSteps int `yaml:"max-filter-steps,omitempty"`

	// Source code path substitution rules, applied to the positions
	// reported by the debug adapter.
	SubstitutePath SubstitutePathRules `yaml:"substitute-path"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	c := &Config{}
	c.fillDefaults()
	return c
}

func (c *Config) fillDefaults() {
	if c.DlvPath == "" {
		c.DlvPath = DefaultDlvPath
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}
	if c.FinishTimeout <= 0 {
		c.FinishTimeout = DefaultFinishTimeout
	}
	if c.MaxFilterSteps <= 0 {
		c.MaxFilterSteps = DefaultMaxFilterSteps
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	r := *c
	r.SubstitutePath = append(SubstitutePathRules(nil), c.SubstitutePath...)
	return &r
}

// Substitute applies the first matching substitute-path rule to path.
func (rules SubstitutePathRules) Substitute(path string) string {
	for _, r := range rules {
		from := filepath.Clean(r.From)
		if path == from {
			return filepath.Clean(r.To)
		}
		if strings.HasPrefix(path, from+string(filepath.Separator)) {
			return filepath.Join(r.To, path[len(from):])
		}
	}
	return path
}

// LoadConfig attempts to populate a Config object from the config.yml file.
// The default configuration file is created if it does not exist.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return Default()
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return Default()
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v", err)
			return Default()
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Printf("Closing config file failed: %v.", err)
		}
	}()

	c, err := decode(f)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.", err)
		return Default()
	}
	return c
}

// LoadConfigFrom reads the configuration at path. Unlike LoadConfig it
// reports every failure to the caller.
func LoadConfigFrom(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config file %s: %v", path, err)
	}
	return c, nil
}

func decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.fillDefaults()
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for steptest.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Path to the delve executable used to start the debug adapter.
# dlv-path: dlv

# Flags passed to 'go build' when compiling a script.
# build-flags: "-tags=integration"

# Maximum time to wait for the debuggee to suspend after a step or resume.
# step-timeout: 30s

# Maximum time to wait for the debuggee to exit after the last directive.
# finish-timeout: 30s

# Maximum number of engine steps a filtered step-into may take.
# max-filter-steps: 64

# Define sources path substitution rules. Can be used to rewrite a source path
# reported by the debug adapter, if the sources were moved to a different place
# between compilation and debugging.
substitute-path:
  # - {from: path, to: path}
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if configPath := os.Getenv("XDG_CONFIG_HOME"); configPath != "" {
		return filepath.Join(configPath, "steptest", file), nil
	}

	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return filepath.Join(userHomeDir, configDir, file), nil
}
