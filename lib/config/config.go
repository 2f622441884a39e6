// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path
// from.
const EnvVar = "APPDIST_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local machines: no auth token required.
	Development Environment = "development"
	// Production requires an auth token and a public URL.
	Production Environment = "production"
)

// Config is the configuration of the distribution server and the
// admin CLI.
type Config struct {
	// Environment selects validation strictness.
	Environment Environment `yaml:"environment"`

	// Store configures the upload store.
	Store StoreConfig `yaml:"store"`

	// HTTP configures the server.
	HTTP HTTPConfig `yaml:"http"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`
}

// StoreConfig configures the upload store.
type StoreConfig struct {
	// Root is the store directory. Created if missing.
	// Default: ${HOME}/.local/share/appdist
	Root string `yaml:"root"`

	// StagingMaxAge is how old abandoned staging entries must be
	// before startup removes them.
	// Default: 24h
	StagingMaxAge time.Duration `yaml:"staging_max_age"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	// Listen is the TCP address to listen on.
	// Default: 127.0.0.1:8000
	Listen string `yaml:"listen"`

	// PublicURL is the externally visible base URL, used to build
	// download links and install descriptors. iOS only installs over
	// https. Default: http://<listen>
	PublicURL string `yaml:"public_url"`

	// AuthToken protects uploads, deletes, listings, and tag
	// mutations through the X-Auth-Token header. Empty disables the
	// check (development only).
	AuthToken string `yaml:"auth_token"`

	// MaxUploadBytes bounds a single upload request.
	// Default: 1 GiB
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLSCertFile and TLSKeyFile make the server speak HTTPS itself.
	// Leave both empty behind a TLS-terminating proxy.
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is json or text.
	// Default: json
	Format string `yaml:"format"`

	// File, when set, receives logs instead of stderr and is rotated
	// by size.
	File string `yaml:"file"`

	// MaxSizeMB is the size at which File is rotated.
	// Default: 100
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is how many rotated files to keep.
	// Default: 5
	MaxBackups int `yaml:"max_backups"`
}

// Default returns the default configuration, used as the base that a
// config file is merged into.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Store: StoreConfig{
			Root:          filepath.Join(homeDir, ".local", "share", "appdist"),
			StagingMaxAge: 24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Listen:          "127.0.0.1:8000",
			MaxUploadBytes:  1 << 30,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
	}
}

// Load loads configuration from the file named by APPDIST_CONFIG.
// There is no discovery: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your appdist.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults. Files
// ending in .json or .jsonc may contain comments and trailing commas;
// anything else is parsed as YAML. ${VAR} and ${VAR:-default} are
// expanded in the store root, the public URL, the auth token, and the
// log file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.parse(data, filepath.Ext(path)); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// parse merges a config document into c. JSON is valid YAML once
// comments and trailing commas are stripped and tab indentation is
// replaced; raw tabs cannot occur inside JSON strings.
func (c *Config) parse(data []byte, extension string) error {
	switch strings.ToLower(extension) {
	case ".json", ".jsonc":
		data = bytes.ReplaceAll(jsonc.ToJSON(data), []byte("\t"), []byte("  "))
	}
	return yaml.Unmarshal(data, c)
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Store.Root = expandVars(c.Store.Root, vars)
	vars["APPDIST_ROOT"] = c.Store.Root

	c.HTTP.PublicURL = expandVars(c.HTTP.PublicURL, vars)
	c.HTTP.AuthToken = expandVars(c.HTTP.AuthToken, vars)
	c.HTTP.TLSCertFile = expandVars(c.HTTP.TLSCertFile, vars)
	c.HTTP.TLSKeyFile = expandVars(c.HTTP.TLSKeyFile, vars)
	c.Log.File = expandVars(c.Log.File, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then the environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// PublicURL returns the base URL for links, without a trailing slash.
func (c *Config) PublicURL() string {
	if c.HTTP.PublicURL != "" {
		return strings.TrimRight(c.HTTP.PublicURL, "/")
	}
	scheme := "http://"
	if c.HTTP.TLSCertFile != "" {
		scheme = "https://"
	}
	return scheme + c.HTTP.Listen
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Store.Root == "" {
		errs = append(errs, fmt.Errorf("store.root is required"))
	}

	if c.HTTP.Listen == "" {
		errs = append(errs, fmt.Errorf("http.listen is required"))
	}
	if c.HTTP.PublicURL != "" {
		parsed, err := url.Parse(c.HTTP.PublicURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("http.public_url must be an absolute http(s) URL, got %q", c.HTTP.PublicURL))
		}
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("http.max_upload_bytes must be positive"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.shutdown_timeout must be positive"))
	}
	if (c.HTTP.TLSCertFile == "") != (c.HTTP.TLSKeyFile == "") {
		errs = append(errs, fmt.Errorf("http.tls_cert_file and http.tls_key_file must be set together"))
	}

	if c.Environment == Production {
		if c.HTTP.AuthToken == "" {
			errs = append(errs, fmt.Errorf("http.auth_token is required in production"))
		}
		if c.HTTP.PublicURL == "" {
			errs = append(errs, fmt.Errorf("http.public_url is required in production"))
		}
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}
	formats := []string{"json", "text"}
	if !contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}
	if c.Log.File != "" && (c.Log.MaxSizeMB <= 0 || c.Log.MaxBackups < 0) {
		errs = append(errs, fmt.Errorf("log.max_size_mb must be positive and log.max_backups non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the store root and the log file's directory.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Store.Root}
	if c.Log.File != "" {
		paths = append(paths, filepath.Dir(c.Log.File))
	}

	for _, path := range paths {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
