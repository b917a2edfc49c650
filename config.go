// Copyright 2026 The Nodee Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nodee

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// IDRange is an inclusive range of numeric ids handed out to tenants.
type IDRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// AuthConfig enables HTTP basic authentication on the control API.
// PasswordHash is a bcrypt hash.
type AuthConfig struct {
	User         string `yaml:"user"`
	PasswordHash string `yaml:"passwordHash"`
}

// Config holds everything the daemon reads from its configuration file.
type Config struct {
	BaseDir         string        `yaml:"baseDir"`
	WorkDir         string        `yaml:"workDir"`
	ScriptDir       string        `yaml:"scriptDir"`
	ArtifactDir     string        `yaml:"artifactDir"`
	Listen          string        `yaml:"listen"`
	UIDs            IDRange       `yaml:"uidRange"`
	GIDs            IDRange       `yaml:"gidRange"`
	ReapIdle        time.Duration `yaml:"reapIdle"`
	CollectInterval time.Duration `yaml:"collectInterval"`
	Log             LogConfig     `yaml:"log"`
	Auth            AuthConfig    `yaml:"auth"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		BaseDir:         "/var/lib/nodee",
		WorkDir:         "work",
		ScriptDir:       "/usr/lib/nodee/scripts",
		Listen:          "127.0.0.1:8321",
		UIDs:            IDRange{Min: 20000, Max: 29999},
		GIDs:            IDRange{Min: 20000, Max: 29999},
		ReapIdle:        2 * time.Second,
		CollectInterval: 10 * time.Second,
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// LoadConfig reads a YAML file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, e := os.ReadFile(path)
	if e != nil {
		return nil, e
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if e := yaml.Unmarshal(data, c); e != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadConfig, path, e)
	}
	return c, nil
}

// Validate fills in derived defaults and checks the result.
func (c *Config) Validate() error {
	if c.ArtifactDir == "" && c.BaseDir != "" {
		c.ArtifactDir = filepath.Join(c.BaseDir, "artifacts")
	}
	for name, dir := range map[string]string{
		"baseDir":     c.BaseDir,
		"scriptDir":   c.ScriptDir,
		"artifactDir": c.ArtifactDir,
	} {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("%w: %s must be an absolute path", ErrBadConfig, name)
		}
	}
	if c.WorkDir == "" || filepath.IsAbs(c.WorkDir) {
		return fmt.Errorf("%w: workDir must be a relative path", ErrBadConfig)
	}
	for name, r := range map[string]IDRange{"uidRange": c.UIDs, "gidRange": c.GIDs} {
		if r.Min <= 0 || r.Max < r.Min {
			return fmt.Errorf("%w: %s is empty or includes root", ErrBadConfig, name)
		}
	}
	if c.ReapIdle <= 0 {
		c.ReapIdle = 2 * time.Second
	}
	if c.Auth.User != "" && c.Auth.PasswordHash == "" {
		return fmt.Errorf("%w: auth.user needs auth.passwordHash", ErrBadConfig)
	}
	return nil
}

// ServiceRoot is the working directory of the service at coordinate and
// port.  No two services on a node share a root.
func (c *Config) ServiceRoot(coordinate string, port int) string {
	return filepath.Join(c.BaseDir, c.WorkDir, coordinate, strconv.Itoa(port))
}

// Script returns the path of a chore script in the script directory.
func (c *Config) Script(name string) string {
	return filepath.Join(c.ScriptDir, name)
}
