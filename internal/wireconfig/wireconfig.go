// Copyright 2026 The fcgiwire Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wireconfig loads cmd/fcgiwire's configuration, normalizing
// either of two input formats (TOML or YAML) into one internal struct,
// the same "many formats, one struct" shape the teacher uses for its
// own config adapters.
package wireconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// CLIConfig holds cmd/fcgiwire's settings. It has nothing to do with
// the codec's own (currently empty) fcgi.Settings.
type CLIConfig struct {
	Network        string `toml:"network" yaml:"network"`
	Address        string `toml:"address" yaml:"address"`
	LogLevel       string `toml:"log_level" yaml:"log_level"`
	MetricsAddress string `toml:"metrics_address" yaml:"metrics_address"`
}

// Default returns the configuration used when no file is given.
func Default() *CLIConfig {
	return &CLIConfig{
		Network:  "tcp",
		Address:  "127.0.0.1:9000",
		LogLevel: "info",
	}
}

// Load reads path and decodes it as TOML if its extension is .toml,
// otherwise as YAML.
func Load(path string) (*CLIConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wireconfig: reading %s: %w", path, err)
	}

	cfg := Default()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("wireconfig: decoding %s as toml: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("wireconfig: decoding %s as yaml: %w", path, err)
		}
	}
	return cfg, nil
}
