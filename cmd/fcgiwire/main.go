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

// Command fcgiwire is a manual test harness for the fcgi package: it
// is not part of the wire codec, only a consumer of it, used to drive
// or inspect FastCGI sessions by hand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/fcgiwire/fcgi/internal/wireconfig"
	"github.com/fcgiwire/fcgi/internal/wirelog"
)

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(string, ...any) {})); err != nil {
		fmt.Fprintf(os.Stderr, "fcgiwire: adjusting GOMAXPROCS: %v\n", err)
	}

	cmd := rootCommand()
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := stringFlag(cmd.Flags(), "log-level", "info")
		if path := stringFlag(cmd.Flags(), "config", ""); path != "" {
			cfg, err := wireconfig.Load(path)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
				level = cfg.LogLevel
			}
		}
		return wirelog.SetLevel(level)
	}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
