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

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var defaultFactory = NewRootCommandFactory(func() *cobra.Command {
	return &cobra.Command{
		Use:   "fcgiwire",
		Short: "Drive and inspect FastCGI sessions",
		Long: `fcgiwire is a manual test harness for the fcgi package.

It is not part of the wire codec: it exists to drive an App or
Gateway session against a real socket or a captured byte stream,
for demos and for debugging a peer implementation.

	- 'fcgiwire run responder' listens and answers requests as a
	  FastCGI application, echoing request headers back as the body.
	- 'fcgiwire run gateway' opens a request against a FastCGI
	  application and prints the response.
	- 'fcgiwire inspect' decodes a captured byte stream and prints
	  the record sequence without acting as either side.
`,
		SilenceUsage: true,
	}
})

func init() {
	defaultFactory.Use(func(cmd *cobra.Command) {
		cmd.AddCommand(newRunCommand())
		cmd.AddCommand(newInspectCommand())
		cmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
		cmd.PersistentFlags().String("config", "", "path to a TOML or YAML config file")
	})
}

// rootCommand returns the fully assembled root command.
func rootCommand() *cobra.Command {
	return defaultFactory.Build()
}

// stringFlag reads a persistent flag's value directly off the
// pflag.FlagSet, returning def if the flag is unset or unknown.
func stringFlag(fs *pflag.FlagSet, name, def string) string {
	f := fs.Lookup(name)
	if f == nil || f.Value.String() == "" {
		return def
	}
	return f.Value.String()
}
