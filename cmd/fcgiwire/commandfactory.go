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

import "github.com/spf13/cobra"

// RootCommandFactory builds the root command lazily, letting
// subcommand registration happen independently of command
// construction and of each other.
type RootCommandFactory struct {
	constructor func() *cobra.Command
	options     []func(*cobra.Command)
}

// NewRootCommandFactory constructs a factory around fn.
func NewRootCommandFactory(fn func() *cobra.Command) *RootCommandFactory {
	return &RootCommandFactory{constructor: fn}
}

// Use registers fn to run against the built command before it is returned.
func (f *RootCommandFactory) Use(fn func(cmd *cobra.Command)) {
	f.options = append(f.options, fn)
}

// Build constructs the root command and applies every registered option.
func (f *RootCommandFactory) Build() *cobra.Command {
	cmd := f.constructor()
	for _, apply := range f.options {
		apply(cmd)
	}
	return cmd
}
