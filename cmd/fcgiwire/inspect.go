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
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fcgiwire/fcgi"
	"github.com/fcgiwire/fcgi/internal/wiremetrics"
)

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Decode a captured FastCGI byte stream and print its records",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return inspectFile(args[0])
	}
	return cmd
}

func inspectFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var count int
	p := fcgi.NewParser(fcgi.ParserEvents{
		OnBeginRequest: func(id uint16, role fcgi.Role, flags uint8) {
			count++
			wiremetrics.RecordParsed("begin-request")
			fmt.Printf("#%d begin-request id=%d role=%s flags=%#x\n", count, id, role, flags)
		},
		OnAbortRequest: func(id uint16) {
			count++
			wiremetrics.RecordParsed("abort-request")
			fmt.Printf("#%d abort-request id=%d\n", count, id)
		},
		OnEndRequest: func(id uint16, appStatus uint32, status fcgi.ProtocolStatus) {
			count++
			wiremetrics.RecordParsed("end-request")
			fmt.Printf("#%d end-request id=%d app_status=%d status=%d\n", count, id, appStatus, status)
		},
		OnParamsChunk: func(id uint16, chunk []byte) {
			count++
			wiremetrics.RecordParsed("params")
			fmt.Printf("    params id=%d %s\n", id, humanize.Bytes(uint64(len(chunk))))
		},
		OnParamsEnd: func(id uint16) {
			count++
			wiremetrics.RecordParsed("params")
			fmt.Printf("    params id=%d end\n", id)
		},
		OnStdinChunk: func(id uint16, chunk []byte) {
			count++
			wiremetrics.RecordParsed("stdin")
			fmt.Printf("    stdin id=%d %s\n", id, humanize.Bytes(uint64(len(chunk))))
		},
		OnStdinEnd: func(id uint16) {
			count++
			wiremetrics.RecordParsed("stdin")
			fmt.Printf("    stdin id=%d end\n", id)
		},
		OnStdoutChunk: func(id uint16, chunk []byte) {
			count++
			wiremetrics.RecordParsed("stdout")
			fmt.Printf("    stdout id=%d %s\n", id, humanize.Bytes(uint64(len(chunk))))
		},
		OnStdoutEnd: func(id uint16) {
			count++
			wiremetrics.RecordParsed("stdout")
			fmt.Printf("    stdout id=%d end\n", id)
		},
		OnStderrChunk: func(id uint16, chunk []byte) {
			count++
			wiremetrics.RecordParsed("stderr")
			fmt.Printf("    stderr id=%d %s\n", id, humanize.Bytes(uint64(len(chunk))))
		},
		OnStderrEnd: func(id uint16) {
			count++
			wiremetrics.RecordParsed("stderr")
			fmt.Printf("    stderr id=%d end\n", id)
		},
		OnGetValuesPair: func(name, value []byte) {
			count++
			wiremetrics.RecordParsed("get-values")
			fmt.Printf("    get-values %s=%s\n", name, value)
		},
		OnGetValuesResultPair: func(name, value []byte) {
			count++
			wiremetrics.RecordParsed("get-values-result")
			fmt.Printf("    get-values-result %s=%s\n", name, value)
		},
	}, fcgi.Settings{})

	p.Feed(data)
	if err := p.Err(); err != nil {
		if pe, ok := err.(*fcgi.ParseError); ok {
			wiremetrics.ParseError(pe.Kind.String())
		}
		return fmt.Errorf("parse failed after %d records: %w", count, err)
	}
	return nil
}
