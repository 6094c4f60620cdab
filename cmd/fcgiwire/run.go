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
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fcgiwire/fcgi"
	"github.com/fcgiwire/fcgi/internal/wirelog"
	"github.com/fcgiwire/fcgi/internal/wiremetrics"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "run [responder|gateway]",
		Short:     "Run a FastCGI responder or gateway over TCP",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"responder", "gateway"},
	}
	addr := cmd.Flags().String("listen", "127.0.0.1:9000", "address to listen on (responder) or dial (gateway)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "responder":
			return runResponder(cmd.Context(), *addr)
		case "gateway":
			return runGateway(cmd.Context(), *addr)
		default:
			return fmt.Errorf("unknown mode %q: want responder or gateway", args[0])
		}
	}
	return cmd
}

// runResponder listens on addr and runs one *fcgi.App per accepted
// connection, echoing request params back as the response body. One
// session lives in its own goroutine; an errgroup supervises the
// accept loop and propagates the first fatal error.
func runResponder(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()
	wirelog.Log().Info("responder listening", zap.String("addr", addr))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return group.Wait()
			default:
				return err
			}
		}
		wiremetrics.RequestOpened()
		group.Go(func() error {
			defer wiremetrics.RequestClosed()
			return serveResponder(conn)
		})
	}
}

func serveResponder(conn net.Conn) error {
	defer conn.Close()

	connID := uuid.NewString()
	wirelog.Log().Info("connection accepted",
		zap.String("conn_id", connID),
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)

	var app *fcgi.App
	app = fcgi.NewApp(fcgi.AppHooks{
		OnSend: func(p []byte) {
			wiremetrics.BytesFramed("responder", len(p))
			_, _ = conn.Write(p)
		},
		OnQuery: func(name, value []byte) {
			wirelog.Log().Debug("get-values query", zap.String("conn_id", connID), zap.ByteString("name", name))
		},
		OnHeadersComplete: func(req *fcgi.Request) {
			wirelog.Log().Info("request headers complete",
				zap.String("conn_id", connID),
				zap.Uint16("request_id", req.ID),
				zap.String("role", req.Role.String()),
			)
		},
		OnBodyComplete: func(req *fcgi.Request) {
			var body []byte
			for _, name := range req.HeaderNames() {
				value, _ := req.Header(name)
				body = append(body, []byte(name+"="+value+"\n")...)
			}
			app.WriteStdout(req.ID, body)
			app.CloseStdout(req.ID)
			app.EndRequest(req.ID, 0, fcgi.StatusRequestComplete)
		},
		OnBeginRequest: func(req *fcgi.Request, role fcgi.Role, keepConn bool) {
			if role != fcgi.RoleResponder {
				app.EndRequest(req.ID, 0, fcgi.StatusUnknownRole)
			}
		},
	}, fcgi.Settings{})

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			app.Feed(buf[:n])
		}
		if err != nil {
			return nil
		}
	}
}

// runGateway dials addr, opens one request, sends no params beyond
// REQUEST_METHOD, closes the request, and prints the response.
func runGateway(ctx context.Context, addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	gw := fcgi.NewGateway(fcgi.GatewayHooks{
		OnSend: func(p []byte) {
			wiremetrics.BytesFramed("gateway", len(p))
			_, _ = conn.Write(p)
		},
		OnStdoutChunk: func(resp *fcgi.Response) {
			wirelog.Log().Info("stdout chunk", zap.Int("total_bytes", len(resp.Stdout)))
		},
		OnRequestComplete: func(resp *fcgi.Response) {
			fmt.Printf("--- stdout ---\n%s\n--- stderr ---\n%s\n", resp.Stdout, resp.Stderr)
			close(done)
		},
	}, fcgi.Settings{})

	const id = 1
	gw.OpenRequest(id, fcgi.RoleResponder, false)
	gw.SendHeader(id, "REQUEST_METHOD", "GET")
	gw.CloseHeaders(id)
	gw.CloseBody(id)

	buf := make([]byte, 4096)
	go func() {
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				gw.Feed(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
