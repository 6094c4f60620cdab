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

package fcgi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedResponse(id uint16, stdout, stderr []byte, appStatus uint32, status ProtocolStatus) []byte {
	var out []byte
	f := NewFramer(Settings{})
	sink := sinkFunc(func(p []byte) (int, error) {
		out = append(out, p...)
		return len(p), nil
	})
	_ = f.EmitStdout(sink, id, stdout)
	_ = f.EmitStdout(sink, id, nil)
	_ = f.EmitStderr(sink, id, stderr)
	_ = f.EmitStderr(sink, id, nil)
	_ = f.EmitEndRequest(sink, id, appStatus, status)
	return out
}

func TestGatewayFullResponseLifecycle(t *testing.T) {
	var sent []byte
	var completed *Response
	var stdoutEnded, stderrEnded bool

	gw := NewGateway(GatewayHooks{
		OnSend:            func(p []byte) { sent = append(sent, p...) },
		OnStdoutEnd:       func(resp *Response) { stdoutEnded = true },
		OnStderrEnd:       func(resp *Response) { stderrEnded = true },
		OnRequestComplete: func(resp *Response) { completed = resp },
	}, Settings{})

	gw.OpenRequest(1, RoleResponder, false)
	gw.SendHeader(1, "REQUEST_METHOD", "GET")
	gw.CloseHeaders(1)
	gw.CloseBody(1)
	require.NotEmpty(t, sent)

	data := encodedResponse(1, []byte("body"), []byte("warn"), 0, StatusRequestComplete)
	gw.Feed(data)

	require.NoError(t, gw.parser().Err())
	require.NotNil(t, completed)
	assert.Equal(t, []byte("body"), completed.Stdout)
	assert.Equal(t, []byte("warn"), completed.Stderr)
	assert.True(t, completed.Complete)
	assert.True(t, stdoutEnded)
	assert.True(t, stderrEnded)
}

func TestGatewayReplyHook(t *testing.T) {
	var gotName, gotValue string
	gw := NewGateway(GatewayHooks{
		OnReply: func(name, value []byte) {
			gotName, gotValue = string(name), string(value)
		},
	}, Settings{})

	f := NewFramer(Settings{})
	var raw []byte
	sink := sinkFunc(func(p []byte) (int, error) { raw = append(raw, p...); return len(p), nil })
	_ = f.EmitGetValuesResult(sink, [][2]string{{"FCGI_MAX_CONNS", "1"}})
	gw.Feed(raw)

	assert.Equal(t, "FCGI_MAX_CONNS", gotName)
	assert.Equal(t, "1", gotValue)
}

func TestGatewayAbortRequestEmitsRecord(t *testing.T) {
	var sent []byte
	gw := NewGateway(GatewayHooks{
		OnSend: func(p []byte) { sent = append(sent, p...) },
	}, Settings{})

	gw.AbortRequest(7)
	require.Len(t, sent, HeaderLen)
	h := parseHeader(sent)
	assert.Equal(t, TypeAbortRequest, h.Type)
	assert.Equal(t, uint16(7), h.RequestID)
}

func TestGatewayUnknownResponseIDIsNoOp(t *testing.T) {
	var called bool
	gw := NewGateway(GatewayHooks{
		OnStdoutChunk: func(resp *Response) { called = true },
	}, Settings{})

	f := NewFramer(Settings{})
	var raw []byte
	sink := sinkFunc(func(p []byte) (int, error) { raw = append(raw, p...); return len(p), nil })
	_ = f.EmitStdout(sink, 99, []byte("orphan"))
	gw.Feed(raw)

	assert.False(t, called)
}

func TestGatewayMultiplexedResponsesRouteIndependently(t *testing.T) {
	stdoutByID := map[uint16][]byte{}
	gw := NewGateway(GatewayHooks{
		OnStdoutChunk: func(resp *Response) {
			stdoutByID[resp.ID] = append(stdoutByID[resp.ID], resp.Stdout...)
		},
	}, Settings{})

	gw.OpenRequest(1, RoleResponder, false)
	gw.OpenRequest(2, RoleResponder, false)

	f := NewFramer(Settings{})
	var raw []byte
	sink := sinkFunc(func(p []byte) (int, error) { raw = append(raw, p...); return len(p), nil })
	_ = f.EmitStdout(sink, 1, []byte("one"))
	_ = f.EmitStdout(sink, 2, []byte("two"))
	gw.Feed(raw)

	require.NoError(t, gw.parser().Err())
	assert.Equal(t, []byte("one"), stdoutByID[1])
	assert.Equal(t, []byte("two"), stdoutByID[2])
	// onRecordEnd must have cleared the selection after the last record.
	assert.Nil(t, gw.selected)
}
