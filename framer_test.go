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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type byteSink = bytes.Buffer

func TestFramerEmitBeginRequestLayout(t *testing.T) {
	var sink byteSink
	f := NewFramer(Settings{})
	require.NoError(t, f.EmitBeginRequest(&sink, 1, RoleResponder, KeepConnFlag))

	got := sink.Bytes()
	want := []byte{0x01, 0x01, 0x00, 0x01, 0x00, 0x08, 0x00, 0x00,
		0x00, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}
	assert.Equal(t, want, got)
}

func TestFramerEmitEndRequestLayout(t *testing.T) {
	var sink byteSink
	f := NewFramer(Settings{})
	require.NoError(t, f.EmitEndRequest(&sink, 1, 0, StatusRequestComplete))

	h := parseHeader(sink.Bytes()[:HeaderLen])
	assert.Equal(t, TypeEndRequest, h.Type)
	assert.Equal(t, uint16(8), h.ContentLength)
	body := sink.Bytes()[HeaderLen:]
	assert.Equal(t, []byte{0, 0, 0, 0, byte(StatusRequestComplete), 0, 0, 0}, body)
}

func TestFramerSplitsLargePayload(t *testing.T) {
	var sink byteSink
	f := NewFramer(Settings{})
	payload := bytes.Repeat([]byte{0x7}, 2*MaxPayloadSize+1)
	require.NoError(t, f.emitStream(&sink, TypeStdout, 1, payload))

	data := sink.Bytes()
	var lengths []int
	for len(data) > 0 {
		h := parseHeader(data[:HeaderLen])
		data = data[HeaderLen:]
		lengths = append(lengths, int(h.ContentLength))
		data = data[h.ContentLength:]
	}
	assert.Equal(t, []int{MaxPayloadSize, MaxPayloadSize, 1}, lengths)
}

func TestFramerGetValuesUsesNullRequestID(t *testing.T) {
	var sink byteSink
	f := NewFramer(Settings{})
	require.NoError(t, f.EmitGetValues(&sink, []string{"FCGI_MAX_CONNS"}))

	h := parseHeader(sink.Bytes()[:HeaderLen])
	assert.Equal(t, NullRequestID, h.RequestID)
	assert.Equal(t, TypeGetValues, h.Type)
}

func TestFramerEmptyChunkClosesStream(t *testing.T) {
	var sink byteSink
	f := NewFramer(Settings{})
	require.NoError(t, f.EmitStdout(&sink, 1, nil))

	h := parseHeader(sink.Bytes())
	assert.Equal(t, uint16(0), h.ContentLength)
}

func TestFramerParseRoundTrip(t *testing.T) {
	var sink byteSink
	f := NewFramer(Settings{})
	require.NoError(t, f.EmitStdout(&sink, 3, []byte("payload bytes")))
	require.NoError(t, f.EmitStdout(&sink, 3, nil))

	var chunks [][]byte
	var ended bool
	p := NewParser(ParserEvents{
		OnStdoutChunk: func(id uint16, chunk []byte) { chunks = append(chunks, append([]byte(nil), chunk...)) },
		OnStdoutEnd:   func(id uint16) { ended = true },
	}, Settings{})
	p.Feed(sink.Bytes())

	require.NoError(t, p.Err())
	require.Len(t, chunks, 1)
	assert.Equal(t, []byte("payload bytes"), chunks[0])
	assert.True(t, ended)
}
