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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// event records one callback firing, for assembling and comparing
// event sequences across differently-chunked Feed calls.
type event struct {
	name  string
	id    uint16
	role  Role
	flags uint8
	buf   []byte
}

func newRecordingParser(events *[]event) *Parser {
	rec := func(name string, id uint16) { *events = append(*events, event{name: name, id: id}) }
	return NewParser(ParserEvents{
		OnBeginRequest: func(id uint16, role Role, flags uint8) {
			*events = append(*events, event{name: "begin", id: id, role: role, flags: flags})
		},
		OnAbortRequest: func(id uint16) { rec("abort", id) },
		OnEndRequest: func(id uint16, appStatus uint32, status ProtocolStatus) {
			rec("end", id)
		},
		OnParamsChunk: func(id uint16, chunk []byte) {
			*events = append(*events, event{name: "params", id: id, buf: append([]byte(nil), chunk...)})
		},
		OnParamsEnd:  func(id uint16) { rec("params-end", id) },
		OnStdinChunk: func(id uint16, chunk []byte) {
			*events = append(*events, event{name: "stdin", id: id, buf: append([]byte(nil), chunk...)})
		},
		OnStdinEnd: func(id uint16) { rec("stdin-end", id) },
		OnStdoutChunk: func(id uint16, chunk []byte) {
			*events = append(*events, event{name: "stdout", id: id, buf: append([]byte(nil), chunk...)})
		},
		OnStdoutEnd: func(id uint16) { rec("stdout-end", id) },
		OnGetValuesPair: func(name, value []byte) {
			*events = append(*events, event{name: "get-values-pair", buf: append(append([]byte(nil), name...), value...)})
		},
		OnGetValuesEnd: func() { *events = append(*events, event{name: "get-values-end"}) },
	}, Settings{})
}

// normalizeEvents merges consecutive chunk events of the same kind and
// request id into one, so event sequences captured under different
// Feed chunkings can be compared: the protocol only guarantees chunk
// bytes are forwarded in order, not that they arrive in the same
// number of sub-slices (see the forwarding discipline in §4.1).
func normalizeEvents(events []event) []event {
	var out []event
	for _, e := range events {
		if n := len(out); n > 0 && out[n-1].name == e.name && out[n-1].id == e.id &&
			(e.name == "params" || e.name == "stdin" || e.name == "stdout") {
			out[n-1].buf = append(out[n-1].buf, e.buf...)
			continue
		}
		out = append(out, e)
	}
	return out
}

func feedInChunks(p *Parser, data []byte, chunkSize int) {
	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}
		p.Feed(data[:n])
		data = data[n:]
	}
}

func TestScenarioBeginRequestResponder(t *testing.T) {
	data := []byte{0x01, 0x01, 0x00, 0x01, 0x00, 0x08, 0x00, 0x00,
		0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	var events []event
	p := newRecordingParser(&events)
	p.Feed(data)
	require.NoError(t, p.Err())
	require.Len(t, events, 1)
	assert.Equal(t, "begin", events[0].name)
	assert.Equal(t, RoleResponder, events[0].role)
	assert.Equal(t, uint8(0), events[0].flags)
}

func TestScenarioAbortRequest(t *testing.T) {
	data := []byte{0x01, 0x02, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	var events []event
	p := newRecordingParser(&events)
	p.Feed(data)
	require.NoError(t, p.Err())
	require.Len(t, events, 1)
	assert.Equal(t, "abort", events[0].name)
	assert.Equal(t, uint16(1), events[0].id)
}

func TestScenarioStdinPayloadThenEOF(t *testing.T) {
	payload := []byte("hello, world!")
	header := []byte{0x01, 0x05, 0x00, 0x01, 0x00, 0x0D, 0x00, 0x00}
	var events []event
	p := newRecordingParser(&events)
	p.Feed(append(header, payload...))
	require.NoError(t, p.Err())
	require.Len(t, events, 1)
	assert.Equal(t, "stdin", events[0].name)
	assert.Equal(t, payload, events[0].buf)

	p.Feed([]byte{0x01, 0x05, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00})
	require.Len(t, events, 2)
	assert.Equal(t, "stdin-end", events[1].name)
}

func TestScenarioParamsOnePair(t *testing.T) {
	nvBody := []byte{0x0B, 0x02}
	nvBody = append(nvBody, []byte("SERVER_PORT")...)
	nvBody = append(nvBody, []byte("80")...)
	require.Len(t, nvBody, 15)

	header := []byte{0x01, 0x04, 0x00, 0x01, 0x00, 0x0F, 0x00, 0x00}
	var events []event
	p := newRecordingParser(&events)
	p.Feed(append(header, nvBody...))
	p.Feed([]byte{0x01, 0x04, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, p.Err())

	require.Len(t, events, 2)
	assert.Equal(t, "params", events[0].name)
	assert.Equal(t, nvBody, events[0].buf)
	assert.Equal(t, "params-end", events[1].name)
}

func TestScenarioFragmentedFeedOneByteAtATime(t *testing.T) {
	payload := []byte("hello, world!")
	header := []byte{0x01, 0x05, 0x00, 0x01, 0x00, 0x0D, 0x00, 0x00}
	whole := append(append([]byte{}, header...), payload...)
	whole = append(whole, 0x01, 0x05, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00)

	var wholeEvents []event
	pw := newRecordingParser(&wholeEvents)
	pw.Feed(whole)

	var fragEvents []event
	pf := newRecordingParser(&fragEvents)
	feedInChunks(pf, whole, 1)

	require.NoError(t, pw.Err())
	require.NoError(t, pf.Err())
	assert.Equal(t, normalizeEvents(wholeEvents), normalizeEvents(fragEvents))
}

func TestScenarioLargePayloadSplitReassembles(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 100000)

	var sent []byte
	f := NewFramer(Settings{})
	err := f.emitStream(sinkFunc(func(p []byte) (int, error) {
		sent = append(sent, p...)
		return len(p), nil
	}), TypeStdout, 1, payload)
	require.NoError(t, err)

	var events []event
	p := newRecordingParser(&events)
	p.Feed(sent)
	require.NoError(t, p.Err())

	var reconstructed []byte
	for _, e := range events {
		if e.name == "stdout" {
			reconstructed = append(reconstructed, e.buf...)
		}
	}
	assert.Equal(t, payload, reconstructed)
}

func TestFragmentationInvarianceAcrossChunkSizes(t *testing.T) {
	var stream []byte
	f := NewFramer(Settings{})
	sink := sinkFunc(func(p []byte) (int, error) {
		stream = append(stream, p...)
		return len(p), nil
	})
	require.NoError(t, f.EmitBeginRequest(sink, 1, RoleResponder, 0))
	require.NoError(t, f.EmitParamsPairs(sink, 1, [][2]string{{"SERVER_PORT", "80"}, {"REQUEST_METHOD", "GET"}}))
	require.NoError(t, f.EmitStdin(sink, 1, []byte("body")))
	require.NoError(t, f.EmitStdin(sink, 1, nil))

	var baseline []event
	base := newRecordingParser(&baseline)
	base.Feed(stream)
	require.NoError(t, base.Err())

	wantBaseline := normalizeEvents(baseline)
	for _, chunkSize := range []int{1, 2, 3, 7, 8, 9, 4096} {
		var got []event
		p := newRecordingParser(&got)
		feedInChunks(p, stream, chunkSize)
		require.NoError(t, p.Err())
		assert.Equal(t, wantBaseline, normalizeEvents(got), "chunk size %d", chunkSize)
	}
}

func TestMultiplexingKeepsRequestsSeparate(t *testing.T) {
	var stream []byte
	f := NewFramer(Settings{})
	sink := sinkFunc(func(p []byte) (int, error) {
		stream = append(stream, p...)
		return len(p), nil
	})
	require.NoError(t, f.EmitBeginRequest(sink, 1, RoleResponder, 0))
	require.NoError(t, f.EmitBeginRequest(sink, 2, RoleResponder, 0))
	require.NoError(t, f.EmitParamsPairs(sink, 1, [][2]string{{"A", "1"}}))
	require.NoError(t, f.EmitParamsPairs(sink, 2, [][2]string{{"B", "2"}}))

	var events []event
	p := newRecordingParser(&events)
	p.Feed(stream)
	require.NoError(t, p.Err())

	var id1, id2 []byte
	for _, e := range events {
		switch {
		case e.name == "params" && e.id == 1:
			id1 = append(id1, e.buf...)
		case e.name == "params" && e.id == 2:
			id2 = append(id2, e.buf...)
		}
	}
	assert.NotEqual(t, id1, id2)
	assert.Contains(t, string(id1), "A")
	assert.Contains(t, string(id2), "B")
}

func TestBadVersionFails(t *testing.T) {
	var events []event
	p := newRecordingParser(&events)
	p.Feed([]byte{0x02, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00})
	require.Error(t, p.Err())
	assert.True(t, p.Err() != nil)
}

func TestBadRecordTypeFails(t *testing.T) {
	var events []event
	p := newRecordingParser(&events)
	p.Feed([]byte{0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00})
	require.Error(t, p.Err())
}

func TestResetClearsError(t *testing.T) {
	var events []event
	p := newRecordingParser(&events)
	p.Feed([]byte{0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00})
	require.Error(t, p.Err())
	p.Reset()
	require.NoError(t, p.Err())
	p.Feed([]byte{0x01, 0x02, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, p.Err())
}

func TestOversizedBeginRequestBodyFailsInsteadOfHanging(t *testing.T) {
	var events []event
	p := newRecordingParser(&events)
	// Content length 16 on a begin-request record, which has a fixed
	// 8-byte body: must fail immediately rather than stall waiting for
	// dispatchFixed to ever report progress past the 8th byte.
	header := []byte{0x01, 0x01, 0x00, 0x01, 0x00, 0x10, 0x00, 0x00}
	body := make([]byte, 16)
	done := make(chan struct{})
	go func() {
		p.Feed(append(header, body...))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Feed did not return: parser hung on oversized fixed-body record")
	}
	require.Error(t, p.Err())
	assert.True(t, errors.Is(p.Err(), ErrBadFixedBodyLength))
	assert.Empty(t, events)
}

func TestZeroLengthEndRequestBodyFails(t *testing.T) {
	var events []event
	p := newRecordingParser(&events)
	header := []byte{0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	p.Feed(header)
	require.Error(t, p.Err())
	assert.True(t, errors.Is(p.Err(), ErrBadFixedBodyLength))
}

func TestGetValuesBoundedByRecordNotFollowingEmpty(t *testing.T) {
	var buf []byte
	buf = encodeNVPair(buf, []byte("FCGI_MAX_CONNS"), nil)
	header := []byte{0x01, 0x09, 0x00, 0x00, byte(len(buf) >> 8), byte(len(buf)), 0x00, 0x00}

	var events []event
	p := newRecordingParser(&events)
	p.Feed(append(header, buf...))
	require.NoError(t, p.Err())

	require.Len(t, events, 2)
	assert.Equal(t, "get-values-pair", events[0].name)
	assert.Equal(t, "get-values-end", events[1].name)
}

// recordBoundary captures one OnRecord/OnRecordEnd firing, by name
// ("record" or "record-end") and the fields OnRecord received.
type recordBoundary struct {
	name          string
	requestID     uint16
	contentLength uint16
}

func TestOnRecordFiresBeforeBodyAndOnRecordEndAfterPadding(t *testing.T) {
	var bounds []recordBoundary
	var fired []string
	p := NewParser(ParserEvents{
		OnRecord: func(version uint8, requestID uint16, contentLength uint16) {
			bounds = append(bounds, recordBoundary{name: "record", requestID: requestID, contentLength: contentLength})
		},
		OnRecordEnd: func() {
			bounds = append(bounds, recordBoundary{name: "record-end"})
		},
		OnBeginRequest: func(id uint16, role Role, flags uint8) { fired = append(fired, "begin") },
		OnParamsChunk:  func(id uint16, chunk []byte) { fired = append(fired, "params") },
		OnParamsEnd:    func(id uint16) { fired = append(fired, "params-end") },
	}, Settings{})

	nvBody := encodeNVPair(nil, []byte("A"), []byte("1"))
	var stream []byte
	f := NewFramer(Settings{})
	sink := sinkFunc(func(p []byte) (int, error) {
		stream = append(stream, p...)
		return len(p), nil
	})
	require.NoError(t, f.EmitBeginRequest(sink, 1, RoleResponder, 0))
	require.NoError(t, f.EmitParams(sink, 1, nvBody))
	require.NoError(t, f.EmitParams(sink, 1, nil))

	p.Feed(stream)
	require.NoError(t, p.Err())

	// Every record contributes exactly one OnRecord/OnRecordEnd pair,
	// bracketing that record's own body-dispatch events: begin-request
	// (8-byte fixed body), the one-pair params record, the empty
	// params-end record.
	require.Len(t, bounds, 6)
	assert.Equal(t, "record", bounds[0].name)
	assert.Equal(t, uint16(1), bounds[0].requestID)
	assert.Equal(t, uint16(8), bounds[0].contentLength)
	assert.Equal(t, "record-end", bounds[1].name)
	assert.Equal(t, "record", bounds[2].name)
	assert.Equal(t, "record-end", bounds[3].name)
	assert.Equal(t, "record", bounds[4].name)
	assert.Equal(t, "record-end", bounds[5].name)
	assert.Equal(t, []string{"begin", "params", "params-end"}, fired)
}
