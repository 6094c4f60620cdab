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

// GatewayHooks is the set of notifications a Gateway drives for its
// owner. Every field is optional.
type GatewayHooks struct {
	// OnSend is called with bytes that must be written to the
	// transport, in order.
	OnSend func(p []byte)

	// OnReply fires once per name-value pair in an inbound
	// get-values-result management record.
	OnReply func(name, value []byte)

	// OnStdoutChunk/OnStdoutEnd and OnStderrChunk/OnStderrEnd fire as
	// the matching application-to-gateway streams deliver bytes and close.
	OnStdoutChunk func(resp *Response)
	OnStdoutEnd   func(resp *Response)
	OnStderrChunk func(resp *Response)
	OnStderrEnd   func(resp *Response)

	// OnRequestComplete fires when an end-request record arrives; resp
	// is released for reuse once this call returns.
	OnRequestComplete func(resp *Response)
}

// Gateway is the gateway-side session aggregator: it owns a table of
// in-progress outbound requests (one Response per open request id),
// routes inbound parser events to the right response, and exposes
// operations to drive a request over the same connection.
type Gateway struct {
	hooks  GatewayHooks
	framer *Framer
	p      *Parser

	responses map[uint16]*Response
	free      []*Response

	selected *Response // the response the current record's events target
}

// NewGateway constructs a Gateway driving hooks. settings is reserved
// for future tuning and currently unused.
func NewGateway(hooks GatewayHooks, settings Settings) *Gateway {
	return &Gateway{
		hooks:     hooks,
		framer:    NewFramer(settings),
		responses: make(map[uint16]*Response),
	}
}

// Feed forwards bytes to the embedded inbound parser.
func (g *Gateway) Feed(data []byte) {
	g.parser().Feed(data)
}

func (g *Gateway) parser() *Parser {
	if g.p != nil {
		return g.p
	}
	g.p = NewParser(ParserEvents{
		OnRecord:      g.onRecord,
		OnRecordEnd:   g.onRecordEnd,
		OnEndRequest:  g.onEndRequest,
		OnStdoutChunk: g.onStdoutChunk,
		OnStdoutEnd:   g.onStdoutEnd,
		OnStderrChunk: g.onStderrChunk,
		OnStderrEnd:   g.onStderrEnd,
		OnGetValuesResultPair: func(name, value []byte) {
			if g.hooks.OnReply != nil {
				g.hooks.OnReply(name, value)
			}
		},
	}, Settings{})
	return g.p
}

// onRecord selects the response the rest of this record's events
// target: whatever is already tracked under this id, or nothing for a
// management record (NullRequestID) or an id with no open request.
func (g *Gateway) onRecord(version uint8, requestID uint16, contentLength uint16) {
	if requestID == NullRequestID {
		g.selected = nil
		return
	}
	g.selected = g.responses[requestID]
}

// onRecordEnd clears the selection onRecord opened.
func (g *Gateway) onRecordEnd() {
	g.selected = nil
}

func (g *Gateway) acquire(id uint16) *Response {
	if n := len(g.free); n > 0 {
		resp := g.free[n-1]
		g.free = g.free[:n-1]
		resp.reset(id)
		return resp
	}
	return newResponse(id)
}

func (g *Gateway) release(resp *Response) {
	delete(g.responses, resp.ID)
	g.free = append(g.free, resp)
}

func (g *Gateway) onStdoutChunk(id uint16, chunk []byte) {
	resp := g.selected
	if resp == nil {
		return
	}
	resp.Stdout = append(resp.Stdout, chunk...)
	if g.hooks.OnStdoutChunk != nil {
		g.hooks.OnStdoutChunk(resp)
	}
}

func (g *Gateway) onStdoutEnd(id uint16) {
	resp := g.selected
	if resp == nil {
		return
	}
	if g.hooks.OnStdoutEnd != nil {
		g.hooks.OnStdoutEnd(resp)
	}
}

func (g *Gateway) onStderrChunk(id uint16, chunk []byte) {
	resp := g.selected
	if resp == nil {
		return
	}
	resp.Stderr = append(resp.Stderr, chunk...)
	if g.hooks.OnStderrChunk != nil {
		g.hooks.OnStderrChunk(resp)
	}
}

func (g *Gateway) onStderrEnd(id uint16) {
	resp := g.selected
	if resp == nil {
		return
	}
	if g.hooks.OnStderrEnd != nil {
		g.hooks.OnStderrEnd(resp)
	}
}

func (g *Gateway) onEndRequest(id uint16, appStatus uint32, status ProtocolStatus) {
	resp := g.selected
	if resp == nil {
		return
	}
	resp.AppStatus = appStatus
	resp.Status = status
	resp.Complete = true
	if g.hooks.OnRequestComplete != nil {
		g.hooks.OnRequestComplete(resp)
	}
	g.release(resp)
}

func (g *Gateway) send(p []byte) {
	if g.hooks.OnSend != nil {
		g.hooks.OnSend(p)
	}
}

func (g *Gateway) emit(fn func(w Sink) error) {
	_ = fn(sinkFunc(func(p []byte) (int, error) {
		g.send(p)
		return len(p), nil
	}))
}

// Query sends a get-values management record asking about a single name.
func (g *Gateway) Query(name string) {
	g.emit(func(w Sink) error { return g.framer.EmitGetValues(w, []string{name}) })
}

// OpenRequest emits begin-request for id with the given role and
// registers a fresh Response for it. keepConn sets FCGI_KEEP_CONN.
func (g *Gateway) OpenRequest(id uint16, role Role, keepConn bool) {
	g.responses[id] = g.acquire(id)
	var flags uint8
	if keepConn {
		flags |= KeepConnFlag
	}
	g.emit(func(w Sink) error { return g.framer.EmitBeginRequest(w, id, role, flags) })
}

// SendHeader emits a single params name-value pair for id.
func (g *Gateway) SendHeader(id uint16, name, value string) {
	var buf []byte
	buf = encodeNVPair(buf, []byte(name), []byte(value))
	g.emit(func(w Sink) error { return g.framer.EmitParams(w, id, buf) })
}

// CloseHeaders closes the params stream for id with an empty record.
func (g *Gateway) CloseHeaders(id uint16) {
	g.emit(func(w Sink) error { return g.framer.EmitParams(w, id, nil) })
}

// SendBody emits chunk as stdin for id.
func (g *Gateway) SendBody(id uint16, chunk []byte) {
	g.emit(func(w Sink) error { return g.framer.EmitStdin(w, id, chunk) })
}

// CloseBody closes the stdin stream for id with an empty record.
func (g *Gateway) CloseBody(id uint16) {
	g.emit(func(w Sink) error { return g.framer.EmitStdin(w, id, nil) })
}

// AbortRequest emits abort-request for id, the gateway-side half of the
// cancellation signal; the application answers via its own OnAbort hook.
func (g *Gateway) AbortRequest(id uint16) {
	g.emit(func(w Sink) error { return g.framer.EmitAbortRequest(w, id) })
}
