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

// AppHooks is the set of notifications an App drives for its owner.
// Every field is optional.
type AppHooks struct {
	// OnSend is called with bytes that must be written to the transport,
	// in order. It is the App's only path to the outside world.
	OnSend func(p []byte)

	// OnQuery fires once per name-value pair in an inbound get-values
	// management record.
	OnQuery func(name, value []byte)

	// OnHeadersComplete fires once a request's params stream has closed
	// (a zero-length params record arrived).
	OnHeadersComplete func(req *Request)

	// OnBodyChunk fires once per chunk of stdin bytes appended to a
	// request's Body.
	OnBodyChunk func(req *Request)

	// OnBodyComplete fires once a request's stdin stream has closed.
	OnBodyComplete func(req *Request)

	// OnBeginRequest fires when a begin-request record opens id, before
	// any params arrive, surfacing the requested role and whether the
	// gateway asked to keep the connection open (FCGI_KEEP_CONN). This
	// lets a responder reject an unsupported role immediately.
	OnBeginRequest func(req *Request, role Role, keepConn bool)

	// OnAbort fires when an abort-request record arrives for req. User
	// code decides whether to answer with an early EndRequest.
	OnAbort func(req *Request)
}

// App is the application-side session aggregator: it owns a table of
// in-progress inbound requests keyed by request id, routes inbound
// parser events to the right request, and exposes operations to answer
// a gateway over the same connection.
type App struct {
	hooks  AppHooks
	framer *Framer
	p      *Parser

	requests map[uint16]*Request
	free     []*Request // cleared Request values kept for reuse

	selected *Request // the request the current record's events target
}

// NewApp constructs an App driving hooks. settings is reserved for
// future tuning and currently unused.
func NewApp(hooks AppHooks, settings Settings) *App {
	a := &App{
		hooks:    hooks,
		framer:   NewFramer(settings),
		requests: make(map[uint16]*Request),
	}
	return a
}

// Feed forwards bytes to the embedded inbound parser. It is the only
// way bytes reach an App.
func (a *App) Feed(data []byte) {
	a.parser().Feed(data)
}

// parser lazily builds the Parser wired to this App's routing logic.
// It is built once, on first use, since ParserEvents closures capture a.
func (a *App) parser() *Parser {
	if a.p != nil {
		return a.p
	}
	a.p = NewParser(ParserEvents{
		OnRecord:       a.onRecord,
		OnRecordEnd:    a.onRecordEnd,
		OnBeginRequest: a.onBeginRequest,
		OnAbortRequest: a.onAbortRequest,
		OnEndRequest:   nil, // app never receives end-request inbound
		OnParamsChunk:  a.onParamsChunk,
		OnParamsEnd:    a.onParamsEnd,
		OnStdinChunk:   a.onStdinChunk,
		OnStdinEnd:     a.onStdinEnd,
		OnDataChunk:    a.onDataChunk,
		OnDataEnd:      a.onDataEnd,
		OnGetValuesPair: func(name, value []byte) {
			if a.hooks.OnQuery != nil {
				a.hooks.OnQuery(name, value)
			}
		},
	}, Settings{})
	return a.p
}

// onRecord selects the request the rest of this record's events
// target: whatever is already tracked under this id, or nothing for a
// management record (NullRequestID) or an id not yet begun. A
// begin-request record creates its Request in onBeginRequest, which
// runs after onRecord and sets the selection itself.
func (a *App) onRecord(version uint8, requestID uint16, contentLength uint16) {
	if requestID == NullRequestID {
		a.selected = nil
		return
	}
	a.selected = a.requests[requestID]
}

// onRecordEnd clears the selection onRecord opened, per the
// one-selection-per-record lifetime.
func (a *App) onRecordEnd() {
	a.selected = nil
}

// selectRequest returns the tracked Request for id, creating and
// registering one (via acquire) if this is the first record seen for
// it. Only onBeginRequest calls this; every other hook reads a.selected.
func (a *App) selectRequest(id uint16) *Request {
	if id == NullRequestID {
		a.selected = nil
		return nil
	}
	req, ok := a.requests[id]
	if !ok {
		req = a.acquire(id)
		a.requests[id] = req
	}
	a.selected = req
	return req
}

func (a *App) acquire(id uint16) *Request {
	if n := len(a.free); n > 0 {
		req := a.free[n-1]
		a.free = a.free[:n-1]
		req.reset(id)
		return req
	}
	return newRequest(id)
}

func (a *App) release(req *Request) {
	delete(a.requests, req.ID)
	a.free = append(a.free, req)
}

func (a *App) onBeginRequest(id uint16, role Role, flags uint8) {
	req := a.selectRequest(id)
	if req == nil {
		return
	}
	req.Role = role
	req.KeepConn = flags&KeepConnFlag != 0
	if a.hooks.OnBeginRequest != nil {
		a.hooks.OnBeginRequest(req, role, req.KeepConn)
	}
}

func (a *App) onAbortRequest(id uint16) {
	req := a.selected
	if req == nil {
		return
	}
	if a.hooks.OnAbort != nil {
		a.hooks.OnAbort(req)
	}
}

func (a *App) onParamsChunk(id uint16, chunk []byte) {
	req := a.selected
	if req == nil {
		return
	}
	req.headers.feed(chunk)
}

func (a *App) onParamsEnd(id uint16) {
	req := a.selected
	if req == nil {
		return
	}
	req.Prepared = true
	if a.hooks.OnHeadersComplete != nil {
		a.hooks.OnHeadersComplete(req)
	}
}

func (a *App) onStdinChunk(id uint16, chunk []byte) {
	req := a.selected
	if req == nil {
		return
	}
	req.Body = append(req.Body, chunk...)
	if a.hooks.OnBodyChunk != nil {
		a.hooks.OnBodyChunk(req)
	}
}

func (a *App) onStdinEnd(id uint16) {
	req := a.selected
	if req == nil {
		return
	}
	req.Complete = true
	if a.hooks.OnBodyComplete != nil {
		a.hooks.OnBodyComplete(req)
	}
}

// onDataChunk/onDataEnd mirror stdin handling for the filter role's
// second input stream, accumulating into Request.Data/DataComplete.
func (a *App) onDataChunk(id uint16, chunk []byte) {
	req := a.selected
	if req == nil {
		return
	}
	req.Data = append(req.Data, chunk...)
}

func (a *App) onDataEnd(id uint16) {
	req := a.selected
	if req == nil {
		return
	}
	req.DataComplete = true
}

func (a *App) send(p []byte) {
	if a.hooks.OnSend != nil {
		a.hooks.OnSend(p)
	}
}

// Reply sends a single-pair get-values-result management record.
func (a *App) Reply(name, value string) {
	a.emit(func(w Sink) error {
		return a.framer.EmitGetValuesResult(w, [][2]string{{name, value}})
	})
}

// WriteStdout sends chunk as stdout for id.
func (a *App) WriteStdout(id uint16, chunk []byte) {
	a.emit(func(w Sink) error { return a.framer.EmitStdout(w, id, chunk) })
}

// CloseStdout closes the stdout stream for id with an empty record.
func (a *App) CloseStdout(id uint16) {
	a.emit(func(w Sink) error { return a.framer.EmitStdout(w, id, nil) })
}

// WriteStderr sends chunk as stderr for id.
func (a *App) WriteStderr(id uint16, chunk []byte) {
	a.emit(func(w Sink) error { return a.framer.EmitStderr(w, id, chunk) })
}

// CloseStderr closes the stderr stream for id with an empty record.
func (a *App) CloseStderr(id uint16) {
	a.emit(func(w Sink) error { return a.framer.EmitStderr(w, id, nil) })
}

// EndRequest emits end-request for id, releases its Request for reuse,
// and clears it from the selection if it was selected.
func (a *App) EndRequest(id uint16, appStatus uint32, status ProtocolStatus) {
	a.emit(func(w Sink) error { return a.framer.EmitEndRequest(w, id, appStatus, status) })
	if req, ok := a.requests[id]; ok {
		if a.selected == req {
			a.selected = nil
		}
		a.release(req)
	}
}

// sinkFunc adapts a plain write func to the Sink interface so Framer's
// Emit* methods can be driven by App.emit without an intermediate buffer.
type sinkFunc func(p []byte) (int, error)

func (f sinkFunc) Write(p []byte) (int, error) { return f(p) }

func (a *App) emit(fn func(w Sink) error) {
	_ = fn(sinkFunc(func(p []byte) (int, error) {
		a.send(p)
		return len(p), nil
	}))
}
