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

// headerBuffer accumulates a params name-value stream into an ordered
// mapping from name to value. It embeds an nvParser whose state
// survives across any number of Feed calls and any number of params
// records for the owning request, so a pair may straddle record
// boundaries without special-casing by the caller.
type headerBuffer struct {
	nv     nvParser
	names  []string
	values map[string]string

	curName, curValue []byte
}

func newHeaderBuffer() *headerBuffer {
	h := &headerBuffer{values: make(map[string]string)}
	h.nv.onName = func(b []byte) { h.curName = append(h.curName, b...) }
	h.nv.onValue = func(b []byte) { h.curValue = append(h.curValue, b...) }
	h.nv.onEnd = h.finishPair
	return h
}

func (h *headerBuffer) finishPair() {
	name := string(h.curName)
	value := string(h.curValue)
	if _, exists := h.values[name]; !exists {
		h.names = append(h.names, name)
	}
	h.values[name] = value // last-wins: diverges from a naive map::insert, per the protocol's stated overwrite rule
	h.curName = h.curName[:0]
	h.curValue = h.curValue[:0]
}

// feed forwards raw params payload bytes into the embedded NV parser.
func (h *headerBuffer) feed(data []byte) {
	h.nv.feed(data)
}

// get returns the value for name and whether it was present.
func (h *headerBuffer) get(name string) (string, bool) {
	v, ok := h.values[name]
	return v, ok
}

// clear empties the accumulated pairs while retaining the backing
// slice/map capacity for reuse by the next request to occupy this slot.
func (h *headerBuffer) clear() {
	for k := range h.values {
		delete(h.values, k)
	}
	h.names = h.names[:0]
	h.curName = h.curName[:0]
	h.curValue = h.curValue[:0]
	h.nv.reset()
}

// Request is the application-side aggregate state for one in-progress
// inbound request, keyed by request id within an App.
type Request struct {
	ID   uint16
	Role Role

	// KeepConn mirrors the begin-request record's FCGI_KEEP_CONN flag bit.
	KeepConn bool

	headers *headerBuffer
	Body    []byte

	// Data accumulates the filter role's second input stream
	// (FCGI_DATA); DataComplete mirrors Complete for that stream.
	Data         []byte
	DataComplete bool

	// Prepared is true once a zero-length params record has closed the
	// header stream. Complete is true once a zero-length stdin record
	// has closed the body stream.
	Prepared bool
	Complete bool
}

func newRequest(id uint16) *Request {
	return &Request{ID: id, headers: newHeaderBuffer()}
}

// Header returns the decoded value of a params name, and whether it
// was present. Results are only complete once Prepared is true.
func (r *Request) Header(name string) (string, bool) {
	return r.headers.get(name)
}

// HeaderNames returns the params names seen so far, in first-seen order.
func (r *Request) HeaderNames() []string {
	return r.headers.names
}

// reset clears a Request's buffers for reuse by a future request id,
// without discarding the backing arrays.
func (r *Request) reset(id uint16) {
	r.ID = id
	r.Role = RoleUnknown
	r.KeepConn = false
	r.headers.clear()
	r.Body = r.Body[:0]
	r.Data = r.Data[:0]
	r.DataComplete = false
	r.Prepared = false
	r.Complete = false
}

// Response is the gateway-side aggregate state for one in-progress
// outbound request, keyed by request id within a Gateway.
type Response struct {
	ID uint16

	Stdout []byte
	Stderr []byte

	AppStatus uint32
	Status    ProtocolStatus
	Complete  bool
}

func newResponse(id uint16) *Response {
	return &Response{ID: id}
}

func (r *Response) reset(id uint16) {
	r.ID = id
	r.Stdout = r.Stdout[:0]
	r.Stderr = r.Stderr[:0]
	r.AppStatus = 0
	r.Status = StatusRequestComplete
	r.Complete = false
}
