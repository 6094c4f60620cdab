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

// parserState is the inbound parser's finite state. There is a single
// body state for every record type: while in stateBody, the current
// record's type selects which per-type dispatcher receives the bytes.
type parserState int

const (
	stateHead parserState = iota // reading the 8-byte record header
	stateBody                    // dispatching payload bytes for the current record
	stateSkip                    // discarding padding bytes
	stateFail                    // latched error state; no further bytes accepted
)

// ParserEvents is the set of callbacks an inbound Parser drives as it
// recognizes record boundaries and payload chunks. Every field is
// optional; a nil hook is simply not called. Hooks are invoked
// synchronously from within Feed and must not retain the byte slices
// they're given beyond the call.
type ParserEvents struct {
	// OnRecord fires once a record's 8-byte header has been staged and
	// validated, before any of its body is dispatched. It names the
	// record that is about to be current for the rest of this pass:
	// session layers use it to select which request/response the
	// following per-type hooks target.
	OnRecord func(version uint8, requestID uint16, contentLength uint16)

	// OnRecordEnd fires once a record's body and padding have both been
	// fully consumed, closing out the selection OnRecord opened.
	OnRecordEnd func()

	// OnBeginRequest fires once a begin-request record's fixed 8-byte
	// body (role + flags + reserved) has arrived.
	OnBeginRequest func(requestID uint16, role Role, flags uint8)

	// OnAbortRequest fires when an abort-request record arrives.
	OnAbortRequest func(requestID uint16)

	// OnEndRequest fires once an end-request record's fixed 8-byte
	// body (app status + protocol status + reserved) has arrived.
	OnEndRequest func(requestID uint16, appStatus uint32, status ProtocolStatus)

	// OnParamsChunk fires for each chunk of raw FCGI_PARAMS payload
	// bytes; decoding into name-value pairs is the session layer's job,
	// since a pair may straddle more than one params record.
	OnParamsChunk func(requestID uint16, chunk []byte)
	// OnParamsEnd fires on the terminating zero-length params record.
	OnParamsEnd func(requestID uint16)

	// OnStdinChunk/OnStdinEnd, OnDataChunk/OnDataEnd mirror the params
	// hooks for the other two gateway-to-application streams.
	OnStdinChunk func(requestID uint16, chunk []byte)
	OnStdinEnd   func(requestID uint16)
	OnDataChunk  func(requestID uint16, chunk []byte)
	OnDataEnd    func(requestID uint16)

	// OnStdoutChunk/OnStdoutEnd, OnStderrChunk/OnStderrEnd mirror the
	// same shape for the two application-to-gateway streams.
	OnStdoutChunk func(requestID uint16, chunk []byte)
	OnStdoutEnd   func(requestID uint16)
	OnStderrChunk func(requestID uint16, chunk []byte)
	OnStderrEnd   func(requestID uint16)

	// OnGetValuesPair/OnGetValuesEnd and OnGetValuesResultPair/End
	// deliver name-value pairs decoded inline from a single get-values
	// or get-values-result record, bounded by that record's own content
	// length; unlike params, these never span records.
	OnGetValuesPair       func(name, value []byte)
	OnGetValuesEnd        func()
	OnGetValuesResultPair func(name, value []byte)
	OnGetValuesResultEnd  func()
}

// Parser is an incremental FastCGI record parser. It consumes bytes as
// they arrive from a transport via Feed and drives ParserEvents
// callbacks as record boundaries and payload chunks are recognized. It
// performs no I/O. Stream payloads are forwarded as sub-slices of the
// caller's input and never copied. Between calls it keeps the staged
// header bytes, the fixed 8-byte body of a begin-request or end-request
// record, and, for get-values and get-values-result records, the name
// and value bytes of the pair being decoded, which are copied into
// growable buffers until the pair is complete.
type Parser struct {
	events ParserEvents

	state parserState
	err   *ParseError

	// header staging: accumulates up to HeaderLen bytes of the record
	// header currently being read.
	staging [HeaderLen]byte
	staged  int

	cur       Header
	bodyLeft  uint16 // payload bytes of the current record not yet dispatched
	skipLeft  uint8  // padding bytes of the current record not yet discarded

	// fixed accumulates the 8-byte fixed body of begin-request and
	// end-request records, which never arrive split across states.
	fixed    [8]byte
	fixedGot int

	nv *nvParser // reused across get-values / get-values-result records

	// nvName/nvValue accumulate the pair currently being decoded by nv;
	// they must live here, not as locals in dispatchNV, so a pair that
	// straddles multiple Feed calls still assembles correctly.
	nvName, nvValue []byte
}

// NewParser constructs a Parser that drives events on ev. settings is
// reserved for future tuning and currently unused.
func NewParser(ev ParserEvents, settings Settings) *Parser {
	p := &Parser{
		events: ev,
		state:  stateHead,
		nv:     newNVParser(),
	}
	p.nv.onName = func(b []byte) { p.nvName = append(p.nvName, b...) }
	p.nv.onValue = func(b []byte) { p.nvValue = append(p.nvValue, b...) }
	p.nv.onEnd = func() {
		var pair func(name, value []byte)
		switch p.cur.Type {
		case TypeGetValues:
			pair = p.events.OnGetValuesPair
		case TypeGetValuesResult:
			pair = p.events.OnGetValuesResultPair
		}
		if pair != nil {
			pair(p.nvName, p.nvValue)
		}
		p.nvName = p.nvName[:0]
		p.nvValue = p.nvValue[:0]
	}
	return p
}

// Err returns the error that latched the parser into its failed state,
// or nil if the parser has not failed. Once non-nil, Feed is a no-op.
func (p *Parser) Err() error {
	if p.err == nil {
		return nil
	}
	return p.err
}

// Reset clears a latched error and returns the parser to its initial
// state, discarding any partially staged header or body. It does not
// reset any session-level state; callers that reset a Parser after an
// error should also discard any request state the session layer holds.
func (p *Parser) Reset() {
	p.state = stateHead
	p.err = nil
	p.staged = 0
	p.bodyLeft = 0
	p.skipLeft = 0
	p.fixedGot = 0
	p.nv.reset()
	p.nvName = p.nvName[:0]
	p.nvValue = p.nvValue[:0]
}

// fail latches the parser into its failed state and returns it.
func (p *Parser) fail(kind ErrorKind) {
	p.err = &ParseError{Kind: kind}
	p.state = stateFail
}

// Feed hands data to the parser, which consumes all of it (driving
// zero or more callbacks) unless the parser has already failed or
// fails partway through, in which case the remainder of data is not
// consumed and Err reports why.
func (p *Parser) Feed(data []byte) {
	for len(data) > 0 {
		switch p.state {
		case stateFail:
			return

		case stateHead:
			n := copy(p.staging[p.staged:], data)
			p.staged += n
			data = data[n:]
			if p.staged < HeaderLen {
				return
			}
			p.staged = 0
			p.cur = parseHeader(p.staging[:])
			if p.cur.Version != Version1 {
				p.fail(ErrKindBadVersion)
				return
			}
			if !p.cur.Type.valid() {
				p.fail(ErrKindBadRecordType)
				return
			}
			if (p.cur.Type == TypeBeginRequest || p.cur.Type == TypeEndRequest) && p.cur.ContentLength != 8 {
				p.fail(ErrKindBadFixedBodyLength)
				return
			}
			p.bodyLeft = p.cur.ContentLength
			p.fixedGot = 0
			p.nv.reset()
			if p.events.OnRecord != nil {
				p.events.OnRecord(p.cur.Version, p.cur.RequestID, p.cur.ContentLength)
			}
			if p.bodyLeft == 0 {
				p.dispatchEnd()
				p.state = stateSkip
				p.skipLeft = p.cur.PaddingLength
				if p.skipLeft == 0 {
					p.fireRecordEnd()
					p.state = stateHead
				}
				continue
			}
			p.state = stateBody

		case stateBody:
			consumed := p.dispatchBody(data)
			data = data[consumed:]
			if p.state == stateFail {
				return
			}
			if p.bodyLeft == 0 {
				p.state = stateSkip
				p.skipLeft = p.cur.PaddingLength
				if p.skipLeft == 0 {
					p.fireRecordEnd()
					p.state = stateHead
				}
			}

		case stateSkip:
			n := int(p.skipLeft)
			if n > len(data) {
				n = len(data)
			}
			data = data[n:]
			p.skipLeft -= uint8(n)
			if p.skipLeft == 0 {
				p.fireRecordEnd()
				p.state = stateHead
			}
		}
	}
}

// fireRecordEnd closes out the selection OnRecord opened for the
// record just finished (body and padding both consumed).
func (p *Parser) fireRecordEnd() {
	if p.events.OnRecordEnd != nil {
		p.events.OnRecordEnd()
	}
}

// dispatchEnd fires the appropriate "stream ended" hook for a
// zero-length record, without ever having entered stateBody. It
// mirrors the original implementation's behavior of firing end-of-
// stream hooks immediately off the header, before padding is skipped.
func (p *Parser) dispatchEnd() {
	id := p.cur.RequestID
	switch p.cur.Type {
	case TypeAbortRequest:
		if p.events.OnAbortRequest != nil {
			p.events.OnAbortRequest(id)
		}
	case TypeParams:
		if p.events.OnParamsEnd != nil {
			p.events.OnParamsEnd(id)
		}
	case TypeStdin:
		if p.events.OnStdinEnd != nil {
			p.events.OnStdinEnd(id)
		}
	case TypeStdout:
		if p.events.OnStdoutEnd != nil {
			p.events.OnStdoutEnd(id)
		}
	case TypeStderr:
		if p.events.OnStderrEnd != nil {
			p.events.OnStderrEnd(id)
		}
	case TypeData:
		if p.events.OnDataEnd != nil {
			p.events.OnDataEnd(id)
		}
	case TypeGetValues:
		if p.events.OnGetValuesEnd != nil {
			p.events.OnGetValuesEnd()
		}
	case TypeGetValuesResult:
		if p.events.OnGetValuesResultEnd != nil {
			p.events.OnGetValuesResultEnd()
		}
	case TypeBeginRequest, TypeEndRequest:
		// Unreachable: Feed rejects a begin-request or end-request whose
		// content length isn't exactly 8 before this record ever reaches
		// dispatchEnd, so bodyLeft is never 0 here for these two types.
	}
}

// dispatchBody consumes up to p.bodyLeft bytes from data, driving
// whatever per-type hook applies, and returns the number of bytes consumed.
func (p *Parser) dispatchBody(data []byte) int {
	switch p.cur.Type {
	case TypeBeginRequest:
		return p.dispatchFixed(data, 8, func() {
			role := Role(uint16(p.fixed[0])<<8 | uint16(p.fixed[1]))
			flags := p.fixed[2]
			if p.events.OnBeginRequest != nil {
				p.events.OnBeginRequest(p.cur.RequestID, role, flags)
			}
		})
	case TypeEndRequest:
		return p.dispatchFixed(data, 8, func() {
			appStatus := uint32(p.fixed[0])<<24 | uint32(p.fixed[1])<<16 |
				uint32(p.fixed[2])<<8 | uint32(p.fixed[3])
			status := ProtocolStatus(p.fixed[4])
			if p.events.OnEndRequest != nil {
				p.events.OnEndRequest(p.cur.RequestID, appStatus, status)
			}
		})
	case TypeParams:
		return p.dispatchStream(data, p.events.OnParamsChunk)
	case TypeStdin:
		return p.dispatchStream(data, p.events.OnStdinChunk)
	case TypeStdout:
		return p.dispatchStream(data, p.events.OnStdoutChunk)
	case TypeStderr:
		return p.dispatchStream(data, p.events.OnStderrChunk)
	case TypeData:
		return p.dispatchStream(data, p.events.OnDataChunk)
	case TypeGetValues, TypeGetValuesResult:
		return p.dispatchNV(data)
	case TypeAbortRequest:
		// abort-request has no body in a conforming stream; if a
		// non-conforming peer declares one, discard it unread.
		n := int(p.bodyLeft)
		if n > len(data) {
			n = len(data)
		}
		p.bodyLeft -= uint16(n)
		return n
	}
	return 0
}

// dispatchFixed accumulates the fixed-size body of a begin-request or
// end-request record and calls done once all of it has arrived. Feed
// rejects any begin-request/end-request whose declared content length
// isn't exactly size before this is ever called, so bodyLeft reaches 0
// in the same step fixedGot reaches size; done never fires twice.
func (p *Parser) dispatchFixed(data []byte, size int, done func()) int {
	n := size - p.fixedGot
	if n > len(data) {
		n = len(data)
	}
	if n > int(p.bodyLeft) {
		n = int(p.bodyLeft)
	}
	copy(p.fixed[p.fixedGot:], data[:n])
	p.fixedGot += n
	p.bodyLeft -= uint16(n)
	if p.fixedGot >= size {
		done()
	}
	return n
}

// dispatchStream forwards a chunk of the current record's payload to
// chunk. Exhausting a non-empty record's content length does not end
// the stream; only a zero-length record does, via dispatchEnd.
func (p *Parser) dispatchStream(data []byte, chunk func(uint16, []byte)) int {
	n := int(p.bodyLeft)
	if n > len(data) {
		n = len(data)
	}
	if n > 0 && chunk != nil {
		chunk(p.cur.RequestID, data[:n])
	}
	p.bodyLeft -= uint16(n)
	return n
}

func (p *Parser) fireStreamEnd() {
	id := p.cur.RequestID
	switch p.cur.Type {
	case TypeParams:
		if p.events.OnParamsEnd != nil {
			p.events.OnParamsEnd(id)
		}
	case TypeStdin:
		if p.events.OnStdinEnd != nil {
			p.events.OnStdinEnd(id)
		}
	case TypeStdout:
		if p.events.OnStdoutEnd != nil {
			p.events.OnStdoutEnd(id)
		}
	case TypeStderr:
		if p.events.OnStderrEnd != nil {
			p.events.OnStderrEnd(id)
		}
	case TypeData:
		if p.events.OnDataEnd != nil {
			p.events.OnDataEnd(id)
		}
	}
}

// dispatchNV feeds data into the shared nvParser, bounded by the
// current record's remaining content length, and fires pair once each
// complete name-value pair has been assembled. Unlike the stream
// dispatchers, get-values/get-values-result pairs never span records:
// each record's pairs are fully decoded from that record's own bytes.
func (p *Parser) dispatchNV(data []byte) int {
	n := int(p.bodyLeft)
	if n > len(data) {
		n = len(data)
	}

	consumed, _ := p.nv.feed(data[:n])
	p.bodyLeft -= uint16(consumed)

	if p.bodyLeft == 0 {
		// A management record's pairs are bounded by its own content
		// length; ending mid-pair means the declared lengths don't fit
		// the record that carried them.
		if p.nv.state != nvNameLen {
			p.fail(ErrKindBadNameValueLength)
			return consumed
		}
		p.fireGetValuesEnd()
	}
	return consumed
}

func (p *Parser) fireGetValuesEnd() {
	switch p.cur.Type {
	case TypeGetValues:
		if p.events.OnGetValuesEnd != nil {
			p.events.OnGetValuesEnd()
		}
	case TypeGetValuesResult:
		if p.events.OnGetValuesResultEnd != nil {
			p.events.OnGetValuesResultEnd()
		}
	}
}
