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

// Sink receives framed bytes from a Framer. Write should behave like
// io.Writer: consume all of p or return an error; the framer does not
// retry partial writes itself.
type Sink interface {
	Write(p []byte) (int, error)
}

// Framer emits FastCGI records to a Sink. It is stateless across
// calls beyond a small scratch buffer used to build headers, so a
// single Framer may be shared by any number of concurrent logical
// streams as long as calls are serialized by the caller.
type Framer struct {
	scratch [HeaderLen]byte
}

// NewFramer constructs a Framer. settings is reserved for future
// tuning and currently unused.
func NewFramer(settings Settings) *Framer {
	return &Framer{}
}

// emitRecord writes one record (header, then payload, no padding) to w.
func (f *Framer) emitRecord(w Sink, typ RecordType, requestID uint16, payload []byte) error {
	h := Header{
		Version:       Version1,
		Type:          typ,
		RequestID:     requestID,
		ContentLength: uint16(len(payload)),
	}
	h.put(f.scratch[:])
	if _, err := w.Write(f.scratch[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// emitStream splits payload into records of at most MaxPayloadSize
// bytes each and writes them to w, in order. An empty payload still
// emits a single zero-length record, which on the wire is the same
// end-of-stream marker that emitStreamEnd writes.
func (f *Framer) emitStream(w Sink, typ RecordType, requestID uint16, payload []byte) error {
	if len(payload) == 0 {
		return f.emitRecord(w, typ, requestID, nil)
	}
	for len(payload) > 0 {
		n := len(payload)
		if n > MaxPayloadSize {
			n = MaxPayloadSize
		}
		if err := f.emitRecord(w, typ, requestID, payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// emitStreamEnd writes the zero-length record that terminates a stream.
func (f *Framer) emitStreamEnd(w Sink, typ RecordType, requestID uint16) error {
	return f.emitRecord(w, typ, requestID, nil)
}

// EmitBeginRequest writes a begin-request record requesting role for
// requestID, with the given flag bits (see KeepConnFlag).
func (f *Framer) EmitBeginRequest(w Sink, requestID uint16, role Role, flags uint8) error {
	body := [8]byte{
		byte(role >> 8), byte(role),
		flags,
		0, 0, 0, 0, 0,
	}
	return f.emitRecord(w, TypeBeginRequest, requestID, body[:])
}

// EmitAbortRequest writes an abort-request record for requestID.
func (f *Framer) EmitAbortRequest(w Sink, requestID uint16) error {
	return f.emitRecord(w, TypeAbortRequest, requestID, nil)
}

// EmitEndRequest writes an end-request record for requestID.
func (f *Framer) EmitEndRequest(w Sink, requestID uint16, appStatus uint32, status ProtocolStatus) error {
	body := [8]byte{
		byte(appStatus >> 24), byte(appStatus >> 16), byte(appStatus >> 8), byte(appStatus),
		byte(status),
		0, 0, 0,
	}
	return f.emitRecord(w, TypeEndRequest, requestID, body[:])
}

// EmitParams writes chunk as one or more params records, splitting it
// at MaxPayloadSize. A nil or empty chunk closes the params stream.
// EmitParamsPairs encodes pairs and closes the stream in one call.
func (f *Framer) EmitParams(w Sink, requestID uint16, chunk []byte) error {
	if len(chunk) == 0 {
		return f.emitStreamEnd(w, TypeParams, requestID)
	}
	return f.emitStream(w, TypeParams, requestID, chunk)
}

// EmitParamsPairs encodes pairs as consecutive name-value pairs,
// frames the result (splitting at MaxPayloadSize as needed), and
// writes the terminating empty params record.
func (f *Framer) EmitParamsPairs(w Sink, requestID uint16, pairs [][2]string) error {
	var buf []byte
	for _, kv := range pairs {
		buf = encodeNVPair(buf, []byte(kv[0]), []byte(kv[1]))
	}
	if len(buf) > 0 {
		if err := f.emitStream(w, TypeParams, requestID, buf); err != nil {
			return err
		}
	}
	return f.emitStreamEnd(w, TypeParams, requestID)
}

// EmitStdin writes chunk as a stdin record; a nil or empty chunk closes
// the stream.
func (f *Framer) EmitStdin(w Sink, requestID uint16, chunk []byte) error {
	if len(chunk) == 0 {
		return f.emitStreamEnd(w, TypeStdin, requestID)
	}
	return f.emitStream(w, TypeStdin, requestID, chunk)
}

// EmitStdout writes chunk as a stdout record; a nil or empty chunk
// closes the stream.
func (f *Framer) EmitStdout(w Sink, requestID uint16, chunk []byte) error {
	if len(chunk) == 0 {
		return f.emitStreamEnd(w, TypeStdout, requestID)
	}
	return f.emitStream(w, TypeStdout, requestID, chunk)
}

// EmitStderr writes chunk as a stderr record; a nil or empty chunk
// closes the stream.
func (f *Framer) EmitStderr(w Sink, requestID uint16, chunk []byte) error {
	if len(chunk) == 0 {
		return f.emitStreamEnd(w, TypeStderr, requestID)
	}
	return f.emitStream(w, TypeStderr, requestID, chunk)
}

// EmitData writes chunk as a data record (used by the filter role); a
// nil or empty chunk closes the stream.
func (f *Framer) EmitData(w Sink, requestID uint16, chunk []byte) error {
	if len(chunk) == 0 {
		return f.emitStreamEnd(w, TypeData, requestID)
	}
	return f.emitStream(w, TypeData, requestID, chunk)
}

// EmitGetValues writes a get-values management record asking about
// names; each name is sent with an empty value, per the protocol.
func (f *Framer) EmitGetValues(w Sink, names []string) error {
	var buf []byte
	for _, name := range names {
		buf = encodeNVPair(buf, []byte(name), nil)
	}
	return f.emitRecord(w, TypeGetValues, NullRequestID, buf)
}

// EmitGetValuesResult writes a get-values-result management record
// answering a prior get-values query.
func (f *Framer) EmitGetValuesResult(w Sink, values [][2]string) error {
	var buf []byte
	for _, kv := range values {
		buf = encodeNVPair(buf, []byte(kv[0]), []byte(kv[1]))
	}
	return f.emitRecord(w, TypeGetValuesResult, NullRequestID, buf)
}
