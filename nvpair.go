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

// nvState is the name-value pair parser's sub-state.
type nvState int

const (
	nvNameLen nvState = iota
	nvValueLen
	nvName
	nvValue
)

// nvParser decodes the length-prefixed name-value pair encoding shared
// by FCGI_PARAMS, FCGI_GET_VALUES and FCGI_GET_VALUES_RESULT payloads.
// It holds no payload bytes of its own; it only tracks how many name
// and value bytes remain to be forwarded, so a pair may span any
// number of Feed calls (and, for params, any number of records).
//
// onSizes, if set, fires once both lengths of a pair are known, before
// any name/value bytes are forwarded; it lets callers pre-reserve
// buffers. onName/onValue forward chunks of the corresponding field.
// onEnd fires once both fields of a pair have been fully forwarded.
type nvParser struct {
	state nvState

	// staging accumulates the 1 or 4 bytes of whichever length prefix
	// is currently being read. staged counts valid bytes in it.
	staging [4]byte
	staged  int

	// long is true once the first byte of a length prefix indicated
	// the 4-byte form (high bit set).
	long bool

	nameSize, valueSize uint32
	nameLeft, valueLeft uint32

	onSizes func(nameSize, valueSize uint32)
	onName  func(p []byte)
	onValue func(p []byte)
	onEnd   func()
}

func newNVParser() *nvParser {
	return &nvParser{state: nvNameLen}
}

// reset returns the parser to its initial state, ready for a new pair.
// It does not touch the callback fields.
func (p *nvParser) reset() {
	p.state = nvNameLen
	p.staged = 0
	p.long = false
	p.nameSize, p.valueSize = 0, 0
	p.nameLeft, p.valueLeft = 0, 0
}

// feed decodes as much of data as forms complete lengths and pair
// bytes, and returns the number of bytes consumed. Every length prefix
// is accepted, so it always consumes the entire input and reports
// ok=true. A pair whose remaining value length is zero is completed
// (onEnd fires) without waiting for further input.
func (p *nvParser) feed(data []byte) (consumed int, ok bool) {
	used := 0
	for used < len(data) || (p.state == nvValue && p.valueLeft == 0) {
		switch p.state {
		case nvNameLen:
			n, advanced := p.feedLen(data[used:], &p.nameSize)
			used += n
			if !advanced {
				return used, true
			}
			p.state = nvValueLen
		case nvValueLen:
			n, advanced := p.feedLen(data[used:], &p.valueSize)
			used += n
			if !advanced {
				return used, true
			}
			p.nameLeft = p.nameSize
			p.valueLeft = p.valueSize
			if p.onSizes != nil {
				p.onSizes(p.nameSize, p.valueSize)
			}
			p.state = nvName
			if p.nameLeft == 0 {
				p.state = nvValue
			}
		case nvName:
			n := min32(p.nameLeft, uint32(len(data)-used))
			if n > 0 && p.onName != nil {
				p.onName(data[used : used+int(n)])
			}
			used += int(n)
			p.nameLeft -= n
			if p.nameLeft == 0 {
				p.state = nvValue
			}
		case nvValue:
			n := min32(p.valueLeft, uint32(len(data)-used))
			if n > 0 && p.onValue != nil {
				p.onValue(data[used : used+int(n)])
			}
			used += int(n)
			p.valueLeft -= n
			if p.valueLeft == 0 {
				if p.onEnd != nil {
					p.onEnd()
				}
				p.reset()
			}
		}
	}
	return used, true
}

// feedLen accumulates one length prefix (1 or 4 bytes, high bit of the
// first byte selects the form) into *out. It reports how many bytes of
// data it consumed and whether the length is now fully assembled.
func (p *nvParser) feedLen(data []byte, out *uint32) (consumed int, advanced bool) {
	used := 0
	if p.staged == 0 && len(data) > 0 {
		first := data[used]
		used++
		if first&0x80 == 0 {
			*out = uint32(first)
			return used, true
		}
		p.long = true
		p.staging[0] = first & 0x7f
		p.staged = 1
	}
	for p.long && p.staged < 4 && used < len(data) {
		p.staging[p.staged] = data[used]
		p.staged++
		used++
	}
	if p.long && p.staged == 4 {
		*out = uint32(p.staging[0])<<24 | uint32(p.staging[1])<<16 |
			uint32(p.staging[2])<<8 | uint32(p.staging[3])
		p.staged = 0
		p.long = false
		return used, true
	}
	return used, false
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// encodeNVSize appends the length prefix for size to buf, using the
// 1-byte form when size fits in 7 bits and the 4-byte big-endian form
// (high bit set) otherwise.
func encodeNVSize(buf []byte, size uint32) []byte {
	if size <= 127 {
		return append(buf, byte(size))
	}
	return append(buf,
		byte(size>>24)|0x80,
		byte(size>>16),
		byte(size>>8),
		byte(size),
	)
}

// encodeNVPair appends the wire encoding of a single name-value pair to buf.
func encodeNVPair(buf []byte, name, value []byte) []byte {
	buf = encodeNVSize(buf, uint32(len(name)))
	buf = encodeNVSize(buf, uint32(len(value)))
	buf = append(buf, name...)
	buf = append(buf, value...)
	return buf
}
