package pms5003

import (
	"encoding/binary"
	"io"
)

// testFrame builds a valid packet carrying the given atmospheric values.
func testFrame(pm1, pm25, pm10 uint16) []byte {
	buf := make([]byte, FrameSize)
	buf[0], buf[1] = magic1, magic2
	binary.BigEndian.PutUint16(buf[2:], PayloadLength)
	binary.BigEndian.PutUint16(buf[10:], pm1)
	binary.BigEndian.PutUint16(buf[12:], pm25)
	binary.BigEndian.PutUint16(buf[14:], pm10)
	binary.BigEndian.PutUint16(buf[30:], Checksum(buf[:30]))
	return buf
}

func corrupt(frame []byte) []byte {
	out := append([]byte(nil), frame...)
	out[20] ^= 0xff
	return out
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// step is one scripted Read result: data, an empty read, or an error.
type step struct {
	data  []byte
	err   error
	empty bool
}

func send(b []byte) step { return step{data: b} }
func empty() step { return step{empty: true} }
func fail(err error) step { return step{err: err} }

// chunked splits b into reads of at most size bytes.
func chunked(b []byte, size int) []step {
	var steps []step
	for len(b) > 0 {
		n := size
		if n > len(b) {
			n = len(b)
		}
		steps = append(steps, send(b[:n]))
		b = b[n:]
	}
	return steps
}

// scriptedSource replays steps, then reports io.EOF.
type scriptedSource struct {
	steps []step
	reads int
}

func newSource(steps ...step) *scriptedSource {
	return &scriptedSource{steps: steps}
}

func (s *scriptedSource) Read(p []byte) (int, error) {
	s.reads++
	if len(s.steps) == 0 {
		return 0, io.EOF
	}
	st := &s.steps[0]
	switch {
	case st.err != nil:
		s.steps = s.steps[1:]
		return 0, st.err
	case st.empty || len(st.data) == 0:
		s.steps = s.steps[1:]
		return 0, nil
	}
	n := copy(p, st.data)
	st.data = st.data[n:]
	if len(st.data) == 0 {
		s.steps = s.steps[1:]
	}
	return n, nil
}

// remaining returns the bytes not consumed yet.
func (s *scriptedSource) remaining() []byte {
	var out []byte
	for _, st := range s.steps {
		out = append(out, st.data...)
	}
	return out
}

// drySource never has data.
type drySource struct{}

func (drySource) Read(p []byte) (int, error) { return 0, nil }
