package lw3

import "bytes"

// Delimiter terminates every LW3 line in both directions.
const Delimiter = "\r\n"

var delimiter = []byte(Delimiter)

// LineFramer splits a byte stream into CRLF terminated lines. It keeps the
// trailing partial line between calls and never rejects input.
type LineFramer struct {
	buf []byte
}

func NewLineFramer() *LineFramer {
	return &LineFramer{}
}

// Feed appends p and returns every line completed by it, without delimiters.
func (f *LineFramer) Feed(p []byte) []string {
	f.buf = append(f.buf, p...)

	var lines []string
	offset := 0
	for {
		i := bytes.Index(f.buf[offset:], delimiter)
		if i < 0 {
			break
		}
		lines = append(lines, string(f.buf[offset:offset+i]))
		offset += i + len(delimiter)
	}

	if offset > 0 {
		// consume from the front, keep the tail for the next Feed
		n := copy(f.buf, f.buf[offset:])
		f.buf = f.buf[:n]
	}
	return lines
}

// Pending returns the number of buffered bytes not yet forming a line.
func (f *LineFramer) Pending() int {
	return len(f.buf)
}

func (f *LineFramer) Reset() {
	f.buf = f.buf[:0]
}
