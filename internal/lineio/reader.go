package lineio

import (
	"bufio"
	"errors"
	"io"
)

// DefaultMaxLineLength bounds IRC lines read from servers.
const DefaultMaxLineLength = 1000

// Reader reads universal-newline separated lines.
type Reader struct {
	r      *bufio.Reader
	max    int
	prevCR bool
	done   bool
}

// NewReader returns a Reader dropping lines longer than maxLen bytes.
// maxLen <= 0 disables the limit.
func NewReader(r io.Reader, maxLen int) *Reader {
	return &Reader{r: bufio.NewReader(r), max: maxLen}
}

// ReadLine returns the next line without its separator. After the final
// line it returns io.EOF. The returned slice is owned by the caller.
func (r *Reader) ReadLine() ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}
	var line []byte
	overflow := false
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			r.done = true
			if overflow {
				return nil, io.EOF
			}
			if line == nil {
				line = []byte{}
			}
			return line, nil
		}
		wasCR := r.prevCR
		r.prevCR = b == '\r'
		if b == '\n' && wasCR && line == nil && !overflow {
			// second half of a CR LF pair
			continue
		}
		if b == '\r' || b == '\n' {
			if overflow {
				overflow = false
				line = nil
				continue
			}
			if line == nil {
				line = []byte{}
			}
			return line, nil
		}
		if overflow {
			continue
		}
		if r.max > 0 && len(line) >= r.max {
			overflow = true
			line = nil
			continue
		}
		line = append(line, b)
	}
}
