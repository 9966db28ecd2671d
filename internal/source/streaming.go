package source

// streaming.go wraps CSV input streams so they can be consumed with
// bounded memory:
//
//   - bomReader drops a leading UTF-8 BOM (0xEF 0xBB 0xBF), common in
//     files exported on Windows
//   - sanitizeReader replaces invalid UTF-8 bytes with '?' on the fly
//   - countingReader tracks bytes consumed for progress reporting
//
// wrapStream applies all three in the required order.

import (
	"io"
	"unicode/utf8"
)

// bomReader skips a UTF-8 byte order mark on the first read.
type bomReader struct {
	r       io.Reader
	checked bool
	held    []byte
}

func newBOMReader(r io.Reader) *bomReader { return &bomReader{r: r} }

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
			// BOM found, drop it
		} else if n > 0 {
			b.held = append(b.held, buf[:n]...)
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
	}

	if len(b.held) > 0 {
		n := copy(p, b.held)
		b.held = b.held[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// sanitizeReader replaces invalid UTF-8 sequences with '?' as data flows
// through. Incomplete multi-byte sequences at a read boundary are carried
// over to the next call rather than flagged invalid.
type sanitizeReader struct {
	r       io.Reader
	pending []byte
}

func newSanitizeReader(r io.Reader) *sanitizeReader {
	return &sanitizeReader{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *sanitizeReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	off := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	if allASCII(data) {
		return n, err
	}

	atEOF := err == io.EOF
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && seqLen(data[read]) > len(data)-read {
				// Possibly a split multi-byte sequence; hold it back.
				s.pending = append(s.pending, data[read:]...)
				break
			}
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}

	if write == 0 && err == nil {
		// Everything was held back; try again for more bytes.
		return s.Read(p)
	}
	return write, err
}

func allASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// seqLen returns the declared length of a UTF-8 sequence starting with b,
// or 0 for a continuation or invalid lead byte.
func seqLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// countingReader tracks how many bytes have been consumed from the source,
// which is the only progress signal available when the row count is unknown.
type countingReader struct {
	r     io.Reader
	read  int64
	total int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	return n, err
}

// wrapStream layers BOM skipping, UTF-8 sanitization, and byte counting
// over a raw stream. BOM removal must happen before sanitization sees the
// bytes.
func wrapStream(r io.Reader, total int64) *countingReader {
	return &countingReader{
		r:     newSanitizeReader(newBOMReader(r)),
		total: total,
	}
}
