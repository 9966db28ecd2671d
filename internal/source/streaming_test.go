package source

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestBOMReader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips bom", "\xEF\xBB\xBFhello", "hello"},
		{"no bom", "hello", "hello"},
		{"bom only", "\xEF\xBB\xBF", ""},
		{"short input", "hi", "hi"},
		{"empty", "", ""},
		{"partial bom kept", "\xEF\xBBx", "\xEF\xBBx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newBOMReader(strings.NewReader(tt.in)))
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeReader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii passthrough", "hello, world", "hello, world"},
		{"valid multibyte", "héllo wörld", "héllo wörld"},
		{"invalid byte replaced", "a\xFFb", "a?b"},
		{"truncated sequence at end", "ok\xC3", "ok?"},
		{"lone continuation", "a\x80b", "a?b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newSanitizeReader(strings.NewReader(tt.in)))
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeReaderSplitSequences(t *testing.T) {
	// One byte per Read splits every multi-byte rune across calls; the
	// reader must reassemble them instead of flagging them invalid.
	in := "héllo wörld é"
	got, err := io.ReadAll(newSanitizeReader(iotest.OneByteReader(strings.NewReader(in))))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != in {
		t.Errorf("got %q, want %q", got, in)
	}
}

func TestCountingReader(t *testing.T) {
	data := "0123456789"
	c := wrapStream(strings.NewReader(data), int64(len(data)))

	if _, err := io.ReadAll(c); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if c.read != int64(len(data)) {
		t.Errorf("read = %d, want %d", c.read, len(data))
	}
	if c.total != int64(len(data)) {
		t.Errorf("total = %d, want %d", c.total, len(data))
	}
}

func TestWrapStream(t *testing.T) {
	in := "\xEF\xBB\xBFid,n\xFFme\n"
	got, err := io.ReadAll(wrapStream(strings.NewReader(in), 0))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "id,n?me\n" {
		t.Errorf("got %q", got)
	}
}
