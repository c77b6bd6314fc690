package dictrd

import (
	"io"
	"os"
	"unicode/utf8"
)

// Body is a handle to a dictionary body file plus the total byte
// length captured at open time. All reads are bounded by that length.
//
// Body.Find is implemented with ReadAt (a positional pread) rather
// than Seek+Read, so it holds no mutable file-position state and
// needs no lock for concurrent use — see SPEC_FULL.md §2.
type Body struct {
	r     io.ReaderAt
	total uint64
}

// OpenBody opens path and stats its length.
func OpenBody(path string) (*Body, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapIO("open body", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapIO("stat body", err)
	}
	return NewBody(f, uint64(stat.Size())), nil
}

// NewBody wraps an already-open io.ReaderAt with a known total length,
// for use with readers that aren't plain files (e.g. in tests).
func NewBody(r io.ReaderAt, total uint64) *Body {
	return &Body{r: r, total: total}
}

// Close releases the underlying file, if the reader supports it.
func (b *Body) Close() error {
	if c, ok := b.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Find reads exactly length bytes starting at offset and decodes them
// as UTF-8. It fails with ErrSyntax unless offset < total && offset +
// length <= total, and with ErrEncoding if the slice isn't valid
// UTF-8.
func (b *Body) Find(offset, length uint64) (string, error) {
	if offset >= b.total || offset+length > b.total {
		return "", ErrSyntax
	}
	if length == 0 {
		return "", nil
	}

	buf := make([]byte, length)
	n, err := b.r.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return "", wrapIO("read body", err)
	}
	if uint64(n) < length {
		return "", wrapIO("read body", io.ErrUnexpectedEOF)
	}

	if !utf8.Valid(buf) {
		return "", ErrEncoding
	}
	return string(buf), nil
}
