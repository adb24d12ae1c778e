package envelope

import (
	"errors"
	"io"
)

const streamChunkSize = 32 * 1024

// cipherReader pulls from src and pushes every chunk through a Cipher.
type cipherReader struct {
	c    *Cipher
	src  io.Reader
	out  []byte
	done bool
	err  error
	scr  []byte
}

// NewReader returns a reader that yields the transformation of everything
// read from r. Final is called when r reports io.EOF; padding or alignment
// errors surface from Read at that point.
func NewReader(c *Cipher, r io.Reader) io.Reader {
	return &cipherReader{c: c, src: r, scr: make([]byte, streamChunkSize)}
}

func (r *cipherReader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if r.done {
			return 0, io.EOF
		}
		r.fill()
	}
	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

func (r *cipherReader) fill() {
	n, err := r.src.Read(r.scr)
	if n > 0 {
		out, uerr := r.c.Update(r.scr[:n])
		if uerr != nil {
			r.err = uerr
			return
		}
		r.out = out
	}
	switch {
	case errors.Is(err, io.EOF):
		tail, ferr := r.c.Final()
		if ferr != nil {
			r.err = ferr
			return
		}
		r.out = append(r.out, tail...)
		r.done = true
	case err != nil:
		r.err = err
	}
}

// cipherReadCloser closes the underlying body of a decrypting reader.
type cipherReadCloser struct {
	io.Reader
	closer io.Closer
}

func (r *cipherReadCloser) Close() error { return r.closer.Close() }
